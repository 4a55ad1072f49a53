package history_test

import (
	"context"
	"testing"
	"time"

	"app/internal/app/history"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHistoryInsertAndList(t *testing.T) {
	assert := require.New(t)

	ctx := context.Background()

	db, err := history.New(ctx, &history.Config{Path: ":memory:"})
	assert.NoError(err)
	defer db.Close()

	base := time.Now().UTC().Truncate(time.Second)

	older := &history.Memo{
		ID:         uuid.New(),
		Provider:   "local",
		VoiceID:    "abc123",
		Text:       "first memo",
		OutputPath: "/tmp/memo_1.wav",
		DurationMS: 1200,
		CreatedAt:  base.Add(-time.Minute),
	}
	newer := &history.Memo{
		ID:        uuid.New(),
		Provider:  "openai",
		Text:      "second memo",
		Error:     "openai api key is not set",
		CreatedAt: base,
	}

	assert.NoError(db.Insert(ctx, older))
	assert.NoError(db.Insert(ctx, newer))

	memos, err := db.List(ctx, 10)
	assert.NoError(err)
	assert.Len(memos, 2)

	// newest first
	assert.Equal(newer.ID, memos[0].ID)
	assert.Equal("openai api key is not set", memos[0].Error)
	assert.Equal(older.ID, memos[1].ID)
	assert.Equal("abc123", memos[1].VoiceID)
	assert.Equal(int64(1200), memos[1].DurationMS)
}

func TestHistoryListLimit(t *testing.T) {
	assert := require.New(t)

	ctx := context.Background()

	db, err := history.New(ctx, &history.Config{Path: ":memory:"})
	assert.NoError(err)
	defer db.Close()

	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		assert.NoError(db.Insert(ctx, &history.Memo{
			ID:        uuid.New(),
			Provider:  "local",
			Text:      "memo",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	memos, err := db.List(ctx, 3)
	assert.NoError(err)
	assert.Len(memos, 3)

	// limit <= 0 falls back to the default cap instead of returning nothing
	memos, err = db.List(ctx, 0)
	assert.NoError(err)
	assert.Len(memos, 5)
}

package settings_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"app/internal/app/settings"
	"app/pkg/ai"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestStoreDefaults(t *testing.T) {
	assert := require.New(t)

	store, err := settings.NewStore(testLogger(), t.TempDir())
	assert.NoError(err)

	got := store.Get()
	assert.Equal(ai.ProviderLocal, got.ActiveProvider)
	assert.Empty(got.Credentials)
	assert.Equal(settings.ModelSizeAuto, got.ModelSize)
}

func TestStoreUpdateMergesCredentials(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()

	store, err := settings.NewStore(testLogger(), dir)
	assert.NoError(err)

	_, err = store.Update(settings.Settings{
		Credentials: map[ai.Provider]string{ai.ProviderElevenLabs: "el-key"},
	})
	assert.NoError(err)

	// a later partial update must not wipe the elevenlabs key
	got, err := store.Update(settings.Settings{
		ActiveProvider: ai.ProviderOpenAI,
		Credentials:    map[ai.Provider]string{ai.ProviderOpenAI: "oa-key"},
	})
	assert.NoError(err)

	assert.Equal(ai.ProviderOpenAI, got.ActiveProvider)
	assert.Equal("el-key", store.Credential(ai.ProviderElevenLabs))
	assert.Equal("oa-key", store.Credential(ai.ProviderOpenAI))

	// empty value deletes the key
	_, err = store.Update(settings.Settings{
		Credentials: map[ai.Provider]string{ai.ProviderElevenLabs: ""},
	})
	assert.NoError(err)
	assert.Empty(store.Credential(ai.ProviderElevenLabs))

	// everything above survives a reload
	reloaded, err := settings.NewStore(testLogger(), dir)
	assert.NoError(err)
	assert.Equal(ai.ProviderOpenAI, reloaded.ActiveProvider())
	assert.Equal("oa-key", reloaded.Credential(ai.ProviderOpenAI))
	assert.Empty(reloaded.Credential(ai.ProviderElevenLabs))
}

func TestStoreUpdateRejectsUnknownValues(t *testing.T) {
	assert := require.New(t)

	store, err := settings.NewStore(testLogger(), t.TempDir())
	assert.NoError(err)

	_, err = store.Update(settings.Settings{ActiveProvider: "hal9000"})
	assert.Error(err)

	_, err = store.Update(settings.Settings{Credentials: map[ai.Provider]string{"hal9000": "key"}})
	assert.Error(err)

	_, err = store.Update(settings.Settings{ModelSize: "enormous"})
	assert.Error(err)

	// nothing above changed the stored state
	assert.Equal(ai.ProviderLocal, store.ActiveProvider())
	assert.Equal(settings.ModelSizeAuto, store.ModelSize())
}

func TestStoreDefaultVoices(t *testing.T) {
	assert := require.New(t)

	store, err := settings.NewStore(testLogger(), t.TempDir())
	assert.NoError(err)

	_, err = store.Update(settings.Settings{
		DefaultVoices: map[ai.Provider]string{ai.ProviderKokoro: "af_sky"},
	})
	assert.NoError(err)

	assert.Equal("af_sky", store.DefaultVoice(ai.ProviderKokoro))
	assert.Empty(store.DefaultVoice(ai.ProviderLocal))
}

func TestStoreCorruptDocument(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()
	assert.NoError(os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{not json"), 0600))

	store, err := settings.NewStore(testLogger(), dir)
	assert.NoError(err)
	assert.Equal(ai.ProviderLocal, store.ActiveProvider())
}

func TestStorePersistsWithOwnerOnlyPerm(t *testing.T) {
	assert := require.New(t)

	dir := t.TempDir()

	store, err := settings.NewStore(testLogger(), dir)
	assert.NoError(err)

	_, err = store.Update(settings.Settings{
		Credentials: map[ai.Provider]string{ai.ProviderOpenAI: "sk-secret"},
	})
	assert.NoError(err)

	info, err := os.Stat(filepath.Join(dir, "settings.json"))
	assert.NoError(err)
	assert.Equal(os.FileMode(0600), info.Mode().Perm())
}

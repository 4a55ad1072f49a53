package ai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"app/pkg/ai"

	"github.com/stretchr/testify/require"
)

func TestLocalClone(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("/v1/clone", r.URL.Path)

		assert.NoError(r.ParseMultipartForm(1 << 20))
		assert.Equal("My Voice", r.FormValue("name"))
		assert.Equal("hello there", r.FormValue("transcript"))

		file, _, err := r.FormFile("audio")
		assert.NoError(err)
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"voice_id": "abc123", "name": "My Voice"})
	}))
	defer srv.Close()

	client := ai.NewLocalClient(srv.Client(), &ai.LocalConfig{URL: srv.URL})

	voiceID, err := client.Clone(context.Background(), "My Voice", []byte("RIFFfake"), "hello there")
	assert.NoError(err)
	assert.Equal("abc123", voiceID)
}

func TestLocalCloneNoAudio(t *testing.T) {
	assert := require.New(t)

	client := ai.NewLocalClient(http.DefaultClient, &ai.LocalConfig{URL: "http://127.0.0.1:1"})

	_, err := client.Clone(context.Background(), "My Voice", nil, "")
	assert.Error(err)
	assert.Equal(ai.ErrCodeConfig, ai.ErrCode(err))
}

func TestLocalSpeak(t *testing.T) {
	assert := require.New(t)

	wav := []byte("RIFF0000WAVEfake-audio")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/tts", r.URL.Path)

		var req struct {
			Text    string `json:"text"`
			VoiceID string `json:"voice_id"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("hello", req.Text)
		assert.Equal("abc123", req.VoiceID)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	client := ai.NewLocalClient(srv.Client(), &ai.LocalConfig{URL: srv.URL})

	audio, err := client.Speak(context.Background(), &ai.SpeakRequest{Text: "hello", VoiceID: "abc123"})
	assert.NoError(err)
	assert.Equal(wav, audio)
}

func TestLocalSpeakServerError(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer srv.Close()

	client := ai.NewLocalClient(srv.Client(), &ai.LocalConfig{URL: srv.URL})

	_, err := client.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.Error(err)
	assert.Equal(ai.ErrCodeProvider, ai.ErrCode(err))
	assert.Equal(http.StatusInternalServerError, ai.ErrStatus(err))
	assert.Contains(err.Error(), "model not loaded")
}

func TestLocalSpeakUnreachable(t *testing.T) {
	assert := require.New(t)

	// nothing listens on port 1
	client := ai.NewLocalClient(http.DefaultClient, &ai.LocalConfig{URL: "http://127.0.0.1:1"})

	_, err := client.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.Error(err)
	assert.Equal(ai.ErrCodeNetwork, ai.ErrCode(err))
}

func TestLocalHealth(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := ai.NewLocalClient(srv.Client(), &ai.LocalConfig{URL: srv.URL})
	assert.True(client.Health(context.Background()))

	down := ai.NewLocalClient(http.DefaultClient, &ai.LocalConfig{URL: "http://127.0.0.1:1"})
	assert.False(down.Health(context.Background()))
}

func TestLocalVoices(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/voices", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"voices": []map[string]string{
				{"voice_id": "v1", "name": "first"},
				{"voice_id": "v2", "name": "second"},
			},
		})
	}))
	defer srv.Close()

	client := ai.NewLocalClient(srv.Client(), &ai.LocalConfig{URL: srv.URL})

	voices, err := client.Voices(context.Background())
	assert.NoError(err)
	assert.Len(voices, 2)
	assert.Equal("v1", voices[0].VoiceID)
	assert.Equal("second", voices[1].Name)
}

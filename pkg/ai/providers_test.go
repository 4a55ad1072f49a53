package ai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"app/pkg/ai"

	"github.com/stretchr/testify/require"
)

type staticCredentials map[ai.Provider]string

func (c staticCredentials) Credential(p ai.Provider) string {
	return c[p]
}

// countingClient fails the test if any request goes out at all.
type countingClient struct {
	t     *testing.T
	calls int
}

func (c *countingClient) Do(r *http.Request) (*http.Response, error) {
	c.calls++
	c.t.Fatalf("unexpected request to %s", r.URL)

	return nil, nil
}

func TestSpeakEmptyTextNoNetwork(t *testing.T) {
	creds := staticCredentials{
		ai.ProviderElevenLabs: "k",
		ai.ProviderOpenAI:     "k",
		ai.ProviderPlayHT:     "k",
	}

	client := &countingClient{t: t}

	engines := []ai.Engine{
		ai.NewLocalClient(client, &ai.LocalConfig{URL: "http://127.0.0.1:1"}),
		ai.NewElevenLabsClient(client, &ai.ElevenLabsConfig{}, creds),
		ai.NewOpenAIClient(client, &ai.OpenAIConfig{}, creds),
		ai.NewPlayHTClient(client, &ai.PlayHTConfig{}, creds),
		ai.NewKokoroClient(client, &ai.KokoroConfig{}),
	}

	for _, engine := range engines {
		t.Run(engine.Provider().String(), func(t *testing.T) {
			assert := require.New(t)

			_, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "   "})
			assert.Error(err)
			assert.Equal(ai.ErrCodeConfig, ai.ErrCode(err))
			assert.Zero(client.calls)
		})
	}
}

func TestSpeakMissingKeyNoNetwork(t *testing.T) {
	assert := require.New(t)

	client := &countingClient{t: t}
	creds := staticCredentials{}

	engine := ai.NewOpenAIClient(client, &ai.OpenAIConfig{}, creds)

	_, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.Error(err)
	assert.Equal(ai.ErrCodeConfig, ai.ErrCode(err))
	assert.Zero(client.calls)
}

func TestElevenLabsClone(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/voices/add", r.URL.Path)
		assert.Equal("secret", r.Header.Get("xi-api-key"))

		assert.NoError(r.ParseMultipartForm(1 << 20))
		assert.Equal("My Voice", r.FormValue("name"))

		_, _, err := r.FormFile("files")
		assert.NoError(err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"voice_id": "el-42"})
	}))
	defer srv.Close()

	engine := ai.NewElevenLabsClient(srv.Client(), &ai.ElevenLabsConfig{URL: srv.URL},
		staticCredentials{ai.ProviderElevenLabs: "secret"})

	voiceID, err := engine.Clone(context.Background(), "My Voice", []byte("RIFFfake"), "")
	assert.NoError(err)
	assert.Equal("el-42", voiceID)
}

func TestElevenLabsSpeakDefaultVoice(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/"))
		assert.NotEmpty(strings.TrimPrefix(r.URL.Path, "/v1/text-to-speech/"))

		var req struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(req.Text, "hello")
		assert.Contains(req.Text, "whisper")
		assert.Equal("eleven_multilingual_v2", req.ModelID)

		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	engine := ai.NewElevenLabsClient(srv.Client(), &ai.ElevenLabsConfig{URL: srv.URL},
		staticCredentials{ai.ProviderElevenLabs: "secret"})

	audio, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello", Instruction: "whisper"})
	assert.NoError(err)
	assert.Equal([]byte("audio"), audio)
}

func TestElevenLabsSpeakUnauthorized(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	engine := ai.NewElevenLabsClient(srv.Client(), &ai.ElevenLabsConfig{URL: srv.URL},
		staticCredentials{ai.ProviderElevenLabs: "bad"})

	_, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.Error(err)
	assert.Equal(ai.ErrCodeProvider, ai.ErrCode(err))
	assert.Equal(http.StatusUnauthorized, ai.ErrStatus(err))
	assert.Contains(err.Error(), "401")
}

func TestOpenAISpeak(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/audio/speech", r.URL.Path)
		assert.Equal("Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model        string `json:"model"`
			Input        string `json:"input"`
			Voice        string `json:"voice"`
			Instructions string `json:"instructions"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("gpt-4o-mini-tts", req.Model)
		assert.Equal("hello", req.Input)
		assert.Equal("alloy", req.Voice)
		assert.Equal("cheerful", req.Instructions)

		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	engine := ai.NewOpenAIClient(srv.Client(), &ai.OpenAIConfig{URL: srv.URL},
		staticCredentials{ai.ProviderOpenAI: "sk-test"})

	audio, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello", Instruction: "cheerful"})
	assert.NoError(err)
	assert.Equal([]byte("audio"), audio)
}

func TestOpenAICloneIsNoop(t *testing.T) {
	assert := require.New(t)

	client := &countingClient{t: t}

	engine := ai.NewOpenAIClient(client, &ai.OpenAIConfig{}, staticCredentials{})
	assert.False(engine.SupportsCloning())

	voiceID, err := engine.Clone(context.Background(), "My Voice", []byte("RIFFfake"), "")
	assert.NoError(err)
	assert.Empty(voiceID)
	assert.Zero(client.calls)
}

func TestKokoroCloneIsNoop(t *testing.T) {
	assert := require.New(t)

	client := &countingClient{t: t}

	engine := ai.NewKokoroClient(client, &ai.KokoroConfig{})
	assert.False(engine.SupportsCloning())
	assert.False(engine.NeedsCredential())

	voiceID, err := engine.Clone(context.Background(), "My Voice", []byte("RIFFfake"), "")
	assert.NoError(err)
	assert.Empty(voiceID)
	assert.Zero(client.calls)
}

func TestKokoroSpeakDefaultVoice(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Voice  string `json:"voice"`
			Format string `json:"response_format"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("kokoro", req.Model)
		assert.Equal("af_nova", req.Voice)
		assert.Equal("wav", req.Format)

		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	engine := ai.NewKokoroClient(srv.Client(), &ai.KokoroConfig{URL: srv.URL})

	audio, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.NoError(err)
	assert.Equal([]byte("audio"), audio)
}

func TestPlayHTCloneDataURI(t *testing.T) {
	assert := require.New(t)

	refAudio := []byte("RIFFfake-sample")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/v2/cloned-voices/instant", r.URL.Path)
		assert.Equal("Bearer secret", r.Header.Get("Authorization"))
		assert.Equal("user-1", r.Header.Get("X-User-Id"))

		var req struct {
			VoiceName  string `json:"voice_name"`
			SampleFile string `json:"sample_file"`
		}
		assert.NoError(json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("My Voice", req.VoiceName)
		assert.Equal("data:audio/wav;base64,"+base64.StdEncoding.EncodeToString(refAudio), req.SampleFile)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ph-7"})
	}))
	defer srv.Close()

	engine := ai.NewPlayHTClient(srv.Client(), &ai.PlayHTConfig{URL: srv.URL, UserID: "user-1"},
		staticCredentials{ai.ProviderPlayHT: "secret"})

	voiceID, err := engine.Clone(context.Background(), "My Voice", refAudio, "")
	assert.NoError(err)
	assert.Equal("ph-7", voiceID)
}

func TestPlayHTSpeakDirectAudio(t *testing.T) {
	assert := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/v2/tts/stream", r.URL.Path)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("direct-audio"))
	}))
	defer srv.Close()

	engine := ai.NewPlayHTClient(srv.Client(), &ai.PlayHTConfig{URL: srv.URL},
		staticCredentials{ai.ProviderPlayHT: "secret"})

	audio, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.NoError(err)
	assert.Equal([]byte("direct-audio"), audio)
}

func TestPlayHTSpeakJSONEnvelope(t *testing.T) {
	assert := require.New(t)

	var srvURL string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tts/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"url": srvURL + "/generated/audio.wav"})
	})
	mux.HandleFunc("/generated/audio.wav", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("fetched-audio"))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	engine := ai.NewPlayHTClient(srv.Client(), &ai.PlayHTConfig{URL: srv.URL},
		staticCredentials{ai.ProviderPlayHT: "secret"})

	audio, err := engine.Speak(context.Background(), &ai.SpeakRequest{Text: "hello"})
	assert.NoError(err)
	assert.Equal([]byte("fetched-audio"), audio)
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"app/pkg/tools"
)

type KokoroConfig struct {
	URL   string `yaml:"url"` // default http://localhost:8102
	Voice string `yaml:"voice"`
}

// KokoroClient is the keyless basic-voice backend: an openai-compatible
// speech endpoint with a fixed voice set and no cloning.
type KokoroClient struct {
	cfg        *KokoroConfig
	httpClient HTTPClient
}

func NewKokoroClient(httpClient HTTPClient, cfg *KokoroConfig) *KokoroClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.URL == "" {
		cfg.URL = "http://localhost:8102"
	}

	if cfg.Voice == "" {
		cfg.Voice = "af_nova"
	}

	return &KokoroClient{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

var _ Engine = (*KokoroClient)(nil)

func (c *KokoroClient) Provider() Provider {
	return ProviderKokoro
}

func (c *KokoroClient) NeedsCredential() bool {
	return false
}

func (c *KokoroClient) SupportsCloning() bool {
	return false
}

func (c *KokoroClient) Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error) {
	return "", nil
}

type kokoroSpeechReq struct {
	Model  string `json:"model"`
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"response_format,omitempty"`
}

func (c *KokoroClient) Speak(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	if err := validateSpeakRequest(req); err != nil {
		return nil, err
	}

	voice := req.VoiceID
	if voice == "" {
		voice = c.cfg.Voice
	}

	// instruction is discarded, the model has no delivery control

	data, err := json.Marshal(&kokoroSpeechReq{
		Model:  "kokoro",
		Input:  req.Text,
		Voice:  voice,
		Format: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/audio/speech", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countSpeakError(ProviderKokoro, err)

		return nil, err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "kokoro returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countSpeakError(ProviderKokoro, err)

		return nil, err
	}

	observeSpeak(ProviderKokoro, time.Since(start).Seconds())

	return respData, nil
}

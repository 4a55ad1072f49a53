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

type OpenAIConfig struct {
	URL   string `yaml:"url"` // default https://api.openai.com
	Model string `yaml:"model"`
}

// OpenAIClient covers the speech endpoint only. The api has no voice cloning,
// so Clone is a no-op and profiles enrolled against it stay degraded.
type OpenAIClient struct {
	cfg         *OpenAIConfig
	httpClient  HTTPClient
	credentials CredentialSource
}

func NewOpenAIClient(httpClient HTTPClient, cfg *OpenAIConfig, credentials CredentialSource) *OpenAIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.URL == "" {
		cfg.URL = "https://api.openai.com"
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-tts"
	}

	return &OpenAIClient{
		httpClient:  httpClient,
		cfg:         cfg,
		credentials: credentials,
	}
}

var _ Engine = (*OpenAIClient)(nil)

func (c *OpenAIClient) Provider() Provider {
	return ProviderOpenAI
}

func (c *OpenAIClient) NeedsCredential() bool {
	return true
}

func (c *OpenAIClient) SupportsCloning() bool {
	return false
}

func (c *OpenAIClient) Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error) {
	// no cloning support, callers keep the reference audio locally
	return "", nil
}

type openAISpeechReq struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

const openAIDefaultVoice = "alloy"

func (c *OpenAIClient) Speak(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	if err := validateSpeakRequest(req); err != nil {
		return nil, err
	}

	key := c.credentials.Credential(ProviderOpenAI)
	if key == "" {
		return nil, newConfigError("openai api key is not set")
	}

	voice := req.VoiceID
	if voice == "" {
		voice = openAIDefaultVoice
	}

	data, err := json.Marshal(&openAISpeechReq{
		Model:        c.cfg.Model,
		Input:        req.Text,
		Voice:        voice,
		Instructions: req.Instruction,
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
	request.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countSpeakError(ProviderOpenAI, err)

		return nil, err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "openai returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countSpeakError(ProviderOpenAI, err)

		return nil, err
	}

	observeSpeak(ProviderOpenAI, time.Since(start).Seconds())

	return respData, nil
}

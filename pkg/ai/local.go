package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"app/pkg/tools"
)

type LocalConfig struct {
	URL string `yaml:"url"` // e.g. http://127.0.0.1:5123
}

// LocalClient talks to the locally hosted Qwen3-TTS server. The server's
// control plane is the only contract pinned exactly: GET /health,
// POST /v1/clone (multipart), POST /v1/tts (json in, wav out), GET /v1/voices.
type LocalClient struct {
	cfg        *LocalConfig
	httpClient HTTPClient
}

func NewLocalClient(httpClient HTTPClient, cfg *LocalConfig) *LocalClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &LocalClient{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

var _ Engine = (*LocalClient)(nil)

func (c *LocalClient) Provider() Provider {
	return ProviderLocal
}

func (c *LocalClient) NeedsCredential() bool {
	return false
}

func (c *LocalClient) SupportsCloning() bool {
	return true
}

type localCloneResp struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

func (c *LocalClient) Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error) {
	if len(refAudio) == 0 {
		return "", newConfigError("no reference audio provided")
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	if err := form.WriteField("name", name); err != nil {
		return "", fmt.Errorf("failed to write name field: %w", err)
	}

	if transcript != "" {
		if err := form.WriteField("transcript", transcript); err != nil {
			return "", fmt.Errorf("failed to write transcript field: %w", err)
		}
	}

	part, err := form.CreateFormFile("audio", "reference.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create audio part: %w", err)
	}

	if _, err = part.Write(refAudio); err != nil {
		return "", fmt.Errorf("failed to write audio part: %w", err)
	}

	if err = form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/clone", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countCloneError(ProviderLocal, err)

		return "", err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "local server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countCloneError(ProviderLocal, err)

		return "", err
	}

	cloneResp := &localCloneResp{}
	if err = json.Unmarshal(respData, cloneResp); err != nil || cloneResp.VoiceID == "" {
		err = newProviderError(resp.StatusCode, "unexpected clone response: %s", strings.TrimSpace(string(respData)))
		countCloneError(ProviderLocal, err)

		return "", err
	}

	return cloneResp.VoiceID, nil
}

type localTTSReq struct {
	Text        string `json:"text"`
	VoiceID     string `json:"voice_id,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

type localTTSErr struct {
	Error string `json:"error"`
}

func (c *LocalClient) Speak(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	if err := validateSpeakRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()

	data, err := json.Marshal(&localTTSReq{
		Text:        req.Text,
		VoiceID:     req.VoiceID,
		Instruction: req.Instruction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/tts", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countSpeakError(ProviderLocal, err)

		return nil, err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respData))

		var ttsErr localTTSErr
		if json.Unmarshal(respData, &ttsErr) == nil && ttsErr.Error != "" {
			msg = ttsErr.Error
		}

		err = newProviderError(resp.StatusCode, "local server returned status %d: %s", resp.StatusCode, msg)
		countSpeakError(ProviderLocal, err)

		return nil, err
	}

	observeSpeak(ProviderLocal, time.Since(start).Seconds())

	return respData, nil
}

// Health reports whether the local server answers its control endpoint.
// Any response counts; no response within the client timeout means not ready.
func (c *LocalClient) Health(ctx context.Context) bool {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return false
	}
	defer tools.DrainAndClose(resp.Body)

	return resp.StatusCode < 300
}

type ServerVoice struct {
	VoiceID string `json:"voice_id"`
	Name    string `json:"name"`
}

type localVoicesResp struct {
	Voices []ServerVoice `json:"voices"`
}

// Voices lists the voice profiles the server itself has stored.
func (c *LocalClient) Voices(ctx context.Context) ([]ServerVoice, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, newNetworkError(err)
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		return nil, newProviderError(resp.StatusCode, "local server returned status %d", resp.StatusCode)
	}

	voicesResp := &localVoicesResp{}
	if err = json.Unmarshal(respData, voicesResp); err != nil {
		return nil, newProviderError(resp.StatusCode, "unexpected voices response: %w", err)
	}

	return voicesResp.Voices, nil
}

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

type ElevenLabsConfig struct {
	URL     string `yaml:"url"` // default https://api.elevenlabs.io
	ModelID string `yaml:"model_id"`
}

type ElevenLabsClient struct {
	cfg         *ElevenLabsConfig
	httpClient  HTTPClient
	credentials CredentialSource
}

func NewElevenLabsClient(httpClient HTTPClient, cfg *ElevenLabsConfig, credentials CredentialSource) *ElevenLabsClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.URL == "" {
		cfg.URL = "https://api.elevenlabs.io"
	}

	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}

	return &ElevenLabsClient{
		httpClient:  httpClient,
		cfg:         cfg,
		credentials: credentials,
	}
}

var _ Engine = (*ElevenLabsClient)(nil)

func (c *ElevenLabsClient) Provider() Provider {
	return ProviderElevenLabs
}

func (c *ElevenLabsClient) NeedsCredential() bool {
	return true
}

func (c *ElevenLabsClient) SupportsCloning() bool {
	return true
}

func (c *ElevenLabsClient) apiKey() (string, error) {
	key := c.credentials.Credential(ProviderElevenLabs)
	if key == "" {
		return "", newConfigError("elevenlabs api key is not set")
	}

	return key, nil
}

type elevenLabsCloneResp struct {
	VoiceID string `json:"voice_id"`
}

func (c *ElevenLabsClient) Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error) {
	key, err := c.apiKey()
	if err != nil {
		return "", err
	}

	if len(refAudio) == 0 {
		return "", newConfigError("no reference audio provided")
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	if err := form.WriteField("name", name); err != nil {
		return "", fmt.Errorf("failed to write name field: %w", err)
	}

	// transcript is not part of the enrollment contract, elevenlabs keys a
	// description field instead
	if transcript != "" {
		if err := form.WriteField("description", transcript); err != nil {
			return "", fmt.Errorf("failed to write description field: %w", err)
		}
	}

	part, err := form.CreateFormFile("files", "reference.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create files part: %w", err)
	}

	if _, err = part.Write(refAudio); err != nil {
		return "", fmt.Errorf("failed to write files part: %w", err)
	}

	if err = form.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/voices/add", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	request.Header.Set("xi-api-key", key)

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countCloneError(ProviderElevenLabs, err)

		return "", err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "elevenlabs returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countCloneError(ProviderElevenLabs, err)

		return "", err
	}

	cloneResp := &elevenLabsCloneResp{}
	if err = json.Unmarshal(respData, cloneResp); err != nil || cloneResp.VoiceID == "" {
		err = newProviderError(resp.StatusCode, "unexpected clone response: %s", strings.TrimSpace(string(respData)))
		countCloneError(ProviderElevenLabs, err)

		return "", err
	}

	return cloneResp.VoiceID, nil
}

type elevenLabsTTSReq struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

const elevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel, the api default

func (c *ElevenLabsClient) Speak(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	if err := validateSpeakRequest(req); err != nil {
		return nil, err
	}

	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}

	voice := req.VoiceID
	if voice == "" {
		voice = elevenLabsDefaultVoice
	}

	text := req.Text
	if req.Instruction != "" {
		// no instruction channel in the synthesis api, prepend as a stage
		// direction the model reads for delivery
		text = req.Instruction + "\n\n" + text
	}

	data, err := json.Marshal(&elevenLabsTTSReq{
		Text:    text,
		ModelID: c.cfg.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/v1/text-to-speech/"+voice, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("xi-api-key", key)

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countSpeakError(ProviderElevenLabs, err)

		return nil, err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "elevenlabs returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countSpeakError(ProviderElevenLabs, err)

		return nil, err
	}

	observeSpeak(ProviderElevenLabs, time.Since(start).Seconds())

	return respData, nil
}

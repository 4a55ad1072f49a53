package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"app/pkg/tools"
)

type PlayHTConfig struct {
	URL    string `yaml:"url"` // default https://api.play.ht
	UserID string `yaml:"user_id"`
}

// PlayHTClient is the quirkiest of the remote backends: enrollment wants the
// sample embedded in json as a base64 data uri, and synthesis answers with
// either the audio itself or a json document naming a url to fetch.
type PlayHTClient struct {
	cfg         *PlayHTConfig
	httpClient  HTTPClient
	credentials CredentialSource
}

func NewPlayHTClient(httpClient HTTPClient, cfg *PlayHTConfig, credentials CredentialSource) *PlayHTClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.URL == "" {
		cfg.URL = "https://api.play.ht"
	}

	return &PlayHTClient{
		httpClient:  httpClient,
		cfg:         cfg,
		credentials: credentials,
	}
}

var _ Engine = (*PlayHTClient)(nil)

func (c *PlayHTClient) Provider() Provider {
	return ProviderPlayHT
}

func (c *PlayHTClient) NeedsCredential() bool {
	return true
}

func (c *PlayHTClient) SupportsCloning() bool {
	return true
}

func (c *PlayHTClient) setAuth(request *http.Request) error {
	key := c.credentials.Credential(ProviderPlayHT)
	if key == "" {
		return newConfigError("playht api key is not set")
	}

	request.Header.Set("Authorization", "Bearer "+key)

	if c.cfg.UserID != "" {
		request.Header.Set("X-User-Id", c.cfg.UserID)
	}

	return nil
}

type playHTCloneReq struct {
	VoiceName  string `json:"voice_name"`
	SampleFile string `json:"sample_file"` // data uri, base64 wav
}

type playHTCloneResp struct {
	ID string `json:"id"`
}

func (c *PlayHTClient) Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error) {
	if len(refAudio) == 0 {
		return "", newConfigError("no reference audio provided")
	}

	data, err := json.Marshal(&playHTCloneReq{
		VoiceName:  name,
		SampleFile: "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(refAudio),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/api/v2/cloned-voices/instant", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	if err = c.setAuth(request); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countCloneError(ProviderPlayHT, err)

		return "", err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "playht returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countCloneError(ProviderPlayHT, err)

		return "", err
	}

	cloneResp := &playHTCloneResp{}
	if err = json.Unmarshal(respData, cloneResp); err != nil || cloneResp.ID == "" {
		err = newProviderError(resp.StatusCode, "unexpected clone response: %s", strings.TrimSpace(string(respData)))
		countCloneError(ProviderPlayHT, err)

		return "", err
	}

	return cloneResp.ID, nil
}

type playHTTTSReq struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	OutputFormat string `json:"output_format"`
}

type playHTTTSResp struct {
	URL string `json:"url"`
}

func (c *PlayHTClient) Speak(ctx context.Context, req *SpeakRequest) ([]byte, error) {
	if err := validateSpeakRequest(req); err != nil {
		return nil, err
	}

	text := req.Text
	if req.Instruction != "" {
		// the api has no separate instruction field
		text = req.Instruction + "\n\n" + text
	}

	data, err := json.Marshal(&playHTTTSReq{
		Text:         text,
		Voice:        req.VoiceID,
		OutputFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/api/v2/tts/stream", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "audio/wav, application/json")

	if err = c.setAuth(request); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		err = newNetworkError(err)
		countSpeakError(ProviderPlayHT, err)

		return nil, err
	}
	defer tools.DrainAndClose(resp.Body)

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if resp.StatusCode > 299 {
		err = newProviderError(resp.StatusCode, "playht returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respData)))
		countSpeakError(ProviderPlayHT, err)

		return nil, err
	}

	// the response is the audio itself or a json envelope pointing at it,
	// probe content-type before attempting to parse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
		observeSpeak(ProviderPlayHT, time.Since(start).Seconds())

		return respData, nil
	}

	ttsResp := &playHTTTSResp{}
	if err = json.Unmarshal(respData, ttsResp); err != nil || ttsResp.URL == "" {
		err = newProviderError(resp.StatusCode, "unexpected tts response: %s", strings.TrimSpace(string(respData)))
		countSpeakError(ProviderPlayHT, err)

		return nil, err
	}

	audio, err := c.fetchAudio(ctx, ttsResp.URL)
	if err != nil {
		countSpeakError(ProviderPlayHT, err)

		return nil, err
	}

	observeSpeak(ProviderPlayHT, time.Since(start).Seconds())

	return audio, nil
}

func (c *PlayHTClient) fetchAudio(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err = c.setAuth(request); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, newNetworkError(err)
	}
	defer tools.DrainAndClose(resp.Body)

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}

	if resp.StatusCode > 299 {
		return nil, newProviderError(resp.StatusCode, "playht audio fetch returned status %d", resp.StatusCode)
	}

	return audio, nil
}

package ai

import (
	"context"
	"net/http"
	"strings"
)

var _ HTTPClient = http.DefaultClient

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

const (
	ProviderLocal      Provider = "local"
	ProviderElevenLabs Provider = "elevenlabs"
	ProviderOpenAI     Provider = "openai"
	ProviderPlayHT     Provider = "playht"
	ProviderKokoro     Provider = "kokoro"
)

type Provider string

func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderElevenLabs, ProviderOpenAI, ProviderPlayHT, ProviderKokoro:
		return true
	default:
		return false
	}
}

func (p Provider) String() string {
	return string(p)
}

// SpeakRequest is the provider-independent synthesis payload. VoiceID is a
// provider-scoped identifier obtained from Clone (or a provider default) and
// may be empty, meaning "synthesize with the provider's default voice".
// Instruction is free-text tone/delivery guidance; engines that cannot use it
// discard it silently.
type SpeakRequest struct {
	Text        string
	VoiceID     string
	Instruction string
}

// Engine is implemented once per backend. Clone submits reference audio and
// returns the provider's voice identifier; Speak returns raw audio bytes.
// Both normalize every failure to the code-carrying error in errors.go, so
// callers never branch on provider identity.
type Engine interface {
	Provider() Provider
	NeedsCredential() bool
	SupportsCloning() bool
	Clone(ctx context.Context, name string, refAudio []byte, transcript string) (string, error)
	Speak(ctx context.Context, req *SpeakRequest) ([]byte, error)
}

// CredentialSource hands engines their API key at call time, so key changes
// made while the app runs take effect without rebuilding engines.
type CredentialSource interface {
	Credential(p Provider) string
}

func validateSpeakRequest(req *SpeakRequest) error {
	if req == nil || strings.TrimSpace(req.Text) == "" {
		return newConfigError("text must not be empty")
	}

	return nil
}

package generator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"app/internal/app/history"
	"app/internal/app/settings"
	"app/internal/app/voices"
	"app/pkg/ai"

	"github.com/dchest/uniuri"
	"github.com/google/uuid"
)

// ServerSupervisor is the slice of the local-server lifecycle the generator
// needs: one bounded call that returns once the server answers health checks.
type ServerSupervisor interface {
	EnsureRunning(ctx context.Context) error
}

type GenerateRequest struct {
	Text        string
	ProfileID   *uuid.UUID
	Instruction string
}

type Result struct {
	ID         uuid.UUID   `json:"id"`
	Provider   ai.Provider `json:"provider"`
	VoiceID    string      `json:"voice_id,omitempty"`
	OutputPath string      `json:"output_path"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Generator routes clone/synthesis calls to the active provider's engine,
// persists resulting audio, and records every attempt in the history ledger.
// All failures come back as values carrying an ai.ErrCode; nothing escapes to
// the transport layer as a panic.
type Generator struct {
	logger *slog.Logger

	engines    map[ai.Provider]ai.Engine
	settings   *settings.Store
	registry   *voices.Registry
	supervisor ServerSupervisor
	history    *history.DB

	outputDir string
}

func New(logger *slog.Logger, engines []ai.Engine, settingsStore *settings.Store,
	registry *voices.Registry, supervisor ServerSupervisor, historyDB *history.DB, outputDir string) (*Generator, error) {
	byProvider := make(map[ai.Provider]ai.Engine, len(engines))
	for _, e := range engines {
		byProvider[e.Provider()] = e
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	return &Generator{
		logger:     logger,
		engines:    byProvider,
		settings:   settingsStore,
		registry:   registry,
		supervisor: supervisor,
		history:    historyDB,
		outputDir:  outputDir,
	}, nil
}

// Generate synthesizes req.Text with the active provider. Concurrent calls
// are not serialized; every call writes an independently named output file.
// There is no automatic retry, a retry is the user reissuing the same call.
func (g *Generator) Generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	start := time.Now()

	result, err := g.generate(ctx, req)

	provider := g.settings.ActiveProvider()
	memo := &history.Memo{
		ID:          uuid.New(),
		Provider:    provider.String(),
		Text:        req.Text,
		Instruction: req.Instruction,
		DurationMS:  time.Since(start).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}

	if err != nil {
		memo.Error = err.Error()
	} else {
		memo.ID = result.ID
		memo.VoiceID = result.VoiceID
		memo.OutputPath = result.OutputPath
	}

	if historyErr := g.history.Insert(ctx, memo); historyErr != nil {
		g.logger.Warn("failed to record memo", "err", historyErr)
	}

	return result, err
}

func (g *Generator) generate(ctx context.Context, req *GenerateRequest) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ai.NewConfigError("text must not be empty")
	}

	provider := g.settings.ActiveProvider()

	engine, ok := g.engines[provider]
	if !ok {
		return nil, ai.NewConfigError("no engine configured for provider %q", provider)
	}

	// fail fast before any network i/o when the key is missing
	if engine.NeedsCredential() && g.settings.Credential(provider) == "" {
		return nil, ai.NewConfigError("%s requires an api key, set one in settings", provider)
	}

	voiceID := g.resolveVoiceID(provider, req.ProfileID)

	if provider == ai.ProviderLocal {
		if err := g.supervisor.EnsureRunning(ctx); err != nil {
			return nil, err
		}
	}

	audio, err := engine.Speak(ctx, &ai.SpeakRequest{
		Text:        req.Text,
		VoiceID:     voiceID,
		Instruction: req.Instruction,
	})
	if err != nil {
		return nil, err
	}

	id := uuid.New()

	outputPath := filepath.Join(g.outputDir, fmt.Sprintf("memo_%d_%s.wav", time.Now().Unix(), uniuri.NewLen(6)))
	if err = os.WriteFile(outputPath, audio, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}

	g.logger.Info("memo generated", "provider", provider, "voice_id", voiceID, "output", outputPath)

	return &Result{
		ID:         id,
		Provider:   provider,
		VoiceID:    voiceID,
		OutputPath: outputPath,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// resolveVoiceID prefers the selected profile's clone id when it was enrolled
// against the active provider, then the per-provider default from settings,
// then empty, meaning the provider's own default voice.
func (g *Generator) resolveVoiceID(provider ai.Provider, profileID *uuid.UUID) string {
	if profileID != nil {
		if profile, ok := g.registry.Get(*profileID); ok {
			if profile.Provider == provider && profile.ProviderVoiceID != "" {
				return profile.ProviderVoiceID
			}
		}
	}

	return g.settings.DefaultVoice(provider)
}

// Enroll creates a voice profile from reference audio. The audio is copied
// into managed storage before the provider call, so a failed clone still
// yields a usable degraded profile (empty provider voice id) instead of
// losing the user's recording.
func (g *Generator) Enroll(ctx context.Context, name string, audio []byte, transcript string) (*voices.Profile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ai.NewConfigError("name must not be empty")
	}

	if len(audio) == 0 {
		return nil, ai.NewConfigError("no reference audio provided")
	}

	provider := g.settings.ActiveProvider()

	engine, ok := g.engines[provider]
	if !ok {
		return nil, ai.NewConfigError("no engine configured for provider %q", provider)
	}

	id := uuid.New()

	audioPath, err := g.registry.ImportAudio(id, audio)
	if err != nil {
		return nil, err
	}

	voiceID := ""

	if engine.SupportsCloning() {
		if provider == ai.ProviderLocal {
			if err := g.supervisor.EnsureRunning(ctx); err != nil {
				g.logger.Warn("local server unavailable, enrolling degraded profile", "err", err)
			} else {
				voiceID = g.clone(ctx, engine, name, audio, transcript)
			}
		} else {
			voiceID = g.clone(ctx, engine, name, audio, transcript)
		}
	}

	profile := voices.Profile{
		ID:              id,
		Name:            name,
		Provider:        provider,
		ProviderVoiceID: voiceID,
		AudioPath:       audioPath,
		CreatedAt:       time.Now().UTC(),
	}

	if err = g.registry.Add(profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

func (g *Generator) clone(ctx context.Context, engine ai.Engine, name string, audio []byte, transcript string) string {
	voiceID, err := engine.Clone(ctx, name, audio, transcript)
	if err != nil {
		g.logger.Warn("clone failed, enrolling degraded profile", "provider", engine.Provider(), "err", err)

		return ""
	}

	return voiceID
}

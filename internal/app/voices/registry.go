package voices

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"app/pkg/ai"
	"app/pkg/tools"

	"github.com/google/uuid"
)

// Profile ties a user-chosen label to the reference audio it was created from
// and, when enrollment succeeded, the provider's voice identifier.
// ProviderVoiceID is only meaningful together with Provider; an empty value
// marks a degraded profile that still synthesizes with the provider default.
type Profile struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Provider        ai.Provider `json:"provider"`
	ProviderVoiceID string      `json:"provider_voice_id,omitempty"`
	AudioPath       string      `json:"audio_path"`
	CreatedAt       time.Time   `json:"created_at"`
}

type Registry struct {
	path     string
	audioDir string

	logger *slog.Logger

	mu       sync.Mutex
	profiles []Profile
}

// NewRegistry loads voices.json from dataDir. A missing or corrupt document
// yields an empty registry rather than a startup failure.
func NewRegistry(logger *slog.Logger, dataDir string) (*Registry, error) {
	audioDir := filepath.Join(dataDir, "voices")
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create voices dir: %w", err)
	}

	r := &Registry{
		path:     filepath.Join(dataDir, "voices.json"),
		audioDir: audioDir,
		logger:   logger,
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read voices document, starting empty", "err", err)
		}

		return r, nil
	}

	if err = json.Unmarshal(data, &r.profiles); err != nil {
		logger.Warn("corrupt voices document, starting empty", "err", err)
		r.profiles = nil
	}

	return r, nil
}

// ImportAudio copies reference audio into the managed storage area keyed by
// profile id, so the profile survives the source file being moved or deleted.
func (r *Registry) ImportAudio(id uuid.UUID, audio []byte) (string, error) {
	path := filepath.Join(r.audioDir, id.String()+".wav")

	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("failed to store reference audio: %w", err)
	}

	return path, nil
}

func (r *Registry) Add(profile Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.ID == profile.ID {
			return fmt.Errorf("profile %s already registered", profile.ID)
		}
	}

	r.profiles = append(r.profiles, profile)

	return r.persist()
}

func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.profiles {
		if p.ID != id {
			continue
		}

		r.profiles = append(r.profiles[:i], r.profiles[i+1:]...)

		// best effort, the registry entry is the contract
		if p.AudioPath != "" {
			if err := os.Remove(p.AudioPath); err != nil && !os.IsNotExist(err) {
				r.logger.Warn("failed to remove reference audio", "path", p.AudioPath, "err", err)
			}
		}

		return r.persist()
	}

	return fmt.Errorf("profile %s not found", id)
}

func (r *Registry) Get(id uuid.UUID) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.profiles {
		if p.ID == id {
			return p, true
		}
	}

	return Profile{}, false
}

// List returns profiles in insertion order.
func (r *Registry) List() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)

	return out
}

// persist rewrites the whole document. Callers hold r.mu.
func (r *Registry) persist() error {
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal voices document: %w", err)
	}

	if err = tools.WriteFileAtomic(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write voices document: %w", err)
	}

	return nil
}

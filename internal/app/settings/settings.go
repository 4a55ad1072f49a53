package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"app/pkg/ai"
	"app/pkg/tools"
)

const (
	ModelSizeAuto  = "auto"
	ModelSizeSmall = "small"
	ModelSizeLarge = "large"
)

// Settings is the whole mutable configuration document. Exactly one provider
// is active at a time; switching never clears other providers' credentials.
type Settings struct {
	ActiveProvider ai.Provider            `json:"active_provider"`
	Credentials    map[ai.Provider]string `json:"credentials"`
	DefaultVoices  map[ai.Provider]string `json:"default_voices"`
	ModelSize      string                 `json:"model_size"`
}

func defaults() Settings {
	return Settings{
		ActiveProvider: ai.ProviderLocal,
		Credentials:    map[ai.Provider]string{},
		DefaultVoices:  map[ai.Provider]string{},
		ModelSize:      ModelSizeAuto,
	}
}

type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	settings Settings
}

var _ ai.CredentialSource = (*Store)(nil)

// NewStore loads settings.json from dataDir, falling back to defaults when
// the document is missing or corrupt.
func NewStore(logger *slog.Logger, dataDir string) (*Store, error) {
	s := &Store{
		path:     filepath.Join(dataDir, "settings.json"),
		logger:   logger,
		settings: defaults(),
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read settings document, using defaults", "err", err)
		}

		return s, nil
	}

	if err = json.Unmarshal(data, &s.settings); err != nil {
		logger.Warn("corrupt settings document, using defaults", "err", err)
		s.settings = defaults()
	}

	s.normalize()

	return s, nil
}

// callers hold s.mu or run before the store is shared
func (s *Store) normalize() {
	if !s.settings.ActiveProvider.Valid() {
		s.settings.ActiveProvider = ai.ProviderLocal
	}

	if s.settings.Credentials == nil {
		s.settings.Credentials = map[ai.Provider]string{}
	}

	if s.settings.DefaultVoices == nil {
		s.settings.DefaultVoices = map[ai.Provider]string{}
	}

	switch s.settings.ModelSize {
	case ModelSizeAuto, ModelSizeSmall, ModelSizeLarge:
	default:
		s.settings.ModelSize = ModelSizeAuto
	}
}

func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// callers hold s.mu
func (s *Store) snapshot() Settings {
	out := s.settings

	out.Credentials = make(map[ai.Provider]string, len(s.settings.Credentials))
	for k, v := range s.settings.Credentials {
		out.Credentials[k] = v
	}

	out.DefaultVoices = make(map[ai.Provider]string, len(s.settings.DefaultVoices))
	for k, v := range s.settings.DefaultVoices {
		out.DefaultVoices[k] = v
	}

	return out
}

// Update merges the given document in and rewrites the snapshot on disk.
// Empty credential values leave existing keys untouched, so a partial update
// from the UI cannot wipe another provider's key.
func (s *Store) Update(in Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ActiveProvider != "" {
		if !in.ActiveProvider.Valid() {
			return Settings{}, fmt.Errorf("unknown provider %q", in.ActiveProvider)
		}

		s.settings.ActiveProvider = in.ActiveProvider
	}

	for k, v := range in.Credentials {
		if !k.Valid() {
			return Settings{}, fmt.Errorf("unknown provider %q", k)
		}

		if v == "" {
			delete(s.settings.Credentials, k)
		} else {
			s.settings.Credentials[k] = v
		}
	}

	for k, v := range in.DefaultVoices {
		if !k.Valid() {
			return Settings{}, fmt.Errorf("unknown provider %q", k)
		}

		if v == "" {
			delete(s.settings.DefaultVoices, k)
		} else {
			s.settings.DefaultVoices[k] = v
		}
	}

	if in.ModelSize != "" {
		switch in.ModelSize {
		case ModelSizeAuto, ModelSizeSmall, ModelSizeLarge:
			s.settings.ModelSize = in.ModelSize
		default:
			return Settings{}, fmt.Errorf("unknown model size %q", in.ModelSize)
		}
	}

	if err := s.persist(); err != nil {
		return Settings{}, err
	}

	return s.snapshot(), nil
}

func (s *Store) ActiveProvider() ai.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings.ActiveProvider
}

func (s *Store) Credential(p ai.Provider) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings.Credentials[p]
}

func (s *Store) DefaultVoice(p ai.Provider) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings.DefaultVoices[p]
}

func (s *Store) ModelSize() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings.ModelSize
}

// callers hold s.mu
func (s *Store) persist() error {
	data, err := json.MarshalIndent(&s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings document: %w", err)
	}

	if err = tools.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings document: %w", err)
	}

	return nil
}

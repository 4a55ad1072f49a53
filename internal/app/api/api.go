package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"app/internal/app/generator"
	"app/internal/app/history"
	"app/internal/app/localserver"
	"app/internal/app/settings"
	"app/internal/app/voices"
	"app/pkg/ai"

	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// API is the localhost control plane the menu-bar shell talks to. It owns no
// domain logic: every handler validates transport concerns and delegates.
type API struct {
	cfg    *Config
	logger *slog.Logger

	generator  *generator.Generator
	supervisor *localserver.Supervisor
	registry   *voices.Registry
	settings   *settings.Store
	history    *history.DB
	metrics    *prometheus.Registry

	outputDir string
}

func NewAPI(cfg *Config, logger *slog.Logger, gen *generator.Generator, supervisor *localserver.Supervisor,
	registry *voices.Registry, settingsStore *settings.Store, historyDB *history.DB,
	metrics *prometheus.Registry, outputDir string) *API {
	return &API{
		cfg: cfg,

		logger: logger,

		generator:  gen,
		supervisor: supervisor,
		registry:   registry,
		settings:   settingsStore,
		history:    historyDB,
		metrics:    metrics,

		outputDir: outputDir,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

type errResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeErr maps the ai error taxonomy onto transport statuses. Config errors
// are the caller's to fix, provider/network failures are upstream, and
// server-unavailable means retry shortly.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch ai.ErrCode(err) {
	case ai.ErrCodeConfig:
		status = http.StatusUnprocessableEntity
	case ai.ErrCodeNetwork, ai.ErrCodeProvider:
		status = http.StatusBadGateway
	case ai.ErrCodeServerUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, &errResponse{
		Error: err.Error(),
		Kind:  ai.ErrCodeString(ai.ErrCode(err)),
	})
}

package localserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"app/pkg/ai"
)

type Config struct {
	Port       int    `yaml:"port"` // default 5123
	InstallDir string `yaml:"install_dir"`
	Python     string `yaml:"python"` // optional explicit interpreter path

	HealthTimeout time.Duration `yaml:"health_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollAttempts  int           `yaml:"poll_attempts"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
}

func (c *Config) withDefaults() *Config {
	out := *c

	if out.Port == 0 {
		out.Port = 5123
	}

	if out.InstallDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}

		out.InstallDir = filepath.Join(home, ".voiceclonememo")
	}

	if out.HealthTimeout == 0 {
		out.HealthTimeout = 2 * time.Second
	}

	if out.PollInterval == 0 {
		out.PollInterval = 2 * time.Second
	}

	if out.PollAttempts == 0 {
		out.PollAttempts = 45
	}

	if out.SettleDelay == 0 {
		out.SettleDelay = time.Second
	}

	return &out
}

const (
	StateNotInstalled State = iota
	StateInstalling
	StateReady
)

type State int

func (s State) String() string {
	switch s {
	case StateNotInstalled:
		return "not_installed"
	case StateInstalling:
		return "installing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// HealthChecker answers whether the server responds on its control endpoint.
// Implemented by ai.LocalClient.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Runner executes a shell command and returns its combined output. The
// exec-backed implementation is swapped for a recorder in tests, the same way
// the HTTP clients take an injected HTTPClient.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ModelSizer reports the user's preferred model size. Implemented by
// settings.Store.
type ModelSizer interface {
	ModelSize() string
}

// Supervisor owns the lifecycle of the local inference server: install
// detection, the multi-step install sequence, spawning the server as a
// detached process, and health polling until ready. From the orchestrator's
// point of view the whole thing collapses into EnsureRunning.
type Supervisor struct {
	cfg    *Config
	logger *slog.Logger

	health    HealthChecker
	runner    Runner
	modelSize ModelSizer
	lookPath  func(string) (string, error)

	// serializes EnsureRunning so concurrent generations cannot double-spawn
	ensureMu sync.Mutex

	mu      sync.Mutex
	state   State
	running bool
	cmd     *exec.Cmd

	subsMu sync.Mutex
	subs   map[int]chan Progress
	nextID int
}

func NewSupervisor(logger *slog.Logger, cfg *Config, health HealthChecker, modelSize ModelSizer) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		health:    health,
		runner:    execRunner{},
		modelSize: modelSize,
		lookPath:  exec.LookPath,
		subs:      map[int]chan Progress{},
	}

	// install status survives restarts: ready iff the launcher exists
	if _, err := os.Stat(s.launcherPath()); err == nil {
		s.state = StateReady
	}

	return s
}

func (s *Supervisor) venvDir() string {
	return filepath.Join(s.cfg.InstallDir, "venv")
}

func (s *Supervisor) serverScriptPath() string {
	return filepath.Join(s.cfg.InstallDir, "server.py")
}

func (s *Supervisor) launcherPath() string {
	return filepath.Join(s.cfg.InstallDir, "start.sh")
}

func (s *Supervisor) Status() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, s.running
}

// EnsureRunning returns nil once the server answers its health endpoint.
// The server may already be owned by a previous run of the app (or another
// instance), so an immediate health check always comes first; only then is
// the launcher spawned and polled, bounded by PollAttempts.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateReady {
		return ai.NewServerUnavailableError("local server is not installed")
	}

	if s.checkHealth(ctx) {
		s.setRunning(true)

		return nil
	}

	s.setRunning(false)

	if err := s.spawn(); err != nil {
		return ai.NewServerUnavailableError("failed to start local server: %v", err)
	}

	for attempt := 0; attempt < s.cfg.PollAttempts; attempt++ {
		select {
		case <-time.After(s.cfg.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}

		if s.checkHealth(ctx) {
			s.setRunning(true)

			return nil
		}
	}

	// install status is intact, the model just did not come up in time
	return ai.NewServerUnavailableError("local server did not become healthy after %d attempts, try again shortly", s.cfg.PollAttempts)
}

// Restart kills the tracked process plus anything else holding the port
// (a handle may have been lost across app restarts), then starts over.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop(ctx)

	select {
	case <-time.After(s.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.EnsureRunning(ctx)
}

func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.running = false
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		// negative pid kills the whole process group
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			_ = cmd.Process.Kill()
		}
	}

	s.killPortOwners(ctx)
}

// Probe refreshes the running flag (and the server-up gauge) with a single
// health check. Used by the background poller so the UI reflects a server
// that died, or came up, between generations.
func (s *Supervisor) Probe(ctx context.Context) bool {
	ok := s.checkHealth(ctx)
	s.setRunning(ok)

	return ok
}

func (s *Supervisor) checkHealth(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()

	ok := s.health.Health(healthCtx)

	observeHealthCheck(ok)

	return ok
}

func (s *Supervisor) setRunning(running bool) {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()

	setServerUp(running)
}

func (s *Supervisor) spawn() error {
	cmd := exec.Command("/bin/sh", s.launcherPath())
	cmd.Dir = s.cfg.InstallDir
	cmd.Env = append(os.Environ(), "MODEL_SIZE="+s.resolveModelSize())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logFile, err := os.OpenFile(filepath.Join(s.cfg.InstallDir, "server.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err = cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}

		return fmt.Errorf("failed to start launcher: %w", err)
	}

	s.logger.Info("local server spawned", "pid", cmd.Process.Pid)

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()

		if logFile != nil {
			logFile.Close()
		}

		s.logger.Info("local server exited", "err", err)

		s.mu.Lock()
		if s.cmd == cmd {
			s.cmd = nil
			s.running = false
		}
		s.mu.Unlock()

		setServerUp(false)
	}()

	return nil
}

func (s *Supervisor) resolveModelSize() string {
	size := ModelSizeAuto
	if s.modelSize != nil {
		size = s.modelSize.ModelSize()
	}

	if size != ModelSizeAuto {
		return size
	}

	if totalMemoryBytes() >= 16<<30 {
		return ModelSizeLarge
	}

	return ModelSizeSmall
}

const (
	ModelSizeAuto  = "auto"
	ModelSizeSmall = "small"
	ModelSizeLarge = "large"
)

func (s *Supervisor) killPortOwners(ctx context.Context) {
	out, err := s.runner.Run(ctx, "lsof", "-ti", "tcp:"+strconv.Itoa(s.cfg.Port))
	if err != nil {
		// lsof exits non-zero when nothing owns the port
		return
	}

	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}

		s.logger.Info("killing stale local server process", "pid", pid)

		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
}

func totalMemoryBytes() uint64 {
	// linux only; elsewhere the small model is the safe default
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}

		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}

		return kb << 10
	}

	return 0
}

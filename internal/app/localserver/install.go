package localserver

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"app/pkg/ai"
	"app/pkg/tools"

	_ "embed"
)

//go:embed assets/server.py
var serverScript []byte

// the python packages the embedded server needs; torch pulls the model
// runtime and is by far the slowest part of the install
var serverDeps = []string{"flask", "torch", "transformers", "soundfile"}

// Progress is one install event. Fraction is monotonically increasing within
// a single install; a terminal event has Done set and, on failure, Err.
type Progress struct {
	Fraction float64 `json:"fraction"`
	Step     string  `json:"step"`
	Err      string  `json:"err,omitempty"`
	Done     bool    `json:"done"`
}

type installStep struct {
	fraction float64
	label    string
	done     func(*Supervisor) bool // target already exists
	run      func(*Supervisor, context.Context) error
}

// every step checks its own target first, so rerunning an install after a
// failure repeats no completed work
var installSteps = []installStep{
	{
		fraction: 0.05,
		label:    "checking python runtime",
		done:     func(s *Supervisor) bool { return false }, // cheap, always verify
		run:      (*Supervisor).resolveRuntime,
	},
	{
		fraction: 0.15,
		label:    "creating python environment",
		done: func(s *Supervisor) bool {
			_, err := os.Stat(s.venvPython())
			return err == nil
		},
		run: (*Supervisor).createVenv,
	},
	{
		fraction: 0.75,
		label:    "installing model dependencies",
		done: func(s *Supervisor) bool {
			_, err := os.Stat(s.depsMarkerPath())
			return err == nil
		},
		run: (*Supervisor).installDeps,
	},
	{
		fraction: 0.9,
		label:    "writing server script",
		done: func(s *Supervisor) bool {
			data, err := os.ReadFile(s.serverScriptPath())
			return err == nil && bytes.Equal(data, serverScript)
		},
		run: (*Supervisor).writeServerScript,
	},
	{
		fraction: 1.0,
		label:    "creating launcher",
		done: func(s *Supervisor) bool {
			_, err := os.Stat(s.launcherPath())
			return err == nil
		},
		run: (*Supervisor).writeLauncher,
	},
}

// Install drives the whole install sequence. It is an explicit user action,
// never triggered implicitly by generation. Any step failure reverts the
// supervisor to NotInstalled and surfaces one actionable message; leftover
// filesystem artifacts are fine because every step short-circuits when its
// target already exists.
func (s *Supervisor) Install(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateInstalling {
		s.mu.Unlock()

		return fmt.Errorf("install already in progress")
	}
	s.state = StateInstalling
	s.mu.Unlock()

	if err := os.MkdirAll(s.cfg.InstallDir, 0755); err != nil {
		return s.failInstall("preparing install directory", err)
	}

	for _, step := range installSteps {
		select {
		case <-ctx.Done():
			return s.failInstall(step.label, ctx.Err())
		default:
		}

		s.publish(Progress{Fraction: step.fraction, Step: step.label})

		if step.done(s) {
			s.logger.Info("install step already complete", "step", step.label)

			continue
		}

		if err := step.run(s, ctx); err != nil {
			return s.failInstall(step.label, err)
		}

		s.logger.Info("install step complete", "step", step.label)
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	s.publish(Progress{Fraction: 1.0, Step: "install complete", Done: true})

	return nil
}

func (s *Supervisor) failInstall(step string, err error) error {
	s.mu.Lock()
	s.state = StateNotInstalled
	s.mu.Unlock()

	countInstallError(step)

	wrapped := ai.NewInstallError(step, err)

	s.logger.Error("install failed", "step", step, "err", err)
	s.publish(Progress{Step: step, Err: wrapped.Error(), Done: true})

	return wrapped
}

func (s *Supervisor) venvPython() string {
	return s.venvDir() + "/bin/python"
}

func (s *Supervisor) depsMarkerPath() string {
	return s.venvDir() + "/.deps-installed"
}

func (s *Supervisor) resolveRuntime(ctx context.Context) error {
	if s.cfg.Python != "" {
		if _, err := os.Stat(s.cfg.Python); err != nil {
			return fmt.Errorf("configured python %q not found: %w", s.cfg.Python, err)
		}

		return nil
	}

	if _, err := s.lookPath("python3"); err != nil {
		return fmt.Errorf("python3 not found on PATH, install Python 3.10+ (e.g. brew install python) and retry")
	}

	return nil
}

func (s *Supervisor) pythonBin() string {
	if s.cfg.Python != "" {
		return s.cfg.Python
	}

	return "python3"
}

func (s *Supervisor) createVenv(ctx context.Context) error {
	out, err := s.runner.Run(ctx, s.pythonBin(), "-m", "venv", s.venvDir())
	if err != nil {
		return fmt.Errorf("environment creation failed: %w: %s", err, truncateOutput(out))
	}

	return nil
}

func (s *Supervisor) installDeps(ctx context.Context) error {
	args := append([]string{"-m", "pip", "install", "--upgrade"}, serverDeps...)

	out, err := s.runner.Run(ctx, s.venvPython(), args...)
	if err != nil {
		return fmt.Errorf("dependency installation failed: %w: %s", err, truncateOutput(out))
	}

	if err = os.WriteFile(s.depsMarkerPath(), []byte{}, 0644); err != nil {
		return fmt.Errorf("failed to write install marker: %w", err)
	}

	return nil
}

func (s *Supervisor) writeServerScript(ctx context.Context) error {
	if err := tools.WriteFileAtomic(s.serverScriptPath(), serverScript, 0644); err != nil {
		return fmt.Errorf("failed to write server script: %w", err)
	}

	return nil
}

func (s *Supervisor) writeLauncher(ctx context.Context) error {
	launcher := fmt.Sprintf("#!/bin/sh\nexec %q %q --port %d\n", s.venvPython(), s.serverScriptPath(), s.cfg.Port)

	if err := tools.WriteFileAtomic(s.launcherPath(), []byte(launcher), 0755); err != nil {
		return fmt.Errorf("failed to write launcher: %w", err)
	}

	return nil
}

func truncateOutput(out []byte) string {
	const max = 2000

	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > max {
		trimmed = trimmed[len(trimmed)-max:]
	}

	return string(trimmed)
}

// SubscribeProgress registers an install-progress listener. The returned
// cancel func must be called; events are dropped rather than blocking a slow
// subscriber.
func (s *Supervisor) SubscribeProgress() (<-chan Progress, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan Progress, 16)
	s.subs[id] = ch

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()

		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Supervisor) publish(p Progress) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

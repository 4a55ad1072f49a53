package ai

import (
	"errors"
	"fmt"
)

const (
	ErrCodeUnknown = iota
	ErrCodeConfig
	ErrCodeNetwork
	ErrCodeProvider
	ErrCodeServerUnavailable
	ErrCodeInstall
)

type ttsErr struct {
	Code   int
	Status int // http status for ErrCodeProvider, 0 otherwise
	Err    error
}

func (e *ttsErr) Error() string {
	return e.Err.Error()
}

func (e *ttsErr) Unwrap() error {
	return e.Err
}

func ErrCode(e error) int {
	var err *ttsErr
	if errors.As(e, &err) {
		return err.Code
	}

	return ErrCodeUnknown
}

func ErrStatus(e error) int {
	var err *ttsErr
	if errors.As(e, &err) {
		return err.Status
	}

	return 0
}

func ErrCodeString(code int) string {
	switch code {
	case ErrCodeConfig:
		return "config"
	case ErrCodeNetwork:
		return "network"
	case ErrCodeProvider:
		return "provider"
	case ErrCodeServerUnavailable:
		return "server_unavailable"
	case ErrCodeInstall:
		return "install"
	default:
		return "unknown"
	}
}

func newConfigError(format string, args ...any) error {
	return &ttsErr{
		Code: ErrCodeConfig,
		Err:  fmt.Errorf(format, args...),
	}
}

// NewConfigError marks a failure that was detected before any network I/O,
// typically a missing credential.
func NewConfigError(format string, args ...any) error {
	return newConfigError(format, args...)
}

func newNetworkError(err error) error {
	return &ttsErr{
		Code: ErrCodeNetwork,
		Err:  fmt.Errorf("transport failure: %w", err),
	}
}

func newProviderError(status int, format string, args ...any) error {
	return &ttsErr{
		Code:   ErrCodeProvider,
		Status: status,
		Err:    fmt.Errorf(format, args...),
	}
}

// NewServerUnavailableError means the local server did not become healthy in
// time. Unlike ErrCodeNetwork this asks the user to retry shortly, not to
// check their connection.
func NewServerUnavailableError(format string, args ...any) error {
	return &ttsErr{
		Code: ErrCodeServerUnavailable,
		Err:  fmt.Errorf(format, args...),
	}
}

// NewInstallError carries the install step that failed.
func NewInstallError(step string, err error) error {
	return &ttsErr{
		Code: ErrCodeInstall,
		Err:  fmt.Errorf("install step %q failed: %w", step, err),
	}
}

//go:build !darwin

package ax

import "time"

type stubBackend struct{}

// NewBackend returns a backend that fails every open. Accessibility batches
// only run on macOS; tests use their own Backend fakes.
func NewBackend(time.Duration) Backend {
	return stubBackend{}
}

// Trusted always reports false off macOS.
func Trusted() bool { return false }

func (stubBackend) OpenApp(int32) (App, error) {
	return nil, ErrUnsupported
}

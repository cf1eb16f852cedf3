//go:build !darwin

package axhost

import (
	"errors"

	"github.com/vellum-wm/vellum/internal/host"
)

// Host only exists on macOS; see axhost_darwin.go.
type Host struct{}

var _ host.Host = (*Host)(nil)

// New fails off macOS. The core itself is platform-neutral; tests run it
// over hosttest instead.
func New() (*Host, error) {
	return nil, errors.New("axhost: only supported on macOS")
}

// Close is a no-op on the stub.
func (h *Host) Close() {}

// The stub satisfies host.Host so callers type-check on every platform;
// New never hands one out.

func (h *Host) FocusedWindow() host.Window                    { return nil }
func (h *Host) WindowByID(uint32) host.Window                 { return nil }
func (h *Host) MainScreen() host.Screen                       { return nil }
func (h *Host) ActiveSpace(host.Screen) (host.Space, error)   { return 0, errors.New("unsupported") }
func (h *Host) NewWindowFilter() host.WindowFilter            { return nil }
func (h *Host) NewWindowWatcher(host.Window, func()) host.WindowWatcher { return nil }
func (h *Host) NewScreenWatcher(func()) host.ScreenWatcher    { return nil }
func (h *Host) LaunchOrFocus(string)                          {}
func (h *Host) Spawn([]string) error                          { return errors.New("unsupported") }

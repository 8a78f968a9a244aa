// Package indicator drives the LED status light. All hardware access is
// funneled through a single [Arbiter] goroutine so concurrent pipeline and
// playback writers can never interleave partial color updates.
package indicator

import "log/slog"

// Color is an 8-bit-per-channel RGB color.
type Color struct {
	R, G, B uint8
}

// Driver is the hardware abstraction for the indicator light.
// Implementations do not need to be safe for concurrent use; the Arbiter is
// the only caller.
type Driver interface {
	// SetAll lights the indicator in the given color.
	SetAll(c Color) error

	// Off turns the indicator off.
	Off() error
}

// Ensure LogDriver implements the Driver interface.
var _ Driver = (*LogDriver)(nil)

// LogDriver is a Driver that logs color changes instead of touching
// hardware. It is the default when no indicator hardware is configured.
type LogDriver struct {
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

func (d *LogDriver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// SetAll implements Driver.
func (d *LogDriver) SetAll(c Color) error {
	d.logger().Debug("indicator set", "r", c.R, "g", c.G, "b", c.B)
	return nil
}

// Off implements Driver.
func (d *LogDriver) Off() error {
	d.logger().Debug("indicator off")
	return nil
}

//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	// Ticks stops the runner after this many polls; 0 runs until the
	// machine halts or ctx is cancelled.
	Ticks uint64
}

// AppFunc builds the machine on h and returns its poll function. The poll
// function returns ErrHalted once a core has halted.
type AppFunc func(ctx context.Context, h HAL) func() error

// RunHeadless boots the machine without opening a window and polls it at
// cfg.Hz until it halts, fails, or ctx is done.
func RunHeadless(ctx context.Context, host HostConfig, newApp AppFunc, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := NewHost(host)
	step := newApp(ctx, h)

	t := time.NewTicker(d)
	defer t.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.Cores().Halted():
			return ErrHalted
		case <-t.C:
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			tick++
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}

// IsHalted reports whether err means the machine stopped on a kernel panic.
func IsHalted(err error) bool {
	return errors.Is(err, ErrHalted)
}

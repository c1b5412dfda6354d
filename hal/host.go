//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// HostConfig describes the simulated machine behind the host HAL.
type HostConfig struct {
	Cores     int
	FlashPath string
	Width     int
	Height    int
	// Pin locks each core goroutine to an OS thread bound to one CPU.
	Pin bool
}

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	flash  Flash
	cores  *SimCores
}

// New returns a four-core host HAL with the default flash file.
func New() HAL {
	return NewHost(HostConfig{Cores: 4})
}

// NewHost returns a host HAL for cfg.
//
// A flash file that cannot be opened leaves the HAL with a flash that
// reports ErrNotImplemented; the failure is logged.
func NewHost(cfg HostConfig) HAL {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 320
	}
	logger := &hostLogger{w: os.Stdout}

	var flash Flash = stubFlash{}
	if f, err := OpenHostFlash(cfg.FlashPath); err != nil {
		logger.WriteLineString(fmt.Sprintf("hal: flash unavailable: %v", err))
	} else {
		flash = f
	}

	cores := NewSimCores(cfg.Cores, logger)
	if cfg.Pin {
		cores.enter = func(core int) {
			if err := pinThread(core); err != nil {
				logger.WriteLineString(fmt.Sprintf("hal: cpu%d affinity: %v", core, err))
			}
		}
	}

	return &hostHAL{
		logger: logger,
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		flash:  flash,
		cores:  cores,
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Flash() Flash     { return h.flash }
func (h *hostHAL) Cores() Cores     { return h.cores }

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

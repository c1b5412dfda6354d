package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrHalted         = errors.New("system halted")
)

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Cores controls the processors of an SMP machine.
//
// Core 0 is the primary. Secondaries start parked: Park returns once the
// primary has sent them an IPI or written the start flag. WaitForEvent and
// SendEvent model the WFE/SEV pair: an event sent while nobody waits is
// latched, so a WaitForEvent after it returns at once.
type Cores interface {
	Count() int
	Name() string
	IRQController() string

	// Enter binds the calling goroutine to core before it runs core code.
	Enter(core int)
	Park(core int)
	InitInterrupts(core int)

	SendIPI(targets uint64)
	WriteStartFlag(flag uint32)
	WaitForEvent(core int)
	SendEvent()

	// Halt stops core and never returns.
	Halt(core int)
	// Halted is closed once any core has halted.
	Halted() <-chan struct{}
}

// HAL provides the only contact point between the OS and the outside world.
type HAL interface {
	Logger() Logger
	Display() Display
	Flash() Flash
	Cores() Cores
}

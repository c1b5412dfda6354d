package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Halter stops a core for good.
type Halter interface {
	Halt(core int)
}

// Config describes the machine a System runs on.
type Config struct {
	// Cores is the total processor count, primary included.
	Cores   int
	Console Console
	CPUs    Processors
	Halt    Halter
	// Clock stamps exception records; time.Now when nil.
	Clock func() time.Time
}

// System is the boot-time kernel state shared by every core: the bring-up
// barrier, the exception buffer and the fatal path.
type System struct {
	console Console
	halt    Halter
	clock   func() time.Time

	barrier *Barrier
	exc     *ExcInfo

	panicActive  atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
}

// NewSystem creates a kernel instance.
func NewSystem(cfg Config) *System {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &System{
		console: cfg.Console,
		halt:    cfg.Halt,
		clock:   clock,
		barrier: NewBarrier(cfg.CPUs, cfg.Cores),
		exc:     NewExcInfo(cfg.Console),
	}
}

// Barrier returns the bring-up barrier.
func (s *System) Barrier() *Barrier { return s.barrier }

// ExcInfo returns the exception buffer.
func (s *System) ExcInfo() *ExcInfo { return s.exc }

// Cores returns the total processor count.
func (s *System) Cores() int { return int(s.barrier.Total()) }

// Printf writes one formatted line to the console.
func (s *System) Printf(format string, args ...any) {
	if s.console == nil {
		return
	}
	s.console.WriteLineString(fmt.Sprintf(format, args...))
}

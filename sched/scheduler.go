package sched

import (
	"context"
	"fmt"
	"time"
)

// Scheduler owns one Core per processor and provides the scheduler hooks of
// the boot sequence.
type Scheduler struct {
	cores []*Core
	hz    int
}

// New returns a scheduler for n cores whose timers tick at hz.
// A non-positive hz disables the tick.
func New(n, hz int) *Scheduler {
	if n < 1 {
		n = 1
	}
	s := &Scheduler{cores: make([]*Core, n), hz: hz}
	for i := range s.cores {
		s.cores[i] = NewCore(i)
	}
	return s
}

// Core returns the run queue of core id, or nil.
func (s *Scheduler) Core(id int) *Core {
	if id < 0 || id >= len(s.cores) {
		return nil
	}
	return s.cores[id]
}

func (s *Scheduler) core(id int) (*Core, error) {
	c := s.Core(id)
	if c == nil {
		return nil, fmt.Errorf("core %d: %w", id, ErrNoCore)
	}
	return c, nil
}

// SetCurrentTask makes the boot context the current task of core.
func (s *Scheduler) SetCurrentTask(core int) {
	if c := s.Core(core); c != nil {
		c.setCurrent(MainTask)
	}
}

// InitTimer arms the core's tick source.
func (s *Scheduler) InitTimer(core int) error {
	c, err := s.core(core)
	if err != nil {
		return err
	}
	if s.hz <= 0 || c.ticker != nil {
		return nil
	}
	d := time.Second / time.Duration(s.hz)
	if d <= 0 {
		return fmt.Errorf("core %d: invalid tick rate %d Hz", core, s.hz)
	}
	c.ticker = time.NewTicker(d)
	return nil
}

// CreateIdleTask adds the idle task, which only waits for the next tick.
func (s *Scheduler) CreateIdleTask(core int) error {
	c, err := s.core(core)
	if err != nil {
		return err
	}
	_, err = c.AddTask("idle", TaskFunc(idle))
	return err
}

func idle(ctx *Context) { ctx.BlockOnTick() }

// Start runs core's scheduler loop until ctx is done. It does not return
// otherwise.
func (s *Scheduler) Start(ctx context.Context, core int) error {
	c, err := s.core(core)
	if err != nil {
		return err
	}
	return c.Run(ctx)
}

// Run steps tasks and takes ticks until ctx is done.
func (c *Core) Run(ctx context.Context) error {
	if c.started {
		return ErrStarted
	}
	c.started = true

	var tickC <-chan time.Time
	if c.ticker != nil {
		tickC = c.ticker.C
		defer c.ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			c.Tick()
		default:
		}

		if c.Step() {
			continue
		}

		// Nothing runnable: sleep until the next tick.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			c.Tick()
		}
	}
}

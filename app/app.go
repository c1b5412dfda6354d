package app

import (
	"context"
	"errors"
	"fmt"

	"smpboot/boot"
	"smpboot/hal"
	"smpboot/kernel"
	"smpboot/sched"

	"golang.org/x/sync/errgroup"
)

// Config selects the machine to boot.
type Config struct {
	// Cores limits the cores brought up; 0 uses every core of the HAL.
	Cores  int
	TickHz int
	// ExcBufSize is the exception buffer size in bytes.
	ExcBufSize int
	// DumpAddr is the flash address exception records are flushed to.
	DumpAddr uint32
	Fault    FaultConfig
}

// FaultConfig injects a panic into a running core.
type FaultConfig struct {
	// Core is the core to fault; negative disables injection.
	Core  int
	After uint64 // ticks after the core's scheduler started
}

func DefaultConfig() Config {
	return Config{
		TickHz:     100,
		ExcBufSize: 4096,
		DumpAddr:   0,
		Fault:      FaultConfig{Core: -1},
	}
}

// Machine is a booting or running system.
type Machine struct {
	h     hal.HAL
	sys   *kernel.System
	sched *sched.Scheduler

	done chan struct{}
	err  error
}

// New boots the default machine on h and returns its poll function.
func New(ctx context.Context, h hal.HAL) func() error {
	return Start(ctx, h, DefaultConfig()).Poll
}

// NewWithConfig returns a host runner entry point booting cfg.
func NewWithConfig(cfg Config) hal.AppFunc {
	return func(ctx context.Context, h hal.HAL) func() error {
		return Start(ctx, h, cfg).Poll
	}
}

// Run boots the machine and blocks forever (TinyGo/native entrypoint).
func Run(h hal.HAL) {
	m := Start(context.Background(), h, DefaultConfig())
	if err := m.Wait(); err != nil {
		h.Logger().WriteLineString("boot: " + err.Error())
	}
	select {}
}

// Start brings up the machine: every core runs on its own goroutine until
// ctx is done or a core halts.
func Start(ctx context.Context, h hal.HAL, cfg Config) *Machine {
	cores := h.Cores()
	n := cfg.Cores
	if n <= 0 || n > cores.Count() {
		n = cores.Count()
	}

	sys := kernel.NewSystem(kernel.Config{
		Cores:   n,
		Console: h.Logger(),
		CPUs:    cores,
		Halt:    cores,
	})
	installFatalScreen(sys, h)

	m := &Machine{
		h:     h,
		sys:   sys,
		sched: sched.New(n, cfg.TickHz),
		done:  make(chan struct{}),
	}
	m.injectFault(cfg.Fault)

	bcfg := boot.Config{
		Scheduler: m.sched,
		Init: func(context.Context) error {
			return m.initExcInfo(cfg)
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for core := 1; core < n; core++ {
		core := core
		g.Go(func() error {
			cores.Enter(core)
			return boot.Secondary(gctx, sys, cores, bcfg, core)
		})
	}
	g.Go(func() error {
		cores.Enter(0)
		return boot.Primary(gctx, sys, cores, bcfg)
	})
	go func() {
		m.err = g.Wait()
		close(m.done)
	}()
	return m
}

// System returns the kernel state shared by the cores.
func (m *Machine) System() *kernel.System { return m.sys }

// Wait blocks until every core has returned.
func (m *Machine) Wait() error {
	<-m.done
	return m.err
}

// Poll reports the machine state without blocking: nil while running,
// hal.ErrHalted after a kernel panic, or the error that stopped the cores.
func (m *Machine) Poll() error {
	select {
	case <-m.h.Cores().Halted():
		return hal.ErrHalted
	case <-m.done:
		if m.err == nil {
			return errors.New("machine stopped")
		}
		return m.err
	default:
		return nil
	}
}

// initExcInfo arms the exception buffer, flash-backed when the HAL has
// flash, and prints the record left by the previous boot.
func (m *Machine) initExcInfo(cfg Config) error {
	if cfg.ExcBufSize <= 0 {
		m.sys.Printf("excinfo: disabled")
		return nil
	}
	exc := m.sys.ExcInfo()
	buf := make([]byte, cfg.ExcBufSize)

	if f := m.h.Flash(); f != nil && f.SizeBytes() > 0 && f.EraseBlockBytes() > 0 {
		if err := exc.Register(cfg.DumpAddr, buf, kernel.NewFlashStore(f)); err != nil {
			return fmt.Errorf("excinfo: %w", err)
		}
		m.sys.Printf("excinfo: %d byte buffer, dump at %#x", len(buf), cfg.DumpAddr)
		m.printPreviousRecord(exc)
		return nil
	}

	if err := exc.Init(buf); err != nil {
		return fmt.Errorf("excinfo: %w", err)
	}
	m.sys.Printf("excinfo: %d byte buffer, no dump store", len(buf))
	return nil
}

func (m *Machine) printPreviousRecord(exc *kernel.ExcInfo) {
	p := make([]byte, exc.Capacity())
	n, err := exc.ReadRecord(p)
	if err != nil {
		m.sys.Printf("excinfo: read previous record: %v", err)
		return
	}
	if n == 0 {
		return
	}
	m.sys.Printf("excinfo: previous exception record:")
	for _, line := range splitLines(p[:n]) {
		m.sys.Printf("excinfo[prev]: %s", line)
	}
}

func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				lines = append(lines, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}

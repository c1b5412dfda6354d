// Package boot runs the bring-up sequence of the primary and secondary cores.
package boot

import (
	"context"
	"errors"
	"fmt"

	"smpboot/internal/buildinfo"
	"smpboot/kernel"
)

var ErrSignalReady = errors.New("boot: ready signal rejected")

// Platform is the processor control the boot sequence needs.
type Platform interface {
	Name() string
	IRQController() string
	// Park blocks a secondary core until the primary releases it.
	Park(core int)
	InitInterrupts(core int)
}

// Scheduler is brought up once per core, in method order, at the end of boot.
type Scheduler interface {
	SetCurrentTask(core int)
	InitTimer(core int) error
	CreateIdleTask(core int) error
	// Start runs the core's scheduler until ctx is done.
	Start(ctx context.Context, core int) error
}

// Config is shared by every core's boot.
type Config struct {
	Scheduler Scheduler
	// Init runs on the primary before any secondary is released. An error
	// aborts the boot.
	Init func(ctx context.Context) error
}

// Primary boots core 0: banner, kernel init, release of the secondaries, and
// the wait until every core has checked in. It then runs the scheduler and
// only returns when ctx is done or boot failed.
//
// A panic on the way is reported through sys and halts the core.
func Primary(ctx context.Context, sys *kernel.System, plat Platform, cfg Config) error {
	defer sys.Recover(0)

	if cfg.Scheduler == nil {
		return errors.New("boot: no scheduler")
	}
	cfg.Scheduler.SetCurrentTask(0)
	printBanner(sys, plat)
	sys.Printf("main core booting up...")

	if cfg.Init != nil {
		if err := cfg.Init(ctx); err != nil {
			return fmt.Errorf("kernel init: %w", err)
		}
	}
	if err := startCore(plat, cfg.Scheduler, 0); err != nil {
		return err
	}

	if n := sys.Cores(); n > 1 {
		sys.Printf("releasing %d secondary cores", n-1)
		b := sys.Barrier()
		b.ReleaseSecondaries()
		b.AwaitAllReady(uint32(n))
		sys.Printf("all %d cores online", n)
	}

	return cfg.Scheduler.Start(ctx, 0)
}

// Secondary is the entry point of core >= 1. It parks until the primary
// releases it, checks in with the barrier, and runs its scheduler.
func Secondary(ctx context.Context, sys *kernel.System, plat Platform, cfg Config, core int) error {
	defer sys.Recover(core)

	if cfg.Scheduler == nil {
		return errors.New("boot: no scheduler")
	}
	plat.Park(core)
	cfg.Scheduler.SetCurrentTask(core)

	if res := sys.Barrier().SignalReady(core); res != kernel.SignalOK {
		return fmt.Errorf("cpu%d: %w: %s", core, ErrSignalReady, res)
	}
	if err := startCore(plat, cfg.Scheduler, core); err != nil {
		return err
	}
	return cfg.Scheduler.Start(ctx, core)
}

func startCore(plat Platform, s Scheduler, core int) error {
	plat.InitInterrupts(core)
	if err := s.InitTimer(core); err != nil {
		return fmt.Errorf("cpu%d timer init: %w", core, err)
	}
	if err := s.CreateIdleTask(core); err != nil {
		return fmt.Errorf("cpu%d idle task: %w", core, err)
	}
	return nil
}

func printBanner(sys *kernel.System, plat Platform) {
	n := sys.Cores()
	mode := "UP"
	if n > 1 {
		mode = "SMP"
	}
	sys.Printf("******************* smpboot *******************")
	sys.Printf("Kernel Version : %s", buildinfo.Short())
	sys.Printf("Processor      : %s * %d", plat.Name(), n)
	sys.Printf("Run Mode       : %s", mode)
	sys.Printf("IRQ Controller : %s", plat.IRQController())
	sys.Printf("Build Time     : %s", buildinfo.BuildTime())
	sys.Printf("************************************************")
}

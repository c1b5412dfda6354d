//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"smpboot/app"
	"smpboot/hal"
)

func main() {
	var (
		hcfg hal.HeadlessConfig
		host hal.HostConfig
		cfg  = app.DefaultConfig()
		addr uint
	)
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Poll rate in headless mode.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N polls in headless mode (0 = run until halt).")
	flag.IntVar(&host.Cores, "cores", 4, "Number of simulated cores.")
	flag.StringVar(&host.FlashPath, "flash", "", "Flash image path (default $"+hal.FlashPathEnv+" or smpboot.flash).")
	flag.BoolVar(&host.Pin, "pin", false, "Pin each core to a host CPU.")
	flag.IntVar(&cfg.TickHz, "tick-hz", cfg.TickHz, "Scheduler tick rate per core.")
	flag.IntVar(&cfg.ExcBufSize, "excbuf", cfg.ExcBufSize, "Exception buffer size in bytes (0 disables).")
	flag.UintVar(&addr, "dump-addr", uint(cfg.DumpAddr), "Flash address of the exception record.")
	flag.IntVar(&cfg.Fault.Core, "fault-core", -1, "Inject a panic on this core (-1 = none).")
	flag.Uint64Var(&cfg.Fault.After, "fault-after", 100, "Ticks before the injected panic.")
	flag.Parse()

	if addr > uint(^uint32(0)) {
		fmt.Fprintln(os.Stderr, "error: -dump-addr out of range")
		os.Exit(2)
	}
	cfg.DumpAddr = uint32(addr)
	newApp := app.NewWithConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if hcfg.Enabled {
		err = hal.RunHeadless(ctx, host, newApp, hcfg)
	} else {
		err = hal.RunWindow(ctx, host, newApp)
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case hal.IsHalted(err):
		fmt.Fprintln(os.Stderr, "system halted")
		os.Exit(3)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

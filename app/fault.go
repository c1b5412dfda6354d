package app

import (
	"fmt"

	"smpboot/sched"
)

// faultTask panics on its core once the core has taken After ticks.
type faultTask struct {
	after uint64
}

func (t faultTask) Step(ctx *sched.Context) {
	if now := ctx.NowTick(); now >= t.after {
		panic(fmt.Sprintf("injected fault on cpu%d at tick %d", ctx.Core(), now))
	}
	ctx.BlockOnTick()
}

func (m *Machine) injectFault(cfg FaultConfig) {
	if cfg.Core < 0 {
		return
	}
	c := m.sched.Core(cfg.Core)
	if c == nil {
		m.sys.Printf("fault: no cpu%d, injection disabled", cfg.Core)
		return
	}
	if _, err := c.AddTask("fault", faultTask{after: cfg.After}); err != nil {
		m.sys.Printf("fault: %v", err)
	}
}

package hal

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SimCores simulates an SMP machine with one goroutine per core.
//
// It backs the host HAL and TinyGo-on-host builds.
type SimCores struct {
	n    int
	name string
	irq  string
	log  Logger

	flag    atomic.Uint32
	ipis    atomic.Uint32
	irqMask atomic.Uint64
	halted  atomic.Uint64

	wake     []chan struct{}
	wakeOnce []sync.Once
	events   []chan struct{}

	haltedCh   chan struct{}
	haltedOnce sync.Once

	enter func(core int)
}

// MaxSimCores is the largest machine SimCores can model.
const MaxSimCores = 64

// NewSimCores returns n simulated cores (clamped to 1..MaxSimCores).
func NewSimCores(n int, log Logger) *SimCores {
	if n < 1 {
		n = 1
	}
	if n > MaxSimCores {
		n = MaxSimCores
	}
	c := &SimCores{
		n:        n,
		name:     "simulated cortex-a9",
		irq:      "GICv1 (simulated)",
		log:      log,
		wake:     make([]chan struct{}, n),
		wakeOnce: make([]sync.Once, n),
		events:   make([]chan struct{}, n),
		haltedCh: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		c.wake[i] = make(chan struct{})
		c.events[i] = make(chan struct{}, 1)
	}
	return c
}

func (c *SimCores) Count() int            { return c.n }
func (c *SimCores) Name() string          { return c.name }
func (c *SimCores) IRQController() string { return c.irq }

// Describe sets the processor and interrupt controller names shown at boot.
func (c *SimCores) Describe(name, irq string) {
	c.name = name
	c.irq = irq
}

// Enter runs the platform hook installed for the host, if any.
func (c *SimCores) Enter(core int) {
	if c.enter != nil {
		c.enter(core)
	}
}

func (c *SimCores) valid(core int) bool {
	return core >= 0 && core < c.n
}

// Park blocks a secondary until it is released. Core 0 never parks.
func (c *SimCores) Park(core int) {
	if core == 0 || !c.valid(core) {
		return
	}
	for {
		if c.flag.Load() != 0 {
			return
		}
		select {
		case <-c.wake[core]:
			return
		case <-c.events[core]:
		}
	}
}

// InitInterrupts marks the per-core interrupt interface as enabled.
func (c *SimCores) InitInterrupts(core int) {
	if !c.valid(core) {
		return
	}
	bit := uint64(1) << uint(core)
	for {
		old := c.irqMask.Load()
		if c.irqMask.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// IRQMask returns the cores whose interrupt interface is enabled.
func (c *SimCores) IRQMask() uint64 { return c.irqMask.Load() }

// SendIPI delivers a wake-up software interrupt to every core in targets.
func (c *SimCores) SendIPI(targets uint64) {
	c.ipis.Add(1)
	for core := 1; core < c.n; core++ {
		if targets&(uint64(1)<<uint(core)) == 0 {
			continue
		}
		c.wakeOnce[core].Do(func() { close(c.wake[core]) })
	}
}

// IPIs returns how many IPI broadcasts were sent.
func (c *SimCores) IPIs() uint32 { return c.ipis.Load() }

// WriteStartFlag writes the memory-mapped start flag and signals an event.
func (c *SimCores) WriteStartFlag(flag uint32) {
	c.flag.Store(flag)
	c.SendEvent()
}

// StartFlag returns the last value written to the start flag.
func (c *SimCores) StartFlag() uint32 { return c.flag.Load() }

func (c *SimCores) WaitForEvent(core int) {
	if !c.valid(core) {
		return
	}
	<-c.events[core]
}

func (c *SimCores) SendEvent() {
	for _, ev := range c.events {
		select {
		case ev <- struct{}{}:
		default:
		}
	}
}

func (c *SimCores) Halt(core int) {
	if c.valid(core) {
		bit := uint64(1) << uint(core)
		for {
			old := c.halted.Load()
			if c.halted.CompareAndSwap(old, old|bit) {
				break
			}
		}
	}
	if c.log != nil {
		c.log.WriteLineString(fmt.Sprintf("cpu%d halted", core))
	}
	c.haltedOnce.Do(func() { close(c.haltedCh) })
	select {}
}

func (c *SimCores) Halted() <-chan struct{} { return c.haltedCh }

// HaltedMask returns the cores that have halted.
func (c *SimCores) HaltedMask() uint64 { return c.halted.Load() }

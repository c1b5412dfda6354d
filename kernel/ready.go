package kernel

import (
	"runtime"
	"sync/atomic"
)

// MaxCores is the largest processor count a Barrier can track.
const MaxCores = 64

// Processors is the hardware surface the bring-up barrier needs.
//
// SendIPI and WriteStartFlag are the two wake paths for parked secondaries.
// WaitForEvent parks the calling core until an event is sent (it may return
// spuriously); SendEvent wakes every core parked in WaitForEvent.
type Processors interface {
	SendIPI(targets uint64)
	WriteStartFlag(flag uint32)
	WaitForEvent(core int)
	SendEvent()
}

// StartFlag is the value written to the platform start flag on release.
const StartFlag uint32 = 0x10000

// ReadyCounter counts processors that have completed early bring-up.
//
// The zero value reads as 1: the primary is up before anybody looks.
type ReadyCounter struct {
	_  [0]func() // prevent accidental copying.
	up atomic.Uint32
}

// Load returns the current count with a fresh atomic load.
func (c *ReadyCounter) Load() uint32 {
	return 1 + c.up.Load()
}

func (c *ReadyCounter) inc() uint32 {
	return 1 + c.up.Add(1)
}

// SignalResult describes the outcome of a SignalReady call.
type SignalResult uint8

const (
	SignalOK SignalResult = iota
	SignalErrBadCore
	SignalErrDuplicate
)

func (r SignalResult) String() string {
	switch r {
	case SignalOK:
		return "ok"
	case SignalErrBadCore:
		return "core id out of range"
	case SignalErrDuplicate:
		return "core already signalled"
	default:
		return "unknown"
	}
}

// Barrier releases secondary processors and waits for them to come up.
//
// ReleaseSecondaries and AwaitAllReady belong to the primary (core 0);
// SignalReady is called once by each secondary. There is no timeout: a core
// that never signals keeps the primary in AwaitAllReady forever.
type Barrier struct {
	_        [0]func() // prevent accidental copying.
	cpus     Processors
	total    uint32
	released atomic.Bool
	seen     atomic.Uint64
	ready    ReadyCounter
}

// NewBarrier returns a barrier for total processors, the primary included.
func NewBarrier(cpus Processors, total int) *Barrier {
	if total < 1 {
		total = 1
	}
	if total > MaxCores {
		total = MaxCores
	}
	return &Barrier{cpus: cpus, total: uint32(total)}
}

// Total returns the number of processors the barrier waits for.
func (b *Barrier) Total() uint32 { return b.total }

// Ready returns the readiness counter.
func (b *Barrier) Ready() *ReadyCounter { return &b.ready }

// ReleaseSecondaries wakes every parked secondary.
//
// It must be issued once per boot; later calls do nothing and return false.
func (b *Barrier) ReleaseSecondaries() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}
	if b.cpus == nil {
		return true
	}
	b.cpus.SendIPI(b.secondaryMask())
	b.cpus.WriteStartFlag(StartFlag)
	return true
}

// Released reports whether ReleaseSecondaries has run.
func (b *Barrier) Released() bool { return b.released.Load() }

// AwaitAllReady blocks until the ready counter reaches expected.
//
// Between checks the core sits in WaitForEvent; SignalReady sends the event.
func (b *Barrier) AwaitAllReady(expected uint32) {
	for b.ready.Load() < expected {
		if b.cpus == nil {
			runtime.Gosched()
			continue
		}
		b.cpus.WaitForEvent(0)
	}
}

// SignalReady marks secondary core as up and bumps the ready counter.
func (b *Barrier) SignalReady(core int) SignalResult {
	if core <= 0 || uint32(core) >= b.total {
		return SignalErrBadCore
	}
	bit := uint64(1) << uint(core)
	for {
		seen := b.seen.Load()
		if seen&bit != 0 {
			return SignalErrDuplicate
		}
		if b.seen.CompareAndSwap(seen, seen|bit) {
			break
		}
	}

	b.ready.inc()
	if b.cpus != nil {
		b.cpus.SendEvent()
	}
	return SignalOK
}

func (b *Barrier) secondaryMask() uint64 {
	var mask uint64
	for core := uint32(1); core < b.total; core++ {
		mask |= 1 << core
	}
	return mask
}

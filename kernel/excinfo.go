package kernel

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"smpboot/kernel/kfmt"
)

var (
	ErrNoBuffer    = errors.New("exc info: no buffer")
	ErrNoDumpStore = errors.New("exc info: no dump store")

	ErrBufferTooLarge = errors.New("exc info: buffer larger than 4 GiB")
)

// Console is the early diagnostic output sink.
type Console interface {
	WriteLineString(s string)
}

// DumpStore persists the exception record outside RAM.
type DumpStore interface {
	WriteDump(addr uint32, p []byte) (int, error)
	ReadDump(addr uint32, p []byte) (int, error)
}

type excRegion struct {
	buf      []byte
	dumpAddr uint32
	store    DumpStore
}

// ExcInfo is the exception buffer: a fixed region that formatted text is
// appended to on the fatal-error path.
//
// The zero value is uninitialized and ignores appends. Text never uses the last
// byte of the region; a NUL terminator always follows the written text.
// Appends neither allocate buffer space nor lock. Two cores appending at once
// cannot write out of bounds, but their text may be lost.
type ExcInfo struct {
	_       [0]func() // prevent accidental copying.
	region  atomic.Pointer[excRegion]
	offset  atomic.Uint32
	dropped atomic.Uint32
	console Console
}

// NewExcInfo returns an uninitialized exception buffer reporting to console.
func NewExcInfo(console Console) *ExcInfo {
	return &ExcInfo{console: console}
}

// Init installs buf and starts appending at offset 0.
func (e *ExcInfo) Init(buf []byte) error {
	if err := e.install(buf, 0, nil); err != nil {
		return err
	}
	e.rewind()
	return nil
}

// Register installs buf together with the dump location and store.
//
// The buffer stays idle (full) until BeginRecord starts a new record.
func (e *ExcInfo) Register(dumpAddr uint32, buf []byte, store DumpStore) error {
	if store == nil {
		e.report("Buf or hook is null.")
		return ErrNoDumpStore
	}
	return e.install(buf, dumpAddr, store)
}

func (e *ExcInfo) install(buf []byte, dumpAddr uint32, store DumpStore) error {
	if len(buf) == 0 {
		e.report("Buf or hook is null.")
		return ErrNoBuffer
	}
	if uint64(len(buf)) > math.MaxUint32 {
		return ErrBufferTooLarge
	}
	e.offset.Store(uint32(len(buf)))
	e.region.Store(&excRegion{buf: buf, dumpAddr: dumpAddr, store: store})
	return nil
}

func (e *ExcInfo) rewind() {
	r := e.region.Load()
	if r == nil {
		return
	}
	r.buf[0] = 0
	e.offset.Store(0)
}

// BeginRecord starts a new record at offset 0 and stamps it with now.
func (e *ExcInfo) BeginRecord(now time.Time) {
	e.rewind()
	e.Appendf("%04d-%02d-%02d %02d:%02d:%02d \n",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute(), now.Second())
}

// Appendf formats according to format and appends the result.
func (e *ExcInfo) Appendf(format string, args ...any) {
	e.Appendv(format, args)
}

// Appendv appends with an already-captured argument list.
//
// If the text does not fit, nothing is appended and the overflow is reported
// on the console.
func (e *ExcInfo) Appendv(format string, args []any) {
	r := e.region.Load()
	if r == nil {
		return
	}
	capacity := uint32(len(r.buf))
	off := e.offset.Load()
	if capacity == 0 || off >= capacity {
		return
	}

	n, err := kfmt.Bprintv(r.buf[off:capacity-1], format, args)
	if err != nil {
		// Restore the terminator unless another append has moved on.
		if e.offset.Load() == off {
			r.buf[off] = 0
		}
		e.dropped.Add(1)
		e.report("exc info buffer is not enough or format failed.")
		return
	}
	end := off + uint32(n)
	r.buf[end] = 0
	if !e.offset.CompareAndSwap(off, end) {
		e.dropped.Add(1)
	}
}

func (e *ExcInfo) report(msg string) {
	if e.console == nil {
		return
	}
	e.console.WriteLineString("[ERR] " + msg)
}

// Capacity returns the region size, or 0 when uninitialized.
func (e *ExcInfo) Capacity() uint32 {
	r := e.region.Load()
	if r == nil {
		return 0
	}
	return uint32(len(r.buf))
}

// Offset returns the number of text bytes written.
func (e *ExcInfo) Offset() uint32 {
	if e.region.Load() == nil {
		return 0
	}
	return e.offset.Load()
}

// SetOffset moves the write cursor, clamped to the capacity.
func (e *ExcInfo) SetOffset(off uint32) {
	r := e.region.Load()
	if r == nil {
		return
	}
	if c := uint32(len(r.buf)); off > c {
		off = c
	}
	e.offset.Store(off)
}

// DumpAddr returns the dump location registered with Register.
func (e *ExcInfo) DumpAddr() uint32 {
	r := e.region.Load()
	if r == nil {
		return 0
	}
	return r.dumpAddr
}

// Dropped returns how many appends were discarded.
func (e *ExcInfo) Dropped() uint32 { return e.dropped.Load() }

// Bytes returns a copy of the text written so far.
func (e *ExcInfo) Bytes() []byte {
	r := e.region.Load()
	if r == nil {
		return nil
	}
	off := e.offset.Load()
	if c := uint32(len(r.buf)); off >= c {
		off = c - 1
	}
	out := make([]byte, off)
	copy(out, r.buf[:off])
	return out
}

// Flush writes the record and its terminator to the dump store.
func (e *ExcInfo) Flush() error {
	r := e.region.Load()
	if r == nil {
		return ErrNoBuffer
	}
	if r.store == nil {
		return ErrNoDumpStore
	}
	end := e.offset.Load() + 1
	if c := uint32(len(r.buf)); end > c {
		end = c
	}
	if _, err := r.store.WriteDump(r.dumpAddr, r.buf[:end]); err != nil {
		return fmt.Errorf("exc info dump at %#x: %w", r.dumpAddr, err)
	}
	return nil
}

// ReadRecord reads a stored record into p and returns its length.
//
// The record ends at the first NUL or erased (0xFF) byte.
func (e *ExcInfo) ReadRecord(p []byte) (int, error) {
	r := e.region.Load()
	if r == nil {
		return 0, ErrNoBuffer
	}
	if r.store == nil {
		return 0, ErrNoDumpStore
	}
	if len(p) > len(r.buf) {
		p = p[:len(r.buf)]
	}
	n, err := r.store.ReadDump(r.dumpAddr, p)
	if err != nil {
		return 0, fmt.Errorf("exc info read at %#x: %w", r.dumpAddr, err)
	}
	return RecordLen(p[:n]), nil
}

// RecordLen returns the length of the record at the start of b.
func RecordLen(b []byte) int {
	for i, c := range b {
		if c == 0 || c == 0xFF {
			return i
		}
	}
	return len(b)
}

package kernel

import (
	"bytes"
	"errors"

	"smpboot/kernel/kfmt"
)

// PanicInfo describes the fatal error that stopped the system.
type PanicInfo struct {
	Core    int
	Message string
	Stack   []byte
	// Record is the exception buffer content at the time of the handler call.
	Record []byte
}

const panicLineBytes = 256

// InPanicMode reports whether the fatal path has started.
func (s *System) InPanicMode() bool {
	return s.panicActive.Load()
}

// SetPanicHandler installs the handler run once on the first panic.
//
// It runs before the core halts and must not panic.
func (s *System) SetPanicHandler(fn func(PanicInfo)) {
	s.panicHandler.Store(fn)
}

// Panic reports a fatal error and halts core. It does not return unless the
// configured Halter does.
//
// Only the first panic is reported; later ones just halt their core.
func (s *System) Panic(core int, format string, args ...any) {
	s.panicv(core, format, args, nil)
}

// Recover turns a Go panic on core into Panic. Use it as
//
//	defer sys.Recover(core)
func (s *System) Recover(core int) {
	if r := recover(); r != nil {
		s.panicv(core, "%v", []any{r}, captureStack())
	}
}

func (s *System) panicv(core int, format string, args []any, stack []byte) {
	s.panicOnce.Do(func() {
		s.panicActive.Store(true)

		var line [panicLineBytes]byte
		n, _ := kfmt.Bprintv(line[:], format, args)
		msg := string(line[:n])
		if stack == nil {
			stack = captureStack()
		}

		if s.console != nil {
			s.console.WriteLineString("Kernel panic on core " + itoa(core) + ": " + msg)
		}

		exc := s.exc
		exc.BeginRecord(s.clock())
		exc.Appendf("core %d panic: %s\n", core, msg)
		appendBacktrace(exc, stack)
		if err := exc.Flush(); err != nil && !errors.Is(err, ErrNoDumpStore) && !errors.Is(err, ErrNoBuffer) {
			if s.console != nil {
				s.console.WriteLineString("[ERR] " + err.Error())
			}
		}

		if v := s.panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(PanicInfo{Core: core, Message: msg, Stack: stack, Record: exc.Bytes()})
			}
		}
	})

	if s.halt != nil {
		s.halt.Halt(core)
	}
}

// appendBacktrace appends stack line by line and stops at the first line
// that no longer fits.
func appendBacktrace(exc *ExcInfo, stack []byte) {
	if len(stack) == 0 {
		exc.Appendf("backtrace: unavailable\n")
		return
	}
	exc.Appendf("backtrace:\n")
	for len(stack) > 0 {
		line, rest := stack, []byte(nil)
		if i := bytes.IndexByte(stack, '\n'); i >= 0 {
			line, rest = stack[:i], stack[i+1:]
		}
		before := exc.Offset()
		exc.Appendf("%s\n", line)
		if exc.Offset() == before {
			return
		}
		stack = rest
	}
}

func itoa(v int) string {
	var buf [24]byte
	n, _ := kfmt.Bprintf(buf[:], "%d", v)
	return string(buf[:n])
}

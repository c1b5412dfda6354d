package kernel

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type recordHalter struct {
	mu     sync.Mutex
	halted []int
}

func (h *recordHalter) Halt(core int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = append(h.halted, core)
}

func (h *recordHalter) Cores() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.halted...)
}

func newPanicSystem(t *testing.T) (*System, *lineConsole, *recordHalter, *memStore) {
	t.Helper()
	con := &lineConsole{}
	halt := &recordHalter{}
	sys := NewSystem(Config{
		Cores:   2,
		Console: con,
		Halt:    halt,
		Clock:   func() time.Time { return time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC) },
	})
	store := newMemStore()
	if err := sys.ExcInfo().Register(0, make([]byte, 512), store); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return sys, con, halt, store
}

func TestPanicRecordsAndHalts(t *testing.T) {
	sys, con, halt, store := newPanicSystem(t)

	var got PanicInfo
	calls := 0
	sys.SetPanicHandler(func(info PanicInfo) {
		calls++
		got = info
	})

	sys.Panic(1, "data abort at %#x", uint32(0xdead0000))

	if !sys.InPanicMode() {
		t.Fatal("InPanicMode() = false after Panic")
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if got.Core != 1 || got.Message != "data abort at 0xdead0000" {
		t.Fatalf("PanicInfo = {Core:%d Message:%q}", got.Core, got.Message)
	}
	if !strings.HasPrefix(string(got.Record), "2025-01-02 03:04:05 \ncore 1 panic: data abort at 0xdead0000\nbacktrace:\n") {
		t.Fatalf("Record = %q", got.Record)
	}
	if stored := store.writes[0]; len(stored) == 0 || stored[len(stored)-1] != 0 {
		t.Fatalf("dump not flushed with terminator: %q", stored)
	}
	if cores := halt.Cores(); len(cores) != 1 || cores[0] != 1 {
		t.Fatalf("halted = %v, want [1]", cores)
	}
	if lines := con.Lines(); len(lines) == 0 || lines[0] != "Kernel panic on core 1: data abort at 0xdead0000" {
		t.Fatalf("console = %q", lines)
	}
}

func TestPanicReportsOnce(t *testing.T) {
	sys, _, halt, _ := newPanicSystem(t)

	calls := 0
	sys.SetPanicHandler(func(PanicInfo) { calls++ })

	sys.Panic(0, "first")
	record := string(sys.ExcInfo().Bytes())
	sys.Panic(1, "second")

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if got := string(sys.ExcInfo().Bytes()); got != record {
		t.Fatalf("second panic changed the record:\n%s", got)
	}
	if cores := halt.Cores(); len(cores) != 2 {
		t.Fatalf("halted = %v, want both cores", cores)
	}
}

func TestRecoverConvertsGoPanic(t *testing.T) {
	sys, _, halt, _ := newPanicSystem(t)

	var info PanicInfo
	sys.SetPanicHandler(func(p PanicInfo) { info = p })

	func() {
		defer sys.Recover(1)
		var table []int
		_ = table[3]
	}()

	if !strings.Contains(info.Message, "index out of range") {
		t.Fatalf("Message = %q, want index out of range", info.Message)
	}
	if len(info.Stack) == 0 {
		t.Fatal("expected a captured stack")
	}
	if cores := halt.Cores(); len(cores) != 1 || cores[0] != 1 {
		t.Fatalf("halted = %v, want [1]", cores)
	}
}

func TestPanicWithoutExceptionBuffer(t *testing.T) {
	con := &lineConsole{}
	sys := NewSystem(Config{Cores: 1, Console: con})

	sys.Panic(0, "early fault")

	if lines := con.Lines(); len(lines) != 1 {
		t.Fatalf("console = %q, want only the panic line", lines)
	}
}

func TestBacktraceStopsWhenFull(t *testing.T) {
	e := NewExcInfo(nil)
	_ = e.Init(make([]byte, 40))

	appendBacktrace(e, []byte("goroutine 1 [running]:\nmain.main()\n\t/very/long/path/to/file.go:12\n"))

	got := string(e.Bytes())
	if got != "backtrace:\ngoroutine 1 [running]:\n" {
		t.Fatalf("Bytes() = %q", got)
	}
}

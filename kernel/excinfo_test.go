package kernel

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type lineConsole struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineConsole) WriteLineString(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, s)
}

func (c *lineConsole) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestExcInfoScenario(t *testing.T) {
	con := &lineConsole{}
	e := NewExcInfo(con)
	buf := make([]byte, 16)
	if err := e.Init(buf); err != nil {
		t.Fatalf("Init: %v", err)
	}

	e.Appendf("Error: %d", 12345)
	if got := e.Offset(); got != 12 {
		t.Fatalf("Offset() = %d, want 12", got)
	}
	if got := string(buf[:12]); got != "Error: 12345" {
		t.Fatalf("buffer = %q, want %q", got, "Error: 12345")
	}

	e.Appendf("END")
	if got := e.Offset(); got != 15 {
		t.Fatalf("Offset() = %d, want 15", got)
	}
	if buf[15] != 0 {
		t.Fatalf("terminator = %#x, want 0", buf[15])
	}

	e.Appendf("!!!!!!")
	if got := e.Offset(); got != 15 {
		t.Fatalf("Offset() after overflow = %d, want 15", got)
	}
	if got := string(e.Bytes()); got != "Error: 12345END" {
		t.Fatalf("Bytes() = %q, want %q", got, "Error: 12345END")
	}
	if got := e.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}

	lines := con.Lines()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "[ERR] exc info buffer is not enough") {
		t.Fatalf("console = %q, want one overflow report", lines)
	}
}

func TestExcInfoUninitializedIsSilentNoop(t *testing.T) {
	con := &lineConsole{}
	e := NewExcInfo(con)

	e.Appendf("lost %d", 1)
	e.Appendv("lost %d", []any{2})
	if got := e.Offset(); got != 0 {
		t.Fatalf("Offset() = %d, want 0", got)
	}
	if got := e.Capacity(); got != 0 {
		t.Fatalf("Capacity() = %d, want 0", got)
	}
	if got := e.Bytes(); got != nil {
		t.Fatalf("Bytes() = %q, want nil", got)
	}
	if lines := con.Lines(); len(lines) != 0 {
		t.Fatalf("console = %q, want nothing", lines)
	}

	var zero ExcInfo
	zero.Appendf("also lost")
	if got := zero.Offset(); got != 0 {
		t.Fatalf("zero Offset() = %d, want 0", got)
	}
}

func TestExcInfoNeverWritesPastCapacity(t *testing.T) {
	backing := make([]byte, 40)
	for i := range backing {
		backing[i] = 0xAA
	}
	e := NewExcInfo(nil)
	if err := e.Init(backing[:32]); err != nil {
		t.Fatalf("Init: %v", err)
	}

	for i := 0; i < 20; i++ {
		e.Appendf("%d:%s;", i, strings.Repeat("x", i%5))
		if off := e.Offset(); off > 31 {
			t.Fatalf("Offset() = %d after append %d, want <= 31", off, i)
		}
	}
	for i := 32; i < len(backing); i++ {
		if backing[i] != 0xAA {
			t.Fatalf("byte %d past capacity changed to %#x", i, backing[i])
		}
	}
	if off := e.Offset(); backing[off] != 0 {
		t.Fatalf("missing terminator at %d", off)
	}
}

func TestExcInfoOverflowKeepsPriorContent(t *testing.T) {
	buf := make([]byte, 10)
	e := NewExcInfo(nil)
	_ = e.Init(buf)

	e.Appendf("abcd")
	e.Appendf("%s", "0123456789")
	if got := string(e.Bytes()); got != "abcd" {
		t.Fatalf("Bytes() = %q, want %q", got, "abcd")
	}
	if buf[4] != 0 {
		t.Fatalf("terminator at 4 = %#x, want 0", buf[4])
	}
	if got := e.Capacity(); got != 10 {
		t.Fatalf("Capacity() = %d, want 10", got)
	}
}

func TestExcInfoFullIsIdempotent(t *testing.T) {
	buf := make([]byte, 8)
	e := NewExcInfo(nil)
	_ = e.Init(buf)
	e.Appendf("1234567")
	e.SetOffset(100)
	if got := e.Offset(); got != 8 {
		t.Fatalf("SetOffset clamp: Offset() = %d, want 8", got)
	}

	snapshot := append([]byte(nil), buf...)
	for i := 0; i < 3; i++ {
		e.Appendf("more %d", i)
	}
	if got := e.Offset(); got != 8 {
		t.Fatalf("Offset() = %d, want 8", got)
	}
	if !bytes.Equal(buf, snapshot) {
		t.Fatalf("buffer changed while full: %q -> %q", snapshot, buf)
	}
}

func TestExcInfoRegisterArmsIdle(t *testing.T) {
	con := &lineConsole{}
	e := NewExcInfo(con)
	store := newMemStore()
	buf := make([]byte, 64)

	if err := e.Register(0x1000, buf, store); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := e.DumpAddr(); got != 0x1000 {
		t.Fatalf("DumpAddr() = %#x, want 0x1000", got)
	}
	e.Appendf("ignored")
	if got := e.Offset(); got != 64 {
		t.Fatalf("Offset() while idle = %d, want 64", got)
	}

	e.BeginRecord(time.Date(2024, time.March, 5, 7, 8, 9, 0, time.UTC))
	e.Appendf("data abort\n")
	if got := string(e.Bytes()); got != "2024-03-05 07:08:09 \ndata abort\n" {
		t.Fatalf("Bytes() = %q", got)
	}
}

func TestExcInfoRegisterRejectsMissingParts(t *testing.T) {
	con := &lineConsole{}
	e := NewExcInfo(con)

	if err := e.Register(0, nil, newMemStore()); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("Register(nil buf) = %v, want ErrNoBuffer", err)
	}
	if err := e.Register(0, make([]byte, 4), nil); !errors.Is(err, ErrNoDumpStore) {
		t.Fatalf("Register(nil store) = %v, want ErrNoDumpStore", err)
	}
	if lines := con.Lines(); len(lines) != 2 || lines[0] != "[ERR] Buf or hook is null." {
		t.Fatalf("console = %q", lines)
	}
	if got := e.Capacity(); got != 0 {
		t.Fatalf("Capacity() = %d, want 0", got)
	}
}

func TestExcInfoFlushAndReadRecord(t *testing.T) {
	store := newMemStore()
	e := NewExcInfo(nil)
	if err := e.Register(0x20, make([]byte, 32), store); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e.SetOffset(0)
	e.Appendf("pc=%#x", uint32(0x8000))

	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := store.writes[0x20]; string(got) != "pc=0x8000\x00" {
		t.Fatalf("stored = %q", got)
	}

	p := make([]byte, 64)
	n, err := e.ReadRecord(p)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got := string(p[:n]); got != "pc=0x8000" {
		t.Fatalf("ReadRecord() = %q, want %q", got, "pc=0x8000")
	}
}

func TestExcInfoFlushWithoutStore(t *testing.T) {
	e := NewExcInfo(nil)
	if err := e.Flush(); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("Flush() = %v, want ErrNoBuffer", err)
	}
	_ = e.Init(make([]byte, 4))
	if err := e.Flush(); !errors.Is(err, ErrNoDumpStore) {
		t.Fatalf("Flush() = %v, want ErrNoDumpStore", err)
	}
}

func TestRecordLen(t *testing.T) {
	if got := RecordLen([]byte("abc\x00def")); got != 3 {
		t.Fatalf("RecordLen(NUL) = %d, want 3", got)
	}
	if got := RecordLen([]byte{'a', 0xFF, 0xFF}); got != 1 {
		t.Fatalf("RecordLen(erased) = %d, want 1", got)
	}
	if got := RecordLen([]byte("abc")); got != 3 {
		t.Fatalf("RecordLen(full) = %d, want 3", got)
	}
}

type memStore struct {
	mu     sync.Mutex
	writes map[uint32][]byte
}

func newMemStore() *memStore {
	return &memStore{writes: make(map[uint32][]byte)}
}

func (s *memStore) WriteDump(addr uint32, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[addr] = append([]byte(nil), p...)
	return len(p), nil
}

func (s *memStore) ReadDump(addr uint32, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copy(p, s.writes[addr]), nil
}

// nestedAppend appends to e while being formatted, as a fault taken inside
// the formatter would.
type nestedAppend struct{ e *ExcInfo }

func (n nestedAppend) String() string {
	n.e.Appendf("inner")
	return "outer"
}

func TestExcInfoReentrantAppendStaysInBounds(t *testing.T) {
	backing := make([]byte, 48)
	for i := 32; i < len(backing); i++ {
		backing[i] = 0xAA
	}
	e := NewExcInfo(nil)
	_ = e.Init(backing[:32])

	e.Appendf("%v", nestedAppend{e: e})

	if off := e.Offset(); off != 5 {
		t.Fatalf("Offset() = %d, want 5 (inner append)", off)
	}
	if got := e.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1 (outer append lost)", got)
	}
	for i := 32; i < len(backing); i++ {
		if backing[i] != 0xAA {
			t.Fatalf("guard byte %d changed to %#x", i, backing[i])
		}
	}
}

func TestExcInfoConcurrentAppendsStayInBounds(t *testing.T) {
	if raceEnabled {
		t.Skip("appenders share the buffer without locks")
	}
	const capacity = 64
	backing := make([]byte, capacity+16)
	for i := capacity; i < len(backing); i++ {
		backing[i] = 0xAA
	}
	e := NewExcInfo(nil)
	_ = e.Init(backing[:capacity])

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.Appendf("cpu%d:%d;", g, i)
			}
		}(g)
	}
	wg.Wait()

	if off := e.Offset(); off > capacity-1 {
		t.Fatalf("Offset() = %d, want <= %d", off, capacity-1)
	}
	if backing[capacity-1] != 0 {
		t.Fatalf("last byte = %#x, want the reserved NUL", backing[capacity-1])
	}
	for i := capacity; i < len(backing); i++ {
		if backing[i] != 0xAA {
			t.Fatalf("guard byte %d changed to %#x", i, backing[i])
		}
	}

	e.SetOffset(0)
	e.Appendf("ok")
	if got := string(e.Bytes()); got != "ok" {
		t.Fatalf("Bytes() after rewind = %q, want %q", got, "ok")
	}
}

type nestedOverflow struct{ e *ExcInfo }

func (n nestedOverflow) String() string {
	n.e.Appendf("inner")
	return strings.Repeat("x", 64)
}

func TestExcInfoFailedAppendKeepsNewerText(t *testing.T) {
	buf := make([]byte, 32)
	e := NewExcInfo(nil)
	_ = e.Init(buf)

	e.Appendf("%v", nestedOverflow{e: e})

	if off := e.Offset(); off != 5 {
		t.Fatalf("Offset() = %d, want 5", off)
	}
	if buf[0] == 0 {
		t.Fatal("failed append cut the committed text with a terminator")
	}
	if buf[31] != 0 {
		t.Fatalf("last byte = %#x, want the reserved NUL", buf[31])
	}
}

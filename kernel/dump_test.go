package kernel

import (
	"errors"
	"testing"
)

var errNeedsErase = errors.New("write requires erase")

// norFlash behaves like NOR flash: erase sets 0xFF, writes only clear bits.
type norFlash struct {
	mem    []byte
	block  uint32
	erases int
}

func newNORFlash(size, block uint32) *norFlash {
	f := &norFlash{mem: make([]byte, size), block: block}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

func (f *norFlash) SizeBytes() uint32       { return uint32(len(f.mem)) }
func (f *norFlash) EraseBlockBytes() uint32 { return f.block }

func (f *norFlash) ReadAt(p []byte, off uint32) (int, error) {
	return copy(p, f.mem[off:]), nil
}

func (f *norFlash) WriteAt(p []byte, off uint32) (int, error) {
	for i, b := range p {
		if f.mem[int(off)+i]&b != b {
			return 0, errNeedsErase
		}
	}
	return copy(f.mem[off:], p), nil
}

func (f *norFlash) Erase(off, size uint32) error {
	f.erases++
	for i := off; i < off+size; i++ {
		f.mem[i] = 0xFF
	}
	return nil
}

func TestFlashStoreRewritesRecord(t *testing.T) {
	f := newNORFlash(4096, 256)
	s := NewFlashStore(f)

	if _, err := s.WriteDump(512, []byte("first record\x00")); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	if _, err := s.WriteDump(512, []byte("second\x00")); err != nil {
		t.Fatalf("WriteDump over old record: %v", err)
	}

	p := make([]byte, 64)
	n, err := s.ReadDump(512, p)
	if err != nil {
		t.Fatalf("ReadDump: %v", err)
	}
	if got := string(p[:RecordLen(p[:n])]); got != "second" {
		t.Fatalf("record = %q, want %q", got, "second")
	}
	if f.erases != 2 {
		t.Fatalf("erases = %d, want 2", f.erases)
	}
}

func TestFlashStoreErasesOnlyCoveringBlocks(t *testing.T) {
	f := newNORFlash(1024, 256)
	s := NewFlashStore(f)
	f.mem[0] = 'k'
	f.mem[768] = 'k'

	if _, err := s.WriteDump(256, make([]byte, 300)); err != nil {
		t.Fatalf("WriteDump: %v", err)
	}
	if f.mem[0] != 'k' || f.mem[768] != 'k' {
		t.Fatal("WriteDump erased a block outside the record")
	}
}

func TestFlashStoreRejectsBadAddresses(t *testing.T) {
	s := NewFlashStore(newNORFlash(1024, 256))

	if _, err := s.WriteDump(100, []byte("x")); !errors.Is(err, ErrDumpUnaligned) {
		t.Fatalf("WriteDump(unaligned) = %v, want ErrDumpUnaligned", err)
	}
	if _, err := s.WriteDump(768, make([]byte, 300)); !errors.Is(err, ErrDumpRange) {
		t.Fatalf("WriteDump(past end) = %v, want ErrDumpRange", err)
	}
	if _, err := s.ReadDump(2048, make([]byte, 4)); !errors.Is(err, ErrDumpRange) {
		t.Fatalf("ReadDump(past end) = %v, want ErrDumpRange", err)
	}

	none := NewFlashStore(newNORFlash(1024, 0))
	if _, err := none.WriteDump(0, []byte("x")); !errors.Is(err, ErrDumpNoErase) {
		t.Fatalf("WriteDump(no erase size) = %v, want ErrDumpNoErase", err)
	}
}

func TestFlashStoreBackedExcInfo(t *testing.T) {
	f := newNORFlash(8192, 4096)
	e := NewExcInfo(nil)
	if err := e.Register(4096, make([]byte, 128), NewFlashStore(f)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e.SetOffset(0)
	e.Appendf("undefined instruction at %#x", uintptr(0x40001234))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	p := make([]byte, 256)
	n, err := e.ReadRecord(p)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got, want := string(p[:n]), "undefined instruction at 0x40001234"; got != want {
		t.Fatalf("ReadRecord() = %q, want %q", got, want)
	}
}

package kernel

import (
	"errors"
	"fmt"
)

var (
	ErrDumpRange     = errors.New("dump: out of flash range")
	ErrDumpUnaligned = errors.New("dump: address not on an erase block")
	ErrDumpNoErase   = errors.New("dump: flash reports no erase block size")
)

// Flash is raw non-volatile memory addressed by offset.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// FlashStore keeps exception records in flash.
//
// Dump addresses must start an erase block; a write erases every block it
// touches first.
type FlashStore struct {
	flash Flash
}

// NewFlashStore returns a dump store backed by f.
func NewFlashStore(f Flash) *FlashStore {
	return &FlashStore{flash: f}
}

func (s *FlashStore) check(addr uint32, n int) error {
	size := s.flash.SizeBytes()
	if addr >= size || uint64(addr)+uint64(n) > uint64(size) {
		return fmt.Errorf("%w: addr=%#x len=%d size=%d", ErrDumpRange, addr, n, size)
	}
	return nil
}

// WriteDump erases the blocks covering p and writes it at addr.
func (s *FlashStore) WriteDump(addr uint32, p []byte) (int, error) {
	bs := s.flash.EraseBlockBytes()
	if bs == 0 {
		return 0, ErrDumpNoErase
	}
	if addr%bs != 0 {
		return 0, fmt.Errorf("%w: addr=%#x block=%d", ErrDumpUnaligned, addr, bs)
	}
	if err := s.check(addr, len(p)); err != nil {
		return 0, err
	}

	span := (uint32(len(p)) + bs - 1) / bs * bs
	if size := s.flash.SizeBytes(); addr+span > size {
		span = size - addr
	}
	if err := s.flash.Erase(addr, span); err != nil {
		return 0, fmt.Errorf("dump erase at %#x: %w", addr, err)
	}
	n, err := s.flash.WriteAt(p, addr)
	if err != nil {
		return n, fmt.Errorf("dump write at %#x: %w", addr, err)
	}
	return n, nil
}

// ReadDump reads raw bytes at addr.
func (s *FlashStore) ReadDump(addr uint32, p []byte) (int, error) {
	if err := s.check(addr, 0); err != nil {
		return 0, err
	}
	if room := s.flash.SizeBytes() - addr; uint64(len(p)) > uint64(room) {
		p = p[:room]
	}
	n, err := s.flash.ReadAt(p, addr)
	if err != nil {
		return n, fmt.Errorf("dump read at %#x: %w", addr, err)
	}
	return n, nil
}

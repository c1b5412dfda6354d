//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath      = "smpboot.flash"
	hostFlashDefaultSizeBytes = 1024 * 1024
	hostFlashEraseBlockBytes  = 4096

	// FlashPathEnv overrides the default host flash image path.
	FlashPathEnv = "SMPBOOT_FLASH_PATH"
)

var ErrFlashWriteRequiresErase = errors.New("flash write requires erase")

// HostFlash is NOR-like flash backed by a file: erase fills blocks with 0xFF
// and writes may only clear bits.
type HostFlash struct {
	mu    sync.Mutex
	f     *os.File
	size  uint32
	erase [hostFlashEraseBlockBytes]byte
}

// FlashPath resolves the flash image path: path, then $SMPBOOT_FLASH_PATH,
// then smpboot.flash in the working directory.
func FlashPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(FlashPathEnv); env != "" {
		return env
	}
	return hostFlashDefaultPath
}

// OpenHostFlash opens (creating if needed) the flash image at FlashPath(path).
// A new image is sized to 1 MiB of erased blocks.
func OpenHostFlash(path string) (*HostFlash, error) {
	path = FlashPath(path)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash %s: %w", path, err)
	}

	hf := &HostFlash{f: f, size: hostFlashDefaultSizeBytes}
	for i := range hf.erase {
		hf.erase[i] = 0xFF
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash %s: %w", path, err)
	}
	switch {
	case st.Size() > int64(^uint32(0)):
		_ = f.Close()
		return nil, fmt.Errorf("flash %s: image too large (%d bytes)", path, st.Size())
	case st.Size() > 0:
		hf.size = uint32(st.Size())
	default:
		for off := uint32(0); off < hf.size; off += hostFlashEraseBlockBytes {
			if _, err := f.WriteAt(hf.erase[:], int64(off)); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("format flash %s: %w", path, err)
			}
		}
	}
	return hf, nil
}

func (f *HostFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *HostFlash) SizeBytes() uint32       { return f.size }
func (f *HostFlash) EraseBlockBytes() uint32 { return hostFlashEraseBlockBytes }

func (f *HostFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, os.ErrClosed
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	if room := int(f.size - off); len(p) > room {
		p = p[:room]
	}
	n, err := f.f.ReadAt(p, int64(off))
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

func (f *HostFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, os.ErrClosed
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	if room := int(f.size - off); len(p) > room {
		p = p[:room]
	}

	cur := make([]byte, len(p))
	if _, err := f.f.ReadAt(cur, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if cur[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *HostFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return os.ErrClosed
	}
	if size == 0 {
		return nil
	}
	if off%hostFlashEraseBlockBytes != 0 || size%hostFlashEraseBlockBytes != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	if uint64(off)+uint64(size) > uint64(f.size) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}

	for ; size > 0; size -= hostFlashEraseBlockBytes {
		if _, err := f.f.WriteAt(f.erase[:], int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += hostFlashEraseBlockBytes
	}
	return nil
}

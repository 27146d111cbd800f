package hal

import (
	"fmt"
	"os"
	"sync"
)

// MemFlash is a RAM-backed Flash with NOR semantics: writes only clear bits
// and erases work on whole blocks. Used by tests and by tools that build
// images before writing them out.
type MemFlash struct {
	mu    sync.Mutex
	buf   []byte
	block uint32
	// FailWrites makes every write fail, to exercise error paths.
	FailWrites bool
}

func NewMemFlash(size, block uint32) *MemFlash {
	f := &MemFlash{buf: make([]byte, size), block: block}
	for i := range f.buf {
		f.buf[i] = 0xFF
	}
	return f
}

func (f *MemFlash) SizeBytes() uint32       { return uint32(len(f.buf)) }
func (f *MemFlash) EraseBlockBytes() uint32 { return f.block }

// Bytes returns the raw image.
func (f *MemFlash) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.buf))
	copy(out, f.buf)
	return out
}

func (f *MemFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= uint32(len(f.buf)) {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	return copy(p, f.buf[off:]), nil
}

func (f *MemFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWrites {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrPermission)
	}
	if off >= uint32(len(f.buf)) || int(off)+len(p) > len(f.buf) {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	for i, b := range p {
		if f.buf[int(off)+i]&b != b {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return copy(f.buf[off:], p), nil
}

func (f *MemFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off%f.block != 0 || size%f.block != 0 || off+size > uint32(len(f.buf)) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	for i := off; i < off+size; i++ {
		f.buf[i] = 0xFF
	}
	return nil
}

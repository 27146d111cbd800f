package macro

import (
	"bytes"
	"fmt"
	"sync"
)

// Book is the macro buffer shared by the executor, the host protocol and
// storage.
type Book struct {
	mu  sync.RWMutex
	buf []byte
}

// NewBook allocates a zeroed buffer of size bytes.
func NewBook(size int) *Book {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Book{buf: make([]byte, size)}
}

func (b *Book) Size() int { return len(b.buf) }

// Bytes returns a copy of the whole buffer.
func (b *Book) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return bytes.Clone(b.buf)
}

// ReadAt copies buffer bytes starting at off into p.
func (b *Book) ReadAt(p []byte, off int) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if off < 0 || off > len(b.buf) {
		return 0, fmt.Errorf("%w: offset %d", ErrTooLarge, off)
	}
	return copy(p, b.buf[off:]), nil
}

// WriteAt replaces buffer bytes starting at off.
func (b *Book) WriteAt(p []byte, off int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || off+len(p) > len(b.buf) {
		return fmt.Errorf("%w: %d bytes at %d", ErrTooLarge, len(p), off)
	}
	copy(b.buf[off:], p)
	return nil
}

// Load replaces the buffer contents, zero-filling the tail.
func (b *Book) Load(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(data) > len(b.buf) {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	clear(b.buf)
	copy(b.buf, data)
	return nil
}

// SetMacros encodes each macro into its slot, in order.
func (b *Book) SetMacros(macros [][]Op) error {
	if len(macros) > NumSlots {
		return fmt.Errorf("%w: %d macros", ErrSlot, len(macros))
	}
	var out []byte
	for _, m := range macros {
		enc, err := Encode(m)
		if err != nil {
			return err
		}
		out = append(out, enc...)
		out = append(out, 0)
	}
	return b.Load(out)
}

// Slot copies macro i (without its terminator) into dst.
func (b *Book) Slot(i int, dst []byte) (int, error) {
	if i < 0 || i >= NumSlots {
		return 0, fmt.Errorf("%w: %d", ErrSlot, i)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	start := 0
	for n := 0; n < i; n++ {
		end := bytes.IndexByte(b.buf[start:], 0)
		if end < 0 {
			return 0, nil
		}
		start += end + 1
	}
	end := bytes.IndexByte(b.buf[start:], 0)
	if end < 0 {
		end = len(b.buf) - start
	}
	if end > len(dst) {
		return 0, fmt.Errorf("%w: macro %d is %d bytes", ErrTooLarge, i, end)
	}
	return copy(dst, b.buf[start:start+end]), nil
}

// Macro decodes slot i.
func (b *Book) Macro(i int) ([]Op, error) {
	buf := make([]byte, len(b.buf))
	n, err := b.Slot(i, buf)
	if err != nil {
		return nil, err
	}
	return Decode(buf[:n])
}

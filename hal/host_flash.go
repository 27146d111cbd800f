//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	hostFlashDefaultSizeBytes = 256 * 1024
	hostFlashEraseBlockBytes  = 4096
)

// FileFlash is a MemFlash mirrored to a file. Every write and erase is
// written through, so the image survives restarts and can be flashed as is.
type FileFlash struct {
	*MemFlash
	f *os.File
}

// OpenFileFlash opens or creates the image at path. An existing image keeps
// its own size; a new one is size bytes of erased flash.
func OpenFileFlash(path string, size, block uint32) (*FileFlash, error) {
	if block == 0 || size == 0 || size%block != 0 {
		return nil, fmt.Errorf("flash: size %d not a multiple of erase block %d", size, block)
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("flash: %w", err)
	}
	if len(data) > 0 {
		if uint64(len(data)) > uint64(^uint32(0)) || uint32(len(data))%block != 0 {
			return nil, fmt.Errorf("flash: %s: bad image size %d", path, len(data))
		}
		size = uint32(len(data))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash: %w", err)
	}
	ff := &FileFlash{MemFlash: NewMemFlash(size, block), f: f}
	if len(data) > 0 {
		copy(ff.buf, data)
		return ff, nil
	}
	if err := ff.flush(0, size); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ff, nil
}

// CreateFileFlash replaces whatever is at path with an erased image.
func CreateFileFlash(path string, size, block uint32) (*FileFlash, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("flash: %w", err)
	}
	return OpenFileFlash(path, size, block)
}

func (f *FileFlash) WriteAt(p []byte, off uint32) (int, error) {
	n, err := f.MemFlash.WriteAt(p, off)
	if n > 0 {
		if ferr := f.flush(off, uint32(n)); err == nil {
			err = ferr
		}
	}
	return n, err
}

func (f *FileFlash) Erase(off, size uint32) error {
	if err := f.MemFlash.Erase(off, size); err != nil {
		return err
	}
	return f.flush(off, size)
}

func (f *FileFlash) Close() error { return f.f.Close() }

func (f *FileFlash) flush(off, n uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.f.WriteAt(f.buf[off:off+n], int64(off)); err != nil {
		return fmt.Errorf("flash: write through at %d: %w", off, err)
	}
	return nil
}

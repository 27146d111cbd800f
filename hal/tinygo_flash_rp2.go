//go:build tinygo && baremetal && (rp2040 || rp2350)

package hal

import (
	"fmt"
	"machine"
)

// rp2Flash is the part of the QSPI flash TinyGo leaves after the program
// image. Offsets are relative to that region.
type rp2Flash struct {
	size  uint32
	block uint32
}

func newBoardFlash() Flash {
	size, block := machine.Flash.Size(), machine.Flash.EraseBlockSize()
	if size <= 0 || block <= 0 || size > int64(^uint32(0)) {
		return nullFlash{}
	}
	return rp2Flash{size: uint32(size), block: uint32(block)}
}

func (f rp2Flash) SizeBytes() uint32       { return f.size }
func (f rp2Flash) EraseBlockBytes() uint32 { return f.block }

func (f rp2Flash) ReadAt(p []byte, off uint32) (int, error) {
	if uint64(off)+uint64(len(p)) > uint64(f.size) {
		return 0, fmt.Errorf("flash read %d at %d: out of range", len(p), off)
	}
	n, err := machine.Flash.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (f rp2Flash) WriteAt(p []byte, off uint32) (int, error) {
	if uint64(off)+uint64(len(p)) > uint64(f.size) {
		return 0, fmt.Errorf("flash write %d at %d: out of range", len(p), off)
	}
	n, err := machine.Flash.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (f rp2Flash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	if off%f.block != 0 || size%f.block != 0 || uint64(off)+uint64(size) > uint64(f.size) {
		return fmt.Errorf("flash erase off=%d size=%d: unaligned or out of range", off, size)
	}
	return machine.Flash.EraseBlocks(int64(off/f.block), int64(size/f.block))
}

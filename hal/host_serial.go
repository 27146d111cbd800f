//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
)

// SerialFile is a split link on the host: a pty, FIFO or character device.
// Concurrent writes go out whole so frames never interleave.
type SerialFile struct {
	wmu sync.Mutex
	f   *os.File
}

func OpenSerialFile(path string) (*SerialFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("split link: %w", err)
	}
	return &SerialFile{f: f}, nil
}

func (s *SerialFile) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *SerialFile) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.f.Write(p)
}

func (s *SerialFile) Close() error { return s.f.Close() }

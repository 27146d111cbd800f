//go:build !tinygo

package hal

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostFlashPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rmk.flash")
	h, err := NewHost(HostOptions{Rows: 1, Cols: 1, FlashPath: path, FlashSize: 8192})
	require.NoError(t, err)
	_, err = h.Flash().WriteAt([]byte("rmk"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = NewHost(HostOptions{Rows: 1, Cols: 1, FlashPath: path, FlashSize: 8192})
	require.NoError(t, err)
	defer h.Close()
	b := make([]byte, 4)
	_, err = h.Flash().ReadAt(b, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{'r', 'm', 'k', 0xFF}, b)
}

func TestFileFlashWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.bin")
	f, err := CreateFileFlash(path, 8192, 4096)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x12, 0x34}, 4096)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 8192)
	assert.Equal(t, []byte{0x12, 0x34, 0xFF}, data[4096:4099])

	require.NoError(t, f.Erase(4096, 4096))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), data[4096])
	require.NoError(t, f.Close())

	// The existing image wins over the requested size.
	f, err = OpenFileFlash(path, 4096, 4096)
	require.NoError(t, err)
	assert.Equal(t, uint32(8192), f.SizeBytes())
	require.NoError(t, f.Close())

	_, err = OpenFileFlash(path, 8192, 3000)
	assert.Error(t, err)
}

func TestHostGPIOExposesMatrix(t *testing.T) {
	h, err := NewHost(HostOptions{Rows: 2, Cols: 3, RowDriven: true})
	require.NoError(t, err)
	defer h.Close()
	// LED, two row outputs, three column inputs.
	assert.Equal(t, 6, h.GPIO().PinCount())
	assert.Equal(t, "LED", h.GPIO().Pin(0).Name())
	assert.Same(t, h.Matrix().Outputs()[0], h.GPIO().Pin(1))
}

func TestUDPRawHIDRepliesToSender(t *testing.T) {
	raw, err := listenRawHID("127.0.0.1:0")
	require.NoError(t, err)
	defer raw.Close()

	assert.ErrorIs(t, raw.Send([]byte{1}), ErrNotImplemented)

	c, err := net.Dial("udp", raw.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	pkt := make([]byte, 32)
	n, err := raw.Recv(pkt)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	require.NoError(t, raw.Send([]byte{0x02, 0x03}))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	got := make([]byte, 32)
	n, err = c.Read(got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x03}, got[:n])
}

func TestRunHeadlessStopsAfterTicks(t *testing.T) {
	h, err := NewHost(HostOptions{Rows: 1, Cols: 1})
	require.NoError(t, err)
	defer h.Close()

	steps := 0
	err = RunHeadless(context.Background(), h, HeadlessConfig{Hz: 1000, Ticks: 5}, func() error {
		steps++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, steps)
	assert.NotEmpty(t, h.Time().Ticks())
}

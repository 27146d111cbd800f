// Package split links the halves of a split keyboard. Peripherals forward
// their debounced key, encoder and axis events; the central maps them into
// its own matrix and publishes them on the core event bus.
//
// Frames are COBS-encoded so 0x00 only appears as the delimiter:
//
//	cobs(u16 kind | payload | u32 crc32) 0x00
package split

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"rmk/firmware/proto"
)

// MaxFrame bounds an encoded frame, delimiter included.
const MaxFrame = 64

var ErrFrame = errors.New("split: bad frame")

func cobsEncode(dst, src []byte) []byte {
	code := byte(1)
	at := len(dst)
	dst = append(dst, 0)
	for _, b := range src {
		if b != 0 {
			dst = append(dst, b)
			code++
			if code != 0xFF {
				continue
			}
		}
		dst[at] = code
		code = 1
		at = len(dst)
		dst = append(dst, 0)
	}
	dst[at] = code
	return dst
}

func cobsDecode(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); {
		code := int(src[i])
		if code == 0 {
			return nil, fmt.Errorf("%w: zero in body", ErrFrame)
		}
		i++
		end := i + code - 1
		if end > len(src) {
			return nil, fmt.Errorf("%w: truncated block", ErrFrame)
		}
		dst = append(dst, src[i:end]...)
		i = end
		if code < 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}

// Link sends and receives frames over a byte stream. Send is safe for
// concurrent use; Recv must have a single caller.
type Link struct {
	r  *bufio.Reader
	w  io.Writer
	c  io.Closer
	mu sync.Mutex
}

func NewLink(rw io.ReadWriter) *Link {
	l := &Link{r: bufio.NewReaderSize(rw, MaxFrame), w: rw}
	l.c, _ = rw.(io.Closer)
	return l
}

func (l *Link) Send(kind proto.Kind, payload []byte) error {
	body := proto.Encode(kind, payload)
	body = binary.LittleEndian.AppendUint32(body, crc32.ChecksumIEEE(body))
	frame := cobsEncode(make([]byte, 0, MaxFrame), body)
	frame = append(frame, 0)
	if len(frame) > MaxFrame {
		return fmt.Errorf("%w: %s is %d bytes", ErrFrame, kind, len(frame))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(frame); err != nil {
		return fmt.Errorf("split send %s: %w", kind, err)
	}
	return nil
}

// Recv returns the next frame. A damaged frame yields ErrFrame and the link
// stays usable; any other error is from the stream.
func (l *Link) Recv() (proto.Message, error) {
	raw, err := l.r.ReadSlice(0)
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = l.r.ReadSlice(0)
		}
		if err != nil {
			return proto.Message{}, err
		}
		return proto.Message{}, fmt.Errorf("%w: oversized", ErrFrame)
	}
	if err != nil {
		return proto.Message{}, err
	}
	body, err := cobsDecode(nil, raw[:len(raw)-1])
	if err != nil {
		return proto.Message{}, err
	}
	if len(body) < 6 {
		return proto.Message{}, fmt.Errorf("%w: short", ErrFrame)
	}
	n := len(body) - 4
	if binary.LittleEndian.Uint32(body[n:]) != crc32.ChecksumIEEE(body[:n]) {
		return proto.Message{}, fmt.Errorf("%w: checksum", ErrFrame)
	}
	msg, _ := proto.Decode(body[:n])
	return msg, nil
}

// Close closes the stream when it can be closed, unblocking Recv.
func (l *Link) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}

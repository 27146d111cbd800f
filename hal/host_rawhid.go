//go:build !tinygo

package hal

import (
	"fmt"
	"net"
	"sync"
)

// udpRawHID stands in for the raw HID endpoint: each datagram is one
// packet, and replies go to whoever sent the last one.
type udpRawHID struct {
	conn net.PacketConn

	mu   sync.Mutex
	peer net.Addr
}

func listenRawHID(addr string) (*udpRawHID, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("raw hid: %w", err)
	}
	return &udpRawHID{conn: conn}, nil
}

func (u *udpRawHID) Recv(pkt []byte) (int, error) {
	n, from, err := u.conn.ReadFrom(pkt)
	if err != nil {
		return 0, err
	}
	u.mu.Lock()
	u.peer = from
	u.mu.Unlock()
	return n, nil
}

func (u *udpRawHID) Send(pkt []byte) error {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("raw hid: %w: no host yet", ErrNotImplemented)
	}
	_, err := u.conn.WriteTo(pkt, peer)
	return err
}

func (u *udpRawHID) Close() error { return u.conn.Close() }

// Addr is the bound address, for tests that listen on port 0.
func (u *udpRawHID) Addr() net.Addr { return u.conn.LocalAddr() }

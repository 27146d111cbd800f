// Package storage is the request helper for the storage service. Every call
// blocks until the service has committed the write or reported why it could
// not.
package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"rmk/firmware/proto"
	"rmk/firmware/storage"
)

// Request is one flash operation queued to the storage service.
type Request struct {
	Msg   proto.Message
	Reply chan<- proto.Message
}

// Error is a failed request as reported by the service.
type Error struct {
	Op   proto.Kind
	Code proto.ErrCode
}

func (e *Error) Error() string { return fmt.Sprintf("storage %s: %s", e.Op, e.Code) }

// Is matches the store sentinel the service code was derived from.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case proto.ErrNotFound:
		return target == storage.ErrNotFound
	case proto.ErrFull:
		return target == storage.ErrFull
	case proto.ErrTooLarge:
		return target == storage.ErrTooLarge
	case proto.ErrCorrupt:
		return target == storage.ErrCorrupt
	}
	return false
}

// Client sends requests over a bounded queue shared by all writers.
type Client struct {
	queue  chan<- Request
	nextID atomic.Uint32
}

func New(queue chan<- Request) *Client {
	return &Client{queue: queue}
}

// Put stores v under key.
func (c *Client) Put(ctx context.Context, key uint32, v storage.Value) error {
	id := c.id()
	return c.do(ctx, id, proto.Message{Kind: proto.MsgFlashPut, Payload: proto.FlashPutPayload(id, key, storage.Marshal(v))})
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key uint32) error {
	id := c.id()
	return c.do(ctx, id, proto.Message{Kind: proto.MsgFlashDelete, Payload: proto.FlashKeyPayload(id, key)})
}

// ClearLayout drops the stored layout and keeps pairing data.
func (c *Client) ClearLayout(ctx context.Context) error {
	id := c.id()
	return c.do(ctx, id, proto.Message{Kind: proto.MsgFlashClearLayout, Payload: proto.FlashRequestPayload(id)})
}

// EraseAll wipes the store; the next boot starts from compiled-in defaults.
func (c *Client) EraseAll(ctx context.Context) error {
	id := c.id()
	return c.do(ctx, id, proto.Message{Kind: proto.MsgFlashEraseAll, Payload: proto.FlashRequestPayload(id)})
}

func (c *Client) id() uint32 {
	id := c.nextID.Add(1)
	if id == 0 {
		id = c.nextID.Add(1)
	}
	return id
}

func (c *Client) do(ctx context.Context, id uint32, msg proto.Message) error {
	reply := make(chan proto.Message, 1)
	select {
	case c.queue <- Request{Msg: msg, Reply: reply}:
	case <-ctx.Done():
		return fmt.Errorf("storage %s send: %w", msg.Kind, ctx.Err())
	}
	select {
	case r := <-reply:
		switch r.Kind {
		case proto.MsgFlashResp:
			rid, code, ok := proto.DecodeFlashRespPayload(r.Payload)
			if !ok || rid != id {
				return &Error{Op: msg.Kind, Code: proto.ErrBadMessage}
			}
			if code != proto.ErrNone {
				return &Error{Op: msg.Kind, Code: code}
			}
			return nil
		case proto.MsgError:
			code, _, _, ok := proto.DecodeErrorPayload(r.Payload)
			if !ok {
				code = proto.ErrBadMessage
			}
			return &Error{Op: msg.Kind, Code: code}
		default:
			return &Error{Op: msg.Kind, Code: proto.ErrBadMessage}
		}
	case <-ctx.Done():
		return fmt.Errorf("storage %s reply: %w", msg.Kind, ctx.Err())
	}
}

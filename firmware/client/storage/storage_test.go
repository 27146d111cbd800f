package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/proto"
	"rmk/firmware/storage"
)

// serve answers each request with the result of reply.
func serve(t *testing.T, queue <-chan Request, reply func(proto.Message) proto.Message) {
	t.Helper()
	go func() {
		for req := range queue {
			req.Reply <- reply(req.Msg)
		}
	}()
}

func TestPutSucceeds(t *testing.T) {
	queue := make(chan Request, 1)
	defer close(queue)
	var got uint32
	serve(t, queue, func(m proto.Message) proto.Message {
		id, key, _, ok := proto.DecodeFlashPutPayload(m.Payload)
		if !ok {
			return proto.Message{Kind: proto.MsgError, Payload: proto.ErrorPayload(proto.ErrBadMessage, m.Kind, nil)}
		}
		got = key
		return proto.Message{Kind: proto.MsgFlashResp, Payload: proto.FlashRespPayload(id, proto.ErrNone)}
	})

	c := New(queue)
	require.NoError(t, c.Put(context.Background(), 42, &storage.LayoutConfig{DefaultLayer: 1}))
	assert.Equal(t, uint32(42), got)
}

func TestServiceCodesMatchStoreErrors(t *testing.T) {
	queue := make(chan Request, 1)
	defer close(queue)
	serve(t, queue, func(m proto.Message) proto.Message {
		id, _, _ := proto.DecodeFlashKeyPayload(m.Payload)
		return proto.Message{Kind: proto.MsgFlashResp, Payload: proto.FlashRespPayload(id, proto.ErrFull)}
	})

	err := New(queue).Delete(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrFull)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, proto.MsgFlashDelete, serr.Op)
}

func TestMismatchedReplyIsBadMessage(t *testing.T) {
	queue := make(chan Request, 1)
	defer close(queue)
	serve(t, queue, func(m proto.Message) proto.Message {
		return proto.Message{Kind: proto.MsgFlashResp, Payload: proto.FlashRespPayload(999, proto.ErrNone)}
	})

	err := New(queue).EraseAll(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, proto.ErrBadMessage, serr.Code)
}

func TestCanceledWhileQueueFull(t *testing.T) {
	queue := make(chan Request)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := New(queue).ClearLayout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Package storage runs the storage task: the single writer of the flash
// store. Requests arrive on a bounded queue and each one is answered after
// the write has been committed.
package storage

import (
	"context"
	"errors"
	"log/slog"

	client "rmk/firmware/client/storage"
	"rmk/firmware/proto"
	"rmk/firmware/storage"
)

// DefaultQueueDepth bounds outstanding write requests.
const DefaultQueueDepth = 8

type Service struct {
	store *storage.Store
	queue <-chan client.Request
	log   *slog.Logger
	// OnReset is called after EraseAll so the owner can flag a first boot.
	OnReset func()
}

func New(store *storage.Store, queue <-chan client.Request, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, queue: queue, log: log}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-s.queue:
			if !ok {
				return nil
			}
			s.Step(req)
		}
	}
}

// Step handles one request and sends its reply.
func (s *Service) Step(req client.Request) {
	id, code := s.handle(req.Msg)
	var reply proto.Message
	if code == proto.ErrBadMessage {
		reply = proto.Message{Kind: proto.MsgError, Payload: proto.ErrorPayload(code, req.Msg.Kind, nil)}
	} else {
		reply = proto.Message{Kind: proto.MsgFlashResp, Payload: proto.FlashRespPayload(id, code)}
	}
	if req.Reply == nil {
		return
	}
	select {
	case req.Reply <- reply:
	default:
		s.log.Warn("storage reply dropped", "op", req.Msg.Kind)
	}
}

func (s *Service) handle(msg proto.Message) (uint32, proto.ErrCode) {
	switch msg.Kind {
	case proto.MsgFlashPut:
		id, key, val, ok := proto.DecodeFlashPutPayload(msg.Payload)
		if !ok {
			return 0, proto.ErrBadMessage
		}
		if _, err := storage.Unmarshal(val); err != nil {
			s.log.Warn("storage rejected value", "key", key, "err", err)
			return id, proto.ErrBadMessage
		}
		return id, s.result(msg.Kind, s.store.Put(key, val))
	case proto.MsgFlashDelete:
		id, key, ok := proto.DecodeFlashKeyPayload(msg.Payload)
		if !ok {
			return 0, proto.ErrBadMessage
		}
		return id, s.result(msg.Kind, s.store.Delete(key))
	case proto.MsgFlashClearLayout:
		id, ok := proto.DecodeFlashRequestPayload(msg.Payload)
		if !ok {
			return 0, proto.ErrBadMessage
		}
		s.log.Warn("clearing stored layout")
		return id, s.result(msg.Kind, s.store.ClearLayout())
	case proto.MsgFlashEraseAll:
		id, ok := proto.DecodeFlashRequestPayload(msg.Payload)
		if !ok {
			return 0, proto.ErrBadMessage
		}
		s.log.Warn("erasing storage")
		code := s.result(msg.Kind, s.store.EraseAll())
		if code == proto.ErrNone && s.OnReset != nil {
			s.OnReset()
		}
		return id, code
	default:
		return 0, proto.ErrBadMessage
	}
}

func (s *Service) result(op proto.Kind, err error) proto.ErrCode {
	if err == nil {
		return proto.ErrNone
	}
	s.log.Error("storage write failed", "op", op, "err", err)
	return CodeOf(err)
}

// CodeOf maps a store error to its wire code.
func CodeOf(err error) proto.ErrCode {
	switch {
	case err == nil:
		return proto.ErrNone
	case errors.Is(err, storage.ErrNotFound):
		return proto.ErrNotFound
	case errors.Is(err, storage.ErrFull):
		return proto.ErrFull
	case errors.Is(err, storage.ErrTooLarge):
		return proto.ErrTooLarge
	case errors.Is(err, storage.ErrCorrupt):
		return proto.ErrCorrupt
	default:
		return proto.ErrInternal
	}
}

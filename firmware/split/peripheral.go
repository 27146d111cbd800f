package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	client "rmk/firmware/client/storage"
	"rmk/firmware/event"
	"rmk/firmware/proto"
	"rmk/firmware/storage"
)

type PeripheralConfig struct {
	ID   uint8
	Addr [6]byte
	Rows uint8
	Cols uint8
	Link *Link
	// Events are this half's debounced inputs.
	Events *event.Subscriber[event.KeyEvent]
	// Central is the stored central address, zero when never paired.
	Central [6]byte
	// Store persists the central address; nil keeps it in RAM only.
	Store *client.Client
	// Status follows the layer and connection state the central pushes.
	Status *event.Watch[event.Status]
	Log    *slog.Logger
}

type Peripheral struct {
	cfg     PeripheralConfig
	log     *slog.Logger
	mu      sync.Mutex
	central [6]byte
}

func NewPeripheral(cfg PeripheralConfig) *Peripheral {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Peripheral{cfg: cfg, log: cfg.Log, central: cfg.Central}
}

// Central is the address of the central this half is paired with.
func (p *Peripheral) Central() [6]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.central
}

func (p *Peripheral) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { p.cfg.Link.Close() })
	defer stop()
	g.Go(func() error { return p.forward(ctx) })
	g.Go(func() error { return p.listen(ctx) })
	return g.Wait()
}

func (p *Peripheral) forward(ctx context.Context) error {
	hello := proto.HelloPayload(p.cfg.ID, p.cfg.Addr, p.cfg.Rows, p.cfg.Cols)
	if err := p.cfg.Link.Send(proto.MsgSplitHello, hello); err != nil {
		return err
	}
	for {
		ev, err := p.cfg.Events.Recv(ctx)
		if err != nil {
			return err
		}
		if err := p.send(ev); err != nil {
			return err
		}
	}
}

func (p *Peripheral) send(ev event.KeyEvent) error {
	switch ev.Pos.Kind {
	case event.PosKey:
		k := ev.Pos.Key
		return p.cfg.Link.Send(proto.MsgSplitKey, proto.KeyPayload(k.Row, k.Col, ev.Pressed))
	case event.PosEncoder:
		// One frame per detent; the central synthesizes the release.
		if !ev.Pressed {
			return nil
		}
		return p.cfg.Link.Send(proto.MsgSplitEncoder, proto.EncoderPayload(ev.Pos.ID, uint8(ev.Pos.Dir)))
	case event.PosAxis:
		return p.cfg.Link.Send(proto.MsgSplitAxis, proto.AxisPayload(ev.Pos.ID, uint8(ev.Pos.Axis), ev.Value))
	}
	return nil
}

func (p *Peripheral) listen(ctx context.Context) error {
	for {
		msg, err := p.cfg.Link.Recv()
		switch {
		case errors.Is(err, ErrFrame):
			p.log.Warn("split: dropped frame", "err", err)
			continue
		case errors.Is(err, io.EOF):
			return fmt.Errorf("split: central closed link: %w", err)
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		p.handle(ctx, msg)
	}
}

func (p *Peripheral) handle(ctx context.Context, msg proto.Message) {
	switch msg.Kind {
	case proto.MsgSplitHelloAck:
		_, addr, _, _, ok := proto.DecodeHelloPayload(msg.Payload)
		if !ok || addr == p.Central() {
			return
		}
		p.log.Info("split: paired", "central", addr)
		p.mu.Lock()
		p.central = addr
		p.mu.Unlock()
		if p.cfg.Store != nil {
			v := &storage.PeerAddress{Peer: 0, Addr: addr}
			if err := p.cfg.Store.Put(ctx, storage.PeerKey(0), v); err != nil {
				p.log.Error("split: save central", "err", err)
			}
		}
	case proto.MsgSplitLayerState:
		layer, mask, ok := proto.DecodeLayerStatePayload(msg.Payload)
		if ok && p.cfg.Status != nil {
			p.cfg.Status.Update(func(s *event.Status) {
				s.Layer = layer
				s.ActiveLayers = mask
			})
		}
	case proto.MsgSplitConnState:
		conn, _, ok := proto.DecodeConnStatePayload(msg.Payload)
		if ok && p.cfg.Status != nil {
			p.cfg.Status.Update(func(s *event.Status) { s.Connection = event.ConnectionType(conn) })
		}
	case proto.MsgError:
		code, ref, _, _ := proto.DecodeErrorPayload(msg.Payload)
		p.log.Warn("split: central rejected message", "kind", ref, "code", code)
	}
}

package split

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	client "rmk/firmware/client/storage"
	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/proto"
	"rmk/firmware/storage"
)

// Peer is one peripheral as seen from the central. Its keys land at
// (row+RowOffset, col+ColOffset) in the merged matrix.
type Peer struct {
	ID            uint8
	Link          *Link
	RowOffset     uint8
	ColOffset     uint8
	EncoderOffset uint8
}

type CentralConfig struct {
	Addr   [6]byte
	Peers  []Peer
	Events *event.Channel[event.KeyEvent]
	Clock  clock.Clock
	// Notify receives peer connect and disconnect changes.
	Notify func(event.Controller)
	// Store persists peer addresses; nil keeps them in RAM only.
	Store *client.Client
	Log   *slog.Logger
}

type Central struct {
	cfg CentralConfig
	log *slog.Logger
}

func NewCentral(cfg CentralConfig) *Central {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Notify == nil {
		cfg.Notify = func(event.Controller) {}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}
	return &Central{cfg: cfg, log: cfg.Log}
}

// Run reads every peer until ctx ends or a link fails.
func (c *Central) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() {
		for i := range c.cfg.Peers {
			c.cfg.Peers[i].Link.Close()
		}
	})
	defer stop()
	for i := range c.cfg.Peers {
		p := &c.cfg.Peers[i]
		g.Go(func() error { return c.serve(ctx, p) })
	}
	return g.Wait()
}

func (c *Central) serve(ctx context.Context, p *Peer) error {
	defer c.cfg.Notify(event.Controller{Kind: event.CtrlPeer, Value: p.ID})
	for {
		msg, err := p.Link.Recv()
		switch {
		case errors.Is(err, ErrFrame):
			c.log.Warn("split: dropped frame", "peer", p.ID, "err", err)
			continue
		case errors.Is(err, io.EOF):
			c.log.Info("split: peer gone", "peer", p.ID)
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.handle(ctx, p, msg); err != nil {
			return err
		}
	}
}

func (c *Central) handle(ctx context.Context, p *Peer, msg proto.Message) error {
	now := c.cfg.Clock.Now()
	switch msg.Kind {
	case proto.MsgSplitHello:
		id, addr, _, _, ok := proto.DecodeHelloPayload(msg.Payload)
		if !ok || id != p.ID {
			c.log.Warn("split: bad hello", "peer", p.ID, "id", id)
			return nil
		}
		c.log.Info("split: peer connected", "peer", p.ID, "addr", addr)
		if c.cfg.Store != nil {
			v := &storage.PeerAddress{Peer: id, Addr: addr}
			if err := c.cfg.Store.Put(ctx, storage.PeerKey(int(id)), v); err != nil {
				c.log.Error("split: save peer", "peer", id, "err", err)
			}
		}
		c.cfg.Notify(event.Controller{Kind: event.CtrlPeer, On: true, Value: p.ID})
		return p.Link.Send(proto.MsgSplitHelloAck, proto.HelloPayload(0, c.cfg.Addr, 0, 0))
	case proto.MsgSplitKey:
		row, col, pressed, ok := proto.DecodeKeyPayload(msg.Payload)
		if !ok {
			return c.bad(p, msg)
		}
		ev := event.KeyEvent{Pos: event.Key(row+p.RowOffset, col+p.ColOffset), Pressed: pressed, Time: now}
		return c.cfg.Events.Publish(ctx, ev)
	case proto.MsgSplitEncoder:
		id, dir, ok := proto.DecodeEncoderPayload(msg.Payload)
		if !ok {
			return c.bad(p, msg)
		}
		pos := event.Encoder(id+p.EncoderOffset, event.Direction(dir))
		if err := c.cfg.Events.Publish(ctx, event.Press(pos, now)); err != nil {
			return err
		}
		return c.cfg.Events.Publish(ctx, event.Release(pos, now))
	case proto.MsgSplitAxis:
		id, axis, v, ok := proto.DecodeAxisPayload(msg.Payload)
		if !ok {
			return c.bad(p, msg)
		}
		return c.cfg.Events.Publish(ctx, event.KeyEvent{Pos: event.AxisOf(id, event.Axis(axis)), Value: v, Time: now})
	default:
		return c.bad(p, msg)
	}
}

func (c *Central) bad(p *Peer, msg proto.Message) error {
	c.log.Warn("split: unexpected message", "peer", p.ID, "kind", msg.Kind)
	return p.Link.Send(proto.MsgError, proto.ErrorPayload(proto.ErrBadMessage, msg.Kind, nil))
}

// SyncStatus pushes layer and connection state to every peer whenever it
// changes, so peripheral displays and LEDs follow the central.
func (c *Central) SyncStatus(ctx context.Context, rcv *event.Receiver[event.Status]) error {
	for {
		s, err := rcv.Changed(ctx)
		if err != nil {
			return err
		}
		for i := range c.cfg.Peers {
			p := &c.cfg.Peers[i]
			if err := p.Link.Send(proto.MsgSplitLayerState, proto.LayerStatePayload(s.Layer, s.ActiveLayers)); err != nil {
				c.log.Warn("split: sync layer", "peer", p.ID, "err", err)
				continue
			}
			if err := p.Link.Send(proto.MsgSplitConnState, proto.ConnStatePayload(uint8(s.Connection), true)); err != nil {
				c.log.Warn("split: sync connection", "peer", p.ID, "err", err)
			}
		}
	}
}

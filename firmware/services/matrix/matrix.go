// Package matrix runs the input task: it scans the key matrix and the rotary
// encoders on a fixed interval and publishes every debounced edge on the
// key event channel.
package matrix

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"rmk/firmware/clock"
	"rmk/firmware/event"
)

// Scanner yields the debounced edges of one scan.
type Scanner interface {
	Scan(now clock.Instant) iter.Seq[event.KeyEvent]
}

// Poller yields encoder detents.
type Poller interface {
	Poll(now clock.Instant) iter.Seq[event.KeyEvent]
}

// Sleeper is a scanner that can idle until any key goes down.
type Sleeper interface {
	Pressed() bool
	WaitForAny(ctx context.Context, poll time.Duration) error
}

type Config struct {
	Matrix   Scanner
	Encoders []Poller
	Events   *event.Channel[event.KeyEvent]
	Clock    clock.Clock
	Interval time.Duration
	// IdleAfter switches to WaitForAny after this long without a pressed
	// key, when Matrix is a Sleeper. Zero scans forever.
	IdleAfter time.Duration
	Log       *slog.Logger
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	last clock.Instant
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	return &Service{cfg: cfg, log: cfg.Log}
}

func (s *Service) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	s.last = s.cfg.Clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
		if err := s.idle(ctx); err != nil {
			return err
		}
	}
}

// Step scans once and publishes what it found, waiting for room on the
// channel.
func (s *Service) Step(ctx context.Context) error {
	now := s.cfg.Clock.Now()
	seqs := make([]iter.Seq[event.KeyEvent], 0, 1+len(s.cfg.Encoders))
	if s.cfg.Matrix != nil {
		seqs = append(seqs, s.cfg.Matrix.Scan(now))
	}
	for _, e := range s.cfg.Encoders {
		seqs = append(seqs, e.Poll(now))
	}
	for _, seq := range seqs {
		for ev := range seq {
			s.last = now
			if err := s.cfg.Events.Publish(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) idle(ctx context.Context) error {
	sl, ok := s.cfg.Matrix.(Sleeper)
	if !ok || s.cfg.IdleAfter <= 0 || len(s.cfg.Encoders) > 0 {
		return nil
	}
	now := s.cfg.Clock.Now()
	if sl.Pressed() || clock.Duration(now.Since(s.last)) < s.cfg.IdleAfter {
		return nil
	}
	s.log.Debug("matrix idle")
	if err := sl.WaitForAny(ctx, 10*s.cfg.Interval); err != nil {
		return err
	}
	s.last = s.cfg.Clock.Now()
	return nil
}

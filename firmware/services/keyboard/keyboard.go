// Package keyboard runs the engine task: the only owner of the core engine.
// It feeds debounced key events in, fires timers at the engine's next
// deadline, applies reloaded behavior and publishes reports and state
// changes.
package keyboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"rmk/firmware/clock"
	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
)

type Config struct {
	// Engine holds the tables and options. Send and Notify are owned by the
	// service and overwritten.
	Engine  keyboard.Options
	Events  *event.Subscriber[event.KeyEvent]
	Reports *event.Channel[hid.Report]
	Status  *event.Watch[event.Status]
	// Reload delivers behavior edits to apply without a reboot.
	Reload <-chan keyboard.Behavior
	Clock  clock.Clock
	Log    *slog.Logger
}

type Service struct {
	cfg     Config
	log     *slog.Logger
	kb      *keyboard.Keyboard
	pending []hid.Report
}

func New(cfg Config) (*Service, error) {
	if cfg.Events == nil || cfg.Reports == nil {
		return nil, errors.New("keyboard service: events and reports required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}
	s := &Service{cfg: cfg, log: cfg.Log}
	opts := cfg.Engine
	opts.Log = cfg.Log
	opts.Send = func(r hid.Report, _ clock.Instant) { s.pending = append(s.pending, r) }
	opts.Notify = s.notify
	kb, err := keyboard.New(opts)
	if err != nil {
		return nil, err
	}
	s.kb = kb
	s.notify(kb.LayerState())
	return s, nil
}

func (s *Service) notify(c event.Controller) {
	if s.cfg.Status != nil {
		s.cfg.Status.Update(c.Apply)
	}
}

func (s *Service) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		if d, ok := s.kb.NextDeadline(); ok {
			timer.Reset(clock.Duration(d.Since(s.cfg.Clock.Now())))
		} else {
			timer.Stop()
		}
		select {
		case <-ctx.Done():
			// Release everything still held on the way out.
			s.kb.Reset()
			for _, r := range s.pending {
				s.cfg.Reports.TryPublish(r)
			}
			return ctx.Err()
		case ev := <-s.cfg.Events.C():
			s.kb.Process(ev)
		case <-timer.C:
			s.kb.Advance(s.cfg.Clock.Now())
		case b := <-s.cfg.Reload:
			s.log.Info("behavior reloaded", "mode", b.Morse.Mode, "timeout_ms", b.Morse.TimeoutMs, "report", b.Report)
			s.kb.SetBehavior(b)
		}
		if err := s.flush(ctx); err != nil {
			return err
		}
	}
}

// flush publishes the reports the last step produced, in order.
func (s *Service) flush(ctx context.Context) error {
	defer func() { s.pending = s.pending[:0] }()
	for _, r := range s.pending {
		if err := s.cfg.Reports.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

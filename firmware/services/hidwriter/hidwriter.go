// Package hidwriter runs the USB side of the keyboard: it writes every
// composed report to the HID endpoint, folds the host's LED report into the
// status watch and answers Vial frames on the raw HID interface.
package hidwriter

import (
	"context"
	"errors"
	"log/slog"

	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/firmware/vial"
	"rmk/hal"
)

// FrameHandler answers one raw HID frame. *vial.Service implements it.
type FrameHandler interface {
	HandleFrame(ctx context.Context, req [vial.FrameSize]byte) [vial.FrameSize]byte
}

type Config struct {
	HID     hal.HID
	Reports *event.Subscriber[hid.Report]
	// Status receives CtrlLEDs when HID is also a hal.LEDSource.
	Status *event.Watch[event.Status]
	// CapsLED follows the host's Caps Lock state; nil for none.
	CapsLED hal.LED
	Log     *slog.Logger
}

type Service struct {
	cfg Config
	log *slog.Logger
	buf []byte
}

func New(cfg Config) (*Service, error) {
	if cfg.HID == nil || cfg.Reports == nil {
		return nil, errors.New("hidwriter: hid and reports required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{cfg: cfg, log: cfg.Log, buf: make([]byte, 0, 64)}, nil
}

func (s *Service) Run(ctx context.Context) error {
	var leds <-chan uint8
	if src, ok := s.cfg.HID.(hal.LEDSource); ok {
		leds = src.LEDs()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-s.cfg.Reports.C():
			s.Write(r)
		case v, ok := <-leds:
			if !ok {
				leds = nil
				continue
			}
			s.hostLEDs(v)
		}
	}
}

func (s *Service) hostLEDs(v uint8) {
	s.log.Debug("host leds", "leds", v)
	if s.cfg.Status != nil {
		s.cfg.Status.Update(event.Controller{Kind: event.CtrlLEDs, Value: v}.Apply)
	}
	if led := s.cfg.CapsLED; led != nil {
		if v&hid.LEDCapsLock != 0 {
			led.High()
		} else {
			led.Low()
		}
	}
}

// Write sends one report. A failed write is logged and dropped; the next
// report carries the full state again.
func (s *Service) Write(r hid.Report) {
	s.buf = r.AppendTo(s.buf[:0])
	if err := s.cfg.HID.WriteReport(r.ID(), s.buf); err != nil {
		s.log.Warn("report dropped", "id", r.ID(), "err", err)
	}
}

// ServeRaw answers raw HID frames with h until ctx ends. Short frames are
// zero padded. A transport without raw HID ends the loop quietly.
func ServeRaw(ctx context.Context, raw hal.RawHID, h FrameHandler, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	var pkt [vial.FrameSize]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		clear(pkt[:])
		n, err := raw.Recv(pkt[:])
		if errors.Is(err, hal.ErrNotImplemented) {
			log.Info("raw hid unavailable")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n == 0 {
			continue
		}
		resp := h.HandleFrame(ctx, pkt)
		if resp[0] == 0xFF {
			log.Debug("vial command rejected", "cmd", pkt[0])
		}
		if err := raw.Send(resp[:]); err != nil {
			log.Warn("raw hid reply dropped", "err", err)
		}
	}
}

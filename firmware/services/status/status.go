// Package status draws the controller state (layer, modifiers, caps-word,
// connection) on the keyboard's display each time the status watch changes.
package status

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/hal"
)


var (
	fg = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	bg = color.RGBA{A: 0xFF}
)

type Config struct {
	Framebuffer hal.Framebuffer
	Status      *event.Watch[event.Status]
	// LayerNames label layers by index; missing names print the number.
	LayerNames []string
	Log        *slog.Logger
}

type Service struct {
	cfg  Config
	log  *slog.Logger
	d    *Display
	font tinyfont.Fonter
}

func New(cfg Config) (*Service, error) {
	if cfg.Framebuffer == nil || cfg.Status == nil {
		return nil, errors.New("status: framebuffer and status required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{
		cfg:  cfg,
		log:  cfg.Log,
		d:    NewDisplay(cfg.Framebuffer),
		font: &proggy.TinySZ8pt7b,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	rcv := s.cfg.Status.Receiver()
	st, _ := s.cfg.Status.Get()
	for {
		if err := s.Draw(st); err != nil {
			s.log.Warn("display update failed", "err", err)
		}
		var err error
		if st, err = rcv.Changed(ctx); err != nil {
			return err
		}
	}
}

// Draw renders st and presents the frame.
func (s *Service) Draw(st event.Status) error {
	s.d.Clear(bg)
	pitch := int16(s.font.GetYAdvance())
	y := pitch
	for _, line := range s.Lines(st) {
		tinyfont.WriteLine(s.d, s.font, 0, y, line, fg)
		y += pitch
	}
	return s.d.Display()
}

// Lines is the text Draw renders for st.
func (s *Service) Lines(st event.Status) []string {
	layer := fmt.Sprintf("%d", st.Layer)
	if int(st.Layer) < len(s.cfg.LayerNames) && s.cfg.LayerNames[st.Layer] != "" {
		layer = s.cfg.LayerNames[st.Layer]
	}
	lines := []string{
		"layer " + layer,
		"mods " + st.Modifiers.String(),
	}
	var flags string
	if st.CapsWord {
		flags += "WORD "
	}
	if st.LEDs&hid.LEDCapsLock != 0 {
		flags += "CAPS "
	}
	if st.Sleeping {
		flags += "zz "
	}
	conn := st.Connection.String()
	if st.PeersUp != 0 {
		conn += fmt.Sprintf(" peers %02b", st.PeersUp)
	}
	return append(lines, flags+conn)
}

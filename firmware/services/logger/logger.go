// Package logger carries slog output to the board's line logger. Tasks on
// the hot path must never block on a slow UART, so records go through a
// bounded queue drained by the logger task; lines that do not fit are
// dropped and counted.
package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"rmk/hal"
)

// DefaultDepth bounds queued lines.
const DefaultDepth = 64

type Service struct {
	out     hal.Logger
	lines   chan []byte
	dropped atomic.Uint32
}

func New(out hal.Logger, depth int) *Service {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Service{out: out, lines: make(chan []byte, depth)}
}

// Write queues each complete line of p. It never blocks.
func (s *Service) Write(p []byte) (int, error) {
	for line := range bytes.Lines(p) {
		line = bytes.TrimRight(line, "\r\n")
		select {
		case s.lines <- bytes.Clone(line):
		default:
			s.dropped.Add(1)
		}
	}
	return len(p), nil
}

// Dropped is the number of lines lost to a full queue so far.
func (s *Service) Dropped() uint32 { return s.dropped.Load() }

func (s *Service) Run(ctx context.Context) error {
	var reported uint32
	for {
		select {
		case <-ctx.Done():
			for s.Step() {
			}
			return ctx.Err()
		case line := <-s.lines:
			s.write(line)
		}
		if n := s.dropped.Load(); n != reported {
			s.out.WriteLineString(fmt.Sprintf("logger: %d lines dropped", n-reported))
			reported = n
		}
	}
}

// Step writes one queued line and reports whether there was one.
func (s *Service) Step() bool {
	select {
	case line := <-s.lines:
		s.write(line)
		return true
	default:
		return false
	}
}

func (s *Service) write(line []byte) {
	if s.out == nil {
		return
	}
	s.out.WriteLineBytes(line)
}

// lineWriter writes straight through to a hal.Logger.
type lineWriter struct{ out hal.Logger }

func (w lineWriter) Write(p []byte) (int, error) {
	for line := range bytes.Lines(p) {
		w.out.WriteLineBytes(bytes.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Writer adapts a hal.Logger to io.Writer, one WriteLineBytes per line.
func Writer(out hal.Logger) io.Writer { return lineWriter{out: out} }

// NewHandler formats records as key=value text lines on w. The board has no
// wall clock, so the time attribute is left out.
func NewHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
}

// For returns a logger tagging every record with the task name.
func For(h slog.Handler, svc string) *slog.Logger {
	return slog.New(h).With("svc", svc)
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
}

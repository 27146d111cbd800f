package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lines struct {
	mu  sync.Mutex
	got []string
}

func (l *lines) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, s)
}

func (l *lines) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *lines) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

func TestHandlerWritesOneLinePerRecord(t *testing.T) {
	out := &lines{}
	log := For(NewHandler(Writer(out), slog.LevelInfo), "matrix")
	log.Debug("hidden")
	log.Warn("ghosting suppressed", "row", 1, "col", 2)

	assert.Equal(t, []string{`level=WARN msg="ghosting suppressed" svc=matrix row=1 col=2`}, out.all())
}

func TestServiceQueuesAndDrains(t *testing.T) {
	out := &lines{}
	s := New(out, 2)
	_, err := s.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s.Dropped())

	for s.Step() {
	}
	assert.Equal(t, []string{"one", "two"}, out.all())
}

func TestRunReportsDrops(t *testing.T) {
	out := &lines{}
	s := New(out, 1)
	_, _ = s.Write([]byte("a\nb\n"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return len(out.all()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"a", "logger: 1 lines dropped"}, out.all())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

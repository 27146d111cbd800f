package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := NewRing[int](3)
	_, ok := r.Pop()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		require.True(t, r.Push(i))
	}
	assert.True(t, r.Full())
	assert.False(t, r.Push(4))

	v, _ := r.Pop()
	assert.Equal(t, 1, v)
	require.True(t, r.Push(4))
	assert.Equal(t, []int{2, 3, 4}, drain(r))
}

func TestRingRemoveAt(t *testing.T) {
	r := NewRing[int](4)
	r.Pop()
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	r.RemoveAt(1)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{0, 2, 3}, drain(r))
}

func drain(r *Ring[int]) []int {
	var out []int
	for {
		v, ok := r.Pop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestChannelOrderAcrossSubscribers(t *testing.T) {
	ch := NewChannel[int](2)
	a := ch.MustSubscribe()
	b := ch.MustSubscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 100
	go func() {
		for i := 0; i < n; i++ {
			_ = ch.Publish(ctx, i)
		}
	}()

	var wg sync.WaitGroup
	for _, s := range []*Subscriber[int]{a, b} {
		wg.Add(1)
		go func(s *Subscriber[int]) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				v, err := s.Recv(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, i, v)
			}
		}(s)
	}
	wg.Wait()
}

func TestChannelBackpressure(t *testing.T) {
	ch := NewChannel[int](1)
	s := ch.MustSubscribe()
	require.True(t, ch.TryPublish(1))
	assert.False(t, ch.TryPublish(2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ch.Publish(ctx, 2), context.DeadlineExceeded)

	v, ok := s.TryRecv()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, err := ch.Subscribe()
	assert.ErrorIs(t, err, ErrSealed)
}

func TestWatchLatestOnly(t *testing.T) {
	w := NewWatch(Status{})
	r := w.Receiver()
	_, fresh := r.Peek()
	assert.False(t, fresh)

	w.Set(Status{Layer: 1})
	Controller{Kind: CtrlCapsWord, On: true}.Apply(&Status{})
	w.Update(func(s *Status) { Controller{Kind: CtrlLayer, Layer: 2}.Apply(s) })

	ctx := context.Background()
	got, err := r.Changed(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), got.Layer)

	done := make(chan Status)
	go func() {
		s, _ := r.Changed(ctx)
		done <- s
	}()
	w.Set(Status{CapsWord: true})
	select {
	case s := <-done:
		assert.True(t, s.CapsWord)
	case <-time.After(time.Second):
		t.Fatal("receiver not woken")
	}
}

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	client "rmk/firmware/client/storage"
	"rmk/firmware/combo"
	"rmk/firmware/fork"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
	"rmk/firmware/proto"
	"rmk/firmware/storage"
	"rmk/hal"
)

func newStore(t *testing.T, f hal.Flash) *storage.Store {
	t.Helper()
	st, err := storage.Open(f, storage.Config{Start: 0, Sectors: 4}, nil)
	require.NoError(t, err)
	return st
}

func start(t *testing.T, st *storage.Store) *client.Client {
	t.Helper()
	q := make(chan client.Request, DefaultQueueDepth)
	svc := New(st, q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Error("storage service did not stop")
		}
	})
	return client.New(q)
}

func TestClientWritesThroughService(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	c := start(t, st)
	ctx := context.Background()

	cell := &storage.KeymapCell{Action: action.MustParse("LT(1,Space)")}
	key := storage.KeymapKey(0, 1, 1, 2, 2)
	require.NoError(t, c.Put(ctx, key, cell))

	got, err := storage.Load[storage.KeymapCell](st, key)
	require.NoError(t, err)
	assert.Equal(t, *cell, got)

	require.NoError(t, c.Delete(ctx, key))
	assert.False(t, st.Has(key))

	require.NoError(t, c.Put(ctx, storage.BondKey(0), &storage.BondInfo{Data: []byte{1}}))
	require.NoError(t, c.Put(ctx, storage.KeyLayoutConfig, &storage.LayoutConfig{DefaultLayer: 1}))
	require.NoError(t, c.ClearLayout(ctx))
	assert.True(t, st.Has(storage.BondKey(0)))
	assert.False(t, st.Has(storage.KeyLayoutConfig))

	require.NoError(t, c.EraseAll(ctx))
	assert.Zero(t, st.Len())
}

func TestServiceReportsWriteFailure(t *testing.T) {
	f := hal.NewMemFlash(4096, 1024)
	st := newStore(t, f)
	c := start(t, st)

	f.FailWrites = true
	err := c.Put(context.Background(), 1, &storage.ActiveProfile{Profile: 1})
	var se *client.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, proto.MsgFlashPut, se.Op)
	assert.Equal(t, proto.ErrInternal, se.Code)
}

func TestServiceRejectsMalformed(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	svc := New(st, nil, nil)
	reply := make(chan proto.Message, 1)
	svc.Step(client.Request{Msg: proto.Message{Kind: proto.MsgFlashDelete, Payload: []byte{1}}, Reply: reply})
	r := <-reply
	require.Equal(t, proto.MsgError, r.Kind)
	code, ref, _, ok := proto.DecodeErrorPayload(r.Payload)
	require.True(t, ok)
	assert.Equal(t, proto.ErrBadMessage, code)
	assert.Equal(t, proto.MsgFlashDelete, ref)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, proto.ErrNone, CodeOf(nil))
	assert.Equal(t, proto.ErrFull, CodeOf(storage.ErrFull))
	assert.Equal(t, proto.ErrNotFound, CodeOf(storage.ErrNotFound))
	assert.Equal(t, proto.ErrCorrupt, CodeOf(storage.ErrCorrupt))
	assert.Equal(t, proto.ErrTooLarge, CodeOf(storage.ErrTooLarge))
}

func defaults(t *testing.T) *Data {
	t.Helper()
	km, err := keymap.New(2, 2, 2, 1)
	require.NoError(t, err)
	mt, err := morse.NewTable()
	require.NoError(t, err)
	ct, err := combo.NewTable()
	require.NoError(t, err)
	ft, err := fork.NewTable()
	require.NoError(t, err)
	return &Data{
		Keymap:   km,
		Morses:   mt,
		Combos:   ct,
		Forks:    ft,
		Macros:   macro.NewBook(macro.DefaultBufferSize),
		Behavior: keyboard.DefaultBehavior(),
	}
}

func TestRestoreFirstBoot(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	r, err := Restore(st, defaults(t), Options{BuildHash: 1}, nil)
	require.NoError(t, err)
	assert.True(t, r.FirstBoot)

	r, err = Restore(st, defaults(t), Options{BuildHash: 1}, nil)
	require.NoError(t, err)
	assert.False(t, r.FirstBoot)
}

func TestRestoreOverlaysStoredItems(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	_, err := Restore(st, defaults(t), Options{BuildHash: 7}, nil)
	require.NoError(t, err)

	b := keyboard.DefaultBehavior()
	b.ComboTimeoutMs = 35
	b.Report = hid.ModeNKRO
	bc := BehaviorConfig(b)
	c, err := combo.New([]action.KeyAction{action.MustParse("A"), action.MustParse("B")}, action.Key(0x29))
	require.NoError(t, err)
	require.NoError(t, st.PutValue(storage.KeymapKey(1, 0, 1, 2, 2), &storage.KeymapCell{Action: action.MustParse("C")}))
	require.NoError(t, st.PutValue(storage.EncoderKey(0, 1, 1), &storage.EncoderCell{Action: keymap.EncoderAction{Clockwise: action.MustParse("D")}}))
	require.NoError(t, st.PutValue(storage.KeyBehavior, &bc))
	require.NoError(t, st.PutValue(storage.ComboKey(3), &storage.ComboValue{Combo: c}))
	require.NoError(t, st.PutValue(storage.KeyLayoutConfig, &storage.LayoutConfig{DefaultLayer: 1}))
	require.NoError(t, st.PutValue(storage.KeyConnection, &storage.ConnectionValue{Type: 1}))
	// Out of range for this matrix: skipped, not fatal.
	require.NoError(t, st.PutValue(storage.ComboKey(combo.MaxCombos+1), &storage.ComboValue{Combo: c}))

	d := defaults(t)
	r, err := Restore(st, d, Options{BuildHash: 7}, nil)
	require.NoError(t, err)
	assert.False(t, r.FirstBoot)
	assert.Equal(t, 7, r.Items)
	assert.Equal(t, action.MustParse("C"), d.Keymap.Get(1, 0, 1))
	assert.Equal(t, action.MustParse("D"), d.Keymap.Encoder(1, 0).Clockwise)
	assert.Equal(t, b, d.Behavior)
	got, err := d.Combos.Get(3)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.EqualValues(t, 1, d.Layout.DefaultLayer)
	assert.EqualValues(t, 1, d.Connection)
}

func TestRestoreBuildChange(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	_, err := Restore(st, defaults(t), Options{BuildHash: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, st.PutValue(storage.KeyLayoutConfig, &storage.LayoutConfig{DefaultLayer: 1}))

	// Preserved across an update.
	d := defaults(t)
	r, err := Restore(st, d, Options{BuildHash: 2, Preserve: true}, nil)
	require.NoError(t, err)
	assert.False(t, r.FirstBoot)
	assert.EqualValues(t, 1, d.Layout.DefaultLayer)

	// Wiped when not preserved.
	d = defaults(t)
	r, err = Restore(st, d, Options{BuildHash: 3}, nil)
	require.NoError(t, err)
	assert.True(t, r.FirstBoot)
	assert.Zero(t, d.Layout.DefaultLayer)
	assert.False(t, st.Has(storage.KeyLayoutConfig))
}

func TestRestoreMatrixChange(t *testing.T) {
	st := newStore(t, hal.NewMemFlash(4096, 1024))
	_, err := Restore(st, defaults(t), Options{BuildHash: 1}, nil)
	require.NoError(t, err)

	d := defaults(t)
	d.Keymap, err = keymap.New(3, 2, 2, 1)
	require.NoError(t, err)
	r, err := Restore(st, d, Options{BuildHash: 1, Preserve: true}, nil)
	require.NoError(t, err)
	assert.True(t, r.FirstBoot)
}

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmk/firmware/action"
	"rmk/firmware/combo"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
	"rmk/hal"
)

const (
	testSector  = 1024
	testSectors = 4
)

func newFlash() *hal.MemFlash {
	return hal.NewMemFlash(testSector*(testSectors+1), testSector)
}

func cfg() Config { return Config{Start: testSector, Sectors: testSectors} }

func open(t *testing.T, f hal.Flash) *Store {
	t.Helper()
	s, err := Open(f, cfg(), nil)
	require.NoError(t, err)
	return s
}

func TestOpenRejectsBadRegion(t *testing.T) {
	f := newFlash()
	_, err := Open(f, Config{Start: 1, Sectors: 2}, nil)
	require.ErrorIs(t, err, ErrRegion)
	_, err = Open(f, Config{Start: 0, Sectors: 1}, nil)
	require.ErrorIs(t, err, ErrRegion)
	_, err = Open(f, Config{Start: testSector, Sectors: testSectors + 1}, nil)
	require.ErrorIs(t, err, ErrRegion)
}

func TestPutGetDelete(t *testing.T) {
	s := open(t, newFlash())

	_, err := s.Get(7)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(7, []byte("one")))
	require.NoError(t, s.Put(7, []byte("two")))
	got, err := s.Get(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	require.NoError(t, s.Delete(7))
	_, err = s.Get(7)
	require.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Has(7))
	assert.Zero(t, s.Len())
}

func TestSurvivesRemount(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	require.NoError(t, s.Put(1, []byte{1}))
	require.NoError(t, s.Put(2, []byte{2, 2}))
	require.NoError(t, s.Delete(1))
	require.NoError(t, s.Put(3, []byte{3, 3, 3}))

	s = open(t, f)
	_, err := s.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
	v, err := s.Get(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3, 3}, v)
	assert.Equal(t, 2, s.Len())
}

func TestRotationKeepsLiveRecords(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	// Far more than the region holds at once: old sectors must be reclaimed.
	for round := 0; round < 40; round++ {
		for k := uint32(0); k < 8; k++ {
			val := bytes.Repeat([]byte{byte(round)}, 20+int(k))
			require.NoError(t, s.Put(k, val), "round %d key %d", round, k)
		}
	}
	check := func(s *Store) {
		for k := uint32(0); k < 8; k++ {
			v, err := s.Get(k)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{39}, 20+int(k)), v)
		}
	}
	check(s)
	check(open(t, f))
}

func TestFullStoreReportsFull(t *testing.T) {
	s := open(t, newFlash())
	var err error
	for k := uint32(0); err == nil && k < 1000; k++ {
		err = s.Put(k, make([]byte, 100))
	}
	require.ErrorIs(t, err, ErrFull)
}

func TestTooLarge(t *testing.T) {
	s := open(t, newFlash())
	require.ErrorIs(t, s.Put(1, make([]byte, testSector)), ErrTooLarge)
}

func TestTornTailIsIgnored(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	require.NoError(t, s.Put(1, []byte("keep")))
	require.NoError(t, s.Put(2, []byte("lost")))

	// Clear bits in the last record's value as a cut program would.
	img := f.Bytes()
	idx := bytes.LastIndex(img, []byte("lost"))
	require.Positive(t, idx)
	_, err := f.WriteAt([]byte{0x00}, uint32(idx))
	require.NoError(t, err)

	s = open(t, f)
	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), v)
	_, err = s.Get(2)
	require.ErrorIs(t, err, ErrNotFound)

	// The sealed sector is skipped for new writes.
	require.NoError(t, s.Put(2, []byte("again")))
	s = open(t, f)
	v, err = s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), v)
}

func TestFailedWriteKeepsOldValue(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	require.NoError(t, s.Put(1, []byte("old")))
	f.FailWrites = true
	require.Error(t, s.Put(1, []byte("new")))
	f.FailWrites = false

	v, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
	v, err = open(t, f).Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
}

func TestEraseAll(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	for k := uint32(0); k < 10; k++ {
		require.NoError(t, s.Put(k, []byte{byte(k)}))
	}
	require.NoError(t, s.EraseAll())
	for k := uint32(0); k < 10; k++ {
		_, err := s.Get(k)
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Zero(t, open(t, f).Len())
}

func TestClearLayoutKeepsPairing(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	require.NoError(t, s.PutValue(KeyStorageConfig, &StorageConfig{Enabled: true, BuildHash: 9}))
	require.NoError(t, s.PutValue(KeymapKey(0, 0, 0, 2, 2), &KeymapCell{Action: action.Single(action.Key(keycode.A))}))
	require.NoError(t, s.PutValue(BondKey(0), &BondInfo{Slot: 0, Data: []byte{1, 2}}))
	require.NoError(t, s.PutValue(PeerKey(1), &PeerAddress{Peer: 1, Addr: [6]byte{1, 2, 3, 4, 5, 6}}))
	require.NoError(t, s.PutValue(KeyBehavior, &BehaviorConfig{TapIntervalMs: 10}))

	require.NoError(t, s.ClearLayout())
	s = open(t, f)
	assert.True(t, s.Has(KeyStorageConfig))
	assert.True(t, s.Has(BondKey(0)))
	assert.True(t, s.Has(PeerKey(1)))
	assert.False(t, s.Has(KeyBehavior))
	assert.False(t, s.Has(KeymapKey(0, 0, 0, 2, 2)))
}

// cutFlash loses power after budget writes or erases.
type cutFlash struct {
	*hal.MemFlash
	budget int
}

var errPowerCut = errors.New("power cut")

func (f *cutFlash) spend() error {
	if f.budget == 0 {
		return errPowerCut
	}
	f.budget--
	return nil
}

func (f *cutFlash) WriteAt(p []byte, off uint32) (int, error) {
	if err := f.spend(); err != nil {
		return 0, err
	}
	return f.MemFlash.WriteAt(p, off)
}

func (f *cutFlash) Erase(off, size uint32) error {
	if err := f.spend(); err != nil {
		return err
	}
	return f.MemFlash.Erase(off, size)
}

// Whatever point ClearLayout stops at, pairing survives and the layout is
// either all there or all gone.
func TestClearLayoutSurvivesPowerCut(t *testing.T) {
	layout := []uint32{KeyBehavior, KeymapKey(0, 0, 0, 2, 2), KeymapKey(0, 0, 1, 2, 2)}
	for budget := 0; ; budget++ {
		f := newFlash()
		s := open(t, f)
		// Spread records over two sectors.
		for k := uint32(0); s.active == 0; k++ {
			require.NoError(t, s.PutValue(KeymapKey(1, 0, 0, 2, 2), &KeymapCell{Action: action.Single(action.Key(keycode.A + keycode.KeyCode(k%26)))}))
		}
		require.NoError(t, s.PutValue(BondKey(0), &BondInfo{Slot: 0, Data: []byte{1, 2}}))
		require.NoError(t, s.PutValue(KeyBehavior, &BehaviorConfig{TapIntervalMs: 10}))
		require.NoError(t, s.PutValue(KeymapKey(0, 0, 0, 2, 2), &KeymapCell{Action: action.Single(action.Key(keycode.B))}))
		require.NoError(t, s.PutValue(KeymapKey(0, 0, 1, 2, 2), &KeymapCell{Action: action.Single(action.Key(keycode.C))}))

		cut := &cutFlash{MemFlash: f, budget: budget}
		s, err := Open(cut, cfg(), nil)
		require.NoError(t, err)
		done := s.ClearLayout() == nil

		s = open(t, f)
		assert.True(t, s.Has(BondKey(0)), "budget %d", budget)
		present := 0
		for _, k := range layout {
			if s.Has(k) {
				present++
			}
		}
		if done {
			assert.Zero(t, present, "budget %d", budget)
			assert.False(t, s.Has(KeymapKey(1, 0, 0, 2, 2)))
			return
		}
		assert.Contains(t, []int{0, len(layout)}, present, "budget %d", budget)
		require.Less(t, budget, 64, "ClearLayout never completed")
	}
}

func TestCorruptMiddleRecord(t *testing.T) {
	f := newFlash()
	s := open(t, f)
	// Fill the first sector so the damaged record is not at the tail.
	for k := uint32(0); s.active == 0; k++ {
		require.NoError(t, s.Put(k, []byte(fmt.Sprintf("value-%03d", k))))
	}
	img := f.Bytes()
	idx := bytes.Index(img, []byte("value-001"))
	require.Positive(t, idx)
	_, err := f.WriteAt([]byte{0x00}, uint32(idx))
	require.NoError(t, err)

	_, err = Open(f, cfg(), nil)
	require.ErrorIs(t, err, ErrCorrupt)

	s, err = Format(f, cfg(), nil)
	require.NoError(t, err)
	assert.Zero(t, s.Len())
}

func TestKeysSorted(t *testing.T) {
	s := open(t, newFlash())
	for _, k := range []uint32{9, 3, 5} {
		require.NoError(t, s.Put(k, []byte{1}))
	}
	var got []uint32
	for k := range s.Keys() {
		got = append(got, k)
	}
	assert.Equal(t, []uint32{3, 5, 9}, got)
}

// Every tag round-trips through flash unchanged.
func TestValuesRoundTrip(t *testing.T) {
	tapHold := action.MustParse("MT(A,LShift)")
	c, err := combo.New([]action.KeyAction{action.MustParse("A"), action.MustParse("B")}, action.Key(keycode.Escape))
	require.NoError(t, err)
	td := action.NewTapDance(
		[]action.Action{action.Key(keycode.A), action.Key(keycode.B)},
		[]action.Action{action.LayerOn(1)},
		action.MorseProfile{TimeoutMs: 180, UnilateralTap: action.On},
	)
	beh := &BehaviorConfig{
		Morse:              action.MorseProfile{Mode: action.ModePermissiveHold, TimeoutMs: 200, GapMs: 150, PriorIdleMs: 100},
		TapIntervalMs:      10,
		ComboTimeoutMs:     40,
		OneShotTimeoutMs:   900,
		CapsWordIdleMs:     5000,
		CapsWordShiftMinus: true,
		NKRO:               true,
		MouseTickMs:        20,
	}
	enc := keymap.EncoderAction{Clockwise: action.MustParse("AudioVolUp"), CounterClockwise: action.MustParse("AudioVolDown")}
	fk := action.Fork{
		Trigger:  action.MustParse("Dot"),
		Negative: action.MustParse("Dot"),
		Positive: action.MustParse("WM(Semicolon,LShift)"),
		MatchAny: keycode.ModLShift | keycode.ModRShift,
	}
	values := map[uint32]Value{
		KeyStorageConfig:          &StorageConfig{Enabled: true, BuildHash: 0xDEADBEEF, Rows: 4, Cols: 12, Layers: 4, Encoders: 1},
		KeymapKey(1, 2, 3, 4, 12): &KeymapCell{Action: tapHold},
		KeyLayoutConfig:           &LayoutConfig{DefaultLayer: 2, LayoutOption: 0x01020304},
		KeyBehavior:               beh,
		KeyMacros:                 &MacroData{Data: []byte{1, 1, 4, 0, 'h', 'i', 0}},
		ComboKey(0):               &ComboValue{Combo: c.OnLayer(1)},
		KeyConnection:             &ConnectionValue{Type: 1},
		EncoderKey(0, 1, 2):       &EncoderCell{Action: enc},
		ForkKey(0):                &ForkValue{Fork: fk},
		MorseKey(3):               &MorseValue{Morse: td},
		PeerKey(0):                &PeerAddress{Peer: 0, Addr: [6]byte{0xC0, 1, 2, 3, 4, 5}},
		KeyActiveProfile:          &ActiveProfile{Profile: 2},
		BondKey(1):                &BondInfo{Slot: 1, Addr: [6]byte{6, 5, 4, 3, 2, 1}, Data: bytes.Repeat([]byte{0xAB}, 16)},
	}
	f := newFlash()
	s := open(t, f)
	for k, v := range values {
		require.NoError(t, s.PutValue(k, v))
	}
	s = open(t, f)
	for k, want := range values {
		b, err := s.Get(k)
		require.NoError(t, err)
		assert.Equal(t, want.Tag(), Tag(b[0]))
		got, err := Unmarshal(b)
		require.NoError(t, err, "key %#x", k)
		assert.Equal(t, want, got, "key %#x", k)
	}

	cell, err := Load[KeymapCell](s, KeymapKey(1, 2, 3, 4, 12))
	require.NoError(t, err)
	assert.Equal(t, tapHold, cell.Action)
	_, err = Load[LayoutConfig](s, KeyBehavior)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	for _, b := range [][]byte{
		nil,
		{0x42},
		{byte(TagKeymapCell), 9},
		{byte(TagLayoutConfig), 1},
		{byte(TagConnection), 5},
		{byte(TagActiveProfile), 1, 2},
	} {
		_, err := Unmarshal(b)
		assert.ErrorIs(t, err, ErrCorrupt, "%x", b)
	}
}

package vial

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"rmk/firmware/action"
	"rmk/firmware/clock"
	"rmk/firmware/combo"
	"rmk/firmware/event"
	"rmk/firmware/fork"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
	"rmk/firmware/morse"
	"rmk/firmware/storage"
)

func TestKeycodeValues(t *testing.T) {
	for s, want := range map[string]uint16{
		"No":           0x0000,
		"_":            0x0001,
		"A":            0x0004,
		"LShift":       0x00E1,
		"WM(A,LShift)": 0x0204,
		"MT(A,LShift)": 0x2204,
		"MT(A,RCtrl)":  0x3104,
		"LT(1,Space)":  0x412C,
		"TO(2)":        0x5202,
		"MO(1)":        0x5221,
		"DF(1)":        0x5241,
		"TG(3)":        0x5263,
		"OSL(2)":       0x5282,
		"OSM(RShift)":  0x52B2,
		"TD(3)":        0x5703,
		"Macro(2)":     0x7702,
	} {
		got, ok := Encode(action.MustParse(s))
		require.True(t, ok, s)
		assert.Equal(t, want, got, s)
		assert.Equal(t, action.MustParse(s), Decode(want), s)
	}
}

func TestKeycodeSpecialRanges(t *testing.T) {
	for _, kc := range []keycode.KeyCode{keycode.BacklightFirst + 3, keycode.InternalFirst + 0x11, keycode.User0 + 5} {
		ka := action.Single(action.Key(kc))
		code, ok := Encode(ka)
		require.True(t, ok, "%v", kc)
		assert.Equal(t, ka, Decode(code))
	}
	code, _ := Encode(action.Single(action.Key(keycode.InternalFirst)))
	assert.Equal(t, uint16(0x7C00), code)
}

func TestKeycodeUnrepresentable(t *testing.T) {
	for _, ka := range []action.KeyAction{
		action.MustParse("OSK(A)"),
		action.Single(action.LayerOn(40)),
		action.TapHold(action.Key(keycode.A), action.LayerOn(20), action.MorseProfile{}),
		action.TapHold(action.Key(keycode.A), action.Key(keycode.B), action.MorseProfile{}),
	} {
		code, ok := Encode(ka)
		assert.False(t, ok, "%v", ka)
		assert.Zero(t, code)
	}
	assert.Equal(t, action.NoKey, Decode(0x6000))
}

type fakeStore struct {
	mu      sync.Mutex
	puts    map[uint32]storage.Value
	deletes []uint32
	cleared int
	erased  int
	fail    error
}

func (f *fakeStore) Put(_ context.Context, key uint32, v storage.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.puts[key] = v
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.deletes = append(f.deletes, key)
	return nil
}

func (f *fakeStore) ClearLayout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.fail
}

func (f *fakeStore) EraseAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.erased++
	return f.fail
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	live   Tables
	clk    *clock.Manual
	notify []event.Controller
	boot   []bool
	logs   bytes.Buffer
}

func tables(t *testing.T) Tables {
	t.Helper()
	p := action.MustParse
	km, err := keymap.FromLayers([][][]action.KeyAction{
		{{p("A"), p("B"), p("C")}, {p("D"), p("E"), p("MO(1)")}},
		{{p("_"), p("_"), p("_")}, {p("_"), p("_"), p("_")}},
	}, 1)
	require.NoError(t, err)
	require.NoError(t, km.SetEncoder(0, 0, keymap.EncoderAction{Clockwise: p("AudioVolUp"), CounterClockwise: p("AudioVolDown")}))
	morses, _ := morse.NewTable()
	combos, _ := combo.NewTable()
	forks, _ := fork.NewTable()
	return Tables{Keymap: km, Morses: morses, Combos: combos, Forks: forks, Macros: macro.NewBook(64)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: &fakeStore{puts: map[uint32]storage.Value{}}, live: tables(t), clk: &clock.Manual{}}
	def, err := Definition(DefinitionInfo{Name: "test", VendorID: 0x4C4B, ProductID: 0x4643, Rows: 2, Cols: 3})
	require.NoError(t, err)
	f.svc, err = New(Config{
		Live:       f.live,
		Defaults:   tables(t),
		Store:      f.store,
		Layout:     storage.LayoutConfig{LayoutOption: 7},
		KeyboardID: [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Definition: def,
		Clock:      f.clk,
		Notify:     func(c event.Controller) { f.notify = append(f.notify, c) },
		Reboot:     func(b bool) { f.boot = append(f.boot, b) },
		Log:        slog.New(slog.NewTextHandler(&f.logs, nil)),
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) send(b ...byte) [FrameSize]byte {
	var req [FrameSize]byte
	copy(req[:], b)
	return f.svc.HandleFrame(context.Background(), req)
}

func TestProtocolVersionAndUnknown(t *testing.T) {
	f := newFixture(t)
	resp := f.send(cmdProtocolVersion)
	assert.Equal(t, []byte{0x01, 0x00, 0x09}, resp[:3])
	assert.Equal(t, byte(cmdUnhandled), f.send(0x42)[0])
	assert.Equal(t, byte(cmdUnhandled), f.send(cmdVialPrefix, 0x77)[0])
}

func TestKeyboardValues(t *testing.T) {
	f := newFixture(t)
	f.clk.Set(0x01020304)
	resp := f.send(cmdGetKeyboardValue, valueUptime)
	assert.Equal(t, uint32(0x01020304), binary.BigEndian.Uint32(resp[2:]))

	resp = f.send(cmdGetKeyboardValue, valueLayoutOptions)
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(resp[2:]))

	f.send(cmdSetKeyboardValue, valueLayoutOptions, 0, 0, 0, 9)
	assert.Equal(t, uint32(9), f.svc.GetLayoutOption())
	assert.Equal(t, &storage.LayoutConfig{LayoutOption: 9}, f.store.puts[storage.KeyLayoutConfig])
}

func TestSetKeycodePersistsThenApplies(t *testing.T) {
	f := newFixture(t)
	resp := f.send(cmdGetKeycode, 0, 1, 2)
	assert.Equal(t, uint16(0x5221), binary.BigEndian.Uint16(resp[4:]))

	resp = f.send(cmdSetKeycode, 1, 0, 1, 0x22, 0x04)
	assert.Equal(t, byte(cmdSetKeycode), resp[0])
	want := action.MustParse("MT(A,LShift)")
	assert.Equal(t, want, f.live.Keymap.Get(1, 0, 1))
	assert.Equal(t, &storage.KeymapCell{Action: want}, f.store.puts[storage.KeymapKey(1, 0, 1, 2, 3)])

	resp = f.send(cmdGetKeycode, 1, 0, 1)
	assert.Equal(t, uint16(0x2204), binary.BigEndian.Uint16(resp[4:]))
}

func TestFailedWriteKeepsRAMValue(t *testing.T) {
	f := newFixture(t)
	f.store.fail = errors.New("flash gone")
	resp := f.send(cmdSetKeycode, 0, 0, 0, 0x00, 0x05)
	assert.Equal(t, byte(cmdSetKeycode), resp[0])
	assert.Equal(t, action.MustParse("B"), f.live.Keymap.Get(0, 0, 0))
	assert.Empty(t, f.store.puts)
	assert.Contains(t, f.logs.String(), "save failed")

	require.NoError(t, f.svc.SetCombo(context.Background(), 0, combo.Combo{}))
	require.NoError(t, f.svc.SetLayoutOption(context.Background(), 3))
	assert.Equal(t, uint32(3), f.svc.GetLayoutOption())

	// Bounds are still checked before anything changes.
	resp = f.send(cmdSetKeycode, 5, 0, 0, 0x00, 0x05)
	assert.Equal(t, byte(cmdUnhandled), resp[0])
}

func TestKeymapBuffer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, byte(2), f.send(cmdLayerCount)[1])

	resp := f.send(cmdKeymapGetBuffer, 0, 1, 4)
	assert.Equal(t, []byte{0x04, 0x00, 0x05, 0x00}, resp[4:8])

	// Byte 3 is the low half of cell 1; byte 4 the high half of cell 2.
	f.send(cmdKeymapSetBuffer, 0, 3, 2, 0x1E, 0x00)
	assert.Equal(t, action.Single(action.Key(keycode.Kc1)), f.live.Keymap.Get(0, 0, 1))
	assert.Equal(t, action.MustParse("C"), f.live.Keymap.Get(0, 0, 2))
	assert.Len(t, f.store.puts, 1)

	// Past the end of the 24-byte keymap.
	assert.Equal(t, byte(cmdUnhandled), f.send(cmdKeymapGetBuffer, 0, 22, 4)[0])
}

func TestMacroBuffer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, byte(macro.NumSlots), f.send(cmdMacroCount)[1])
	assert.Equal(t, uint16(64), binary.BigEndian.Uint16(f.send(cmdMacroBufferSize)[1:]))

	f.send(cmdMacroSetBuffer, 0, 2, 3, 'h', 'i', 0)
	resp := f.send(cmdMacroGetBuffer, 0, 0, 6)
	assert.Equal(t, []byte{0, 0, 'h', 'i', 0, 0}, resp[4:10])
	assert.Equal(t, &storage.MacroData{Data: []byte{0, 0, 'h', 'i'}}, f.store.puts[storage.KeyMacros])

	f.send(cmdMacroReset)
	assert.Equal(t, &storage.MacroData{Data: []byte{}}, f.store.puts[storage.KeyMacros])
	assert.Equal(t, byte(cmdUnhandled), f.send(cmdMacroGetBuffer, 0, 0, 29)[0])
}

func TestEncoders(t *testing.T) {
	f := newFixture(t)
	up, _ := Encode(action.MustParse("AudioVolUp"))
	down, _ := Encode(action.MustParse("AudioVolDown"))

	resp := f.send(cmdGetEncoder, 0, 0, 1)
	assert.Equal(t, up, binary.BigEndian.Uint16(resp[4:]))

	resp = f.send(cmdVialPrefix, vialGetEncoder, 0, 0)
	assert.Equal(t, down, binary.BigEndian.Uint16(resp[0:]))
	assert.Equal(t, up, binary.BigEndian.Uint16(resp[2:]))

	f.send(cmdVialPrefix, vialSetEncoder, 1, 0, 0, 0x00, 0x04)
	assert.Equal(t, action.MustParse("A"), f.live.Keymap.Encoder(1, 0).CounterClockwise)
	assert.Contains(t, f.store.puts, storage.EncoderKey(0, 1, 1))

	assert.Equal(t, byte(cmdUnhandled), f.send(cmdGetEncoder, 0, 3, 1)[0])
}

func TestVialIdentityAndDefinition(t *testing.T) {
	f := newFixture(t)
	resp := f.send(cmdVialPrefix, vialGetKeyboardID)
	assert.Equal(t, uint32(vialProtocolVersion), binary.LittleEndian.Uint32(resp[0:]))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, resp[4:12])

	resp = f.send(cmdVialPrefix, vialGetSize)
	size := int(binary.LittleEndian.Uint32(resp[0:]))
	require.Positive(t, size)

	var def []byte
	for page := 0; len(def) < size; page++ {
		resp = f.send(cmdVialPrefix, vialGetDefinition, byte(page))
		def = append(def, resp[:]...)
	}
	def = def[:size]
	assert.Equal(t, "test", gjson.GetBytes(def, "name").String())
	assert.Equal(t, "0x4C4B", gjson.GetBytes(def, "vendorId").String())
	assert.Equal(t, int64(3), gjson.GetBytes(def, "matrix.cols").Int())
	assert.Equal(t, "1,2", gjson.GetBytes(def, "layouts.keymap.1.2").String())

	resp = f.send(cmdVialPrefix, vialGetUnlockStatus)
	assert.Equal(t, byte(1), resp[0])
}

func TestDynamicEntries(t *testing.T) {
	f := newFixture(t)
	resp := f.send(cmdVialPrefix, vialDynamicEntryOp, entryCounts)
	assert.Equal(t, []byte{morse.MaxMorses, combo.MaxCombos, action.MaxForks}, resp[:3])

	// Tap dance 2: tap A, hold LCtrl, double tap B, 250 ms.
	f.send(cmdVialPrefix, vialDynamicEntryOp, entryTapDanceSet, 2,
		0x04, 0, 0xE0, 0, 0x05, 0, 0, 0, 250, 0)
	m, err := f.live.Morses.Get(2)
	require.NoError(t, err)
	a, ok := m.Lookup(action.PatternTap.Tap())
	require.True(t, ok)
	assert.Equal(t, action.Key(keycode.B), a)
	assert.Equal(t, uint16(250), m.Profile.TimeoutMs)
	assert.Contains(t, f.store.puts, storage.MorseKey(2))
	resp = f.send(cmdVialPrefix, vialDynamicEntryOp, entryTapDanceGet, 2)
	assert.Equal(t, []byte{0, 0x04, 0, 0xE0, 0, 0x05, 0, 0, 0, 250, 0}, resp[:11])

	// Combo 1: A+B -> Escape.
	f.send(cmdVialPrefix, vialDynamicEntryOp, entryComboSet, 1, 0x04, 0, 0x05, 0, 0, 0, 0, 0, 0x29, 0)
	c, err := f.live.Combos.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []action.KeyAction{action.MustParse("A"), action.MustParse("B")}, c.KeyList())
	assert.Equal(t, action.Key(keycode.Escape), c.Output)
	resp = f.send(cmdVialPrefix, vialDynamicEntryOp, entryComboGet, 1)
	assert.Equal(t, []byte{0, 0x04, 0, 0x05, 0, 0, 0, 0, 0, 0x29, 0}, resp[:11])

	// Clearing the combo deletes its stored slot.
	f.send(cmdVialPrefix, vialDynamicEntryOp, entryComboSet, 1)
	assert.Contains(t, f.store.deletes, storage.ComboKey(1))

	// Key override 0: Shift+Dot -> Semicolon, shift suppressed.
	shift := byte(keycode.ModLShift | keycode.ModRShift)
	f.send(cmdVialPrefix, vialDynamicEntryOp, entryKeyOverrideSet, 0,
		0x37, 0, 0x33, 0, 0xFF, 0xFF, shift, 0, shift, keyOverrideEnabled)
	fk, err := f.live.Forks.Get(0)
	require.NoError(t, err)
	assert.Equal(t, action.MustParse("Dot"), fk.Trigger)
	assert.Equal(t, action.MustParse("Semicolon"), fk.Positive)
	assert.Zero(t, fk.Kept)
	resp = f.send(cmdVialPrefix, vialDynamicEntryOp, entryKeyOverrideGet, 0)
	assert.Equal(t, []byte{0, 0x37, 0, 0x33, 0, 0xFF, 0xFF, shift, 0, shift, keyOverrideEnabled}, resp[:11])

	assert.Equal(t, byte(cmdUnhandled), f.send(cmdVialPrefix, vialDynamicEntryOp, entryComboGet, 40)[0])
}

func TestResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SetKeymapKey(ctx, 0, 0, 0, action.MustParse("Z")))
	require.NoError(t, f.svc.SetLayoutOption(ctx, 3))

	f.send(cmdKeymapReset)
	assert.Equal(t, 1, f.store.cleared)
	assert.Equal(t, action.MustParse("A"), f.live.Keymap.Get(0, 0, 0))
	assert.Equal(t, uint32(7), f.svc.GetLayoutOption())

	require.NoError(t, f.svc.SetKeymapKey(ctx, 0, 0, 0, action.MustParse("Z")))
	f.send(cmdEepromReset)
	assert.Equal(t, 1, f.store.erased)
	assert.Equal(t, action.MustParse("A"), f.live.Keymap.Get(0, 0, 0))
	require.Len(t, f.notify, 1)
	assert.Equal(t, event.CtrlStorageReset, f.notify[0].Kind)

	f.send(cmdBootloaderJump)
	assert.Equal(t, []bool{true}, f.boot)
}

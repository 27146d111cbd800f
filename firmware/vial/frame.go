package vial

import (
	"context"
	"encoding/binary"

	"rmk/firmware/action"
	"rmk/firmware/combo"
	"rmk/firmware/keycode"
	"rmk/firmware/keymap"
	"rmk/firmware/macro"
)

// FrameSize is the raw HID report length both directions use.
const FrameSize = 32

// VIA command ids.
const (
	cmdProtocolVersion   = 0x01
	cmdGetKeyboardValue  = 0x02
	cmdSetKeyboardValue  = 0x03
	cmdGetKeycode        = 0x04
	cmdSetKeycode        = 0x05
	cmdKeymapReset       = 0x06
	cmdEepromReset       = 0x0A
	cmdBootloaderJump    = 0x0B
	cmdMacroCount        = 0x0C
	cmdMacroBufferSize   = 0x0D
	cmdMacroGetBuffer    = 0x0E
	cmdMacroSetBuffer    = 0x0F
	cmdMacroReset        = 0x10
	cmdLayerCount        = 0x11
	cmdKeymapGetBuffer   = 0x12
	cmdKeymapSetBuffer   = 0x13
	cmdGetEncoder        = 0x14
	cmdSetEncoder        = 0x15
	cmdVialPrefix        = 0xFE
	cmdUnhandled         = 0xFF
	viaProtocolVersion   = 0x0009
	valueUptime          = 0x01
	valueLayoutOptions   = 0x02
	maxBufferChunk       = FrameSize - 4
	vialProtocolVersion  = 6
	vialDefinitionPage   = 32
	vialDynamicEntryNone = 0xFF
)

// Vial sub-commands, in frame[1] after the 0xFE prefix.
const (
	vialGetKeyboardID   = 0x00
	vialGetSize         = 0x01
	vialGetDefinition   = 0x02
	vialGetEncoder      = 0x03
	vialSetEncoder      = 0x04
	vialGetUnlockStatus = 0x05
	vialUnlockStart     = 0x06
	vialUnlockPoll      = 0x07
	vialLock            = 0x08
	vialQmkSettingsList = 0x09
	vialDynamicEntryOp  = 0x0D
)

// Dynamic entry operations, in frame[2].
const (
	entryCounts         = 0x00
	entryTapDanceGet    = 0x01
	entryTapDanceSet    = 0x02
	entryComboGet       = 0x03
	entryComboSet       = 0x04
	entryKeyOverrideGet = 0x05
	entryKeyOverrideSet = 0x06
)

// HandleFrame answers one host report. The reply starts as a copy of the
// request; unknown commands and failed writes set byte 0 to 0xFF.
func (s *Service) HandleFrame(ctx context.Context, req [FrameSize]byte) [FrameSize]byte {
	resp := req
	var err error
	switch req[0] {
	case cmdProtocolVersion:
		binary.BigEndian.PutUint16(resp[1:], viaProtocolVersion)
	case cmdGetKeyboardValue:
		switch req[1] {
		case valueUptime:
			binary.BigEndian.PutUint32(resp[2:], uint32(s.cfg.Clock.Now()))
		case valueLayoutOptions:
			binary.BigEndian.PutUint32(resp[2:], s.GetLayoutOption())
		default:
			err = ErrUnknownCommand
		}
	case cmdSetKeyboardValue:
		if req[1] == valueLayoutOptions {
			err = s.SetLayoutOption(ctx, binary.BigEndian.Uint32(req[2:]))
		} else {
			err = ErrUnknownCommand
		}
	case cmdGetKeycode:
		var ka action.KeyAction
		ka, err = s.GetKeymapKey(int(req[1]), int(req[2]), int(req[3]))
		code, _ := Encode(ka)
		binary.BigEndian.PutUint16(resp[4:], code)
	case cmdSetKeycode:
		err = s.SetKeymapKey(ctx, int(req[1]), int(req[2]), int(req[3]), Decode(binary.BigEndian.Uint16(req[4:])))
	case cmdKeymapReset:
		err = s.Reset(ctx)
	case cmdEepromReset:
		err = s.EepromReset(ctx)
	case cmdBootloaderJump:
		s.reboot(true)
	case cmdMacroCount:
		resp[1] = macro.NumSlots
	case cmdMacroBufferSize:
		binary.BigEndian.PutUint16(resp[1:], uint16(s.cfg.Live.Macros.Size()))
	case cmdMacroGetBuffer:
		off, n := int(binary.BigEndian.Uint16(req[1:])), int(req[3])
		if n > maxBufferChunk {
			err = ErrBounds
			break
		}
		clear(resp[4:])
		_, err = s.cfg.Live.Macros.ReadAt(resp[4:4+n], off)
	case cmdMacroSetBuffer:
		off, n := int(binary.BigEndian.Uint16(req[1:])), int(req[3])
		if n > maxBufferChunk {
			err = ErrBounds
			break
		}
		if err = s.cfg.Live.Macros.WriteAt(req[4:4+n], off); err == nil {
			err = s.SaveMacros(ctx)
		}
	case cmdMacroReset:
		if err = s.cfg.Live.Macros.Load(nil); err == nil {
			err = s.SaveMacros(ctx)
		}
	case cmdLayerCount:
		resp[1] = uint8(s.GetLayerCount())
	case cmdKeymapGetBuffer:
		err = s.keymapGetBuffer(req, &resp)
	case cmdKeymapSetBuffer:
		err = s.keymapSetBuffer(ctx, req)
	case cmdGetEncoder:
		var ea keymap.EncoderAction
		ea, err = s.GetEncoderKey(int(req[1]), int(req[2]))
		binary.BigEndian.PutUint16(resp[4:], encoderCode(ea, req[3] != 0))
	case cmdSetEncoder:
		err = s.setEncoderSide(ctx, int(req[1]), int(req[2]), req[3] != 0, binary.BigEndian.Uint16(req[4:]))
	case cmdVialPrefix:
		err = s.handleVial(ctx, req, &resp)
	default:
		err = ErrUnknownCommand
	}
	if err != nil {
		s.log.Warn("vial: command failed", "cmd", req[0], "sub", req[1], "err", err)
		resp[0] = cmdUnhandled
	}
	return resp
}

func encoderCode(ea keymap.EncoderAction, clockwise bool) uint16 {
	ka := ea.CounterClockwise
	if clockwise {
		ka = ea.Clockwise
	}
	code, _ := Encode(ka)
	return code
}

func (s *Service) setEncoderSide(ctx context.Context, layer, idx int, clockwise bool, code uint16) error {
	ea, err := s.GetEncoderKey(layer, idx)
	if err != nil {
		return err
	}
	if clockwise {
		ea.Clockwise = Decode(code)
	} else {
		ea.CounterClockwise = Decode(code)
	}
	return s.SetEncoderKey(ctx, layer, idx, ea)
}

// keymapCode is the two-byte form of cell i of the layer-major keymap.
func (s *Service) keymapCode(i int) uint16 {
	km := s.km()
	per := km.Rows() * km.Cols()
	code, _ := Encode(km.Get(i/per, i%per/km.Cols(), i%km.Cols()))
	return code
}

func (s *Service) keymapBufferRange(req [FrameSize]byte) (off, n int, err error) {
	km := s.km()
	off, n = int(binary.BigEndian.Uint16(req[1:])), int(req[3])
	if n > maxBufferChunk || off+n > 2*km.Layers()*km.Rows()*km.Cols() {
		return 0, 0, ErrBounds
	}
	return off, n, nil
}

func (s *Service) keymapGetBuffer(req [FrameSize]byte, resp *[FrameSize]byte) error {
	off, n, err := s.keymapBufferRange(req)
	if err != nil {
		return err
	}
	clear(resp[4:])
	for i := range n {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], s.keymapCode((off+i)/2))
		resp[4+i] = b[(off+i)%2]
	}
	return nil
}

func (s *Service) keymapSetBuffer(ctx context.Context, req [FrameSize]byte) error {
	off, n, err := s.keymapBufferRange(req)
	if err != nil || n == 0 {
		return err
	}
	km := s.km()
	per := km.Rows() * km.Cols()
	first, last := off/2, (off+n-1)/2
	for cell := first; cell <= last; cell++ {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], s.keymapCode(cell))
		before := b
		for j := range 2 {
			if p := 2*cell + j; p >= off && p < off+n {
				b[j] = req[4+p-off]
			}
		}
		if b == before {
			continue
		}
		ka := Decode(binary.BigEndian.Uint16(b[:]))
		if err := s.SetKeymapKey(ctx, cell/per, cell%per/km.Cols(), cell%km.Cols(), ka); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) handleVial(ctx context.Context, req [FrameSize]byte, resp *[FrameSize]byte) error {
	switch req[1] {
	case vialGetKeyboardID:
		clear(resp[:])
		binary.LittleEndian.PutUint32(resp[0:], vialProtocolVersion)
		copy(resp[4:12], s.cfg.KeyboardID[:])
	case vialGetSize:
		clear(resp[:])
		binary.LittleEndian.PutUint32(resp[0:], uint32(len(s.cfg.Definition)))
	case vialGetDefinition:
		page := int(binary.LittleEndian.Uint32(req[2:]))
		clear(resp[:])
		if start := page * vialDefinitionPage; start < len(s.cfg.Definition) {
			copy(resp[:], s.cfg.Definition[start:])
		}
	case vialGetEncoder:
		ea, err := s.GetEncoderKey(int(req[2]), int(req[3]))
		if err != nil {
			return err
		}
		clear(resp[:])
		binary.BigEndian.PutUint16(resp[0:], encoderCode(ea, false))
		binary.BigEndian.PutUint16(resp[2:], encoderCode(ea, true))
	case vialSetEncoder:
		return s.setEncoderSide(ctx, int(req[2]), int(req[3]), req[4] != 0, binary.BigEndian.Uint16(req[5:]))
	case vialGetUnlockStatus:
		// No unlock combo: the keyboard always reports unlocked.
		for i := range resp {
			resp[i] = 0xFF
		}
		resp[0], resp[1] = 1, 0
	case vialUnlockStart, vialLock:
	case vialUnlockPoll:
		clear(resp[:])
		resp[0] = 1
	case vialQmkSettingsList:
		for i := range resp {
			resp[i] = 0xFF
		}
	case vialDynamicEntryOp:
		return s.handleEntry(ctx, req, resp)
	default:
		return ErrUnknownCommand
	}
	return nil
}

func (s *Service) handleEntry(ctx context.Context, req [FrameSize]byte, resp *[FrameSize]byte) error {
	idx := int(req[3])
	entry := req[4:]
	clear(resp[:])
	switch req[2] {
	case entryCounts:
		resp[0] = uint8(s.cfg.Live.Morses.Len())
		resp[1] = uint8(s.cfg.Live.Combos.Len())
		resp[2] = uint8(s.cfg.Live.Forks.Len())
	case entryTapDanceGet:
		m, err := s.GetMorse(idx)
		if err != nil {
			return err
		}
		putTapDance(resp[1:], m)
	case entryTapDanceSet:
		return s.SetMorse(ctx, idx, tapDance(entry))
	case entryComboGet:
		c, err := s.GetCombo(idx)
		if err != nil {
			return err
		}
		putCombo(resp[1:], c)
	case entryComboSet:
		c, err := comboEntry(entry)
		if err != nil {
			return err
		}
		return s.SetCombo(ctx, idx, c)
	case entryKeyOverrideGet:
		f, err := s.GetFork(idx)
		if err != nil {
			return err
		}
		putKeyOverride(resp[1:], f)
	case entryKeyOverrideSet:
		return s.SetFork(ctx, idx, keyOverride(entry))
	default:
		resp[0] = vialDynamicEntryNone
		return ErrUnknownCommand
	}
	return nil
}

func actionCode(a action.Action) uint16 {
	code, _ := encodeAction(a)
	return code
}

func codeAction(code uint16) action.Action {
	ka := Decode(code)
	if ka.Kind != action.KeyActionSingle {
		return action.Action{}
	}
	return ka.Action
}

// Tap dance entry: on_tap, on_hold, on_double_tap, on_tap_hold, tapping_term.
var tapDancePatterns = [4]action.MorsePattern{
	action.PatternTap,
	action.PatternHold,
	action.PatternTap.Tap(),
	action.PatternTap.Hold(),
}

func putTapDance(b []byte, m action.Morse) {
	for i, p := range tapDancePatterns {
		a, _ := m.Lookup(p)
		binary.LittleEndian.PutUint16(b[2*i:], actionCode(a))
	}
	binary.LittleEndian.PutUint16(b[8:], m.Profile.TimeoutMs)
}

func tapDance(b []byte) action.Morse {
	var m action.Morse
	for i, p := range tapDancePatterns {
		if a := codeAction(binary.LittleEndian.Uint16(b[2*i:])); a.Kind != action.KindNo {
			_ = m.Put(p, a)
		}
	}
	m.Profile.TimeoutMs = binary.LittleEndian.Uint16(b[8:])
	return m
}

// Combo entry: four trigger keys then the output, u16 each.
func putCombo(b []byte, c combo.Combo) {
	for i, k := range c.KeyList() {
		code, _ := Encode(k)
		binary.LittleEndian.PutUint16(b[2*i:], code)
	}
	binary.LittleEndian.PutUint16(b[2*combo.MaxKeys:], actionCode(c.Output))
}

func comboEntry(b []byte) (combo.Combo, error) {
	var keys []action.KeyAction
	for i := range combo.MaxKeys {
		if code := binary.LittleEndian.Uint16(b[2*i:]); code != 0 {
			keys = append(keys, Decode(code))
		}
	}
	return combo.New(keys, codeAction(binary.LittleEndian.Uint16(b[2*combo.MaxKeys:])))
}

// Key override entry: trigger u16, replacement u16, layers u16,
// trigger_mods, negative_mod_mask, suppressed_mods, options (bit 7 enabled).
const keyOverrideEnabled = 0x80

func putKeyOverride(b []byte, f action.Fork) {
	if f.IsEmpty() {
		return
	}
	trigger, _ := Encode(f.Trigger)
	replacement, _ := Encode(f.Positive)
	binary.LittleEndian.PutUint16(b[0:], trigger)
	binary.LittleEndian.PutUint16(b[2:], replacement)
	binary.LittleEndian.PutUint16(b[4:], 0xFFFF)
	b[6] = uint8(f.MatchAny)
	b[7] = uint8(f.MatchNone)
	b[8] = uint8(f.MatchAny &^ f.Kept)
	b[9] = keyOverrideEnabled
}

func keyOverride(b []byte) action.Fork {
	if b[9]&keyOverrideEnabled == 0 {
		return action.Fork{}
	}
	trigger := Decode(binary.LittleEndian.Uint16(b[0:]))
	mods := keycode.ModifierCombination(b[6])
	return action.Fork{
		Trigger:   trigger,
		Negative:  trigger,
		Positive:  Decode(binary.LittleEndian.Uint16(b[2:])),
		MatchAny:  mods,
		MatchNone: keycode.ModifierCombination(b[7]),
		Kept:      mods &^ keycode.ModifierCombination(b[8]),
	}
}

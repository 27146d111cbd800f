package action

import (
	"errors"
	"math/bits"
	"strings"
)

// MorsePattern is a bit-packed sequence of tap/hold symbols behind a
// sentinel bit. The empty pattern is 0b1; a tap appends 0, a hold appends 1.
type MorsePattern uint16

const (
	PatternEmpty MorsePattern = 0b1

	// MaxPatternLen is the longest sequence a pattern can hold.
	MaxPatternLen = 15
)

// Common patterns.
var (
	PatternTap       = PatternEmpty.Tap()
	PatternHold      = PatternEmpty.Hold()
	PatternDoubleTap = PatternTap.Tap()
	PatternTapHold   = PatternTap.Hold()
)

func (p MorsePattern) Tap() MorsePattern  { return p << 1 }
func (p MorsePattern) Hold() MorsePattern { return p<<1 | 1 }

// Len is the number of symbols.
func (p MorsePattern) Len() int {
	if p == 0 {
		return 0
	}
	return bits.Len16(uint16(p)) - 1
}

// IsHold reports whether symbol i (0 = first) is a hold.
func (p MorsePattern) IsHold(i int) bool {
	n := p.Len()
	if i < 0 || i >= n {
		return false
	}
	return p>>(n-1-i)&1 == 1
}

// IsFull reports whether appending would overflow.
func (p MorsePattern) IsFull() bool { return p.Len() >= MaxPatternLen }

// HasPrefix reports whether q is a prefix of p.
func (p MorsePattern) HasPrefix(q MorsePattern) bool {
	pl, ql := p.Len(), q.Len()
	if ql > pl {
		return false
	}
	return p>>(pl-ql) == q
}

// String renders taps as '.' and holds as '-'.
func (p MorsePattern) String() string {
	var sb strings.Builder
	for i := 0; i < p.Len(); i++ {
		if p.IsHold(i) {
			sb.WriteByte('-')
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// ParsePattern reads the '.'/'-' form (also accepts 't'/'h').
func ParsePattern(s string) (MorsePattern, error) {
	if len(s) == 0 {
		return 0, errors.New("action: empty morse pattern")
	}
	if len(s) > MaxPatternLen {
		return 0, errors.New("action: morse pattern too long")
	}
	p := PatternEmpty
	for _, c := range s {
		switch c {
		case '.', 't', 'T', '_':
			p = p.Tap()
		case '-', 'h', 'H':
			p = p.Hold()
		default:
			return 0, errors.New("action: invalid morse symbol " + string(c))
		}
	}
	return p, nil
}

// MorseMode chooses how interrupting presses resolve a waiting morse.
type MorseMode uint8

const (
	ModeInherit MorseMode = iota
	ModeNormal
	ModePermissiveHold
	ModeHoldOnOtherPress
)

func (m MorseMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModePermissiveHold:
		return "permissive_hold"
	case ModeHoldOnOtherPress:
		return "hold_on_other_press"
	default:
		return "inherit"
	}
}

// ParseMode accepts the config spellings of MorseMode.
func ParseMode(s string) (MorseMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "", "inherit", "default":
		return ModeInherit, nil
	case "normal":
		return ModeNormal, nil
	case "permissive_hold", "permissivehold":
		return ModePermissiveHold, nil
	case "hold_on_other_press", "holdonotherpress":
		return ModeHoldOnOtherPress, nil
	}
	return ModeInherit, errors.New("action: unknown morse mode " + s)
}

// Toggle is a bool that can defer to a parent profile.
type Toggle uint8

const (
	Inherit Toggle = iota
	Off
	On
)

func ToggleOf(b bool) Toggle {
	if b {
		return On
	}
	return Off
}

func (t Toggle) Or(def bool) bool {
	switch t {
	case On:
		return true
	case Off:
		return false
	}
	return def
}

// MorseProfile tunes a morse key. Zero fields inherit.
type MorseProfile struct {
	Mode          MorseMode
	UnilateralTap Toggle
	EnableHRM     Toggle
	TimeoutMs     uint16
	GapMs         uint16
	PriorIdleMs   uint16
}

// Merge fills inherited fields of p from parent.
func (p MorseProfile) Merge(parent MorseProfile) MorseProfile {
	if p.Mode == ModeInherit {
		p.Mode = parent.Mode
	}
	if p.UnilateralTap == Inherit {
		p.UnilateralTap = parent.UnilateralTap
	}
	if p.EnableHRM == Inherit {
		p.EnableHRM = parent.EnableHRM
	}
	if p.TimeoutMs == 0 {
		p.TimeoutMs = parent.TimeoutMs
	}
	if p.GapMs == 0 {
		p.GapMs = parent.GapMs
	}
	if p.PriorIdleMs == 0 {
		p.PriorIdleMs = parent.PriorIdleMs
	}
	return p
}

// MaxMorsePatterns bounds the pattern table of one morse.
const MaxMorsePatterns = 8

// MorseEntry maps one pattern to the action it fires.
type MorseEntry struct {
	Pattern MorsePattern
	Action  Action
}

// Morse is a multi-role key: up to MaxMorsePatterns pattern→action pairs.
type Morse struct {
	Profile MorseProfile
	Entries [MaxMorsePatterns]MorseEntry
	Count   uint8
}

var ErrMorseFull = errors.New("action: morse pattern table full")

// NewTapHold builds the two-pattern morse [tap, hold].
func NewTapHold(tap, hold Action, p MorseProfile) Morse {
	var m Morse
	m.Profile = p
	if tap.Kind != KindNo {
		_ = m.Put(PatternTap, tap)
	}
	if hold.Kind != KindNo {
		_ = m.Put(PatternHold, hold)
	}
	return m
}

// NewTapDance builds a morse where n taps fire taps[n-1] and tap×(n-1)+hold fires holds[n-1].
func NewTapDance(taps, holds []Action, p MorseProfile) Morse {
	var m Morse
	m.Profile = p
	pat := PatternEmpty
	for i := 0; i < MaxMorsePatterns; i++ {
		if i < len(taps) && taps[i].Kind != KindNo {
			_ = m.Put(pat.Tap(), taps[i])
		}
		if i < len(holds) && holds[i].Kind != KindNo {
			_ = m.Put(pat.Hold(), holds[i])
		}
		pat = pat.Tap()
	}
	return m
}

// Put sets or replaces the action for pattern.
func (m *Morse) Put(p MorsePattern, a Action) error {
	for i := 0; i < int(m.Count); i++ {
		if m.Entries[i].Pattern == p {
			m.Entries[i].Action = a
			return nil
		}
	}
	if int(m.Count) >= MaxMorsePatterns {
		return ErrMorseFull
	}
	m.Entries[m.Count] = MorseEntry{Pattern: p, Action: a}
	m.Count++
	return nil
}

// Lookup returns the action bound to exactly p.
func (m *Morse) Lookup(p MorsePattern) (Action, bool) {
	for i := 0; i < int(m.Count); i++ {
		if m.Entries[i].Pattern == p {
			return m.Entries[i].Action, true
		}
	}
	return No, false
}

// CanExtend reports whether some bound pattern strictly extends p.
func (m *Morse) CanExtend(p MorsePattern) bool {
	for i := 0; i < int(m.Count); i++ {
		e := m.Entries[i].Pattern
		if e != p && e.HasPrefix(p) {
			return true
		}
	}
	return false
}

// TapAction is the single-tap action, or No.
func (m *Morse) TapAction() Action {
	a, _ := m.Lookup(PatternTap)
	return a
}

// HoldAction is the single-hold action, or No.
func (m *Morse) HoldAction() Action {
	a, _ := m.Lookup(PatternHold)
	return a
}

// IsTapHold reports whether only the tap and hold patterns are bound.
func (m *Morse) IsTapHold() bool {
	for i := 0; i < int(m.Count); i++ {
		if p := m.Entries[i].Pattern; p != PatternTap && p != PatternHold {
			return false
		}
	}
	return true
}

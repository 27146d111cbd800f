package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rmk/firmware/keycode"
)

// ErrSyntax is wrapped by every Parse failure.
var ErrSyntax = errors.New("action: syntax error")

// Parse reads the keymap cell notation used in keyboard descriptions:
//
//	A  LShift  _  No
//	MO(1) TG(1) TO(1) DF(1) OSL(2) OSM(LShift|LCtrl) OSK(A)
//	WM(A, LCtrl) LT(1, Space) MT(A, LShift) HRM(A, LGui)
//	TH(A, MO(1)) Tap(A) TD(0) Macro(0)
func Parse(s string) (KeyAction, error) {
	name, args, err := split(s)
	if err != nil {
		return NoKey, err
	}
	switch strings.ToUpper(name) {
	case "LT":
		if err := arity(name, args, 2); err != nil {
			return NoKey, err
		}
		layer, err := parseLayer(args[0])
		if err != nil {
			return NoKey, err
		}
		tap, err := parseAction(args[1])
		if err != nil {
			return NoKey, err
		}
		return TapHold(tap, LayerOn(layer), MorseProfile{}), nil
	case "MT", "HRM":
		if err := arity(name, args, 2); err != nil {
			return NoKey, err
		}
		tap, err := parseAction(args[0])
		if err != nil {
			return NoKey, err
		}
		mods, err := ParseModifiers(args[1])
		if err != nil {
			return NoKey, err
		}
		var p MorseProfile
		if strings.EqualFold(name, "HRM") {
			p.EnableHRM = On
		}
		return TapHold(tap, Modifier(mods), p), nil
	case "TH":
		if err := arity(name, args, 2); err != nil {
			return NoKey, err
		}
		tap, err := parseAction(args[0])
		if err != nil {
			return NoKey, err
		}
		hold, err := parseAction(args[1])
		if err != nil {
			return NoKey, err
		}
		return TapHold(tap, hold, MorseProfile{}), nil
	case "TAP":
		if err := arity(name, args, 1); err != nil {
			return NoKey, err
		}
		a, err := parseAction(args[0])
		if err != nil {
			return NoKey, err
		}
		return Tap(a), nil
	case "TD", "MORSE":
		if err := arity(name, args, 1); err != nil {
			return NoKey, err
		}
		n, err := parseIndex(args[0])
		if err != nil {
			return NoKey, err
		}
		return MorseRef(n), nil
	}
	a, err := parseAction(s)
	if err != nil {
		return NoKey, err
	}
	return Single(a), nil
}

// MustParse is Parse for compiled-in keymaps.
func MustParse(s string) KeyAction {
	ka, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ka
}

// ParseAction reads a single Action (no timing role).
func ParseAction(s string) (Action, error) { return parseAction(s) }

func parseAction(s string) (Action, error) {
	name, args, err := split(s)
	if err != nil {
		return No, err
	}
	if args == nil {
		switch strings.ToLower(name) {
		case "", "no", "none", "xxx":
			return No, nil
		case "_", "__", "___", "trns", "transparent":
			return Transparent, nil
		}
		kc, ok := keycode.Lookup(name)
		if !ok {
			return No, fmt.Errorf("%w: unknown key %q", ErrSyntax, name)
		}
		return Key(kc).Normalize(), nil
	}

	layerOp := func(f func(uint8) Action) (Action, error) {
		if err := arity(name, args, 1); err != nil {
			return No, err
		}
		n, err := parseLayer(args[0])
		if err != nil {
			return No, err
		}
		return f(n), nil
	}

	switch strings.ToUpper(name) {
	case "MO":
		return layerOp(LayerOn)
	case "LAYEROFF":
		return layerOp(LayerOff)
	case "TG":
		return layerOp(LayerToggle)
	case "TO":
		return layerOp(LayerToggleOnly)
	case "DF":
		return layerOp(DefaultLayer)
	case "OSL":
		return layerOp(OneShotLayer)
	case "OSM":
		if err := arity(name, args, 1); err != nil {
			return No, err
		}
		m, err := ParseModifiers(args[0])
		if err != nil {
			return No, err
		}
		return OneShotModifier(m), nil
	case "OSK":
		if err := arity(name, args, 1); err != nil {
			return No, err
		}
		kc, ok := keycode.Lookup(args[0])
		if !ok {
			return No, fmt.Errorf("%w: unknown key %q", ErrSyntax, args[0])
		}
		if kc.IsModifier() {
			return OneShotModifier(kc.Modifier()), nil
		}
		return OneShotKey(kc), nil
	case "WM":
		if err := arity(name, args, 2); err != nil {
			return No, err
		}
		kc, ok := keycode.Lookup(args[0])
		if !ok {
			return No, fmt.Errorf("%w: unknown key %q", ErrSyntax, args[0])
		}
		m, err := ParseModifiers(args[1])
		if err != nil {
			return No, err
		}
		return KeyWithModifier(kc, m), nil
	case "MACRO":
		if err := arity(name, args, 1); err != nil {
			return No, err
		}
		n, err := parseIndex(args[0])
		if err != nil {
			return No, err
		}
		if int(n) >= keycode.NumMacros {
			return No, fmt.Errorf("%w: macro %d out of range", ErrSyntax, n)
		}
		return TriggerMacro(n), nil
	}
	return No, fmt.Errorf("%w: unknown action %q", ErrSyntax, name)
}

// ParseModifiers reads "LShift|LCtrl" (or '+' separated) into a modifier byte.
// Bare "Shift", "Ctrl", "Alt", "Gui" mean the left-hand key.
func ParseModifiers(s string) (keycode.ModifierCombination, error) {
	var m keycode.ModifierCombination
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == '+' }) {
		part = strings.TrimSpace(part)
		switch strings.ToLower(part) {
		case "ctrl", "control":
			m |= keycode.ModLCtrl
			continue
		case "shift":
			m |= keycode.ModLShift
			continue
		case "alt", "opt", "option":
			m |= keycode.ModLAlt
			continue
		case "gui", "cmd", "win", "super":
			m |= keycode.ModLGui
			continue
		}
		kc, ok := keycode.Lookup(part)
		if !ok || !kc.IsModifier() {
			return 0, fmt.Errorf("%w: %q is not a modifier", ErrSyntax, part)
		}
		m |= kc.Modifier()
	}
	if m == 0 {
		return 0, fmt.Errorf("%w: empty modifier set", ErrSyntax)
	}
	return m, nil
}

// split breaks "NAME(a, b(c))" into NAME and top-level args. args is nil
// when there are no parentheses.
func split(s string) (string, []string, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if strings.ContainsAny(s, ")") {
			return "", nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, s)
		}
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, s)
	}
	name := strings.TrimSpace(s[:open])
	body := s[open+1 : len(s)-1]
	args := []string{}
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, s)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("%w: unbalanced %q", ErrSyntax, s)
	}
	if rest := strings.TrimSpace(body[start:]); rest != "" || len(args) > 0 {
		args = append(args, rest)
	}
	return name, args, nil
}

func arity(name string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrSyntax, name, n, len(args))
	}
	return nil
}

func parseLayer(s string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil || n > 31 {
		return 0, fmt.Errorf("%w: bad layer %q", ErrSyntax, s)
	}
	return uint8(n), nil
}

func parseIndex(s string) (uint8, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: bad index %q", ErrSyntax, s)
	}
	return uint8(n), nil
}

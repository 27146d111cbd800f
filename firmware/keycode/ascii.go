package keycode

// FromASCII maps a printable US-ASCII byte to the key that types it and whether Shift is needed.
func FromASCII(c byte) (KeyCode, bool, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return A + KeyCode(c-'a'), false, true
	case c >= 'A' && c <= 'Z':
		return A + KeyCode(c-'A'), true, true
	case c >= '1' && c <= '9':
		return Kc1 + KeyCode(c-'1'), false, true
	case c == '0':
		return Kc0, false, true
	}
	if e, ok := asciiSymbols[c]; ok {
		return e.code, e.shift, true
	}
	return No, false, false
}

type shifted struct {
	code  KeyCode
	shift bool
}

var asciiSymbols = map[byte]shifted{
	'\n': {Enter, false},
	'\r': {Enter, false},
	'\t': {Tab, false},
	'\b': {Backspace, false},
	0x1B: {Escape, false},
	' ':  {Space, false},
	'!':  {Kc1, true},
	'@':  {Kc2, true},
	'#':  {Kc3, true},
	'$':  {Kc4, true},
	'%':  {Kc5, true},
	'^':  {Kc6, true},
	'&':  {Kc7, true},
	'*':  {Kc8, true},
	'(':  {Kc9, true},
	')':  {Kc0, true},
	'-':  {Minus, false},
	'_':  {Minus, true},
	'=':  {Equal, false},
	'+':  {Equal, true},
	'[':  {LeftBracket, false},
	'{':  {LeftBracket, true},
	']':  {RightBracket, false},
	'}':  {RightBracket, true},
	'\\': {Backslash, false},
	'|':  {Backslash, true},
	';':  {Semicolon, false},
	':':  {Semicolon, true},
	'\'': {Quote, false},
	'"':  {Quote, true},
	'`':  {Grave, false},
	'~':  {Grave, true},
	',':  {Comma, false},
	'<':  {Comma, true},
	'.':  {Dot, false},
	'>':  {Dot, true},
	'/':  {Slash, false},
	'?':  {Slash, true},
}

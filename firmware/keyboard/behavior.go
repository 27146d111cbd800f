package keyboard

import (
	"rmk/firmware/action"
	"rmk/firmware/capsword"
	"rmk/firmware/combo"
	"rmk/firmware/hid"
	"rmk/firmware/morse"
	"rmk/firmware/oneshot"
)

// Behavior is the timing and mode set that can change at run time.
type Behavior struct {
	Morse                 action.MorseProfile
	MorseQueue            int
	TapIntervalMs         uint16
	TapCapsLockIntervalMs uint16
	ComboTimeoutMs        uint16
	OneShotTimeoutMs      uint16
	CapsWord              capsword.Config
	Report                hid.Mode
	MouseTickMs           uint16
}

// DefaultBehavior matches the firmware's compiled-in defaults.
func DefaultBehavior() Behavior {
	return Behavior{
		Morse: action.MorseProfile{
			Mode:          action.ModeNormal,
			UnilateralTap: action.Off,
			EnableHRM:     action.Off,
			TimeoutMs:     250,
			GapMs:         200,
			PriorIdleMs:   120,
		},
		MorseQueue:            morse.DefaultQueueSize,
		TapIntervalMs:         10,
		TapCapsLockIntervalMs: 20,
		ComboTimeoutMs:        combo.DefaultTimeoutMs,
		OneShotTimeoutMs:      oneshot.DefaultTimeoutMs,
		CapsWord:              capsword.DefaultConfig(),
		Report:                hid.ModeBoot,
		MouseTickMs:           hid.DefaultMouseTickMs,
	}
}

//go:build tinygo && baremetal

package hal

import (
	"machine"
)

type tinyGoHAL struct {
	logger *uartLogger
	led    *pinLED
	gpio   GPIO
	t      *tinyGoTime
	flash  Flash
	serial Serial
	hid    *usbHID
	raw    RawHID
}

// New returns an RP2040/RP2350 board HAL.
//
// UART0 on GP0 (TX) / GP1 (RX) carries the log, 115200 8N1. UART1 on GP8 (TX)
// / GP9 (RX) is the split link. GPIO pin N is machine pin GPN.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	link := machine.UART1
	link.Configure(machine.UARTConfig{
		BaudRate: 460800,
		TX:       machine.GP8,
		RX:       machine.GP9,
	})

	ledPin := machine.LED
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	led := &pinLED{pin: ledPin}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		led:    led,
		gpio:   newPinBank(machinePins(30)...),
		t:      newTinyGoTime(),
		flash:  newBoardFlash(),
		serial: &uartSerial{uart: link},
		hid:    newUSBHID(),
		// TODO: raw HID needs a second interface in the USB descriptor.
		raw: nullRawHID{},
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) LED() LED         { return h.led }
func (h *tinyGoHAL) GPIO() GPIO       { return h.gpio }
func (h *tinyGoHAL) Display() Display { return nil }
func (h *tinyGoHAL) Input() Input     { return nil }
func (h *tinyGoHAL) Flash() Flash     { return h.flash }
func (h *tinyGoHAL) Time() Time       { return h.t }
func (h *tinyGoHAL) Serial() Serial   { return h.serial }
func (h *tinyGoHAL) HID() HID         { return h.hid }
func (h *tinyGoHAL) RawHID() RawHID   { return h.raw }

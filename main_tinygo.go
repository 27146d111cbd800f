//go:build tinygo

package main

import (
	"context"
	"machine"

	"rmk/app"
	"rmk/hal"
)

func main() {
	h := hal.New()
	sys, err := app.New(h, app.Options{
		Reboot: func(bootloader bool) {
			if bootloader {
				machine.EnterBootloader()
			}
			machine.CPUReset()
		},
	})
	if err != nil {
		h.Logger().WriteLineString("rmk: " + err.Error())
		select {}
	}
	err = sys.Run(context.Background())
	h.Logger().WriteLineString("rmk: stopped: " + err.Error())
	machine.CPUReset()
}

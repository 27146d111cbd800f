//go:build !tinygo

// mkflash writes a flash image whose store already holds a layout, so a
// keyboard (or the host simulator's -flash) boots with it.
package main

import (
	"flag"
	"fmt"
	"os"

	"rmk/firmware/config"
	"rmk/firmware/storage"
	"rmk/hal"
)

const (
	defaultFlashPath = "rmk.flash"
	defaultFlashSize = 256 * 1024
	defaultEraseSize = 4096
)

func main() {
	var (
		firmware  string
		layout    string
		outPath   string
		flashSize uint
		eraseSize uint
	)
	flag.StringVar(&firmware, "config", "", "Description the firmware was built from.")
	flag.StringVar(&layout, "layout", "", "Description whose layout is stored (default: -config).")
	flag.StringVar(&outPath, "out", defaultFlashPath, "Output flash image path.")
	flag.UintVar(&flashSize, "size", defaultFlashSize, "Flash image size (bytes).")
	flag.UintVar(&eraseSize, "erase", defaultEraseSize, "Erase block size (bytes).")
	flag.Parse()

	if firmware == "" {
		fmt.Fprintln(os.Stderr, "error: -config is required")
		os.Exit(2)
	}
	if layout == "" {
		layout = firmware
	}

	n, err := run(firmware, layout, outPath, uint32(flashSize), uint32(eraseSize))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d items\n", outPath, n)
}

func run(firmware, layout, outPath string, flashSize, eraseSize uint32) (int, error) {
	fw, err := config.Load(firmware)
	if err != nil {
		return 0, err
	}
	lay, err := config.Load(layout)
	if err != nil {
		return 0, err
	}

	ff, err := hal.CreateFileFlash(outPath, flashSize, eraseSize)
	if err != nil {
		return 0, err
	}
	defer func() { _ = ff.Close() }()

	st, err := storage.Format(ff, fw.StorageConfig(), nil)
	if err != nil {
		return 0, err
	}
	return seed(st, fw, lay)
}

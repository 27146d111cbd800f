//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"rmk/app"
	"rmk/firmware/config"
	"rmk/firmware/event"
	"rmk/firmware/keyboard"
	"rmk/firmware/matrix"
	"rmk/firmware/services/logger"
	"rmk/hal"
)

func main() {
	var (
		path     string
		flash    string
		vialAddr string
		level    string
		headless hal.HeadlessConfig
		noWindow bool
	)
	flag.StringVar(&path, "config", "", "Keyboard description (.toml or .yaml); empty uses the built-in one.")
	flag.StringVar(&flash, "flash", "", "Flash image file; overrides host.flash.")
	flag.StringVar(&vialAddr, "vial-addr", "", "UDP address for Vial raw HID frames, e.g. 127.0.0.1:4242.")
	flag.StringVar(&level, "log-level", "info", "debug, info, warn or error.")
	flag.BoolVar(&noWindow, "headless", false, "Run without a window.")
	flag.IntVar(&headless.Hz, "hz", 1000, "Tick rate in headless mode.")
	flag.Uint64Var(&headless.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.Parse()

	if err := run(path, flash, vialAddr, level, noWindow, headless); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path, flash, vialAddr, level string, noWindow bool, headless hal.HeadlessConfig) error {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := config.Default()
	var loader *config.Loader
	if path != "" {
		loader = config.NewLoader(path, slog.New(logger.NewHandler(os.Stderr, lvl)))
		if cfg, err = loader.Load(); err != nil {
			return err
		}
	}
	if flash == "" {
		flash = cfg.Host.Flash
	}

	h, err := hal.NewHost(hal.HostOptions{
		Rows:       cfg.Matrix.Rows,
		Cols:       cfg.Matrix.Cols,
		RowDriven:  cfg.MatrixConfig().Diode == matrix.Row2Col,
		ActiveLow:  cfg.Matrix.ActiveLow,
		FlashPath:  flash,
		FlashSize:  cfg.Host.FlashSize,
		SerialPath: cfg.Split.Serial,
		RawHIDAddr: vialAddr,
	})
	if err != nil {
		return err
	}
	defer h.Close()
	// Unblocks the raw HID reader on shutdown.
	context.AfterFunc(ctx, func() { h.CloseRawHID() })

	keys, err := hostKeys(cfg)
	if err != nil {
		return err
	}

	pins := func(cfg *config.Config) (outs, ins []hal.GPIOPin, err error) {
		if cfg.Matrix.Direct {
			return nil, nil, errors.New("host simulator: direct-pin matrices are not simulated")
		}
		return h.Matrix().Outputs(), h.Matrix().Inputs(), nil
	}
	reload := make(chan keyboard.Behavior, 1)
	opts := app.Options{
		Config:     cfg,
		Level:      lvl,
		MatrixPins: pins,
		Reload:     reload,
		Reboot:     func(bool) { cancel() },
	}
	if cfg.Split.Role == config.RoleCentral {
		opts.OpenLink = openLink
	}
	sys, err := app.New(h, opts)
	if err != nil {
		return err
	}

	done := make(chan error, 2)
	go func() { done <- sys.Run(ctx) }()
	if loader != nil {
		loader.OnChange(func(c *config.Config) {
			// Only the newest edit matters.
			select {
			case <-reload:
			default:
			}
			reload <- c.Behavior.Behavior()
		})
		go func() { done <- loader.Watch(ctx) }()
	}

	step := func() error {
		pressKeys(h, keys)
		select {
		case err := <-done:
			if err == nil {
				err = context.Canceled
			}
			return err
		default:
			return ctx.Err()
		}
	}
	if noWindow {
		err = hal.RunHeadless(ctx, h, headless, step)
	} else {
		err = hal.RunWindow(h, "rmk: "+cfg.Keyboard.Name, step)
	}
	cancel()
	return err
}

// hostKeys resolves host.keys to matrix positions.
func hostKeys(cfg *config.Config) (map[string]event.KeyPosition, error) {
	keys := make(map[string]event.KeyPosition, len(cfg.Host.Keys))
	for name, at := range cfg.Host.Keys {
		pos, err := config.Position(at)
		if err != nil {
			return nil, fmt.Errorf("host.keys %s: %w", name, err)
		}
		keys[name] = pos
	}
	return keys, nil
}

// pressKeys moves pending host key events onto the simulated matrix.
func pressKeys(h *hal.Host, keys map[string]event.KeyPosition) {
	ch := h.Input().Keyboard().Events()
	for {
		select {
		case ev := <-ch:
			if pos, ok := keys[ev.Name]; ok {
				h.Matrix().Set(int(pos.Row), int(pos.Col), ev.Press)
			}
		default:
			return
		}
	}
}

func openLink(name string) (io.ReadWriter, error) {
	link, err := hal.OpenSerialFile(name)
	if err != nil {
		return nil, err
	}
	return link, nil
}

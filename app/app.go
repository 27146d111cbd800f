// Package app assembles the firmware from a keyboard description and a HAL:
// it restores the stored layout, builds the engine tables and starts every
// task in one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rmk/firmware/clock"
	client "rmk/firmware/client/storage"
	"rmk/firmware/config"
	"rmk/firmware/encoder"
	"rmk/firmware/event"
	"rmk/firmware/hid"
	"rmk/firmware/keyboard"
	"rmk/firmware/matrix"
	"rmk/firmware/services/hidwriter"
	kbsvc "rmk/firmware/services/keyboard"
	"rmk/firmware/services/logger"
	matrixsvc "rmk/firmware/services/matrix"
	"rmk/firmware/services/status"
	storagesvc "rmk/firmware/services/storage"
	"rmk/firmware/split"
	"rmk/firmware/storage"
	"rmk/firmware/vial"
	"rmk/hal"
	"rmk/internal/buildinfo"
)

const (
	keyEventDepth = 16
	reportDepth   = 16
)

// Options adjusts how the description meets the board.
type Options struct {
	Config *config.Config
	Level  slog.Level
	// MatrixPins returns the matrix output and input pins. The default looks
	// the configured pin numbers up in h.GPIO().
	MatrixPins func(cfg *config.Config) (outs, ins []hal.GPIOPin, err error)
	// OpenLink opens the split link named in the description. The default
	// hands out h.Serial() for every name.
	OpenLink func(name string) (io.ReadWriter, error)
	// Reload delivers behavior edits from a watched description.
	Reload <-chan keyboard.Behavior
	// Reboot handles the Reboot and Bootloader keys. The default logs.
	Reboot func(bootloader bool)
	// Clock defaults to following h.Time().
	Clock clock.Clock
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// System is a built firmware, ready to Run.
type System struct {
	h      hal.HAL
	cfg    *config.Config
	log    *slog.Logger
	logs   *logger.Service
	tasks  []task
	status *event.Watch[event.Status]
	keys   *event.Channel[event.KeyEvent]
	vial   *vial.Service
}

// New builds every service. Nothing runs until Run.
func New(h hal.HAL, opts Options) (*System, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logs := logger.New(h.Logger(), logger.DefaultDepth)
	handler := logger.NewHandler(logs, opts.Level)
	s := &System{
		h:      h,
		cfg:    cfg,
		log:    logger.For(handler, "app"),
		logs:   logs,
		status: event.NewWatch(event.Status{Connection: cfg.ConnectionType()}),
		keys:   event.NewChannel[event.KeyEvent](keyEventDepth),
	}
	s.add("logger", logs.Run)
	if opts.Clock == nil {
		opts.Clock = s.clock()
	}
	s.log.Info("rmk starting", "build", buildinfo.Short(), "keyboard", cfg.Keyboard.Name, "role", cfg.Split.Role)
	bootStep(h, "config")

	tables, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	data := &storagesvc.Data{
		Keymap:     tables.Keymap,
		Morses:     tables.Morses,
		Combos:     tables.Combos,
		Forks:      tables.Forks,
		Macros:     tables.Macros,
		Behavior:   cfg.Behavior.Behavior(),
		Layout:     storage.LayoutConfig{DefaultLayer: cfg.Layout.DefaultLayer},
		Connection: cfg.ConnectionType(),
	}

	bootStep(h, "storage")
	st, store := s.openStorage(data, logger.For(handler, "storage"))
	var central [6]byte
	if st != nil {
		if pa, err := storage.Load[storage.PeerAddress](st, storage.PeerKey(0)); err == nil {
			central = pa.Addr
		}
	}
	s.status.Update(func(v *event.Status) { v.Connection = data.Connection })

	bootStep(h, "matrix")
	if err := s.addMatrix(opts, logger.For(handler, "matrix")); err != nil {
		return nil, err
	}

	if opts.OpenLink == nil {
		opts.OpenLink = func(string) (io.ReadWriter, error) {
			if h.Serial() == nil {
				return nil, fmt.Errorf("split link: %w", hal.ErrNotImplemented)
			}
			return h.Serial(), nil
		}
	}
	if cfg.Split.Role == config.RolePeripheral {
		link, err := opts.OpenLink(cfg.Split.Serial)
		if err != nil {
			return nil, err
		}
		p := split.NewPeripheral(split.PeripheralConfig{
			ID:      cfg.Split.ID,
			Addr:    addrOf(cfg),
			Rows:    uint8(cfg.Matrix.Rows),
			Cols:    uint8(cfg.Matrix.Cols),
			Link:    split.NewLink(link),
			Events:  s.keys.MustSubscribe(),
			Central: central,
			Store:   store,
			Status:  s.status,
			Log:     logger.For(handler, "split"),
		})
		s.add("split", p.Run)
		s.addStatus(logger.For(handler, "status"))
		bootStep(h, "peripheral ready")
		return s, nil
	}

	notify := func(c event.Controller) { s.status.Update(c.Apply) }
	if cfg.Split.Role == config.RoleCentral {
		peers := make([]split.Peer, 0, len(cfg.Split.Peers))
		for _, pc := range cfg.Split.Peers {
			link, err := opts.OpenLink(pc.Serial)
			if err != nil {
				return nil, fmt.Errorf("peer %d: %w", pc.ID, err)
			}
			peers = append(peers, split.Peer{
				ID:            pc.ID,
				Link:          split.NewLink(link),
				RowOffset:     pc.RowOffset,
				ColOffset:     pc.ColOffset,
				EncoderOffset: pc.EncoderOffset,
			})
		}
		c := split.NewCentral(split.CentralConfig{
			Addr:   addrOf(cfg),
			Peers:  peers,
			Events: s.keys,
			Clock:  opts.Clock,
			Notify: notify,
			Store:  store,
			Log:    logger.For(handler, "split"),
		})
		s.add("split", c.Run)
		rcv := s.status.Receiver()
		s.add("split-sync", func(ctx context.Context) error { return c.SyncStatus(ctx, rcv) })
	}

	reboot := opts.Reboot
	if reboot == nil {
		reboot = func(bootloader bool) { s.log.Warn("reboot requested", "bootloader", bootloader) }
	}

	reports := event.NewChannel[hid.Report](reportDepth)
	kb, err := kbsvc.New(kbsvc.Config{
		Engine: keyboard.Options{
			Keymap:       data.Keymap,
			Morses:       data.Morses,
			Combos:       data.Combos,
			Forks:        data.Forks,
			Macros:       data.Macros,
			TriLayer:     cfg.TriLayer(),
			DefaultLayer: data.Layout.DefaultLayer,
			Behavior:     data.Behavior,
			Hand:         cfg.Hand(),
			Reboot:       reboot,
		},
		Events:  s.keys.MustSubscribe(),
		Reports: reports,
		Status:  s.status,
		Reload:  opts.Reload,
		Clock:   opts.Clock,
		Log:     logger.For(handler, "keyboard"),
	})
	if err != nil {
		return nil, err
	}
	s.add("keyboard", kb.Run)

	w, err := hidwriter.New(hidwriter.Config{
		HID:     h.HID(),
		Reports: reports.MustSubscribe(),
		Status:  s.status,
		CapsLED: h.LED(),
		Log:     logger.For(handler, "hid"),
	})
	if err != nil {
		return nil, err
	}
	s.add("hid", w.Run)

	if err := s.addVial(data, store, opts.Clock, reboot, logger.For(handler, "vial")); err != nil {
		return nil, err
	}
	s.addStatus(logger.For(handler, "status"))
	bootStep(h, "ready")
	return s, nil
}

// Status is the live controller state.
func (s *System) Status() *event.Watch[event.Status] { return s.status }

// Keys is the debounced key event channel. The simulator publishes virtual
// presses on it.
func (s *System) Keys() *event.Channel[event.KeyEvent] { return s.keys }

// Vial is the host protocol service, nil on a split peripheral.
func (s *System) Vial() *vial.Service { return s.vial }

// Run starts every task and blocks until one fails or ctx ends. A panicking
// task takes the whole group down after painting the panic screen.
func (s *System) Run(ctx context.Context) error {
	bootDiagStart(ctx, s.h)
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		g.Go(func() (err error) {
			defer func() {
				if v := recover(); v != nil {
					showPanic(s.h, t.name, v)
					err = fmt.Errorf("%s: panic: %v", t.name, v)
				}
			}()
			err = t.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("task stopped", "task", t.name, "err", err)
			}
			return err
		})
	}
	return g.Wait()
}

func (s *System) add(name string, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, task{name: name, run: run})
}

// openStorage mounts the store and overlays it on data. Without usable
// flash the keyboard runs on its compiled-in tables and edits stay in RAM.
func (s *System) openStorage(data *storagesvc.Data, log *slog.Logger) (*storage.Store, *client.Client) {
	cfg := s.cfg
	if !cfg.Storage.Enabled || s.h.Flash() == nil || s.h.Flash().SizeBytes() == 0 {
		log.Info("storage disabled")
		return nil, nil
	}
	st, err := storage.Open(s.h.Flash(), cfg.StorageConfig(), log)
	if err != nil {
		log.Error("storage unavailable", "err", err)
		return nil, nil
	}
	switch {
	case cfg.Storage.ClearStorage:
		err = st.EraseAll()
	case cfg.Storage.ClearLayout:
		err = st.ClearLayout()
	}
	if err != nil {
		log.Error("storage clear failed", "err", err)
	}

	r, err := storagesvc.Restore(st, data, storagesvc.Options{
		BuildHash: BuildHash(cfg),
		Preserve:  cfg.Storage.Preserve,
	}, log)
	if err != nil {
		log.Error("storage restore failed", "err", err)
	}
	log.Info("storage restored", "items", r.Items, "first_boot", r.FirstBoot)
	if r.FirstBoot {
		s.status.Update(event.Controller{Kind: event.CtrlStorageReset}.Apply)
	}

	queue := make(chan client.Request, storagesvc.DefaultQueueDepth)
	svc := storagesvc.New(st, queue, log)
	svc.OnReset = func() { s.status.Update(event.Controller{Kind: event.CtrlStorageReset}.Apply) }
	s.add("storage", svc.Run)
	return st, client.New(queue)
}

func (s *System) addMatrix(opts Options, log *slog.Logger) error {
	cfg := s.cfg
	pins := opts.MatrixPins
	if pins == nil {
		pins = gpioPins(s.h.GPIO())
	}
	outs, ins, err := pins(cfg)
	if err != nil {
		return err
	}
	m, err := matrix.New(cfg.MatrixConfig(), outs, ins, cfg.Debouncer(), log)
	if err != nil {
		return err
	}

	var encoders []matrixsvc.Poller
	for i, ec := range cfg.Encoders {
		ab, err := hal.Pins(s.h.GPIO(), []int{ec.PinA, ec.PinB})
		if err != nil {
			log.Warn("encoder disabled", "encoder", i, "err", err)
			continue
		}
		e, err := encoder.New(uint8(i), ab[0], ab[1], ec.Pulses, ec.Reverse)
		if err != nil {
			return fmt.Errorf("encoder %d: %w", i, err)
		}
		encoders = append(encoders, e)
	}

	svc := matrixsvc.New(matrixsvc.Config{
		Matrix:    m,
		Encoders:  encoders,
		Events:    s.keys,
		Clock:     opts.Clock,
		Interval:  time.Duration(cfg.Matrix.ScanIntervalMs) * time.Millisecond,
		IdleAfter: 5 * time.Second,
		Log:       log,
	})
	s.add("matrix", svc.Run)
	return nil
}

func (s *System) addVial(data *storagesvc.Data, store *client.Client, clk clock.Clock, reboot func(bool), log *slog.Logger) error {
	defaults, err := s.cfg.Build()
	if err != nil {
		return err
	}
	def, err := s.cfg.Definition()
	if err != nil {
		return err
	}
	var vs vial.Store = ramStore{}
	if store != nil {
		vs = store
	}
	v, err := vial.New(vial.Config{
		Live: vial.Tables{
			Keymap: data.Keymap,
			Morses: data.Morses,
			Combos: data.Combos,
			Forks:  data.Forks,
			Macros: data.Macros,
		},
		Defaults: vial.Tables{
			Keymap: defaults.Keymap,
			Morses: defaults.Morses,
			Combos: defaults.Combos,
			Forks:  defaults.Forks,
			Macros: defaults.Macros,
		},
		Store:      vs,
		Layout:     data.Layout,
		KeyboardID: s.cfg.KeyboardID(),
		Definition: def,
		Clock:      clk,
		Notify:     func(c event.Controller) { s.status.Update(c.Apply) },
		Reboot:     reboot,
		Log:        log,
	})
	if err != nil {
		return err
	}
	s.vial = v
	raw := s.h.RawHID()
	if raw != nil {
		s.add("vial", func(ctx context.Context) error { return hidwriter.ServeRaw(ctx, raw, v, log) })
	}
	return nil
}

func (s *System) addStatus(log *slog.Logger) {
	d := s.h.Display()
	if d == nil || d.Framebuffer() == nil || d.Framebuffer().Buffer() == nil {
		return
	}
	names := make([]string, s.cfg.Layout.Layers)
	for i := range names {
		names[i] = fmt.Sprintf("%d", i)
	}
	svc, err := status.New(status.Config{
		Framebuffer: d.Framebuffer(),
		Status:      s.status,
		LayerNames:  names,
		Log:         log,
	})
	if err != nil {
		log.Warn("status display disabled", "err", err)
		return
	}
	s.add("status", svc.Run)
}

// gpioPins looks the configured pin numbers up in g.
func gpioPins(g hal.GPIO) func(cfg *config.Config) (outs, ins []hal.GPIOPin, err error) {
	return func(cfg *config.Config) (outs, ins []hal.GPIOPin, err error) {
		lookup := func(ids []int) ([]hal.GPIOPin, error) {
			pins, err := hal.Pins(g, ids)
			if err != nil {
				return nil, fmt.Errorf("matrix: %w", err)
			}
			return pins, nil
		}
		if cfg.Matrix.Direct {
			ins, err = lookup(cfg.Matrix.DirectPins)
			return nil, ins, err
		}
		rows, err := lookup(cfg.Matrix.RowPins)
		if err != nil {
			return nil, nil, err
		}
		cols, err := lookup(cfg.Matrix.ColPins)
		if err != nil {
			return nil, nil, err
		}
		if cfg.MatrixConfig().Diode == matrix.Row2Col {
			return rows, cols, nil
		}
		return cols, rows, nil
	}
}

// clock follows the board's tick stream when it has one.
func (s *System) clock() clock.Clock {
	if t := s.h.Time(); t != nil {
		if ticks := t.Ticks(); ticks != nil {
			c := &clock.Ticked{}
			s.add("clock", func(ctx context.Context) error { return c.Follow(ctx, ticks) })
			return c
		}
	}
	return clock.NewMonotonic()
}

// BuildHash ties stored data to this firmware and its default keymap.
func BuildHash(cfg *config.Config) uint32 {
	var parts []string
	for _, layer := range cfg.Layout.Keymap {
		for _, row := range layer {
			parts = append(parts, strings.Join(row, " "))
		}
	}
	return buildinfo.Hash(parts...)
}

// addrOf derives the split address from the keyboard id.
func addrOf(cfg *config.Config) [6]byte {
	var a [6]byte
	id := cfg.KeyboardID()
	copy(a[:], id[2:])
	a[5] ^= cfg.Split.ID
	return a
}

// ramStore accepts every write without persisting it.
type ramStore struct{}

func (ramStore) Put(context.Context, uint32, storage.Value) error { return nil }
func (ramStore) Delete(context.Context, uint32) error             { return nil }
func (ramStore) ClearLayout(context.Context) error                { return nil }
func (ramStore) EraseAll(context.Context) error                   { return nil }

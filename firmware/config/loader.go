package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads a description file, TOML or YAML by extension, on top of the
// compiled-in defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if cfg.Keyboard.VialJSON != "" && !filepath.IsAbs(cfg.Keyboard.VialJSON) {
		cfg.Keyboard.VialJSON = filepath.Join(filepath.Dir(path), cfg.Keyboard.VialJSON)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data in the format named by ext (".toml", ".yaml", ".yml").
// Fields missing from data keep their Default values, except the keymap and
// host key bindings, which are replaced whole. The layer count defaults to
// the number of keymap layers.
func Decode(data []byte, ext string) (*Config, error) {
	cfg := Default()
	cfg.Layout.Layers = 0
	cfg.Layout.Keymap = nil
	cfg.Host.Keys = nil
	switch strings.ToLower(ext) {
	case ".toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode TOML: %w", err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("%w: unknown key %s", ErrInvalid, undec[0])
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalid, ext)
	}
	if cfg.Layout.Layers == 0 {
		cfg.Layout.Layers = len(cfg.Layout.Keymap)
	}
	return cfg, nil
}

// Loader keeps the current description and reloads it when the file changes.
// Only the behavior section takes effect without a reboot.
type Loader struct {
	path string
	log  *slog.Logger

	mu       sync.RWMutex
	cfg      *Config
	onChange []func(*Config)
}

func NewLoader(path string, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{path: path, log: log}
}

func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnChange registers cb for every successful reload. Call before Watch.
func (l *Loader) OnChange(cb func(*Config)) {
	l.onChange = append(l.onChange, cb)
}

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the file on every write until ctx ends. A description that
// fails to load is logged and the previous one stays in force.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	defer w.Close()
	// Editors replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(l.path) || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDelay)
			} else {
				timer.Reset(reloadDelay)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			l.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("config: watch error", "err", err)
		}
	}
}

func (l *Loader) reload() {
	cfg, err := l.Load()
	if err != nil {
		l.log.Warn("config: reload rejected", "path", l.path, "err", err)
		return
	}
	l.log.Info("config: reloaded", "path", l.path)
	for _, cb := range l.onChange {
		cb(cfg)
	}
}

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/fsnotify/fsnotify"

	"github.com/ghettovoice/sipproxy/internal/errorutil"
	"github.com/ghettovoice/sipproxy/internal/timeutil"
	"github.com/ghettovoice/sipproxy/log"
	"github.com/ghettovoice/sipproxy/proxy"
)

// DefaultDebounce is the delay between the last file event and the reload.
const DefaultDebounce = 100 * time.Millisecond

// RouteUpdater applies reloaded routes and filters, [proxy.Proxy] implements it.
type RouteUpdater interface {
	UpdateRoutes(routes []proxy.Route, filters []proxy.FilterRule) error
}

// Watcher reloads the configuration file when it changes and applies
// its routes and filters to the running proxy.
// Other sections require a restart and are ignored on reload.
type Watcher struct {
	path     string
	target   RouteUpdater
	debounce time.Duration
	onReload func(cfg *Config, err error)
	log      *slog.Logger

	fsw  *fsnotify.Watcher
	tmr  *timeutil.Timer
	fire chan struct{}
	done chan struct{}

	mu   sync.Mutex
	last *Config
}

// WatcherOptions are optional watcher parameters.
type WatcherOptions struct {
	Debounce time.Duration
	// OnReload is called after each reload attempt with the loaded config or the error.
	OnReload func(cfg *Config, err error)
	Logger   *slog.Logger
}

// NewWatcher starts watching the directory of path.
// Editors often replace files by rename, so events are filtered by file name.
func NewWatcher(path string, target RouteUpdater, opts *WatcherOptions) (*Watcher, error) {
	if target == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil route updater"))
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	path = filepath.Clean(path)
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, errtrace.Wrap(err)
	}

	w := &Watcher{
		path:     path,
		target:   target,
		debounce: DefaultDebounce,
		log:      log.Default(),
		fsw:      fsw,
		fire:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if opts != nil {
		if opts.Debounce > 0 {
			w.debounce = opts.Debounce
		}
		if opts.Logger != nil {
			w.log = opts.Logger
		}
		w.onReload = opts.OnReload
	}
	w.tmr = timeutil.AfterFunc(w.debounce, w.trigger)
	w.tmr.Stop()
	go w.serve()
	return w, nil
}

func (w *Watcher) trigger() {
	select {
	case w.fire <- struct{}{}:
	default:
	}
}

func (w *Watcher) serve() {
	defer close(w.done)

	for {
		select {
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path || evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.LogAttrs(context.Background(), slog.LevelDebug, "config file changed",
				slog.String("path", evt.Name),
				slog.String("op", evt.Op.String()),
			)
			w.tmr.Reset(w.debounce)
		case <-w.fire:
			cfg, err := w.reload()
			if w.onReload != nil {
				w.onReload(cfg, err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.LogAttrs(context.Background(), slog.LevelWarn, "config watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) reload() (*Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.LogAttrs(context.Background(), slog.LevelWarn, "config reload failed, keep previous routes",
			slog.String("path", w.path),
			slog.Any("error", err),
		)
		return nil, errtrace.Wrap(err)
	}
	if err := w.target.UpdateRoutes(cfg.Routes, cfg.Filters); err != nil {
		w.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to apply reloaded routes",
			slog.String("path", w.path),
			slog.Any("error", err),
		)
		return nil, errtrace.Wrap(err)
	}

	w.mu.Lock()
	w.last = cfg
	w.mu.Unlock()
	w.log.LogAttrs(context.Background(), slog.LevelInfo, "config reloaded",
		slog.String("path", w.path),
		slog.Any("config", cfg),
	)
	return cfg, nil
}

// Last returns the last successfully reloaded configuration, nil before the first reload.
func (w *Watcher) Last() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Close stops watching and waits for a running reload to finish.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	w.tmr.Stop()
	return errtrace.Wrap(err)
}

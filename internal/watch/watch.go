// Package watch owns the long-lived configuration snapshot. A background
// loop polls a blob source (file or Redis), parses changed blobs into a
// fresh engine handle, and swaps the handle atomically. Readers always
// see either the old or the new snapshot in full, never a partial one;
// the core client never holds a mutable reference, only this package's
// "fetch current handle" call.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/variantlab/decider/internal/engine"
	"github.com/variantlab/decider/internal/observability"
)

// Parser turns a raw config blob into an immutable engine handle. It is
// injected: the bucketing engine implementation is not this module's
// concern.
type Parser func(data []byte) (engine.Engine, error)

// Loader fetches the current raw config blob from wherever it is
// distributed.
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
	// Source names the loader for logs and metrics ("file", "redis").
	Source() string
}

// Config tunes the watcher.
type Config struct {
	// Interval is the poll period. Defaults to 10s when unset or too
	// small.
	Interval time.Duration

	// FirstLoadTimeout bounds WaitReady. Zero means WaitReady returns
	// immediately with the current state (non-blocking), matching the
	// historical default.
	FirstLoadTimeout time.Duration
}

// Watcher polls a Loader and maintains the current engine handle.
type Watcher struct {
	log    *slog.Logger
	cfg    Config
	loader Loader
	parser Parser

	handle   atomic.Pointer[handle]
	lastBlob atomic.Pointer[[]byte]
	ready    chan struct{}
}

// handle wraps the engine so the atomic pointer always swaps a complete
// snapshot.
type handle struct {
	eng engine.Engine
}

// New creates a watcher. loader and parser are mandatory.
func New(loader Loader, parser Parser, cfg Config, log *slog.Logger) *Watcher {
	if loader == nil {
		panic("watch: loader cannot be nil")
	}
	if parser == nil {
		panic("watch: parser cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval < time.Second {
		cfg.Interval = 10 * time.Second // Safe default
	}

	return &Watcher{
		log:    log,
		cfg:    cfg,
		loader: loader,
		parser: parser,
		ready:  make(chan struct{}),
	}
}

// Engine returns the current engine handle, or engine.ErrUnavailable when
// no snapshot has loaded yet. Callers are expected to treat
// unavailability as "operate with defaults", not as a request failure.
func (w *Watcher) Engine() (engine.Engine, error) {
	h := w.handle.Load()
	if h == nil {
		return nil, engine.ErrUnavailable
	}
	return h.eng, nil
}

// Run starts the poll loop. It blocks until ctx is cancelled. A reload
// failure never stops the loop; the previous snapshot stays live.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("starting config watcher",
		slog.String("source", w.loader.Source()),
		slog.Duration("interval", w.cfg.Interval),
	)

	if err := w.reload(ctx); err != nil {
		w.log.Error("initial config load failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("config watcher stopping")
			return nil
		case <-ticker.C:
			if err := w.reload(ctx); err != nil {
				w.log.Error("config reload failed, keeping previous snapshot",
					slog.String("error", err.Error()))
			}
		}
	}
}

// WaitReady blocks until the first snapshot is loaded or
// Config.FirstLoadTimeout elapses. With a zero timeout it only reports
// the current state.
func (w *Watcher) WaitReady(ctx context.Context) error {
	if w.cfg.FirstLoadTimeout <= 0 {
		select {
		case <-w.ready:
			return nil
		default:
			return engine.ErrUnavailable
		}
	}

	timer := time.NewTimer(w.cfg.FirstLoadTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("watch: no config snapshot after %s: %w", w.cfg.FirstLoadTimeout, engine.ErrUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reload performs one load-parse-swap cycle. Unchanged blobs are skipped
// without touching the handle.
func (w *Watcher) reload(ctx context.Context) error {
	source := w.loader.Source()

	blob, err := w.loader.Load(ctx)
	if err != nil {
		observability.SnapshotReloadsTotal.WithLabelValues(source, "fail").Inc()
		return err
	}

	if last := w.lastBlob.Load(); last != nil && bytes.Equal(*last, blob) {
		return nil
	}

	eng, err := w.parser(blob)
	if err != nil {
		observability.SnapshotReloadsTotal.WithLabelValues(source, "fail").Inc()
		return fmt.Errorf("parse config blob: %w", err)
	}

	w.handle.Store(&handle{eng: eng})
	w.lastBlob.Store(&blob)
	w.signalReady()

	observability.SnapshotReloadsTotal.WithLabelValues(source, "success").Inc()
	observability.SnapshotTimestamp.WithLabelValues(source).SetToCurrentTime()

	w.log.Info("config snapshot swapped",
		slog.String("source", source),
		slog.Int("bytes", len(blob)),
	)
	return nil
}

func (w *Watcher) signalReady() {
	select {
	case <-w.ready:
		// already closed
	default:
		close(w.ready)
	}
}

// FileLoader reads the config blob from a local file written by an
// external fetcher daemon.
type FileLoader struct {
	Path string
}

func (f *FileLoader) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", f.Path, err)
	}
	return data, nil
}

func (f *FileLoader) Source() string { return "file" }

// Package watch analyzes transcripts dropped into an inbox directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"coach-backend/internal/ingest"
	"coach-backend/internal/shared/telemetry"
)

const (
	DefaultMaxConcurrent = 2
	DefaultSettle        = 500 * time.Millisecond
)

// HandlerFunc processes one transcript file.
type HandlerFunc func(ctx context.Context, path string) error

// Watcher runs a handler for every transcript created in its inbox.
type Watcher struct {
	inbox   string
	handler HandlerFunc
	fs      *fsnotify.Watcher
	sem     chan struct{}
	wg      sync.WaitGroup

	// Settle is how long a new file is left alone before it is read.
	Settle time.Duration
	// Backlog processes files already in the inbox when Run starts.
	Backlog bool

	mu       sync.Mutex
	inflight map[string]bool
}

// New watches inbox. At most maxConcurrent files are handled at once.
func New(inbox string, handler HandlerFunc, maxConcurrent int) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(inbox); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Watcher{
		inbox:    inbox,
		handler:  handler,
		fs:       fsw,
		sem:      make(chan struct{}, maxConcurrent),
		Settle:   DefaultSettle,
		inflight: make(map[string]bool),
	}, nil
}

// Run blocks until ctx is done, then waits for in-flight files and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	telemetry.Info("watch.started", map[string]any{"inbox": w.inbox, "max_concurrent": cap(w.sem)})
	defer w.wg.Wait()

	if w.Backlog {
		if err := w.backlog(ctx); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			telemetry.Info("watch.stopping", map[string]any{"inbox": w.inbox})
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !Supported(event.Name) {
				telemetry.Debug("watch.ignored", map[string]any{"path": event.Name})
				continue
			}
			if err := w.dispatch(ctx, event.Name); err != nil {
				return err
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			telemetry.Error("watch.error", map[string]any{"error": err.Error()})
		}
	}
}

// Close stops receiving events.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) backlog(ctx context.Context) error {
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && Supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.dispatch(ctx, filepath.Join(w.inbox, name)); err != nil {
			return err
		}
	}
	return nil
}

// dispatch waits for a free slot, then handles path in the background.
func (w *Watcher) dispatch(ctx context.Context, path string) error {
	if !w.claim(path) {
		return nil
	}
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.release(path)
		return ctx.Err()
	}
	telemetry.Info("watch.detected", map[string]any{"path": path})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		defer w.release(path)

		if w.Settle > 0 {
			select {
			case <-time.After(w.Settle):
			case <-ctx.Done():
				return
			}
		}
		started := time.Now()
		if err := w.handler(ctx, path); err != nil {
			telemetry.Error("watch.failed", map[string]any{"path": path, "error": err.Error()})
			return
		}
		telemetry.Info("watch.processed", map[string]any{"path": path, "duration_ms": time.Since(started).Milliseconds()})
	}()
	return nil
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[path] {
		return false
	}
	w.inflight[path] = true
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

// Supported reports whether path has a transcript extension.
func Supported(path string) bool {
	_, err := ingest.DetectFormat(path)
	return err == nil
}

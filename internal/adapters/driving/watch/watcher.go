// Package watch ingests files dropped into a directory. It drives the same
// IngestService as the CLI, so a file saved twice with identical bytes is
// stored once.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Defaults.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultMaxFileSize = 50 << 20
)

// ResultFunc receives the outcome of each ingestion attempt.
type ResultFunc func(path string, result *domain.IngestResult, err error)

// Watcher ingests new and modified files under a directory tree.
type Watcher struct {
	root        string
	ingest      driving.IngestService
	debounce    time.Duration
	maxFileSize int64
	onResult    ResultFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxFileSize skips files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxFileSize = n
		}
	}
}

// WithResultFunc registers a callback for ingestion outcomes.
func WithResultFunc(fn ResultFunc) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// New creates a watcher for root.
func New(root string, ingest driving.IngestService, opts ...Option) *Watcher {
	w := &Watcher{
		root:        root,
		ingest:      ingest,
		debounce:    DefaultDebounce,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan ingests every eligible file already present. Files ingested earlier
// come back as AlreadyExisted without touching the store.
func (w *Watcher) Scan(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != w.root && isHidden(w.rel(path)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			w.ingestFile(ctx, path)
		}
		return nil
	})
}

// Run watches until ctx is cancelled. Bursts of events for one path are
// coalesced and the path is ingested once it has been quiet for the
// debounce interval.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}
	logger.Info("Watching %s", w.root)

	due := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.debounce/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			w.handleEvent(watcher, event, due)

		case wErr, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			logger.Warn("watch error: %v", wErr)

		case now := <-ticker.C:
			for path, at := range due {
				if now.Before(at) {
					continue
				}
				delete(due, path)
				w.ingestFile(ctx, path)
			}
		}
	}
}

func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, due map[string]time.Time) {
	if isHidden(w.rel(event.Name)) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// Stored documents are immutable; removal from disk does not delete them.
		delete(due, event.Name)
		return
	case !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write):
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.addTree(watcher, event.Name); err != nil {
				logger.Warn("watch %s: %v", event.Name, err)
			}
			// Files written before the watch was added produce no events.
			w.queueTree(event.Name, due)
		}
		return
	}
	if info.Mode().IsRegular() {
		due[event.Name] = time.Now().Add(w.debounce)
	}
}

// addTree watches dir and every non-hidden subdirectory.
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && isHidden(w.rel(path)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) queueTree(dir string, due map[string]time.Time) {
	at := time.Now().Add(w.debounce)
	//nolint:errcheck // Best-effort; unreadable entries are skipped
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if isHidden(w.rel(path)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			due[path] = at
		}
		return nil
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	result, err := w.readAndIngest(ctx, path)
	switch {
	case err != nil:
		logger.Warn("Ingest %s failed: %v", path, err)
	case result.AlreadyExisted:
		logger.Debug("Ingest %s: unchanged (document %s)", path, result.DocumentID)
	default:
		logger.Info("Ingested %s: document %s, %d chunks", path, result.DocumentID, result.ChunksIngested)
	}
	if w.onResult != nil {
		w.onResult(path, result, err)
	}
}

func (w *Watcher) readAndIngest(ctx context.Context, path string) (*domain.IngestResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, domain.NewValidationError("content", "must not be empty")
	}
	if info.Size() > w.maxFileSize {
		return nil, domain.NewValidationError("content", fmt.Sprintf("file exceeds %d bytes", w.maxFileSize))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return w.ingest.Ingest(ctx, domain.IngestRequest{
		Content:  content,
		Filename: filepath.Base(path),
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return rel
}

// isHidden reports whether any element of path starts with a dot, or the
// file looks like an editor or download temporary.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "." || part == ".." || part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := filepath.Base(path)
	return strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".part") ||
		strings.HasSuffix(base, ".crdownload")
}

package rag

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/docchat/pkg/types"
)

// Watcher watches the document tree and keeps collections in sync with
// documents dropped into or removed from it outside the upload API.
type Watcher struct {
	engine  *Engine
	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// NewWatcher creates a watcher over the engine's document tree.
func NewWatcher(engine *Engine, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		engine:       engine,
		watcher:      fsw,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounce,
	}, nil
}

// Watch starts watching for document changes. It blocks until the
// context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}

	slog.Info("watching document tree", "root", w.engine.Docs().Root())

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping document watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// addWatchDirs watches the shared directory and every user directory.
func (w *Watcher) addWatchDirs() error {
	docs := w.engine.Docs()
	usersRoot := filepath.Join(docs.Root(), "users")

	dirs := []string{docs.SharedDir(), usersRoot}
	entries, err := os.ReadDir(usersRoot)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(usersRoot, e.Name()))
			}
		}
	}

	for _, dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			slog.Warn("failed to watch directory", "path", dir, "error", err)
		}
	}
	return nil
}

// handleEvent queues changed documents for debounced processing. New
// user directories are added to the watch set as they appear.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return
	}

	path := event.Name
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
			return
		}
	}

	if _, ok := w.scopeFor(path); !ok {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[path] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("document changed", "path", path, "op", event.Op.String())
}

// scopeFor maps a document path to its collection scope.
func (w *Watcher) scopeFor(path string) (types.ScopeKey, bool) {
	docs := w.engine.Docs()

	rel, err := filepath.Rel(docs.Root(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return types.ScopeKey{}, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch {
	case len(parts) == 2 && parts[0] == "shared":
		return types.SharedScope(), true
	case len(parts) == 3 && parts[0] == "users":
		return types.UserScope(parts[1]), true
	}
	return types.ScopeKey{}, false
}

// processDebounced processes pending documents after the debounce
// period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending handles documents that have been stable for the
// debounce period.
func (w *Watcher) processPending(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	// One rebuild per touched scope. Rebuilding instead of inserting
	// keeps re-written documents from accumulating duplicate chunks.
	scopes := make(map[string]types.ScopeKey)
	for _, path := range toProcess {
		if scope, ok := w.scopeFor(path); ok {
			scopes[scope.Collection()] = scope
		}
	}

	for _, scope := range scopes {
		if ctx.Err() != nil {
			return
		}
		slog.Info("document tree changed, rebuilding collection", "scope", scope.String())
		if err := w.engine.Rebuild(ctx, scope); err != nil {
			slog.Warn("rebuild failed", "scope", scope.String(), "error", err)
		}
	}
}

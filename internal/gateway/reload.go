// ABOUTME: Snapshot holder and file watcher for swapping snapshots without a restart
// ABOUTME: In-flight requests keep their snapshot until they finish; the old store closes after

package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/hub-gateway/internal/fingerprint"
	"github.com/2389/hub-gateway/internal/hub"
	"github.com/2389/hub-gateway/internal/store"
)

// snapshot is one opened snapshot file with the state derived from it.
// Requests hold mu for reading while they use it.
type snapshot struct {
	store     store.Store
	assembler *hub.Assembler
	cache     *fingerprint.Cache
	loadedAt  time.Time

	mu      sync.RWMutex
	retired bool
}

// release ends a request's use of the snapshot
func (s *snapshot) release() {
	s.mu.RUnlock()
}

// retire waits for in-flight requests and closes the store
func (s *snapshot) retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return nil
	}
	s.retired = true
	return s.store.Close()
}

// snapshotHolder publishes the current snapshot to request handlers
type snapshotHolder struct {
	current atomic.Pointer[snapshot]
}

func newSnapshotHolder(s *snapshot) *snapshotHolder {
	h := &snapshotHolder{}
	h.current.Store(s)
	return h
}

// acquire returns the current snapshot read-locked. Callers must release it.
func (h *snapshotHolder) acquire() *snapshot {
	for {
		s := h.current.Load()
		s.mu.RLock()
		if !s.retired {
			return s
		}
		// Swapped and retired between Load and RLock; the new one is published.
		s.mu.RUnlock()
	}
}

// swap publishes next and returns the previous snapshot
func (h *snapshotHolder) swap(next *snapshot) *snapshot {
	return h.current.Swap(next)
}

func (h *snapshotHolder) close() error {
	return h.current.Load().retire()
}

// Reload opens the configured snapshot file again and swaps it in.
// A file that fails to open leaves the current snapshot serving.
func (g *Gateway) Reload(ctx context.Context) error {
	if g.openStore == nil {
		return fmt.Errorf("reload: gateway has no snapshot file")
	}

	s, err := g.openStore(ctx, g.config.Database.Path)
	if err != nil {
		g.logger.Error("snapshot reload failed, keeping current snapshot", "error", err)
		return fmt.Errorf("reloading snapshot: %w", err)
	}

	old := g.snapshots.swap(g.newSnapshot(s))
	g.logger.Info("snapshot swapped", "path", g.config.Database.Path)

	go func() {
		if err := old.retire(); err != nil {
			g.logger.Warn("closing previous snapshot", "error", err)
		}
	}()
	return nil
}

// watcher reloads the snapshot when its file is replaced
type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Close stops watching
func (w *watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

// watchSnapshot watches the directory holding path. Writers replace the
// file by renaming a finished temp file over it, which shows up as a
// create event for path.
func (g *Gateway) watchSnapshot(ctx context.Context, path string) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating snapshot watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching snapshot directory: %w", err)
	}

	target := filepath.Clean(path)
	w := &watcher{fs: fsw, done: make(chan struct{})}
	logger := g.logger.With("path", target)
	logger.Info("watching snapshot for replacement")

	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Create) {
					continue
				}
				logger.Debug("snapshot replaced", "op", ev.Op.String())
				reloadCtx, cancel := context.WithTimeout(ctx, openTimeout)
				_ = g.Reload(reloadCtx)
				cancel()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("snapshot watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	return w, nil
}

package knowledge

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Root     string        // corpus directory, watched recursively
	Debounce time.Duration // coalesce rapid write/rename bursts, default 2s
}

// Watcher re-indexes changed corpus files and swaps the retriever's snapshot.
type Watcher struct {
	cfg       WatchConfig
	builder   *Builder
	retriever *Retriever
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	flushCh chan struct{}
}

func NewWatcher(cfg WatchConfig, b *Builder, r *Retriever, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:       cfg,
		builder:   b,
		retriever: r,
		logger:    logger,
		pending:   map[string]struct{}{},
		flushCh:   make(chan struct{}, 1),
	}
}

// Run watches until ctx is done. Setup errors are returned immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if strings.TrimSpace(w.cfg.Root) == "" {
		return errors.New("no corpus root provided")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create fsnotify watcher", "error", err)
		return err
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("failed to close fsnotify watcher", "error", err)
		}
	}()

	err = filepath.WalkDir(w.cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("failed to add corpus directory", "root", w.cfg.Root, "error", err)
		return err
	}
	w.logger.Info("knowledge.watch.started", "root", w.cfg.Root, "debounce", w.cfg.Debounce)

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, e)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		case <-w.flushCh:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, e fsnotify.Event) {
	if e.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
			if err := fw.Add(e.Name); err != nil {
				w.logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
			}
			return
		}
	}
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	rel, err := filepath.Rel(w.cfg.Root, e.Name)
	if err != nil || !w.builder.Matches(rel) {
		return
	}
	w.enqueue(e.Name)
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	})
}

// flush re-indexes every pending path and swaps in a fresh snapshot.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()
	if len(paths) == 0 {
		return
	}

	indexed, removed, failed := 0, 0, 0
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			if err := w.builder.RemoveFile(ctx, w.cfg.Root, p); err != nil {
				w.logger.Error("knowledge.watch.remove_failed", "path", p, "error", err)
				failed++
				continue
			}
			removed++
			continue
		}
		if res := w.builder.IndexFile(ctx, w.cfg.Root, p); res.Err != "" {
			failed++
			continue
		}
		indexed++
	}

	ix, err := w.builder.Load(ctx)
	if err != nil {
		w.logger.Error("knowledge.watch.reload_failed", "error", err)
		return
	}
	w.retriever.Swap(ix)
	w.logger.Info("knowledge.watch.rebuilt",
		"indexed", indexed,
		"removed", removed,
		"failed", failed,
		"chunks", ix.Len(),
	)
}

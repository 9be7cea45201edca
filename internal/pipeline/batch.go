package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/drawing-quotes/constants"
	"github.com/joseph-ayodele/drawing-quotes/internal/async"
	"github.com/joseph-ayodele/drawing-quotes/internal/common"
	"github.com/joseph-ayodele/drawing-quotes/internal/quotes"
)

// BatchItem is the outcome of quoting one file in a directory.
type BatchItem struct {
	Path  string
	Quote *quotes.Quote
	Err   string
}

type BatchStats struct {
	Scanned    int
	Matched    int
	Complete   int
	Incomplete int
	Failed     int
	Duration   time.Duration
}

// BatchOptions controls IngestDirectory. Overrides apply to every file.
type BatchOptions struct {
	Workers     int
	Timeout     time.Duration
	IncludeExts []string // default: every accepted upload extension
	SkipHidden  bool
	Overrides   map[string]string
	Progress    func(done, total int)
}

// IngestDirectory quotes every matching file under root on a bounded worker
// pool. A file that fails is reported in its item; the batch carries on.
// Items come back sorted by path.
func (s *Service) IngestDirectory(ctx context.Context, root string, opts BatchOptions) ([]BatchItem, BatchStats, error) {
	start := time.Now()
	var stats BatchStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.InvalidArgument("root", "root path is required")
	}

	paths, scanned, err := walkUploads(root, opts.IncludeExts, opts.SkipHidden)
	stats.Scanned = scanned
	if err != nil {
		return nil, stats, err
	}
	stats.Matched = len(paths)

	var (
		mu    sync.Mutex
		items = make([]BatchItem, 0, len(paths))
	)
	handle := func(ctx context.Context, job async.Job) error {
		item := BatchItem{Path: job.Path}
		q, err := s.ingestPath(ctx, job.Path, job.Overrides)
		if err != nil {
			item.Err = err.Error()
		} else {
			item.Quote = q
		}
		mu.Lock()
		items = append(items, item)
		done := len(items)
		mu.Unlock()
		if opts.Progress != nil {
			opts.Progress(done, len(paths))
		}
		return err
	}

	qopts := []async.Option{async.WithWorkers(opts.Workers), async.WithQueueSize(len(paths))}
	if opts.Timeout > 0 {
		qopts = append(qopts, async.WithProcessTimeout(opts.Timeout))
	}
	queue := async.NewWorkerQueue(ctx, handle, s.logger, qopts...)

	var enqueueErr error
	for _, p := range paths {
		if err := queue.Enqueue(ctx, async.Job{Path: p, Overrides: opts.Overrides}); err != nil {
			enqueueErr = err
			break
		}
	}
	queue.Shutdown(context.WithoutCancel(ctx))

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	for _, it := range items {
		switch {
		case it.Err != "":
			stats.Failed++
		case it.Quote.Estimate.Complete():
			stats.Complete++
		default:
			stats.Incomplete++
		}
	}
	stats.Duration = time.Since(start)

	s.logger.Info("pipeline.batch.ok",
		"root", root,
		"matched", stats.Matched,
		"complete", stats.Complete,
		"incomplete", stats.Incomplete,
		"failed", stats.Failed,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if enqueueErr != nil {
		return items, stats, fmt.Errorf("enqueue: %w", enqueueErr)
	}
	return items, stats, nil
}

func (s *Service) ingestPath(ctx context.Context, path string, overrides map[string]string) (*quotes.Quote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.IngestAndQuote(ctx, IngestRequest{
		Filename:  filepath.Base(path),
		Content:   data,
		Overrides: overrides,
	})
}

func walkUploads(root string, includeExts []string, skipHidden bool) ([]string, int, error) {
	exts := map[string]struct{}{}
	for e := range constants.AllowedExtensions {
		exts[e] = struct{}{}
	}
	if len(includeExts) > 0 {
		exts = map[string]struct{}{}
		for _, e := range includeExts {
			if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
				exts[e] = struct{}{}
			}
		}
	}

	var paths []string
	scanned := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil
		}
		if skipHidden && path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		scanned++
		if _, ok := exts[constants.NormalizeExt(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, scanned, common.NotFound("root", root)
		}
		return nil, scanned, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(paths)
	return paths, scanned, nil
}

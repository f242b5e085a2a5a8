package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"instapost/internal/image"
	"instapost/internal/publish"
	"instapost/pkg/logx"
)

// Watcher feeds the coordinator from a filesystem directory: one initial
// sweep of files already present, then fsnotify events for new arrivals.
type Watcher struct {
	dir    string
	coord  *Coordinator
	log    logx.Logger
	settle time.Duration
}

func NewWatcher(dir string, coord *Coordinator, log logx.Logger) *Watcher {
	return &Watcher{dir: dir, coord: coord, log: log, settle: 500 * time.Millisecond}
}

// SetSettle overrides the write-settle delay. Tests only.
func (w *Watcher) SetSettle(d time.Duration) { w.settle = d }

// Run watches until the context is cancelled. When fsnotify gets into a
// bad state the watcher is recreated with a small exponential backoff,
// with a fresh sweep to cover anything missed in between.
func (w *Watcher) Run(ctx context.Context) error {
	const (
		initialBackoff = 500 * time.Millisecond
		maxBackoff     = 10 * time.Second
	)
	backoff := initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		w.Sweep(ctx)

		fw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fw.Add(w.dir)
		}
		if err != nil {
			w.log.Warn("watch init failed", logx.Err(err), logx.String("dir", w.dir))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		again := w.watchOnce(ctx, fw)
		fw.Close()
		if !again {
			return nil
		}
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// watchOnce consumes events until cancellation (false) or a channel
// failure that warrants recreating the watcher (true).
func (w *Watcher) watchOnce(ctx context.Context, fw *fsnotify.Watcher) bool {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-fw.Events:
			if !ok {
				w.log.Warn("watch event channel closed; recreating", logx.String("dir", w.dir))
				return true
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !image.IsCandidate(name) {
				continue
			}
			// Let the writer finish before validating the bytes.
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				if !sleepCtx(ctx, w.settle) {
					return
				}
				w.ingest(path)
			}(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				w.log.Warn("watch error channel closed; recreating", logx.String("dir", w.dir))
				return true
			}
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				w.log.Warn("watch overflow; sweeping directory", logx.Err(err))
				w.Sweep(ctx)
				continue
			}
			w.log.Warn("watch error", logx.Err(err))
		}
	}
}

// Sweep schedules every candidate file already sitting in the directory.
func (w *Watcher) Sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn("sweep failed", logx.Err(err), logx.String("dir", w.dir))
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if e.IsDir() || !image.IsCandidate(e.Name()) {
			continue
		}
		w.ingest(filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) ingest(path string) {
	if _, err := os.Stat(path); err != nil {
		// Gone already; a later event or sweep will catch its successor.
		return
	}
	caption := readSidecar(path)
	if _, _, err := w.coord.Schedule(filepath.Base(path), path, caption); err != nil {
		w.log.Error("ingest failed", logx.String("file", filepath.Base(path)), logx.Err(err))
	}
}

func readSidecar(imagePath string) string {
	data, err := os.ReadFile(publish.SidecarPath(imagePath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package mover relocates published images out of the watch folder so the
// active directory only ever holds work still in the queue.
package mover

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"instapost/internal/ledger"
	"instapost/internal/publish"
	"instapost/internal/storage"
	"instapost/pkg/logx"
)

// Mover polls the processed ledger and moves each confirmed file, plus its
// caption sidecar, from the watch directory to the archive. Entries
// without a confirmed URL are left alone; their publish never completed.
type Mover struct {
	processed *ledger.ProcessedStore
	watchDir  string
	archive   string
	interval  time.Duration
	log       logx.Logger
	audit     storage.Store

	moved map[string]struct{}
}

func New(processed *ledger.ProcessedStore, watchDir, archiveDir string, interval time.Duration, log logx.Logger, audit storage.Store) *Mover {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Mover{
		processed: processed,
		watchDir:  watchDir,
		archive:   archiveDir,
		interval:  interval,
		log:       log,
		audit:     audit,
		moved:     map[string]struct{}{},
	}
}

// Run polls until the context is cancelled.
func (m *Mover) Run(ctx context.Context) error {
	if err := os.MkdirAll(m.archive, 0o755); err != nil {
		return err
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep performs one archive pass.
func (m *Mover) Sweep(ctx context.Context) {
	recs, err := m.processed.Confirmed()
	if err != nil {
		m.log.Error("load processed ledger", logx.Err(err))
		return
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if _, ok := m.moved[rec.Filename]; ok {
			continue
		}
		src := filepath.Join(m.watchDir, rec.Filename)
		if _, err := os.Stat(src); err != nil {
			// Already gone (moved by hand or a previous process run).
			m.moved[rec.Filename] = struct{}{}
			continue
		}
		dst := filepath.Join(m.archive, rec.Filename)
		if err := moveFile(src, dst); err != nil {
			m.log.Error("archive move failed",
				logx.String("file", rec.Filename),
				logx.Err(err))
			continue
		}
		m.moveSidecar(src, dst)
		m.moved[rec.Filename] = struct{}{}
		m.log.Info("archived published file", logx.String("file", rec.Filename))
		if m.audit != nil {
			_ = m.audit.AppendAudit(ctx, storage.AuditEntry{
				Action:   storage.ActionArchived,
				Filename: rec.Filename,
				Target:   dst,
				OK:       1,
			})
		}
	}
}

func (m *Mover) moveSidecar(src, dst string) {
	sc := publish.SidecarPath(src)
	if _, err := os.Stat(sc); err != nil {
		return
	}
	if err := moveFile(sc, publish.SidecarPath(dst)); err != nil {
		m.log.Warn("sidecar move failed", logx.String("file", filepath.Base(sc)), logx.Err(err))
	}
}

// moveFile renames, falling back to copy+remove for cross-device moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

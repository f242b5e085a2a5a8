// Package scheduler runs the minute tick that publishes due entries.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"instapost/internal/ledger"
	"instapost/internal/publish"
	"instapost/internal/storage"
	"instapost/pkg/logx"
)

// Publisher runs one image through upload and post.
type Publisher interface {
	Publish(ctx context.Context, localPath, caption string) (*publish.Result, error)
}

// Notifier pushes operator-facing events. All methods must be safe on a
// nil receiver so a disabled notifier needs no guards at call sites.
type Notifier interface {
	PublishSucceeded(ctx context.Context, filename, url string)
	PublishFailed(ctx context.Context, filename string, err error)
	FileMissing(ctx context.Context, filename string, scheduledAt time.Time)
}

// missingFileNotifyEvery bounds how often the notifier is pinged about the
// same missing file. The log still warns every tick.
const missingFileNotifyEvery = time.Hour

// Loop publishes due schedule entries once a minute.
//
// Both ledgers are re-read on every tick; the only state carried across
// ticks is the in-flight set, which stops a slow publish from being
// submitted twice by consecutive ticks of this process. An entry is done
// when the processed ledger says so, never because it left the schedule.
type Loop struct {
	store     *ledger.ScheduleStore
	processed *ledger.ProcessedStore
	pipeline  Publisher
	log       logx.Logger
	loc       *time.Location

	fastMode      bool
	crashCooldown time.Duration

	notify Notifier
	audit  storage.Store

	mu       sync.Mutex
	inFlight map[string]struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

type Options struct {
	FastMode      bool
	CrashCooldown time.Duration
	Notifier      Notifier
	Audit         storage.Store
}

func New(store *ledger.ScheduleStore, processed *ledger.ProcessedStore, pipeline Publisher, loc *time.Location, log logx.Logger, opts Options) *Loop {
	cooldown := opts.CrashCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Loop{
		store:         store,
		processed:     processed,
		pipeline:      pipeline,
		log:           log,
		loc:           loc,
		fastMode:      opts.FastMode,
		crashCooldown: cooldown,
		notify:        opts.Notifier,
		audit:         opts.Audit,
		inFlight:      map[string]struct{}{},
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// SetNow overrides the clock. Tests only.
func (l *Loop) SetNow(now func() time.Time) { l.now = now }

// SetSleep overrides the cooldown sleeper. Tests only.
func (l *Loop) SetSleep(fn func(ctx context.Context, d time.Duration)) { l.sleep = fn }

// Run ticks on wall-clock minute boundaries until the context is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	c := cron.New(cron.WithLocation(l.loc))
	_, err := c.AddFunc("* * * * *", func() { l.SafeTick(ctx) })
	if err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	l.log.Info("scheduler started",
		logx.Bool("fast_mode", l.fastMode),
		logx.String("timezone", l.loc.String()))

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

// SafeTick runs one tick with panic containment. A panicking tick is
// logged with its stack and followed by a cooldown so a hot crash loop
// cannot spin the process.
func (l *Loop) SafeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("tick panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			l.sleep(ctx, l.crashCooldown)
		}
	}()
	l.Tick(ctx)
}

// Tick loads both ledgers fresh and publishes every due, unhandled entry.
// One entry's failure never aborts the rest of the tick.
func (l *Loop) Tick(ctx context.Context) {
	entries, err := l.store.Load()
	if err != nil {
		l.log.Error("load schedule ledger", logx.Err(err))
		return
	}
	done, err := l.processed.Filenames()
	if err != nil {
		l.log.Error("load processed ledger", logx.Err(err))
		return
	}

	now := l.now().In(l.loc)
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if _, ok := done[e.Filename]; ok {
			continue
		}
		if !l.tryLock(e.Filename) {
			continue
		}
		if !l.fastMode && e.ScheduledAt.After(now) {
			l.unlock(e.Filename)
			continue
		}
		l.publishEntry(ctx, e)
	}
}

func (l *Loop) publishEntry(ctx context.Context, e ledger.Entry) {
	if _, err := os.Stat(e.OriginalPath); err != nil {
		l.unlock(e.Filename)
		l.log.Warn("scheduled file missing, will keep checking",
			logx.String("file", e.Filename),
			logx.String("path", e.OriginalPath),
			logx.Time("due", e.ScheduledAt))
		l.notifyMissing(ctx, e)
		return
	}

	started := l.now()
	caption := publish.ResolveCaption(e.OriginalPath, e.Caption)
	res, err := l.pipeline.Publish(ctx, e.OriginalPath, caption)
	if err != nil {
		l.unlock(e.Filename)
		l.log.Error("publish failed, entry stays queued",
			logx.String("file", e.Filename),
			logx.Err(err))
		l.recordAudit(ctx, storage.AuditEntry{
			Action:   storage.ActionPublishFailed,
			Filename: e.Filename,
			Fail:     1,
			Error:    err.Error(),
			TookMS:   l.now().Sub(started).Milliseconds(),
		})
		if l.notify != nil {
			l.notify.PublishFailed(ctx, e.Filename, err)
		}
		return
	}

	rec := ledger.ProcessedEntry{
		Filename:    e.Filename,
		ScheduledAt: e.ScheduledAt,
		URL:         &res.URL,
		ProcessedAt: res.CompletedAt,
	}
	if err := l.processed.Append(rec); err != nil {
		// The post is live but unrecorded; keep the lock so this process
		// does not double-post, and make the operator look at it.
		l.log.Error("post published but could not be recorded",
			logx.String("file", e.Filename),
			logx.String("url", res.URL),
			logx.Err(err))
		return
	}
	l.unlock(e.Filename)

	l.log.Info("entry published",
		logx.String("file", e.Filename),
		logx.String("url", res.URL))
	l.recordAudit(ctx, storage.AuditEntry{
		Action:   storage.ActionPublished,
		Filename: e.Filename,
		Target:   res.URL,
		OK:       1,
		TookMS:   l.now().Sub(started).Milliseconds(),
	})
	if l.notify != nil {
		l.notify.PublishSucceeded(ctx, e.Filename, res.URL)
	}
}

func (l *Loop) notifyMissing(ctx context.Context, e ledger.Entry) {
	if l.notify == nil {
		return
	}
	key := "missing-file:" + e.Filename
	if l.audit != nil {
		if until, ok, err := l.audit.GetDedup(ctx, key); err == nil && ok && l.now().Before(until) {
			return
		}
		_ = l.audit.PutDedup(ctx, key, l.now().Add(missingFileNotifyEvery))
	}
	l.notify.FileMissing(ctx, e.Filename, e.ScheduledAt)
}

func (l *Loop) recordAudit(ctx context.Context, e storage.AuditEntry) {
	if l.audit == nil {
		return
	}
	e.At = l.now()
	if err := l.audit.AppendAudit(ctx, e); err != nil {
		l.log.Warn("audit append failed", logx.Err(err))
	}
}

func (l *Loop) tryLock(filename string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.inFlight[filename]; ok {
		return false
	}
	l.inFlight[filename] = struct{}{}
	return true
}

func (l *Loop) unlock(filename string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, filename)
}

// InFlight reports whether a filename is currently being published.
func (l *Loop) InFlight(filename string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inFlight[filename]
	return ok
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

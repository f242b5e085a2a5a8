package app

import (
	"context"
	"time"

	"instapost/internal/config"
	"instapost/internal/proc"
	"instapost/internal/runtime/supervisor"
	logx "instapost/pkg/logx"
)

// RunDaemon runs the full daemon: publish loop, ingest watcher and archive
// mover under one supervisor, guarded by a pid file. It blocks until ctx is
// cancelled or a service fails fatally.
func (a *App) RunDaemon(ctx context.Context) error {
	if _, err := a.PublishPipeline(); err != nil {
		return err
	}
	return a.runRole(ctx, "run", func(sup *supervisor.Supervisor) {
		sup.Go("scheduler.loop", a.loop.Run)
		sup.GoRestart("ingest.watch", a.watcher.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second))
		sup.Go("mover", a.mover.Run)
	})
}

// RunScheduler runs only the publish loop. Pairs with a watch-only instance
// elsewhere: images are staged on one host and published from another, with
// the ledgers on shared storage.
func (a *App) RunScheduler(ctx context.Context) error {
	if _, err := a.PublishPipeline(); err != nil {
		return err
	}
	return a.runRole(ctx, "scheduler", func(sup *supervisor.Supervisor) {
		sup.Go("scheduler.loop", a.loop.Run)
	})
}

// RunWatch runs only the ingest watcher: sweep the watch folder, then follow
// filesystem events. Useful on hosts that stage images but do not publish.
func (a *App) RunWatch(ctx context.Context) error {
	return a.runRole(ctx, "watch", func(sup *supervisor.Supervisor) {
		sup.GoRestart("ingest.watch", a.watcher.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	})
}

// RunMover runs only the archive mover.
func (a *App) RunMover(ctx context.Context) error {
	return a.runRole(ctx, "mover", func(sup *supervisor.Supervisor) {
		sup.Go("mover", a.mover.Run)
	})
}

func (a *App) runRole(ctx context.Context, role string, start func(sup *supervisor.Supervisor)) error {
	pid, err := proc.Acquire(a.cfg.Paths.PidFile(role), role)
	if err != nil {
		return err
	}
	defer pid.Release()

	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	start(sup)

	// Hot reload: logging changes apply live, everything else needs a
	// restart and says so.
	sub := a.cfgm.Subscribe(8)
	sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.logs.Apply(mapLogConfig(newCfg, false))
				if newCfg.Timezone != last.Timezone || newCfg.Scheduler.FastMode != last.Scheduler.FastMode {
					a.log.Warn("timezone/fast_mode changed; restart required for changes to take effect")
				}
				last = newCfg
				a.log.Info("config reloaded")
			}
		}
	})
	sup.Go("config.watch", a.cfgm.Watch)

	proc.NotifyReady()
	defer proc.NotifyStopping()

	a.log.Info("daemon started", logx.String("role", role))

	<-sup.Context().Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil && err != context.DeadlineExceeded {
		return err
	}
	a.log.Info("daemon stopped", logx.String("role", role))
	return sup.Err()
}

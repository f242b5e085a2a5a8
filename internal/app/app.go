// Package app assembles the daemon: config, logging, ledgers, clients and
// the background services, wired in dependency order.
package app

import (
	"fmt"
	"strings"
	"time"

	"instapost/internal/clients/dropbox"
	"instapost/internal/clients/instagram"
	"instapost/internal/config"
	"instapost/internal/ingest"
	"instapost/internal/ledger"
	"instapost/internal/mover"
	"instapost/internal/notify"
	"instapost/internal/publish"
	"instapost/internal/rebalance"
	"instapost/internal/schedule"
	"instapost/internal/scheduler"
	"instapost/internal/storage"
	logx "instapost/pkg/logx"
)

// App holds every constructed component. CLI commands reach in via the
// accessors; the daemon roles run the service loops.
type App struct {
	cfgPath string

	cfgm  *config.Manager
	cfg   *config.Config
	creds config.Credentials

	log  logx.Logger
	logs *logx.Service

	loc  *time.Location
	tmpl *schedule.WeeklyTemplate

	store     *ledger.ScheduleStore
	processed *ledger.ProcessedStore
	audit     storage.Store
	notif     *notify.Service

	dropbox  *dropbox.Client
	insta    *instagram.Client
	pipeline *publish.Pipeline

	coord   *ingest.Coordinator
	watcher *ingest.Watcher
	loop    *scheduler.Loop
	mover   *mover.Mover
}

// New loads config and credentials and builds everything that does not
// require publish credentials. The publish pipeline (and the Instagram and
// Dropbox clients) is only built when the environment carries the full
// credential set; PublishPipeline reports the gap otherwise.
func New(cfgPath, envFile string) (*App, error) {
	creds, err := config.LoadCredentials(envFile)
	if err != nil {
		return nil, err
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Logging comes up in two phases. The Telegram sink needs the notify
	// service, which needs a logger itself, so bootstrap with a console
	// logger, build notify, then Apply() the real config with the sink
	// enabled.
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "notify"))
	notif, err := notify.New(creds.TelegramBotToken, cfg.Notify, bootLog)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	var sender logx.Sender
	if notif != nil {
		sender = notif
	}
	logSvc, log := logx.New(mapLogConfig(cfg, true), sender)
	logSvc.Apply(mapLogConfig(cfg, false))
	log = log.With(logx.String("comp", "app"))

	store := ledger.NewScheduleStore(cfg.Paths.ScheduleFile(), log.With(logx.String("comp", "ledger")))
	processed := ledger.NewProcessedStore(cfg.Paths.ProcessedFile(), log.With(logx.String("comp", "ledger")))

	audit, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	tmpl, err := buildTemplate(cfg, loc)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	alloc := schedule.NewAllocator(tmpl, loc)
	coord := ingest.NewCoordinator(store, processed, alloc, log.With(logx.String("comp", "ingest")))
	watcher := ingest.NewWatcher(cfg.Paths.WatchDir, coord, log.With(logx.String("comp", "watcher")))

	interval, err := config.ParseDurationOrDefault("scheduler.mover_interval", cfg.Scheduler.MoverInterval, 5*time.Second)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	mv := mover.New(processed, cfg.Paths.WatchDir, cfg.Paths.ArchiveDir, interval,
		log.With(logx.String("comp", "mover")), audit)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		cfg:       cfg,
		creds:     creds,
		log:       log,
		logs:      logSvc,
		loc:       loc,
		tmpl:      tmpl,
		store:     store,
		processed: processed,
		audit:     audit,
		notif:     notif,
		coord:     coord,
		watcher:   watcher,
		mover:     mv,
	}

	if err := a.buildPublish(); err != nil {
		a.log.Warn("publish pipeline unavailable", logx.Err(err))
	}

	return a, nil
}

// buildPublish constructs the Dropbox and Instagram clients and the pipeline
// plus the scheduler loop on top of them. No-op when credentials are missing;
// the error describes what is absent.
func (a *App) buildPublish() error {
	if err := a.creds.RequirePublish(); err != nil {
		return err
	}

	a.dropbox = dropbox.New(&a.creds, a.log.With(logx.String("comp", "dropbox")))
	a.insta = instagram.New(&a.creds, a.log.With(logx.String("comp", "instagram")))

	p, err := publish.NewPipeline(a.dropbox, a.insta, a.cfg.Publish, a.log.With(logx.String("comp", "publish")))
	if err != nil {
		return err
	}
	a.pipeline = p

	cooldown, err := config.ParseDurationOrDefault("scheduler.crash_cooldown", a.cfg.Scheduler.CrashCooldown, 30*time.Second)
	if err != nil {
		return err
	}
	a.loop = scheduler.New(a.store, a.processed, p, a.loc, a.log.With(logx.String("comp", "scheduler")),
		scheduler.Options{
			FastMode:      a.cfg.Scheduler.FastMode,
			CrashCooldown: cooldown,
			Notifier:      a.notif,
			Audit:         a.audit,
		})
	return nil
}

func buildTemplate(cfg *config.Config, loc *time.Location) (*schedule.WeeklyTemplate, error) {
	if cfg.Scheduler.FastMode {
		return schedule.FastTemplate(time.Now().In(loc)), nil
	}
	if len(cfg.Schedule) == 0 {
		return schedule.DefaultTemplate(), nil
	}
	tmpl, err := schedule.ParseTemplate(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}
	return tmpl, nil
}

func mapLogConfig(cfg *config.Config, bootstrap bool) logx.Config {
	var chatID int64
	if cfg.Notify != nil {
		chatID = cfg.Notify.ChatID
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			// Target first, enable on the second Apply(); avoids a
			// false "no target" warning during bootstrap.
			Enabled:    !bootstrap && cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		// Validate() already rejected malformed values; unreachable in
		// practice, fall back to the driver default.
		busy = 0
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
}

// Config returns the committed configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root application logger.
func (a *App) Logger() logx.Logger { return a.log }

// Coordinator exposes ingest scheduling for the schedule command.
func (a *App) Coordinator() *ingest.Coordinator { return a.coord }

// ScheduleStore exposes the pending ledger.
func (a *App) ScheduleStore() *ledger.ScheduleStore { return a.store }

// ProcessedStore exposes the completed ledger.
func (a *App) ProcessedStore() *ledger.ProcessedStore { return a.processed }

// Notify exposes the operator notification service (may be nil).
func (a *App) Notify() *notify.Service { return a.notif }

// Rebalancer builds a rebalancer over the current template and ledgers.
func (a *App) Rebalancer() *rebalance.Rebalancer {
	return rebalance.New(a.store, a.processed, a.tmpl, a.loc,
		a.log.With(logx.String("comp", "rebalance")))
}

// PublishPipeline returns the upload-then-post pipeline, or an error naming
// the missing credentials.
func (a *App) PublishPipeline() (*publish.Pipeline, error) {
	if a.pipeline == nil {
		if err := a.creds.RequirePublish(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("publish pipeline not built")
	}
	return a.pipeline, nil
}

// Instagram returns the Graph API client, or an error naming the missing
// credentials.
func (a *App) Instagram() (*instagram.Client, error) {
	if a.insta == nil {
		if err := a.creds.RequirePublish(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("instagram client not built")
	}
	return a.insta, nil
}

// Location returns the configured timezone.
func (a *App) Location() *time.Location { return a.loc }

// Close flushes and releases everything New opened. Safe after a partial
// construction failure.
func (a *App) Close() error {
	var errs []string
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, "storage: "+err.Error())
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			errs = append(errs, "logging: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close: %s", strings.Join(errs, "; "))
	}
	return nil
}

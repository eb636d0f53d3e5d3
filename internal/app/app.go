// Package app wires renewd's services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"renewd/internal/config"
	"renewd/internal/cycle"
	"renewd/internal/event"
	"renewd/internal/notify"
	"renewd/internal/scheduler"
	"renewd/internal/server"
	"renewd/internal/storage"
	logx "renewd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store  *storage.Store
	disp   *notify.Service
	runner *cycle.Runner
	sched  *scheduler.Service
	srv    *server.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	st, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(st, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", st.Driver))

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := notify.New(ncfg, log.With(logx.String("comp", "notify")))

	runner := cycle.New(store, disp, log.With(logx.String("comp", "cycle")))

	// The stored settings document may carry a push time already.
	checkTime := cfg.Scheduler.DefaultCheckTime
	if settings, err := store.LoadSettings(context.Background()); err == nil && strings.TrimSpace(settings.DailyPushTime) != "" {
		checkTime = settings.DailyPushTime
	}
	sched := scheduler.New(scheduler.Config{
		Enabled:   cfg.Scheduler.Enabled,
		Timezone:  cfg.Scheduler.Timezone,
		CheckTime: checkTime,
	}, func(ctx context.Context, today time.Time) {
		if err := runner.Run(ctx, today); err != nil {
			log.Error("daily check failed", logx.Err(err))
		}
	}, log.With(logx.String("comp", "scheduler")))

	readTO, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return nil, err
	}
	writeTO, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return nil, err
	}
	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		Password:     resolvePassword(cfg),
		AssetsDir:    cfg.Server.AssetsDir,
		ReadTimeout:  readTO,
		WriteTimeout: writeTO,
	}, store, disp, runner, log.With(logx.String("comp", "http")))

	// Saving settings may change dailyPushTime; re-arm the trigger.
	srv.SetOnSettingsSaved(func(settings event.Settings) {
		cur := cfgm.Get()
		ct := cur.Scheduler.DefaultCheckTime
		if strings.TrimSpace(settings.DailyPushTime) != "" {
			ct = settings.DailyPushTime
		}
		sched.Apply(scheduler.Config{
			Enabled:   cur.Scheduler.Enabled,
			Timezone:  cur.Scheduler.Timezone,
			CheckTime: ct,
		})
	})

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		store:   store,
		disp:    disp,
		runner:  runner,
		sched:   sched,
		srv:     srv,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.srv.Start(runCtx); err != nil {
		cancel()
		return err
	}
	a.sched.Start(runCtx)

	// config hot reload: watcher + fan-out
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(runCtx, newCfg)
			}
		}
	}()

	a.log.Info("started")
	return nil
}

// applyConfig applies a validated hot-reloaded config to the live
// services. Storage and the listen address cannot change without a
// restart; everything else applies immediately.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	_ = ctx
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLoggingConfig(cfg))
	a.srv.SetPassword(resolvePassword(cfg))

	checkTime := cfg.Scheduler.DefaultCheckTime
	if settings, err := a.store.LoadSettings(context.Background()); err == nil && strings.TrimSpace(settings.DailyPushTime) != "" {
		checkTime = settings.DailyPushTime
	}
	a.sched.Apply(scheduler.Config{
		Enabled:   cfg.Scheduler.Enabled,
		Timezone:  cfg.Scheduler.Timezone,
		CheckTime: checkTime,
	})

	old := a.cfgm.Get()
	if old != nil && (old.Storage != cfg.Storage || old.Server.Addr != cfg.Server.Addr) {
		a.log.Warn("storage/server address changed; restart required for changes to take effect")
	}
	a.log.Debug("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.srv.Stop(ctx)
	a.sched.Stop(ctx)
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}

// RunOnce executes a single reminder pass (manual trigger from the CLI).
func (a *App) RunOnce(ctx context.Context) error {
	return a.runner.Run(ctx, time.Now())
}

// ---- config mapping ----

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	path := cfg.Storage.Path
	if strings.TrimSpace(path) == "" {
		path = "./data"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	timeout, err := config.ParseDurationOrDefault("notify.timeout", cfg.Notify.Timeout, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Timeout:    timeout,
		RatePerSec: cfg.Notify.RatePerSec,
		Fallback:   envFallback(),
	}, nil
}

// envFallback mirrors the original deployment's environment bindings:
// stored settings win, these fill the blanks.
func envFallback() event.Settings {
	return event.Settings{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		BarkKey:          os.Getenv("BARK_KEY"),
		PushPlusToken:    os.Getenv("PUSH_PLUS_TOKEN"),
		WebhookURL:       os.Getenv("WEBHOOK_URL"),
	}
}

func resolvePassword(cfg *config.Config) string {
	if pw := strings.TrimSpace(cfg.Auth.Password); pw != "" {
		return pw
	}
	if pw := strings.TrimSpace(os.Getenv("AUTH_PASSWORD")); pw != "" {
		return pw
	}
	return "admin"
}

func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("notify.timeout", cfg.Notify.Timeout); err != nil {
		return err
	}
	if cfg.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec must be >= 0")
	}
	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", d)
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if ct := strings.TrimSpace(cfg.Scheduler.DefaultCheckTime); ct != "" {
		if _, err := scheduler.CronSpec(ct); err != nil {
			return fmt.Errorf("scheduler.default_check_time: %w", err)
		}
	}
	return nil
}

// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"pagewatch/internal/acquire"
	"pagewatch/internal/auth"
	"pagewatch/internal/bot"
	"pagewatch/internal/config"
	"pagewatch/internal/delivery"
	"pagewatch/internal/detector"
	"pagewatch/internal/eventbus"
	"pagewatch/internal/extract"
	"pagewatch/internal/fetch"
	"pagewatch/internal/observability/ops"
	rtsup "pagewatch/internal/runtime/supervisor"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	"pagewatch/internal/tracker"
	kit "pagewatch/internal/transport"
	telegram "pagewatch/internal/transport/telegram/adapter"
	"pagewatch/internal/transport/telegram/router"
	logx "pagewatch/pkg/logx"
	"pagewatch/pkg/systemd"
)

const startupNotice = "🤖 Bot Started Successfully"

type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	http    *fetch.Client
	adapter *telegram.Adapter
	gateway *delivery.Gateway
	sched   *scheduler.Service
	tracker *tracker.Service
	auth    *auth.Checker
	router  *router.Router
	bot     *bot.Bot
	ops     *ops.Service // nil when disabled

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, logx.NewConsole("info").With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	// Start with the Telegram sink off: Apply warns when it is enabled
	// without a target.
	logs, root := logx.New(LogConfig(cfg, false), ad)
	if chat := GroupLogChat(cfg); chat != 0 {
		logs.SetTelegramTarget(chat, cfg.Logging.Telegram.ThreadID)
	}
	logs.Apply(LogConfig(cfg, true))
	log := root.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }
	cfgm.SetLogger(comp("config"))

	store, err := storage.Open(ctx, StorageConfig(cfg), comp("storage"))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	httpc := fetch.New(FetchConfig(cfg), comp("fetch"))
	limit := maxFileSize(cfg)
	extractor := extract.New(extract.Config{
		PageTimeout:     httpc.PageTimeout(),
		ResourceTimeout: httpc.ResourceTimeout(),
		MaxResourceSize: limit,
	}, httpc, comp("extract"))

	dir := downloadDir(cfg)
	chain := acquire.NewChain(comp("acquire"),
		&acquire.YTDLP{
			Enabled: cfg.Acquire.YTDLPOn(),
			Binary:  cfg.Acquire.YTDLPPath,
			Dir:     dir,
			MaxSize: limit,
		},
		&acquire.Direct{
			Dir:     dir,
			MaxSize: limit,
			Timeout: httpc.ResourceTimeout(),
			HTTP:    httpc,
		},
	)

	gateway := delivery.New(deliveryConfig(cfg), ad, comp("delivery"))
	sched := scheduler.New(schedulerConfig(cfg), comp("scheduler"))
	det := detector.New(detector.Deps{
		Store:     store,
		Extractor: extractor,
		Acquirer:  chain,
		Sender:    gateway,
		Bus:       bus,
		Log:       comp("detector"),
		Loc:       sched.Location(),
	})
	trk := tracker.New(trackerConfig(cfg), store, extractor, sched, det, bus, comp("tracker"))
	checker := auth.New(cfg.Telegram.OwnerUserIDs, store, comp("auth"))
	r := router.New(router.Config{}, ad, checker, comp("commands"))
	b := bot.New(bot.Deps{
		Tracker:     trk,
		Acquirer:    chain,
		Sender:      gateway,
		Admin:       store,
		MaxFileSize: limit,
		Log:         comp("bot"),
	})

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		store:   store,
		http:    httpc,
		adapter: ad,
		gateway: gateway,
		sched:   sched,
		tracker: trk,
		auth:    checker,
		router:  r,
		bot:     b,
		updates: make(chan kit.Update, 256),
	}
	if cfg.Ops.Enabled {
		a.ops = ops.New(opsConfig(cfg), ops.Deps{
			Jobs:        sched,
			Bus:         bus,
			Supervisors: a.Supervisors,
		}, comp("ops"))
	}
	return a, nil
}

// Done is closed when the app supervisor is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Supervisors lists the running supervisors for the ops endpoint.
func (a *App) Supervisors() map[string]*rtsup.Supervisor {
	return map[string]*rtsup.Supervisor{
		"app":              a.sup,
		"telegram.adapter": a.adapter.Supervisor(),
		"commands":         a.router.Supervisor(),
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.bot.Register(run, a.router)
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sched.Start(run)
	jobs, err := a.tracker.Rehydrate(ctx)
	if err != nil {
		a.log.Error("rehydrate failed; stored targets are not scheduled", logx.Err(err))
	}

	if a.ops != nil {
		if err := a.ops.Start(run); err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) { systemd.Watchdog(c, a.log) })
	a.sup.Go0("startup.notice", a.announce)

	systemd.Ready(a.log, fmt.Sprintf("%d targets scheduled", jobs))
	a.log.Info("app started", logx.Int("jobs", jobs))
	return nil
}

// announce tells every owner the bot is up. A failed send is only logged
// by the gateway.
func (a *App) announce(ctx context.Context) {
	for _, id := range a.auth.Owners() {
		if ctx.Err() != nil {
			return
		}
		a.gateway.SendText(ctx, id, startupNotice)
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	systemd.Stopping(a.log)
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Scheduler first so no new checks start while the rest winds down.
	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error {
		if a.ops == nil {
			return nil
		}
		return a.ops.Stop(c)
	})
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	a.step(ctx, "http", 0, func(context.Context) error { a.http.Close(); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs fn bounded by limit (and the caller's deadline). A step that
// overruns is logged and left behind; its late completion is logged too.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx := ctx
	if limit > 0 {
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < limit {
			limit = max(time.Until(dl), 0)
		}
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"aprelay/internal/commands"
	"aprelay/internal/config"
	"aprelay/internal/eventbus"
	"aprelay/internal/monitor"
	"aprelay/internal/notifier"
	rtsup "aprelay/internal/runtime/supervisor"
	"aprelay/internal/scheduler"
	"aprelay/internal/storage"
	kit "aprelay/internal/transport"
	"aprelay/internal/transport/discord/adapter"
	"aprelay/internal/transport/discord/router"
	"aprelay/pkg/clock"
	logx "aprelay/pkg/logx"
	"aprelay/pkg/systemd"
)

// App owns every long-lived component of the relay.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	// out delivers bot-initiated messages; it is the notifier in production.
	out kit.Sender

	dialer   monitor.Dialer
	registry *monitor.Registry
	router   *router.Manager
	sched    *scheduler.Service

	interactions chan kit.Interaction
}

// Option tunes New.
type Option func(*config.Manager)

// WithOptionalConfig lets the app start from the environment alone when
// the config file does not exist.
func WithOptionalConfig() Option {
	return func(m *config.Manager) { m.SetOptional(true) }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	for _, o := range opts {
		o(cfgm)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")
	ad, err := adapter.New(adapter.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// The Discord log sink stays off until the gateway is open; Start
	// applies the final logging config.
	bootLogCfg := mapLoggingConfig(cfg)
	bootLogCfg.Discord.Enabled = false
	logSvc, log := logx.New(bootLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a, err := build(cfg, log, ad, store, bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.cfgPath = cfgPath
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

// build wires the runtime components around an adapter and a store.
func build(cfg *config.Config, log logx.Logger, ad kit.Adapter, store storage.Store, bus eventbus.Bus) (*App, error) {
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log, bus)

	settings, err := mapMonitorSettings(cfg)
	if err != nil {
		return nil, err
	}
	dialer, err := mapDialer(cfg, log.With(logx.String("comp", "archipelago")))
	if err != nil {
		return nil, err
	}
	registry := monitor.NewRegistry(monitor.Deps{
		Channels: ad,
		Sender:   notif,
		Links:    store,
		Dialer:   dialer,
		Bus:      bus,
		Log:      log.With(logx.String("comp", "monitor")),
		Settings: settings,
	}, store)

	ropts, err := mapRouterOptions(cfg)
	if err != nil {
		return nil, err
	}
	ropts.Activity = store

	plan, err := mapMaintenance(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(plan.sched, log)

	a := &App{
		log:          log,
		bus:          bus,
		store:        store,
		adapter:      ad,
		notif:        notif,
		out:          notif,
		dialer:       dialer,
		registry:     registry,
		router:       router.NewManager(log, ropts),
		sched:        sched,
		interactions: make(chan kit.Interaction, 256),
	}
	if err := a.installCommands(cfg); err != nil {
		return nil, err
	}
	if err := a.installMaintenance(plan); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) installCommands(cfg *config.Config) error {
	hint, err := mapHintOptions(cfg)
	if err != nil {
		return err
	}
	d := commands.Deps{
		Registry: a.registry,
		Store:    a.store,
		Channels: a.adapter,
		Sender:   a.out,
		Dialer:   a.dialer,
		Hint:     hint,
		HintTags: cfg.Archipelago.HintTags,
		Log:      a.log.With(logx.String("comp", "commands")),
	}
	a.router.SetRegistry(commands.All(d), commands.Actions(d))
	return nil
}

func (a *App) installMaintenance(plan maintenancePlan) error {
	job := scheduler.PruneActivity(a.store, plan.retention, clock.Real(), a.log.With(logx.String("comp", "maintenance")))
	return a.sched.AddSchedule(scheduler.PruneActivityJob, plan.schedule, defaultMaintenanceLimit, job)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMappings(cfg)
	})

	// The notifier must outlive the app context so Stop can drain it.
	a.notif.Start(context.WithoutCancel(a.sup.Context()))

	if err := a.adapter.Start(a.sup.Context(), a.interactions); err != nil {
		return fmt.Errorf("discord gateway: %w", err)
	}
	cfg := a.cfgm.Get()
	a.logs.Apply(mapLoggingConfig(cfg))

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.interactions)
	})
	if cfg.Discord.RegisterCommandsEnabled() {
		a.sup.GoRestart("commands.register", func(c context.Context) error {
			specs := a.router.Specs()
			if err := a.adapter.RegisterCommands(c, specs); err != nil {
				return err
			}
			a.log.Info("slash commands registered", logx.Int("count", len(specs)))
			return nil
		}, rtsup.WithRestartBackoff(time.Second, time.Minute))
	}

	a.sup.Go0("monitors.restore", a.restoreMonitors)
	a.sched.Start(a.sup.Context())

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c, nil); err != nil {
			a.log.Warn("systemd watchdog stopped", logx.Err(err))
		}
	})
	if err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// Monitors first so nothing new is queued while the notifier drains.
	step("monitors", 2*time.Second, func(context.Context) error { a.registry.StopAll(); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, dispatcher, restore).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// validateMappings rejects configs the runtime mappers cannot translate.
func validateMappings(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapMonitorSettings(cfg); err != nil {
		return err
	}
	if _, err := mapHintOptions(cfg); err != nil {
		return err
	}
	if _, err := mapDialer(cfg, logx.Nop()); err != nil {
		return err
	}
	if _, err := mapRouterOptions(cfg); err != nil {
		return err
	}
	_, err := mapMaintenance(cfg)
	return err
}

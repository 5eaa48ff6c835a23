package app

import (
	"context"
	"strings"

	"aprelay/internal/config"
	"aprelay/internal/eventbus"
	logx "aprelay/pkg/logx"
	"aprelay/pkg/systemd"
)

// reloadLoop applies every committed config to the running components.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	// Track last applied config to generate a safe diff summary for logs.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	if err := systemd.Reloading(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}
	defer func() {
		if err := systemd.Ready(); err != nil {
			a.log.Debug("systemd notify failed", logx.Err(err))
		}
	}()

	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect", logx.Strings("sections", pending))
	}

	if a.logs != nil {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if settings, err := mapMonitorSettings(newCfg); err != nil {
		a.log.Warn("invalid monitor config; keeping previous", logx.Err(err))
	} else {
		a.registry.SetSettings(settings)
	}

	if err := a.installCommands(newCfg); err != nil {
		a.log.Warn("invalid hint config; keeping previous", logx.Err(err))
	}

	if plan, err := mapMaintenance(newCfg); err != nil {
		a.log.Warn("invalid maintenance config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(plan.sched)
		if err := a.installMaintenance(plan); err != nil {
			a.log.Warn("maintenance schedule rejected", logx.Err(err))
		}
	}

	eventbus.Publish(a.bus, eventbus.ConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

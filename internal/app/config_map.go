package app

import (
	"strings"
	"time"

	"aprelay/internal/archipelago"
	"aprelay/internal/config"
	"aprelay/internal/monitor"
	"aprelay/internal/notifier"
	"aprelay/internal/scheduler"
	"aprelay/internal/storage"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

const (
	defaultStoragePath      = "./aprelay.db"
	defaultCommandTimeout   = time.Minute
	defaultMaintenanceCron  = "@daily"
	defaultActivityRetain   = 30 * 24 * time.Hour
	defaultMaintenanceLimit = 5 * time.Minute
)

var defaultSessionTags = []string{archipelago.TagIgnoreGame, archipelago.TagMonitor}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  strings.TrimSpace(l.Discord.ChannelID),
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

// mapStorageConfig falls back to sqlite at ./aprelay.db when storage is omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "sqlite", Path: defaultStoragePath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" && driver != "memory" {
		path = defaultStoragePath
		if driver == "file" {
			path = "./aprelay.json"
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{}, nil
	}
	n := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

// mapMonitorSettings leaves zero values for monitor defaults to fill in.
func mapMonitorSettings(cfg *config.Config) (monitor.Settings, error) {
	m := cfg.Monitor
	batchDelay, err := config.ParseDurationOrDefault("monitor.batch_delay", m.BatchDelay, 0)
	if err != nil {
		return monitor.Settings{}, err
	}
	reconnect, err := config.ParseDurationOrDefault("monitor.reconnect_delay", m.ReconnectDelay, 0)
	if err != nil {
		return monitor.Settings{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("monitor.send_timeout", m.SendTimeout, 0)
	if err != nil {
		return monitor.Settings{}, err
	}
	dial, err := config.ParseDurationOrDefault("archipelago.dial_timeout", cfg.Archipelago.DialTimeout, 0)
	if err != nil {
		return monitor.Settings{}, err
	}
	return monitor.Settings{
		BatchDelay:     batchDelay,
		BatchSize:      m.BatchSize,
		ReconnectDelay: reconnect,
		DialTimeout:    dial,
		SendTimeout:    sendTimeout,
	}, nil
}

func mapHintOptions(cfg *config.Config) (monitor.HintOptions, error) {
	first, err := config.ParseDurationOrDefault("hint.first_timeout", cfg.Hint.FirstTimeout, monitor.DefaultHintFirstTimeout)
	if err != nil {
		return monitor.HintOptions{}, err
	}
	quiet, err := config.ParseDurationOrDefault("hint.quiet_period", cfg.Hint.QuietPeriod, monitor.DefaultHintQuietPeriod)
	if err != nil {
		return monitor.HintOptions{}, err
	}
	return monitor.HintOptions{First: first, Quiet: quiet}, nil
}

// mapDialer binds the protocol version and session tags. Both require a
// restart to change.
func mapDialer(cfg *config.Config, log logx.Logger) (monitor.ClientDialer, error) {
	a := cfg.Archipelago
	var version archipelago.Version // zero selects the client default
	if v := strings.TrimSpace(a.Version); v != "" {
		major, minor, build, err := config.ParseVersion(v)
		if err != nil {
			return monitor.ClientDialer{}, err
		}
		version = archipelago.NewVersion(major, minor, build)
	}
	tags := a.Tags
	if len(tags) == 0 {
		tags = defaultSessionTags
	}
	timeout, err := config.ParseDurationOrDefault("archipelago.dial_timeout", a.DialTimeout, 0)
	if err != nil {
		return monitor.ClientDialer{}, err
	}
	return monitor.ClientDialer{Version: version, Tags: tags, Timeout: timeout, Log: log}, nil
}

func mapRouterOptions(cfg *config.Config) (router.Options, error) {
	timeout, err := config.ParseDurationOrDefault("discord.command_timeout", cfg.Discord.CommandTimeout, defaultCommandTimeout)
	if err != nil {
		return router.Options{}, err
	}
	return router.Options{Timeout: timeout, Workers: cfg.Discord.CommandWorkers}, nil
}

type maintenancePlan struct {
	sched     scheduler.Config
	schedule  string
	retention time.Duration
}

func mapMaintenance(cfg *config.Config) (maintenancePlan, error) {
	m := cfg.Maintenance
	retention, err := config.ParseDurationOrDefault("maintenance.activity_retention", m.ActivityRetention, defaultActivityRetain)
	if err != nil {
		return maintenancePlan{}, err
	}
	schedule := strings.TrimSpace(m.Schedule)
	if schedule == "" {
		schedule = defaultMaintenanceCron
	}
	return maintenancePlan{
		sched:     scheduler.Config{Enabled: m.Enabled, Timezone: strings.TrimSpace(m.Timezone)},
		schedule:  schedule,
		retention: retention,
	}, nil
}

package config

import (
	"reflect"
	"sort"
	"strings"

	logx "aprelay/pkg/logx"
)

// restartSections cannot be applied to a running process.
var restartSections = map[string]bool{"discord": true, "storage": true}

// SummarizeChange returns the changed top-level sections and safe log
// fields describing them. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	od, nd := oldCfg.Discord, newCfg.Discord
	if od.Token != nd.Token || od.GuildID != nd.GuildID ||
		od.RegisterCommandsEnabled() != nd.RegisterCommandsEnabled() ||
		strings.TrimSpace(od.CommandTimeout) != strings.TrimSpace(nd.CommandTimeout) ||
		od.CommandWorkers != nd.CommandWorkers {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_changed", od.Token != nd.Token),
			logx.String("discord.guild_id", nd.GuildID),
			logx.Bool("discord.register_commands", nd.RegisterCommandsEnabled()),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Archipelago, newCfg.Archipelago) {
		changed = append(changed, "archipelago")
		attrs = append(attrs,
			logx.String("archipelago.version", newCfg.Archipelago.Version),
			logx.Strings("archipelago.tags", newCfg.Archipelago.Tags),
		)
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.batch_delay", newCfg.Monitor.BatchDelay),
			logx.Int("monitor.batch_size", newCfg.Monitor.BatchSize),
			logx.String("monitor.reconnect_delay", newCfg.Monitor.ReconnectDelay),
		)
	}

	if oldCfg.Hint != newCfg.Hint {
		changed = append(changed, "hint")
		attrs = append(attrs,
			logx.String("hint.first_timeout", newCfg.Hint.FirstTimeout),
			logx.String("hint.quiet_period", newCfg.Hint.QuietPeriod),
		)
	}

	on, nn := derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)
	if on != nn {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.workers", nn.Workers),
			logx.Int("notifier.queue_size", nn.QueueSize),
			logx.Int("notifier.rate_per_sec", nn.RatePerSec),
			logx.Int("notifier.retry_max", nn.RetryMax),
		)
	}

	ost, nst := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if ost != nst {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nst.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(nst.Path) != ""),
		)
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled),
			logx.String("maintenance.schedule", newCfg.Maintenance.Schedule),
			logx.String("maintenance.activity_retention", newCfg.Maintenance.ActivityRetention),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections that only take effect after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"aprelay/internal/scheduler"
)

// Validate rejects configs that would fail at runtime. It runs on startup
// and before every hot reload is committed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Discord.Token) == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	check("discord.command_timeout", cfg.Discord.CommandTimeout)
	if cfg.Discord.CommandWorkers < 0 {
		errs = append(errs, errors.New("discord.command_workers must be >= 0"))
	}
	if cfg.Logging.Discord.Enabled && strings.TrimSpace(cfg.Logging.Discord.ChannelID) == "" {
		errs = append(errs, errors.New("logging.discord.channel_id is required when logging.discord.enabled"))
	}

	if v := strings.TrimSpace(cfg.Archipelago.Version); v != "" {
		if _, _, _, err := ParseVersion(v); err != nil {
			errs = append(errs, fmt.Errorf("archipelago.version: %w", err))
		}
	}
	check("archipelago.dial_timeout", cfg.Archipelago.DialTimeout)

	check("monitor.batch_delay", cfg.Monitor.BatchDelay)
	check("monitor.reconnect_delay", cfg.Monitor.ReconnectDelay)
	check("monitor.send_timeout", cfg.Monitor.SendTimeout)
	if cfg.Monitor.BatchSize < 0 {
		errs = append(errs, errors.New("monitor.batch_size must be >= 0"))
	}
	check("hint.first_timeout", cfg.Hint.FirstTimeout)
	check("hint.quiet_period", cfg.Hint.QuietPeriod)

	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0"))
		}
		check("notifier.retry_base", n.RetryBase)
		check("notifier.retry_max_delay", n.RetryMaxDelay)
		check("notifier.send_timeout", n.SendTimeout)
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "sqlite", "sqlite3", "file", "memory":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		check("storage.busy_timeout", s.BusyTimeout)
	}

	m := cfg.Maintenance
	if strings.TrimSpace(m.Schedule) != "" {
		if _, err := scheduler.ParseSchedule(m.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.schedule: %w", err))
		}
	}
	check("maintenance.activity_retention", m.ActivityRetention)
	if tz := strings.TrimSpace(m.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("maintenance.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}

// ParseVersion parses "major.minor.build".
func ParseVersion(s string) (major, minor, build int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid version %q, expected major.minor.build", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

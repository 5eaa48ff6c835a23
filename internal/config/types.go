package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("150ms", "5m").
type Config struct {
	Discord     DiscordConfig     `json:"discord"`
	Logging     LoggingConfig     `json:"logging"`
	Archipelago ArchipelagoConfig `json:"archipelago"`
	Monitor     MonitorConfig     `json:"monitor"`
	Hint        HintConfig        `json:"hint"`
	Maintenance MaintenanceConfig `json:"maintenance"`

	// Notifier and Storage fall back to defaults when omitted.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
}

type DiscordConfig struct {
	// Token may be left empty and supplied through DISCORD_TOKEN.
	Token string `json:"token"`
	// GuildID scopes command registration to one guild (instant updates
	// while developing). Empty registers globally.
	GuildID string `json:"guild_id,omitempty"`
	// RegisterCommands defaults to true.
	RegisterCommands *bool `json:"register_commands,omitempty"`

	CommandTimeout string `json:"command_timeout,omitempty"`
	CommandWorkers int    `json:"command_workers,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors warnings and errors into an ops channel.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type ArchipelagoConfig struct {
	// Version is the client version sent on Connect, e.g. "0.6.2".
	Version     string   `json:"version,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	HintTags    []string `json:"hint_tags,omitempty"`
	DialTimeout string   `json:"dial_timeout,omitempty"`
}

type MonitorConfig struct {
	BatchDelay     string `json:"batch_delay,omitempty"`
	BatchSize      int    `json:"batch_size,omitempty"`
	ReconnectDelay string `json:"reconnect_delay,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
}

type HintConfig struct {
	FirstTimeout string `json:"first_timeout,omitempty"`
	QuietPeriod  string `json:"quiet_period,omitempty"`
}

type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./aprelay.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MaintenanceConfig controls periodic housekeeping such as activity log
// retention.
type MaintenanceConfig struct {
	Enabled           bool   `json:"enabled"`
	Schedule          string `json:"schedule,omitempty"`
	ActivityRetention string `json:"activity_retention,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
}

// RegisterCommandsEnabled reports the effective register_commands flag.
func (d DiscordConfig) RegisterCommandsEnabled() bool {
	return d.RegisterCommands == nil || *d.RegisterCommands
}

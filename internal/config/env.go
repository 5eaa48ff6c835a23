package config

import (
	"os"
	"strings"
)

// Environment variables that override file values.
const (
	EnvDiscordToken = "DISCORD_TOKEN"
	EnvDBPath       = "DB_PATH"
)

// ApplyEnv overrides secrets and paths from the process environment.
// DB_PATH implies the sqlite driver when no storage section is present.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvDiscordToken)); v != "" {
		cfg.Discord.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvDBPath)); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "sqlite"}
		}
		cfg.Storage.Path = v
	}
}

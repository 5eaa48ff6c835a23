package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "aprelay/pkg/logx"
)

type Store interface {
	ListConnections(ctx context.Context) ([]Connection, error)
	GetConnection(ctx context.Context, id int64) (Connection, bool, error)
	InsertConnection(ctx context.Context, c Connection) (int64, error)
	// DeleteConnection removes every connection with the given host (case
	// insensitive), port and player.
	DeleteConnection(ctx context.Context, host string, port int, player string) error

	ListLinks(ctx context.Context, guildID string) ([]Link, error)
	FindLinkByUser(ctx context.Context, guildID, userID string) (Link, bool, error)
	// UpsertLink replaces the link for (GuildID, Player).
	UpsertLink(ctx context.Context, l Link) error
	DeleteLink(ctx context.Context, guildID, player string) (bool, error)

	GetGuildServer(ctx context.Context, guildID string) (GuildServer, bool, error)
	SetGuildServer(ctx context.Context, gs GuildServer) error

	AppendActivity(ctx context.Context, e ActivityEntry) error
	PruneActivity(ctx context.Context, before time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store. An empty driver selects sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

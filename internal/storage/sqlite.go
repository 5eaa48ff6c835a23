package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "aprelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

// Fixed-width so timestamps compare lexicographically.
const activityTimeFormat = "2006-01-02 15:04:05.000"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Mention columns were added after the first schema; they are ensured
// additively so older database files keep working.
var connectionMentionColumns = []struct{ name, ddl string }{
	{"mention_join_leave", "INTEGER DEFAULT 0"},
	{"mention_item_finder", "INTEGER DEFAULT 1"},
	{"mention_item_receiver", "INTEGER DEFAULT 1"},
	{"mention_completion", "INTEGER DEFAULT 1"},
	{"mention_hints", "INTEGER DEFAULT 1"},
}

// Link columns stay NULL when the recipient never set them.
var linkMentionColumns = []struct{ name, ddl string }{
	{"mention_join_leave", "INTEGER"},
	{"mention_item_finder", "INTEGER"},
	{"mention_item_receiver", "INTEGER"},
	{"mention_completion", "INTEGER"},
	{"mention_hints", "INTEGER"},
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migrationsSQL); err != nil {
		return err
	}
	if err := s.ensureColumns(ctx, "connections", connectionMentionColumns); err != nil {
		return err
	}
	return s.ensureColumns(ctx, "user_links", linkMentionColumns)
}

func (s *sqliteStore) ensureColumns(ctx context.Context, table string, cols []struct{ name, ddl string }) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return err
		}
		have[name] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for _, c := range cols {
		if have[c.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+c.name+" "+c.ddl); err != nil {
			return err
		}
		s.log.Info("storage column added", logx.String("table", table), logx.String("column", c.name))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const connectionColumns = `id, host, port, game, player, channel,
	mention_join_leave, mention_item_finder, mention_item_receiver, mention_completion, mention_hints`

type rowScanner interface{ Scan(dest ...any) error }

func scanConnection(r rowScanner) (Connection, error) {
	var (
		c                       Connection
		host, game, player, chn sql.NullString
		port                    sql.NullInt64
		jl, fi, re, co, hi      sql.NullBool
	)
	if err := r.Scan(&c.ID, &host, &port, &game, &player, &chn, &jl, &fi, &re, &co, &hi); err != nil {
		return Connection{}, err
	}
	c.Host, c.Port, c.Game, c.Player, c.ChannelID = host.String, int(port.Int64), game.String, player.String, chn.String
	def := DefaultMentionFlags()
	c.Mentions = MentionFlags{
		JoinLeave:    boolOr(jl, def.JoinLeave),
		ItemFinder:   boolOr(fi, def.ItemFinder),
		ItemReceiver: boolOr(re, def.ItemReceiver),
		Completion:   boolOr(co, def.Completion),
		Hints:        boolOr(hi, def.Hints),
	}
	return c, nil
}

func (s *sqliteStore) ListConnections(ctx context.Context) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetConnection(ctx context.Context, id int64) (Connection, bool, error) {
	c, err := scanConnection(s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, false, nil
	}
	if err != nil {
		return Connection{}, false, err
	}
	return c, true, nil
}

func (s *sqliteStore) InsertConnection(ctx context.Context, c Connection) (int64, error) {
	m := c.Mentions
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO connections(host, port, game, player, channel,
			mention_join_leave, mention_item_finder, mention_item_receiver, mention_completion, mention_hints)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		c.Host, c.Port, c.Game, c.Player, c.ChannelID,
		m.JoinLeave, m.ItemFinder, m.ItemReceiver, m.Completion, m.Hints,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) DeleteConnection(ctx context.Context, host string, port int, player string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE lower(host) = lower(?) AND port = ? AND player = ?`,
		strings.TrimSpace(host), port, player)
	return err
}

const linkColumns = `guild_id, archipelago_name, discord_id,
	mention_join_leave, mention_item_finder, mention_item_receiver, mention_completion, mention_hints`

func scanLink(r rowScanner) (Link, error) {
	var (
		l                  Link
		jl, fi, re, co, hi sql.NullBool
	)
	if err := r.Scan(&l.GuildID, &l.Player, &l.UserID, &jl, &fi, &re, &co, &hi); err != nil {
		return Link{}, err
	}
	l.Prefs = MentionPrefs{
		JoinLeave:    boolPtr(jl),
		ItemFinder:   boolPtr(fi),
		ItemReceiver: boolPtr(re),
		Completion:   boolPtr(co),
		Hints:        boolPtr(hi),
	}
	return l, nil
}

func (s *sqliteStore) ListLinks(ctx context.Context, guildID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM user_links WHERE guild_id = ? ORDER BY id`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqliteStore) FindLinkByUser(ctx context.Context, guildID, userID string) (Link, bool, error) {
	l, err := scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM user_links WHERE guild_id = ? AND discord_id = ? ORDER BY id LIMIT 1`,
		guildID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, false, nil
	}
	if err != nil {
		return Link{}, false, err
	}
	return l, true, nil
}

func (s *sqliteStore) UpsertLink(ctx context.Context, l Link) error {
	p := l.Prefs
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_links(guild_id, archipelago_name, discord_id,
			mention_join_leave, mention_item_finder, mention_item_receiver, mention_completion, mention_hints)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(guild_id, archipelago_name) DO UPDATE SET
			discord_id = excluded.discord_id,
			mention_join_leave = excluded.mention_join_leave,
			mention_item_finder = excluded.mention_item_finder,
			mention_item_receiver = excluded.mention_item_receiver,
			mention_completion = excluded.mention_completion,
			mention_hints = excluded.mention_hints`,
		l.GuildID, l.Player, l.UserID,
		nullBool(p.JoinLeave), nullBool(p.ItemFinder), nullBool(p.ItemReceiver), nullBool(p.Completion), nullBool(p.Hints),
	)
	return err
}

func (s *sqliteStore) DeleteLink(ctx context.Context, guildID, player string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_links WHERE guild_id = ? AND archipelago_name = ?`, guildID, player)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) GetGuildServer(ctx context.Context, guildID string) (GuildServer, bool, error) {
	gs := GuildServer{GuildID: guildID}
	err := s.db.QueryRowContext(ctx, `SELECT host, port FROM guild_servers WHERE guild_id = ?`, guildID).Scan(&gs.Host, &gs.Port)
	if errors.Is(err, sql.ErrNoRows) {
		return GuildServer{}, false, nil
	}
	if err != nil {
		return GuildServer{}, false, err
	}
	return gs, true, nil
}

func (s *sqliteStore) SetGuildServer(ctx context.Context, gs GuildServer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO guild_servers(guild_id, host, port) VALUES(?,?,?)
		 ON CONFLICT(guild_id) DO UPDATE SET host = excluded.host, port = excluded.port`,
		gs.GuildID, gs.Host, gs.Port)
	return err
}

func (s *sqliteStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log(guild_id, user_id, action, timestamp) VALUES(?,?,?,?)`,
		e.GuildID, e.UserID, e.Action, e.At.UTC().Format(activityTimeFormat))
	return err
}

func (s *sqliteStore) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE timestamp < ?`, before.UTC().Format(activityTimeFormat))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolOr(v sql.NullBool, def bool) bool {
	if !v.Valid {
		return def
	}
	return v.Bool
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

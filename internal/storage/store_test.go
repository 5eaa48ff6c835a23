package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "aprelay/pkg/logx"
)

type opener func(t *testing.T, dir string) Store

func openDrivers() map[string]opener {
	return map[string]opener{
		"sqlite": func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "db.sqlite")}, logx.Nop())
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return st
		},
		"file": func(t *testing.T, dir string) Store {
			st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "db.json")}, logx.Nop())
			if err != nil {
				t.Fatalf("open file: %v", err)
			}
			return st
		},
		"memory": func(*testing.T, string) Store { return NewMemory() },
	}
}

func TestConnectionsRoundTrip(t *testing.T) {
	for name, open := range openDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, t.TempDir())
			defer st.Close()

			c := Connection{Host: "archipelago.gg", Port: 38281, Game: "Clique", Player: "Alice", ChannelID: "42", Mentions: DefaultMentionFlags()}
			id, err := st.InsertConnection(ctx, c)
			if err != nil || id == 0 {
				t.Fatalf("insert: id=%d err=%v", id, err)
			}
			got, ok, err := st.GetConnection(ctx, id)
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			c.ID = id
			if got != c {
				t.Fatalf("got %+v\nwant %+v", got, c)
			}

			if err := st.DeleteConnection(ctx, "ARCHIPELAGO.GG", 38281, "Alice"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			all, err := st.ListConnections(ctx)
			if err != nil || len(all) != 0 {
				t.Fatalf("list after delete: %v %v", all, err)
			}
		})
	}
}

func TestLinkUpsertKeepsUnsetPrefs(t *testing.T) {
	for name, open := range openDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, t.TempDir())
			defer st.Close()

			off := false
			if err := st.UpsertLink(ctx, Link{GuildID: "g", Player: "Alice", UserID: "1", Prefs: MentionPrefs{Hints: &off}}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
			if err := st.UpsertLink(ctx, Link{GuildID: "g", Player: "Alice", UserID: "2", Prefs: MentionPrefs{Hints: &off}}); err != nil {
				t.Fatalf("upsert again: %v", err)
			}
			links, err := st.ListLinks(ctx, "g")
			if err != nil || len(links) != 1 {
				t.Fatalf("links=%v err=%v", links, err)
			}
			l := links[0]
			if l.UserID != "2" {
				t.Fatalf("upsert did not replace user: %+v", l)
			}
			if l.Prefs.ItemFinder != nil || l.Prefs.Hints == nil || *l.Prefs.Hints {
				t.Fatalf("prefs not preserved: %+v", l.Prefs)
			}
			if l.Prefs.Allows(MentionJoinLeave) || !l.Prefs.Allows(MentionItemFinder) || l.Prefs.Allows(MentionHints) {
				t.Fatalf("Allows defaults wrong: %+v", l.Prefs)
			}

			found, ok, err := st.FindLinkByUser(ctx, "g", "2")
			if err != nil || !ok || found.Player != "Alice" {
				t.Fatalf("find by user: %+v %v %v", found, ok, err)
			}
			removed, err := st.DeleteLink(ctx, "g", "Alice")
			if err != nil || !removed {
				t.Fatalf("delete: %v %v", removed, err)
			}
			removed, _ = st.DeleteLink(ctx, "g", "Alice")
			if removed {
				t.Fatalf("second delete should report false")
			}
		})
	}
}

func TestGuildServerAndActivity(t *testing.T) {
	for name, open := range openDrivers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t, t.TempDir())
			defer st.Close()

			if _, ok, _ := st.GetGuildServer(ctx, "g"); ok {
				t.Fatalf("unexpected server")
			}
			_ = st.SetGuildServer(ctx, GuildServer{GuildID: "g", Host: "a.gg", Port: 1})
			_ = st.SetGuildServer(ctx, GuildServer{GuildID: "g", Host: "b.gg", Port: 2})
			gs, ok, err := st.GetGuildServer(ctx, "g")
			if err != nil || !ok || gs.Host != "b.gg" || gs.Port != 2 {
				t.Fatalf("server=%+v ok=%v err=%v", gs, ok, err)
			}

			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			_ = st.AppendActivity(ctx, ActivityEntry{GuildID: "g", UserID: SystemUser, Action: "old", At: now.Add(-48 * time.Hour)})
			_ = st.AppendActivity(ctx, ActivityEntry{GuildID: "g", UserID: "1", Action: "new", At: now})
			n, err := st.PruneActivity(ctx, now.Add(-24*time.Hour))
			if err != nil || n != 1 {
				t.Fatalf("pruned=%d err=%v", n, err)
			}
		})
	}
}

func TestFileStoreReloadsState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, _ := st.InsertConnection(ctx, Connection{Host: "h", Port: 1, Player: "p", ChannelID: "c"})
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if _, ok, _ := st.GetConnection(ctx, id); !ok {
		t.Fatalf("connection %d lost across reopen", id)
	}
	next, _ := st.InsertConnection(ctx, Connection{Host: "h", Port: 2, Player: "p"})
	if next <= id {
		t.Fatalf("ids reused: %d after %d", next, id)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

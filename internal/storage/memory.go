package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// state is the in-memory model shared by the memory and file drivers.
type state struct {
	NextID       int64         `json:"next_id"`
	Connections  []Connection  `json:"connections"`
	Links        []Link        `json:"links"`
	GuildServers []GuildServer `json:"guild_servers"`
}

type memoryStore struct {
	mu       sync.Mutex
	st       state
	activity []ActivityEntry
	closed   bool

	// persist is called with mu held after every mutation (file driver).
	persist func(st *state) error
	// appendActivity replaces in-memory activity retention (file driver).
	appendActivity func(e ActivityEntry) error
	pruneActivity  func(before time.Time) (int64, error)
}

// NewMemory returns a process-local Store.
func NewMemory() Store { return &memoryStore{} }

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) commit() error {
	if s.persist == nil {
		return nil
	}
	return s.persist(&s.st)
}

func (s *memoryStore) ListConnections(ctx context.Context) ([]Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(s.st.Connections), nil
}

func (s *memoryStore) GetConnection(ctx context.Context, id int64) (Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Connection{}, false, ErrClosed
	}
	i := slices.IndexFunc(s.st.Connections, func(c Connection) bool { return c.ID == id })
	if i < 0 {
		return Connection{}, false, nil
	}
	return s.st.Connections[i], true, nil
}

func (s *memoryStore) InsertConnection(ctx context.Context, c Connection) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.st.NextID++
	c.ID = s.st.NextID
	s.st.Connections = append(s.st.Connections, c)
	return c.ID, s.commit()
}

func (s *memoryStore) DeleteConnection(ctx context.Context, host string, port int, player string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.st.Connections = slices.DeleteFunc(s.st.Connections, func(c Connection) bool {
		return sameHost(c.Host, host) && c.Port == port && c.Player == player
	})
	return s.commit()
}

func (s *memoryStore) ListLinks(ctx context.Context, guildID string) ([]Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []Link
	for _, l := range s.st.Links {
		if l.GuildID == guildID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memoryStore) FindLinkByUser(ctx context.Context, guildID, userID string) (Link, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Link{}, false, ErrClosed
	}
	for _, l := range s.st.Links {
		if l.GuildID == guildID && l.UserID == userID {
			return l, true, nil
		}
	}
	return Link{}, false, nil
}

func (s *memoryStore) UpsertLink(ctx context.Context, l Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := slices.IndexFunc(s.st.Links, func(x Link) bool { return x.GuildID == l.GuildID && x.Player == l.Player })
	if i >= 0 {
		s.st.Links[i] = l
	} else {
		s.st.Links = append(s.st.Links, l)
	}
	return s.commit()
}

func (s *memoryStore) DeleteLink(ctx context.Context, guildID, player string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	n := len(s.st.Links)
	s.st.Links = slices.DeleteFunc(s.st.Links, func(x Link) bool { return x.GuildID == guildID && x.Player == player })
	if len(s.st.Links) == n {
		return false, nil
	}
	return true, s.commit()
}

func (s *memoryStore) GetGuildServer(ctx context.Context, guildID string) (GuildServer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return GuildServer{}, false, ErrClosed
	}
	for _, gs := range s.st.GuildServers {
		if gs.GuildID == guildID {
			return gs, true, nil
		}
	}
	return GuildServer{}, false, nil
}

func (s *memoryStore) SetGuildServer(ctx context.Context, gs GuildServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := slices.IndexFunc(s.st.GuildServers, func(x GuildServer) bool { return x.GuildID == gs.GuildID })
	if i >= 0 {
		s.st.GuildServers[i] = gs
	} else {
		s.st.GuildServers = append(s.st.GuildServers, gs)
	}
	return s.commit()
}

func (s *memoryStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.Action = strings.TrimSpace(e.Action)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.appendActivity != nil {
		return s.appendActivity(e)
	}
	s.activity = append(s.activity, e)
	return nil
}

func (s *memoryStore) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.pruneActivity != nil {
		return s.pruneActivity(before)
	}
	n := len(s.activity)
	s.activity = slices.DeleteFunc(s.activity, func(e ActivityEntry) bool { return e.At.Before(before) })
	return int64(n - len(s.activity)), nil
}

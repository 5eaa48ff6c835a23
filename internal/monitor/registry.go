package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/samber/oops"

	"aprelay/internal/eventbus"
	"aprelay/internal/storage"
	logx "aprelay/pkg/logx"
)

var (
	ErrAlreadyMonitoring = errors.New("already monitoring this session")
	ErrConnect           = errors.New("failed to connect to session")
)

// Persistence is the subset of the store the registry writes to.
type Persistence interface {
	InsertConnection(ctx context.Context, c storage.Connection) (int64, error)
	DeleteConnection(ctx context.Context, host string, port int, player string) error
	AppendActivity(ctx context.Context, e storage.ActivityEntry) error
}

// Registry is the set of active monitors keyed by identity.
type Registry struct {
	deps  Deps
	store Persistence
	log   logx.Logger

	mu       sync.Mutex
	monitors map[Identity]*Monitor
	pending  map[Identity]struct{}
}

func NewRegistry(deps Deps, store Persistence) *Registry {
	deps = deps.withDefaults()
	return &Registry{
		deps:     deps,
		store:    store,
		log:      deps.Log.With(logx.String("comp", "registry")),
		monitors: make(map[Identity]*Monitor),
		pending:  make(map[Identity]struct{}),
	}
}

// Deps returns the dependencies new monitors are built with.
func (r *Registry) Deps() Deps { return r.deps }

// SetSettings replaces the timing settings used by monitors created later.
func (r *Registry) SetSettings(s Settings) {
	r.mu.Lock()
	r.deps.Settings = s.withDefaults()
	r.mu.Unlock()
}

func (r *Registry) reserve(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[id]; ok {
		return ErrAlreadyMonitoring
	}
	if _, ok := r.pending[id]; ok {
		return ErrAlreadyMonitoring
	}
	r.pending[id] = struct{}{}
	return nil
}

// Create dials the session, binds it to the configured channel and
// registers the monitor. A config without an ID is persisted first.
func (r *Registry) Create(ctx context.Context, cfg storage.Connection) (*Monitor, error) {
	id := IdentityOf(cfg)
	errb := oops.In("registry").With("host", id.Host, "port", id.Port, "player", id.Player)
	if err := r.reserve(id); err != nil {
		return nil, errb.Wrap(err)
	}
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	r.mu.Lock()
	deps := r.deps
	r.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, deps.Settings.DialTimeout)
	sess, err := deps.Dialer.Dial(dctx, ParamsOf(cfg))
	cancel()
	if err != nil {
		return nil, errb.Wrap(fmt.Errorf("%w: %w", ErrConnect, err))
	}

	m, err := New(ctx, cfg, sess, deps)
	if err != nil {
		_ = sess.Close()
		return nil, errb.Wrap(err)
	}

	if cfg.ID == 0 && r.store != nil {
		if newID, err := r.store.InsertConnection(ctx, cfg); err != nil {
			r.log.Error("persist monitor failed; it will not survive a restart", logx.String("monitor", id.String()), logx.Err(err))
		} else {
			m.SetID(newID)
		}
	}

	r.mu.Lock()
	r.monitors[id] = m
	r.mu.Unlock()

	r.activity(ctx, m.GuildID(), "Connected to "+id.Address())
	eventbus.Publish(deps.Bus, eventbus.MonitorStarted, id.String())
	r.log.Info("monitor started", logx.String("monitor", id.String()), logx.String("channel", m.ChannelID()))
	return m, nil
}

// Remove stops and unregisters the monitor for id. With forget the
// persisted config is deleted too. Missing monitors are a no-op.
func (r *Registry) Remove(ctx context.Context, id Identity, forget bool) bool {
	r.mu.Lock()
	m, ok := r.monitors[id]
	if ok {
		delete(r.monitors, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	m.Stop()
	if forget && r.store != nil {
		if err := r.store.DeleteConnection(ctx, id.Host, id.Port, id.Player); err != nil {
			r.log.Warn("delete monitor config failed", logx.String("monitor", id.String()), logx.Err(err))
		}
	}
	r.activity(ctx, m.GuildID(), "Disconnected from "+id.Address())
	return true
}

func (r *Registry) Exists(id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.monitors[id]
	return ok
}

func (r *Registry) Get(id Identity) (*Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[id]
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// ListByGuild returns the guild's monitors ordered by identity.
func (r *Registry) ListByGuild(guildID string) []*Monitor {
	r.mu.Lock()
	out := lo.Filter(lo.Values(r.monitors), func(m *Monitor, _ int) bool { return m.GuildID() == guildID })
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Identity().String() < out[j].Identity().String() })
	return out
}

// FindByPlayer returns the guild's monitor for a player name, compared
// case-insensitively.
func (r *Registry) FindByPlayer(guildID, player string) (*Monitor, bool) {
	for _, m := range r.ListByGuild(guildID) {
		if strings.EqualFold(m.Config().Player, player) {
			return m, true
		}
	}
	return nil, false
}

// StopAll stops every monitor without forgetting persisted configs.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := lo.Values(r.monitors)
	r.monitors = make(map[Identity]*Monitor)
	r.mu.Unlock()
	for _, m := range all {
		m.Stop()
	}
}

func (r *Registry) activity(ctx context.Context, guildID, action string) {
	if r.store == nil {
		return
	}
	e := storage.ActivityEntry{GuildID: guildID, UserID: storage.SystemUser, Action: action, At: r.deps.Clock.Now().UTC()}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.AppendActivity(actx, e); err != nil {
		r.log.Warn("append activity failed", logx.Err(err))
	}
}

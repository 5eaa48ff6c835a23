package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "aprelay/internal/runtime/supervisor"
	"aprelay/internal/storage"
	kit "aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

const (
	DefaultTimeout = 30 * time.Second

	busyText  = "The bot is busy, please try again in a moment."
	errorText = "There was an error while executing this command!"
)

type Options struct {
	// Timeout bounds a single handler; per-action timeouts override it.
	Timeout   time.Duration
	Workers   int
	QueueSize int
	Activity  ActivityLog
}

// Manager routes interactions to commands and button actions on a bounded
// worker pool.
type Manager struct {
	log  logx.Logger
	opts Options

	mu       sync.RWMutex
	commands map[string]Command
	actions  map[string]ActionRoute

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewManager(log logx.Logger, opts Options) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = max(2, runtime.NumCPU())
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	return &Manager{
		log:      log.With(logx.String("comp", "discord.router")),
		opts:     opts,
		commands: map[string]Command{},
		actions:  map[string]ActionRoute{},
		jobs:     make(chan func(), opts.QueueSize),
	}
}

// SetRegistry replaces the command and action tables.
func (m *Manager) SetRegistry(cmds []Command, actions []ActionRoute) {
	ct := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(c.Spec().Name)
		if name == "" {
			continue
		}
		ct[name] = c
	}
	at := make(map[string]ActionRoute, len(actions))
	for _, a := range actions {
		p := strings.TrimSuffix(strings.TrimSpace(a.Prefix), ":")
		if p == "" || a.Handle == nil {
			continue
		}
		at[p] = a
	}
	m.mu.Lock()
	m.commands = ct
	m.actions = at
	m.mu.Unlock()
}

// Specs returns the registered command specs ordered by name.
func (m *Manager) Specs() []kit.CommandSpec {
	m.mu.RLock()
	out := make([]kit.CommandSpec, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c.Spec())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Supervisor returns the dispatcher's supervisor (nil if not running).
func (m *Manager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *Manager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes interactions until ctx is done or in is closed.
func (m *Manager) DispatchLoop(ctx context.Context, in <-chan kit.Interaction) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("interaction dispatcher started", logx.Int("workers", m.opts.Workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.opts.Workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					// Middleware already recovers; keep workers alive regardless.
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in interaction job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		m.setSupervisor(sup, false)
		close(m.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("interaction dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case it, ok := <-in:
			if !ok {
				return nil
			}
			m.route(ctx, it)
		}
	}
}

func (m *Manager) route(ctx context.Context, in kit.Interaction) {
	switch in.Kind {
	case kit.InteractionCommand:
		m.routeCommand(ctx, in)
	case kit.InteractionAutocomplete:
		m.routeAutocomplete(ctx, in)
	case kit.InteractionButton:
		m.routeAction(ctx, in)
	case kit.InteractionGuildJoin:
		m.tryEnqueue(func() { m.activity(ctx, in.GuildID, storage.SystemUser, "Added to guild") })
	case kit.InteractionGuildLeave:
		m.tryEnqueue(func() { m.activity(ctx, in.GuildID, storage.SystemUser, "Removed from guild") })
	}
}

func (m *Manager) request(in kit.Interaction, route string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Interaction: in,
		Route:       route,
		ReqID:       rid,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("guild_id", in.GuildID),
			logx.String("user_id", in.UserID),
			logx.String("route", route),
		),
	}
}

func (m *Manager) lookup(name string) (Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commands[name]
	return c, ok
}

func (m *Manager) routeCommand(root context.Context, in kit.Interaction) {
	cmd, ok := m.lookup(in.Command)
	if !ok {
		m.log.Debug("unknown command", logx.String("cmd", in.Command))
		return
	}
	req := m.request(in, in.Command)
	final := Chain(cmd.Execute,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(m.opts.Timeout),
	)
	if !m.tryEnqueue(func() {
		m.activity(root, in.GuildID, in.UserID, "Executed command "+in.Command)
		if err := final(root, req); err != nil {
			m.replyError(root, req)
		}
	}) {
		m.reply(root, in, busyText)
	}
}

func (m *Manager) routeAutocomplete(root context.Context, in kit.Interaction) {
	cmd, ok := m.lookup(in.Command)
	if !ok {
		return
	}
	ac, ok := cmd.(Autocompleter)
	if !ok {
		return
	}
	req := m.request(in, in.Command)
	h := func(ctx context.Context, r *Request) error {
		choices, err := ac.Autocomplete(ctx, r)
		if err != nil {
			return err
		}
		if r.Respond == nil {
			return nil
		}
		return r.Respond.Choices(ctx, choices)
	}
	// Discord expects autocomplete answers within three seconds.
	final := Chain(h, MWPanicRecover(m.log), MWTimeout(3*time.Second))
	m.tryEnqueue(func() { _ = final(root, req) })
}

func (m *Manager) routeAction(root context.Context, in kit.Interaction) {
	prefix, payload, _ := strings.Cut(strings.TrimSpace(in.ActionID), ":")
	m.mu.RLock()
	route, ok := m.actions[prefix]
	m.mu.RUnlock()
	if !ok {
		return
	}
	req := m.request(in, prefix)
	req.Payload = payload
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = m.opts.Timeout
	}
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := Chain(h,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(timeout),
	)
	if !m.tryEnqueue(func() {
		if err := final(root, req); err != nil {
			m.replyError(root, req)
		}
	}) {
		m.reply(root, in, busyText)
	}
}

func (m *Manager) reply(ctx context.Context, in kit.Interaction, text string) {
	if in.Respond == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = in.Respond.Reply(rctx, text, true)
}

// replyError answers a failed handler; if it already responded the error
// goes out as a followup.
func (m *Manager) replyError(ctx context.Context, req *Request) {
	if req.Respond == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := req.Respond.Reply(rctx, errorText, true); err != nil {
		_ = req.Respond.Followup(rctx, errorText, true)
	}
}

func (m *Manager) activity(ctx context.Context, guildID, userID, action string) {
	if m.opts.Activity == nil || guildID == "" {
		return
	}
	actx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	e := storage.ActivityEntry{GuildID: guildID, UserID: userID, Action: action, At: time.Now().UTC()}
	if err := m.opts.Activity.AppendActivity(actx, e); err != nil {
		m.log.Warn("append activity failed", logx.Err(err))
	}
}

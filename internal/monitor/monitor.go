package monitor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"aprelay/internal/archipelago"
	"aprelay/internal/eventbus"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/pkg/clock"
	logx "aprelay/pkg/logx"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelNotText  = errors.New("channel is not text-based")
	ErrChannelNotGuild = errors.New("channel is not a guild channel")
)

const (
	DefaultReconnectDelay = 5 * time.Minute

	// RemonitorPrefix prefixes the action id of the re-monitor button.
	RemonitorPrefix = "remonitor:"

	disconnectedText = "Disconnected from the server."
	messageTitle     = "Archipelago"
)

type State int

const (
	StateConnected State = iota
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "stopped"
	}
}

// Settings are the timing knobs shared by all monitors.
type Settings struct {
	BatchDelay     time.Duration
	BatchSize      int
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	SendTimeout    time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.BatchDelay <= 0 {
		s.BatchDelay = DefaultBatchDelay
	}
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = DefaultReconnectDelay
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = 30 * time.Second
	}
	if s.SendTimeout <= 0 {
		s.SendTimeout = 10 * time.Second
	}
	return s
}

type Deps struct {
	Channels ChannelResolver
	Sender   transport.Sender
	Links    LinkDirectory
	Dialer   Dialer
	Clock    clock.Clock
	Bus      eventbus.Bus
	Log      logx.Logger
	Settings Settings
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	d.Settings = d.Settings.withDefaults()
	return d
}

// Monitor relays one session to one channel.
type Monitor struct {
	deps    Deps
	log     logx.Logger
	channel transport.Channel
	batch   *batcher

	mu           sync.Mutex
	cfg          storage.Connection
	session      Session
	active       bool
	reconnecting bool
	retry        *clock.Timer
}

// New binds an established session to the configured channel. Channel
// resolution failures are fatal and leave nothing running.
func New(ctx context.Context, cfg storage.Connection, sess Session, deps Deps) (*Monitor, error) {
	deps = deps.withDefaults()
	ch, err := deps.Channels.ResolveChannel(ctx, cfg.ChannelID)
	if err != nil {
		return nil, errors.Join(ErrChannelNotFound, err)
	}
	switch {
	case !ch.Text:
		return nil, ErrChannelNotText
	case ch.GuildID == "":
		return nil, ErrChannelNotGuild
	}

	id := IdentityOf(cfg)
	m := &Monitor{
		deps:    deps,
		log:     deps.Log.With(logx.String("monitor", id.String())),
		channel: ch,
		cfg:     cfg,
		session: sess,
		active:  true,
	}
	m.batch = newBatcher(deps.Clock, deps.Settings.BatchDelay, deps.Settings.BatchSize, ch.ID)
	m.batch.active = m.Active
	m.batch.deliver = m.deliver
	go m.pump(sess)
	return m, nil
}

func (m *Monitor) Identity() Identity { return IdentityOf(m.Config()) }
func (m *Monitor) GuildID() string    { return m.channel.GuildID }
func (m *Monitor) ChannelID() string  { return m.channel.ID }

func (m *Monitor) Config() storage.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetID records the persisted id once the config has been stored.
func (m *Monitor) SetID(id int64) {
	m.mu.Lock()
	m.cfg.ID = id
	m.mu.Unlock()
}

func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.active:
		return StateStopped
	case m.reconnecting:
		return StateReconnecting
	default:
		return StateConnected
	}
}

func (m *Monitor) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Say sends a chat command through the live session.
func (m *Monitor) Say(ctx context.Context, text string) error {
	m.mu.Lock()
	sess, ok := m.session, m.active && !m.reconnecting
	m.mu.Unlock()
	if !ok {
		return archipelago.ErrClosed
	}
	return sess.Say(ctx, text)
}

// Stop is terminal and idempotent: it cancels a pending reconnect and
// batch flush and closes the session.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	retry := m.retry
	m.retry = nil
	sess := m.session
	m.mu.Unlock()

	retry.Stop()
	m.batch.stop()
	if sess != nil {
		_ = sess.Close()
	}
	eventbus.Publish(m.deps.Bus, eventbus.MonitorStopped, m.Identity().String())
	m.log.Debug("monitor stopped")
}

func (m *Monitor) pump(sess Session) {
	for ev := range sess.Events() {
		m.handle(sess, ev)
	}
}

func (m *Monitor) current(sess Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && m.session == sess
}

func (m *Monitor) handle(sess Session, ev archipelago.Event) {
	if !m.current(sess) {
		return
	}
	if lost, ok := ev.(archipelago.ConnectionLost); ok {
		m.handleDisconnect(sess, lost.Err)
		return
	}

	f := m.formatter(sess)
	switch e := ev.(type) {
	case archipelago.ItemSent:
		m.batch.enqueue(CategoryItems, toEntry(f.Render(e.Segments, itemCategory(f.Names, e))))
	case archipelago.ItemsCollected:
		m.batch.enqueue(CategoryItems, toEntry(f.Render(e.Segments, Always(storage.MentionItemFinder))))
	case archipelago.ItemHinted:
		m.batch.enqueue(CategoryHints, toEntry(f.Render(e.Segments, Always(storage.MentionHints))))
	case archipelago.PlayerJoined:
		if archipelago.HasTag(e.Tags, archipelago.TagMonitor) {
			return
		}
		if archipelago.HasTag(e.Tags, archipelago.TagIgnoreGame) {
			m.send(Rendered{Text: "A tracker has joined the game."}, nil)
			return
		}
		who := f.Player(e.Slot, storage.MentionJoinLeave)
		game := "Unknown Game"
		if p, ok := f.Names.Player(e.Slot); ok && p.Game != "" {
			game = p.Game
		}
		m.send(suffix(who, " ("+game+") joined the game!"), nil)
	case archipelago.PlayerLeft:
		m.send(suffix(f.Player(e.Slot, storage.MentionJoinLeave), " left the game!"), nil)
	case archipelago.GoalCompleted:
		m.send(suffix(f.Player(e.Slot, storage.MentionCompletion), " has completed their goal!"), nil)
	case archipelago.ItemsReleased:
		m.send(suffix(f.Player(e.Slot, storage.MentionItemFinder), " has released their remaining items!"), nil)
	case archipelago.CommandResult:
		m.send(f.Render(e.Segments, Always(storage.MentionHints)), nil)
	case archipelago.ServerChat:
		if strings.Contains(strings.ToLower(archipelago.PlainText(e.Segments, f.Names)), "hint") {
			m.send(f.Render(e.Segments, Always(storage.MentionHints)), nil)
		}
	}
}

// itemCategory uses the receiver flag for the receiving player's segment
// and the finder flag for every other player.
func itemCategory(names *archipelago.Names, e archipelago.ItemSent) Categorizer {
	var receiver string
	if p, ok := names.Player(e.Receiving); ok {
		receiver = p.Name
	}
	return func(s archipelago.Segment) storage.Mention {
		if e.Receiving == e.Item.Player {
			return storage.MentionItemFinder
		}
		if !s.ByName && s.Slot == e.Receiving {
			return storage.MentionItemReceiver
		}
		if s.ByName && receiver != "" && s.Text == receiver {
			return storage.MentionItemReceiver
		}
		return storage.MentionItemFinder
	}
}

func suffix(r Rendered, text string) Rendered {
	r.Text += text
	return r
}

func toEntry(r Rendered) entry { return entry{text: r.Text, mentions: r.Mentions} }

func (m *Monitor) formatter(sess Session) Formatter {
	m.mu.Lock()
	flags := m.cfg.Mentions
	m.mu.Unlock()

	f := Formatter{Names: sess.Names(), Flags: flags}
	if m.deps.Links == nil {
		return f
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	links, err := m.deps.Links.ListLinks(ctx, m.channel.GuildID)
	if err != nil {
		m.log.Warn("link lookup failed, rendering without mentions", logx.Err(err))
		return f
	}
	f.Links = NewLinkSnapshot(links)
	return f
}

// send delivers one message immediately.
func (m *Monitor) send(r Rendered, buttons []transport.Button) {
	m.deliver([]transport.OutgoingMessage{{
		ChannelID: m.channel.ID,
		Content:   mentionLine(r.Mentions),
		Mentions:  r.Mentions,
		Embeds:    []transport.Embed{{Title: messageTitle, Description: r.Text}},
		Buttons:   buttons,
	}})
}

func (m *Monitor) deliver(msgs []transport.OutgoingMessage) {
	if m.deps.Sender == nil {
		return
	}
	for _, msg := range msgs {
		ctx, cancel := context.WithTimeout(context.Background(), m.deps.Settings.SendTimeout)
		if _, err := m.deps.Sender.Send(ctx, msg); err != nil {
			m.log.Warn("notification delivery failed", logx.String("channel", msg.ChannelID), logx.Err(err))
		}
		cancel()
	}
}

// RemonitorAction is the button action id that re-creates monitor id.
func RemonitorAction(id int64) string { return RemonitorPrefix + strconv.FormatInt(id, 10) }

func (m *Monitor) handleDisconnect(sess Session, cause error) {
	m.mu.Lock()
	if !m.active || m.reconnecting || m.session != sess {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	id := m.cfg.ID
	m.mu.Unlock()

	m.log.Warn("session disconnected", logx.Err(cause))
	eventbus.Publish(m.deps.Bus, eventbus.MonitorDisconnected, m.Identity().String())
	var buttons []transport.Button
	// An unpersisted monitor has nothing for a re-monitor to load.
	if id != 0 {
		buttons = []transport.Button{{Label: "Re-monitor", ActionID: RemonitorAction(id)}}
	}
	m.send(Rendered{Text: disconnectedText}, buttons)
	go m.reconnect()
}

// reconnect makes one attempt and, on failure, arms a single retry.
func (m *Monitor) reconnect() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	cfg := m.cfg
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.deps.Settings.DialTimeout)
	sess, err := m.deps.Dialer.Dial(ctx, ParamsOf(cfg))
	cancel()

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		if err == nil {
			_ = sess.Close()
		}
		return
	}
	if err != nil {
		m.retry = m.deps.Clock.AfterFunc(m.deps.Settings.ReconnectDelay, func() {
			m.mu.Lock()
			m.retry = nil
			m.mu.Unlock()
			m.reconnect()
		})
		m.mu.Unlock()
		m.log.Warn("reconnect failed", logx.Duration("retry_in", m.deps.Settings.ReconnectDelay), logx.Err(err))
		eventbus.Publish(m.deps.Bus, eventbus.MonitorReconnectFailed, IdentityOf(cfg).String())
		return
	}
	old := m.session
	m.session = sess
	m.reconnecting = false
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.log.Info("session reconnected")
	eventbus.Publish(m.deps.Bus, eventbus.MonitorReconnected, IdentityOf(cfg).String())
	go m.pump(sess)
}

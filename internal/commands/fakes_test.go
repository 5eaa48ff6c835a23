package commands

import (
	"context"
	"errors"
	"sync"

	"aprelay/internal/archipelago"
	"aprelay/internal/monitor"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/internal/transport/discord/router"
	logx "aprelay/pkg/logx"
)

type call struct {
	kind      string
	text      string
	ephemeral bool
}

type fakeResponder struct {
	mu      sync.Mutex
	calls   []call
	choices []transport.Choice
}

func (r *fakeResponder) add(c call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

func (r *fakeResponder) Reply(_ context.Context, text string, eph bool) error {
	r.add(call{"reply", text, eph})
	return nil
}
func (r *fakeResponder) Defer(_ context.Context, eph bool) error {
	r.add(call{kind: "defer", ephemeral: eph})
	return nil
}
func (r *fakeResponder) Edit(_ context.Context, text string) error {
	r.add(call{kind: "edit", text: text})
	return nil
}
func (r *fakeResponder) Followup(_ context.Context, text string, eph bool) error {
	r.add(call{"followup", text, eph})
	return nil
}
func (r *fakeResponder) Choices(_ context.Context, ch []transport.Choice) error {
	r.mu.Lock()
	r.choices = ch
	r.mu.Unlock()
	return nil
}

// last returns the text of the final reply or edit.
func (r *fakeResponder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i].kind != "defer" {
			return r.calls[i].text
		}
	}
	return ""
}

type fakeSession struct {
	events    chan archipelago.Event
	names     *archipelago.Names
	mu        sync.Mutex
	said      []string
	closeOnce sync.Once
	onSay     func(s *fakeSession, text string)
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan archipelago.Event, 16), names: testNames()}
}

func (s *fakeSession) Events() <-chan archipelago.Event { return s.events }
func (s *fakeSession) Names() *archipelago.Names        { return s.names }
func (s *fakeSession) ItemNames(game string) []string   { return s.names.ItemNames(game) }

func (s *fakeSession) Say(_ context.Context, text string) error {
	s.mu.Lock()
	s.said = append(s.said, text)
	fn := s.onSay
	s.mu.Unlock()
	if fn != nil {
		fn(s, text)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func (s *fakeSession) Said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type fakeDialer struct {
	mu     sync.Mutex
	params []monitor.DialParams
	dial   func(p monitor.DialParams) (monitor.Session, error)
}

func (d *fakeDialer) Dial(_ context.Context, p monitor.DialParams) (monitor.Session, error) {
	d.mu.Lock()
	d.params = append(d.params, p)
	fn := d.dial
	d.mu.Unlock()
	if fn == nil {
		return nil, errors.New("connection refused")
	}
	return fn(p)
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []transport.OutgoingMessage
}

func (s *fakeSender) Send(_ context.Context, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
	return transport.MessageRef{ChannelID: msg.ChannelID}, nil
}

func (s *fakeSender) Messages() []transport.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.OutgoingMessage(nil), s.msgs...)
}

type fakeChannels map[string]transport.Channel

func (f fakeChannels) ResolveChannel(_ context.Context, id string) (transport.Channel, error) {
	ch, ok := f[id]
	if !ok {
		return transport.Channel{}, errors.New("unknown channel")
	}
	return ch, nil
}

const (
	testGuild   = "g1"
	testChannel = "c1"
	testUser    = "u1"
)

func testNames() *archipelago.Names {
	return archipelago.NewNames(
		[]archipelago.Player{{Slot: 1, Name: "Alice", Game: "Clique"}},
		map[string]map[int64]string{"Clique": {100: "Button Activation", 101: "Button Color", 102: "Key"}},
		map[string]map[int64]string{"Clique": {200: "The Big Red Button"}},
	)
}

type testEnv struct {
	store  storage.Store
	dialer *fakeDialer
	sender *fakeSender
	deps   Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{store: storage.NewMemory(), dialer: &fakeDialer{}, sender: &fakeSender{}}
	mdeps := monitor.Deps{
		Channels: fakeChannels{
			testChannel: {ID: testChannel, GuildID: testGuild, Text: true},
			"voice":     {ID: "voice", GuildID: testGuild},
			"other":     {ID: "other", GuildID: "g2", Text: true},
		},
		Sender: env.sender,
		Links:  env.store,
		Dialer: env.dialer,
	}
	env.deps = Deps{
		Registry: monitor.NewRegistry(mdeps, env.store),
		Store:    env.store,
		Channels: mdeps.Channels,
		Sender:   env.sender,
		Dialer:   env.dialer,
		HintTags: []string{"IgnoreGame", "Monitor"},
		Log:      logx.Nop(),
	}
	return env
}

// acceptAll makes the dialer hand out a fresh session per call.
func (env *testEnv) acceptAll() {
	env.dialer.mu.Lock()
	env.dialer.dial = func(monitor.DialParams) (monitor.Session, error) { return newFakeSession(), nil }
	env.dialer.mu.Unlock()
}

func request(kind transport.InteractionKind, opts ...transport.Option) (*router.Request, *fakeResponder) {
	resp := &fakeResponder{}
	return &router.Request{
		Interaction: transport.Interaction{
			Kind:      kind,
			GuildID:   testGuild,
			ChannelID: testChannel,
			UserID:    testUser,
			Options:   opts,
			Respond:   resp,
		},
		Logger: logx.Nop(),
	}, resp
}

func str(name, v string) transport.Option {
	return transport.Option{Name: name, Type: transport.OptionString, Value: v}
}

func num(name string, v int64) transport.Option {
	return transport.Option{Name: name, Type: transport.OptionInteger, Value: v}
}

func flag(name string, v bool) transport.Option {
	return transport.Option{Name: name, Type: transport.OptionBoolean, Value: v}
}

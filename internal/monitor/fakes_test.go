package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aprelay/internal/archipelago"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
	"aprelay/pkg/clock"
)

type fakeSession struct {
	events chan archipelago.Event
	names  *archipelago.Names

	mu        sync.Mutex
	said      []string
	closed    bool
	closeOnce sync.Once
	onSay     func(text string)
}

func newFakeSession(names *archipelago.Names) *fakeSession {
	return &fakeSession{events: make(chan archipelago.Event, 64), names: names}
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
		fn(text)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.events)
	})
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	dial  func(ctx context.Context, p DialParams) (Session, error)
}

func (d *fakeDialer) Dial(ctx context.Context, p DialParams) (Session, error) {
	d.mu.Lock()
	d.calls++
	fn := d.dial
	d.mu.Unlock()
	if fn == nil {
		return nil, errors.New("dial refused")
	}
	return fn(ctx, p)
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []transport.OutgoingMessage
}

func (s *fakeSender) Send(_ context.Context, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
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

type fakeLinks []storage.Link

func (f fakeLinks) ListLinks(_ context.Context, guildID string) ([]storage.Link, error) {
	var out []storage.Link
	for _, l := range f {
		if l.GuildID == guildID {
			out = append(out, l)
		}
	}
	return out, nil
}

const (
	testGuild   = "g1"
	testChannel = "c1"
)

func testNames() *archipelago.Names {
	return archipelago.NewNames(
		[]archipelago.Player{
			{Slot: 1, Name: "Alice", Game: "Clique"},
			{Slot: 2, Name: "Bob", Game: "Clique"},
		},
		map[string]map[int64]string{"Clique": {100: "Button Activation"}},
		map[string]map[int64]string{"Clique": {200: "The Big Red Button"}},
	)
}

func testConfig() storage.Connection {
	return storage.Connection{
		ID:        7,
		Host:      "Archipelago.gg",
		Port:      38281,
		Game:      "Clique",
		Player:    "Alice",
		ChannelID: testChannel,
		Mentions:  storage.DefaultMentionFlags(),
	}
}

type testEnv struct {
	clock  *clock.Fake
	sender *fakeSender
	dialer *fakeDialer
	deps   Deps
}

func newTestEnv(links ...storage.Link) *testEnv {
	env := &testEnv{
		clock:  clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		sender: &fakeSender{},
		dialer: &fakeDialer{},
	}
	env.deps = Deps{
		Channels: fakeChannels{
			testChannel: {ID: testChannel, GuildID: testGuild, Text: true},
			"voice":     {ID: "voice", GuildID: testGuild},
			"dm":        {ID: "dm", Text: true},
		},
		Sender: env.sender,
		Links:  fakeLinks(links),
		Dialer: env.dialer,
		Clock:  env.clock,
	}
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func boolPtr(v bool) *bool { return &v }

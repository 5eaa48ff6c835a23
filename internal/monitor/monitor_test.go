package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"aprelay/internal/archipelago"
	"aprelay/internal/storage"
	"aprelay/internal/transport"
)

func newTestMonitor(t *testing.T, env *testEnv) (*Monitor, *fakeSession) {
	t.Helper()
	sess := newFakeSession(testNames())
	m, err := New(context.Background(), testConfig(), sess, env.deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Stop)
	return m, sess
}

func descriptions(msgs []transport.OutgoingMessage) []string {
	var out []string
	for _, m := range msgs {
		for _, e := range m.Embeds {
			if e.Description != "" {
				out = append(out, e.Description)
			}
		}
	}
	return out
}

func TestNewRejectsUnusableChannels(t *testing.T) {
	tests := []struct {
		channel string
		want    error
	}{
		{"missing", ErrChannelNotFound},
		{"voice", ErrChannelNotText},
		{"dm", ErrChannelNotGuild},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			env := newTestEnv()
			cfg := testConfig()
			cfg.ChannelID = tt.channel
			_, err := New(context.Background(), cfg, newFakeSession(testNames()), env.deps)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImmediateNotifications(t *testing.T) {
	tests := []struct {
		name string
		ev   archipelago.Event
		want string
	}{
		{"join", archipelago.PlayerJoined{Slot: 2}, "**Bob** (Clique) joined the game!"},
		{"tracker", archipelago.PlayerJoined{Slot: 2, Tags: []string{"Tracker", "IgnoreGame"}}, "A tracker has joined the game."},
		{"left", archipelago.PlayerLeft{Slot: 2}, "**Bob** left the game!"},
		{"goal", archipelago.GoalCompleted{Slot: 2}, "**Bob** has completed their goal!"},
		{"release", archipelago.ItemsReleased{Slot: 2}, "**Bob** has released their remaining items!"},
		{"command result", archipelago.CommandResult{Segments: []archipelago.Segment{{Text: "No hints found."}}}, "No hints found."},
		{"hint chat", archipelago.ServerChat{Segments: []archipelago.Segment{{Text: "Use !hint to get a Hint"}}}, "Use !hint to get a Hint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			_, sess := newTestMonitor(t, env)
			sess.events <- tt.ev
			waitFor(t, "message", func() bool { return len(env.sender.Messages()) == 1 })
			msg := env.sender.Messages()[0]
			if msg.ChannelID != testChannel || msg.Embeds[0].Title != "Archipelago" {
				t.Fatalf("unexpected message: %+v", msg)
			}
			if got := msg.Embeds[0].Description; got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIgnoredEvents(t *testing.T) {
	env := newTestEnv()
	_, sess := newTestMonitor(t, env)
	sess.events <- archipelago.PlayerJoined{Slot: 2, Tags: []string{"Monitor"}}
	sess.events <- archipelago.ServerChat{Segments: []archipelago.Segment{{Text: "hello"}}}
	sess.events <- archipelago.Message{Type: "Chat", Segments: []archipelago.Segment{{Text: "hi"}}}
	sess.events <- archipelago.GoalCompleted{Slot: 1}
	waitFor(t, "goal message", func() bool { return len(env.sender.Messages()) == 1 })
	if got := descriptions(env.sender.Messages()); got[0] != "**Alice** has completed their goal!" {
		t.Fatalf("unexpected messages: %v", got)
	}
}

func TestJoinMentionFollowsPolicy(t *testing.T) {
	env := newTestEnv(storage.Link{GuildID: testGuild, Player: "Bob", UserID: "ub", Prefs: storage.MentionPrefs{JoinLeave: boolPtr(true)}})
	sess := newFakeSession(testNames())
	cfg := testConfig()
	cfg.Mentions.JoinLeave = true
	m, err := New(context.Background(), cfg, sess, env.deps)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	sess.events <- archipelago.PlayerLeft{Slot: 2}
	waitFor(t, "message", func() bool { return len(env.sender.Messages()) == 1 })
	msg := env.sender.Messages()[0]
	if msg.Content != "<@ub>" || msg.Embeds[0].Description != "<@ub> left the game!" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestItemsAndHintsAreBatched(t *testing.T) {
	env := newTestEnv()
	_, sess := newTestMonitor(t, env)
	item := archipelago.Segment{Kind: archipelago.SegmentItem, Text: "100", ID: 100, Slot: 2}
	sess.events <- archipelago.ItemSent{
		Segments:  []archipelago.Segment{playerSeg(1), {Text: " sent "}, item, {Text: " to "}, playerSeg(2)},
		Item:      archipelago.NetworkItem{Item: 100, Player: 1},
		Receiving: 2,
	}
	sess.events <- archipelago.ItemHinted{Segments: []archipelago.Segment{{Text: "[Hint]: "}, item}}
	sess.events <- archipelago.ItemsCollected{Slot: 2, Segments: []archipelago.Segment{playerSeg(2), {Text: " has collected their items"}}}

	if !env.clock.WaitForPending(1, 2*time.Second) {
		t.Fatal("flush timer not armed")
	}
	// let the pump drain the remaining events before the flush fires
	time.Sleep(20 * time.Millisecond)
	if len(env.sender.Messages()) != 0 {
		t.Fatal("batched events were sent immediately")
	}
	env.clock.Advance(DefaultBatchDelay)

	msgs := env.sender.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	hints, items := msgs[0].Embeds[0], msgs[1].Embeds[0]
	if hints.Title != "Hints" || len(hints.Fields) != 1 || hints.Fields[0].Value != "[Hint]: *Button Activation*" {
		t.Fatalf("hints embed: %+v", hints)
	}
	if items.Title != "Items" || len(items.Fields) != 2 {
		t.Fatalf("items embed: %+v", items)
	}
	if items.Fields[0].Value != "**Alice** sent *Button Activation* to **Bob**" {
		t.Fatalf("item text: %q", items.Fields[0].Value)
	}
}

func TestDisconnectHandledOnce(t *testing.T) {
	env := newTestEnv()
	release := make(chan struct{})
	env.dialer.dial = func(ctx context.Context, _ DialParams) (Session, error) {
		<-release
		return nil, errors.New("still down")
	}
	m, sess := newTestMonitor(t, env)

	m.handleDisconnect(sess, errors.New("reset"))
	m.handleDisconnect(sess, errors.New("reset"))
	waitFor(t, "dial", func() bool { return env.dialer.Calls() == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := env.dialer.Calls(); n != 1 {
		t.Fatalf("dial attempts = %d, want 1", n)
	}
	if m.State() != StateReconnecting {
		t.Fatalf("state = %v", m.State())
	}

	msgs := env.sender.Messages()
	if len(msgs) != 1 || msgs[0].Embeds[0].Description != "Disconnected from the server." {
		t.Fatalf("messages: %+v", msgs)
	}
	if b := msgs[0].Buttons; len(b) != 1 || b[0].Label != "Re-monitor" || b[0].ActionID != "remonitor:7" {
		t.Fatalf("buttons: %+v", b)
	}
	close(release)
	if !env.clock.WaitForPending(1, 2*time.Second) {
		t.Fatal("retry not armed")
	}
}

func TestStopCancelsPendingRetry(t *testing.T) {
	env := newTestEnv()
	env.dialer.dial = func(context.Context, DialParams) (Session, error) { return nil, errors.New("down") }
	m, sess := newTestMonitor(t, env)

	sess.events <- archipelago.ConnectionLost{Err: errors.New("eof")}
	if !env.clock.WaitForPending(1, 2*time.Second) {
		t.Fatal("retry not armed")
	}
	if n := env.dialer.Calls(); n != 1 {
		t.Fatalf("dial attempts = %d", n)
	}

	m.Stop()
	if n := env.clock.Pending(); n != 0 {
		t.Fatalf("pending timers after stop = %d", n)
	}
	env.clock.Advance(2 * DefaultReconnectDelay)
	if n := env.dialer.Calls(); n != 1 {
		t.Fatalf("dial attempts after stop = %d, want 1", n)
	}
	if m.State() != StateStopped {
		t.Fatalf("state = %v", m.State())
	}
}

func TestRetryAfterDelayThenRecover(t *testing.T) {
	env := newTestEnv()
	next := newFakeSession(testNames())
	env.dialer.dial = func(context.Context, DialParams) (Session, error) {
		if env.dialer.Calls() == 1 {
			return nil, errors.New("down")
		}
		return next, nil
	}
	m, sess := newTestMonitor(t, env)

	sess.events <- archipelago.ConnectionLost{}
	if !env.clock.WaitForPending(1, 2*time.Second) {
		t.Fatal("retry not armed")
	}
	env.clock.Advance(DefaultReconnectDelay)
	waitFor(t, "reconnect", func() bool { return m.State() == StateConnected })
	if m.Session() != next || !sess.isClosed() {
		t.Fatal("session not swapped")
	}

	next.events <- archipelago.GoalCompleted{Slot: 2}
	waitFor(t, "goal message", func() bool { return len(env.sender.Messages()) == 2 })
	if got := descriptions(env.sender.Messages()); got[1] != "**Bob** has completed their goal!" {
		t.Fatalf("messages: %v", got)
	}
}

func TestStopIsIdempotentAndTerminal(t *testing.T) {
	env := newTestEnv()
	m, sess := newTestMonitor(t, env)
	m.Stop()
	m.Stop()
	if !sess.isClosed() || m.Active() || m.State() != StateStopped {
		t.Fatal("monitor not stopped")
	}
	m.handle(sess, archipelago.GoalCompleted{Slot: 1})
	m.handleDisconnect(sess, nil)
	if len(env.sender.Messages()) != 0 || env.dialer.Calls() != 0 {
		t.Fatal("stopped monitor acted on events")
	}
	if err := m.Say(context.Background(), "!hint x"); !errors.Is(err, archipelago.ErrClosed) {
		t.Fatalf("Say after stop: %v", err)
	}
}

func TestSayUsesLiveSession(t *testing.T) {
	env := newTestEnv()
	m, sess := newTestMonitor(t, env)
	if err := m.Say(context.Background(), "!hint Button Activation"); err != nil {
		t.Fatal(err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.said) != 1 || sess.said[0] != "!hint Button Activation" {
		t.Fatalf("said = %v", sess.said)
	}
}

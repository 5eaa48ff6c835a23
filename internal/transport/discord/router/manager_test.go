package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"aprelay/internal/storage"
	kit "aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

type fakeResponder struct {
	mu      sync.Mutex
	replies []string
	choices []kit.Choice
	done    chan struct{}
}

func newFakeResponder() *fakeResponder { return &fakeResponder{done: make(chan struct{}, 8)} }

func (r *fakeResponder) record(text string) error {
	r.mu.Lock()
	r.replies = append(r.replies, text)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fakeResponder) Reply(_ context.Context, text string, _ bool) error    { return r.record(text) }
func (r *fakeResponder) Defer(context.Context, bool) error                     { return nil }
func (r *fakeResponder) Edit(_ context.Context, text string) error             { return r.record(text) }
func (r *fakeResponder) Followup(_ context.Context, text string, _ bool) error { return r.record(text) }
func (r *fakeResponder) Choices(_ context.Context, c []kit.Choice) error {
	r.mu.Lock()
	r.choices = c
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *fakeResponder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no response")
	}
}

type echoCommand struct{}

func (echoCommand) Spec() kit.CommandSpec { return kit.CommandSpec{Name: "echo"} }
func (echoCommand) Execute(ctx context.Context, req *Request) error {
	return req.Respond.Reply(ctx, "echo:"+req.String("text"), true)
}
func (echoCommand) Autocomplete(context.Context, *Request) ([]kit.Choice, error) {
	return []kit.Choice{{Name: "a", Value: "a"}}, nil
}

type panicCommand struct{}

func (panicCommand) Spec() kit.CommandSpec                   { return kit.CommandSpec{Name: "boom"} }
func (panicCommand) Execute(context.Context, *Request) error { panic("boom") }

type activityRecorder struct {
	mu      sync.Mutex
	entries []storage.ActivityEntry
}

func (a *activityRecorder) AppendActivity(_ context.Context, e storage.ActivityEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

func (a *activityRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.UserID+" "+e.Action)
	}
	return out
}

func startManager(t *testing.T, m *Manager) chan<- kit.Interaction {
	t.Helper()
	in := make(chan kit.Interaction, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, in)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return in
}

func TestDispatchCommandAndActivity(t *testing.T) {
	act := &activityRecorder{}
	m := NewManager(logx.Nop(), Options{Workers: 1, Activity: act})
	m.SetRegistry([]Command{echoCommand{}, panicCommand{}}, nil)
	in := startManager(t, m)

	r := newFakeResponder()
	in <- kit.Interaction{Kind: kit.InteractionCommand, GuildID: "g", UserID: "u", Command: "echo",
		Options: []kit.Option{{Name: "text", Type: kit.OptionString, Value: "hi"}}, Respond: r}
	r.wait(t)
	if r.replies[0] != "echo:hi" {
		t.Fatalf("reply = %q", r.replies[0])
	}
	if got := act.actions(); len(got) != 1 || got[0] != "u Executed command echo" {
		t.Fatalf("activity = %v", got)
	}
}

func TestPanicBecomesErrorReply(t *testing.T) {
	m := NewManager(logx.Nop(), Options{Workers: 1})
	m.SetRegistry([]Command{panicCommand{}}, nil)
	in := startManager(t, m)

	r := newFakeResponder()
	in <- kit.Interaction{Kind: kit.InteractionCommand, GuildID: "g", Command: "boom", Respond: r}
	r.wait(t)
	if r.replies[0] != errorText {
		t.Fatalf("reply = %q", r.replies[0])
	}
}

func TestAutocompleteAndActions(t *testing.T) {
	act := &activityRecorder{}
	m := NewManager(logx.Nop(), Options{Workers: 2, Activity: act})
	got := make(chan string, 1)
	m.SetRegistry([]Command{echoCommand{}}, []ActionRoute{{
		Prefix: "remonitor",
		Handle: func(_ context.Context, _ *Request, payload string) error {
			got <- payload
			return nil
		},
	}})
	in := startManager(t, m)

	r := newFakeResponder()
	in <- kit.Interaction{Kind: kit.InteractionAutocomplete, Command: "echo", Respond: r}
	r.wait(t)
	if len(r.choices) != 1 {
		t.Fatalf("choices = %v", r.choices)
	}

	in <- kit.Interaction{Kind: kit.InteractionButton, ActionID: "remonitor:42", Respond: newFakeResponder()}
	select {
	case p := <-got:
		if p != "42" {
			t.Fatalf("payload = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action not dispatched")
	}

	in <- kit.Interaction{Kind: kit.InteractionGuildJoin, GuildID: "g2"}
	deadline := time.Now().Add(2 * time.Second)
	for len(act.actions()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("guild join not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if a := act.actions()[0]; a != "0 Added to guild" {
		t.Fatalf("activity = %q", a)
	}
}

func TestSpecsSorted(t *testing.T) {
	m := NewManager(logx.Nop(), Options{})
	m.SetRegistry([]Command{panicCommand{}, echoCommand{}}, nil)
	specs := m.Specs()
	if len(specs) != 2 || specs[0].Name != "boom" || specs[1].Name != "echo" {
		t.Fatalf("specs = %+v", specs)
	}
}

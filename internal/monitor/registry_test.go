package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"aprelay/internal/storage"
)

type recordingStore struct {
	storage.Store

	mu       sync.Mutex
	activity []storage.ActivityEntry
}

func (s *recordingStore) AppendActivity(ctx context.Context, e storage.ActivityEntry) error {
	s.mu.Lock()
	s.activity = append(s.activity, e)
	s.mu.Unlock()
	return s.Store.AppendActivity(ctx, e)
}

func (s *recordingStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.activity))
	for _, e := range s.activity {
		out = append(out, e.Action)
	}
	return out
}

func newTestRegistry(env *testEnv) (*Registry, *recordingStore) {
	store := &recordingStore{Store: storage.NewMemory()}
	return NewRegistry(env.deps, store), store
}

func succeed(env *testEnv) {
	env.dialer.dial = func(context.Context, DialParams) (Session, error) {
		return newFakeSession(testNames()), nil
	}
}

func TestRegistryRejectsDuplicateBeforeDialing(t *testing.T) {
	env := newTestEnv()
	succeed(env)
	reg, _ := newTestRegistry(env)
	defer reg.StopAll()

	if _, err := reg.Create(context.Background(), testConfig()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := testConfig()
	dup.Host = "ARCHIPELAGO.GG"
	dup.ChannelID = "other"
	if _, err := reg.Create(context.Background(), dup); !errors.Is(err, ErrAlreadyMonitoring) {
		t.Fatalf("err = %v, want ErrAlreadyMonitoring", err)
	}
	if n := env.dialer.Calls(); n != 1 {
		t.Fatalf("dial attempts = %d, want 1", n)
	}
}

func TestRegistryPendingCreateBlocksDuplicate(t *testing.T) {
	env := newTestEnv()
	entered := make(chan struct{})
	release := make(chan struct{})
	env.dialer.dial = func(context.Context, DialParams) (Session, error) {
		close(entered)
		<-release
		return newFakeSession(testNames()), nil
	}
	reg, _ := newTestRegistry(env)
	defer reg.StopAll()

	done := make(chan error, 1)
	go func() {
		_, err := reg.Create(context.Background(), testConfig())
		done <- err
	}()
	<-entered
	if _, err := reg.Create(context.Background(), testConfig()); !errors.Is(err, ErrAlreadyMonitoring) {
		t.Fatalf("concurrent create: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first create: %v", err)
	}
	if n := env.dialer.Calls(); n != 1 {
		t.Fatalf("dial attempts = %d", n)
	}
}

func TestRegistryCreateFailures(t *testing.T) {
	t.Run("dial", func(t *testing.T) {
		env := newTestEnv()
		reg, _ := newTestRegistry(env)
		_, err := reg.Create(context.Background(), testConfig())
		if !errors.Is(err, ErrConnect) {
			t.Fatalf("err = %v, want ErrConnect", err)
		}
		if reg.Len() != 0 {
			t.Fatal("failed monitor was registered")
		}
		// the reservation is released
		succeed(env)
		if _, err := reg.Create(context.Background(), testConfig()); err != nil {
			t.Fatalf("retry: %v", err)
		}
		reg.StopAll()
	})
	t.Run("channel", func(t *testing.T) {
		env := newTestEnv()
		sess := newFakeSession(testNames())
		env.dialer.dial = func(context.Context, DialParams) (Session, error) { return sess, nil }
		reg, _ := newTestRegistry(env)
		cfg := testConfig()
		cfg.ChannelID = "voice"
		if _, err := reg.Create(context.Background(), cfg); !errors.Is(err, ErrChannelNotText) {
			t.Fatalf("err = %v", err)
		}
		if !sess.isClosed() || reg.Len() != 0 {
			t.Fatal("session leaked after construction failure")
		}
	})
}

func TestRegistryLifecycle(t *testing.T) {
	env := newTestEnv()
	succeed(env)
	reg, store := newTestRegistry(env)
	ctx := context.Background()

	cfg := testConfig()
	cfg.ID = 0
	m, err := reg.Create(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if m.Config().ID == 0 {
		t.Fatal("config id not assigned")
	}
	saved, err := store.ListConnections(ctx)
	if err != nil || len(saved) != 1 {
		t.Fatalf("persisted = %v, %v", saved, err)
	}

	id := NewIdentity("ARCHIPELAGO.gg", 38281, "Alice")
	if !reg.Exists(id) {
		t.Fatal("identity not found")
	}
	if got, ok := reg.FindByPlayer(testGuild, "ALICE"); !ok || got != m {
		t.Fatal("FindByPlayer failed")
	}
	if list := reg.ListByGuild(testGuild); len(list) != 1 {
		t.Fatalf("ListByGuild = %d", len(list))
	}
	if list := reg.ListByGuild("other"); len(list) != 0 {
		t.Fatal("monitor listed for another guild")
	}

	if !reg.Remove(ctx, id, true) {
		t.Fatal("Remove reported missing")
	}
	if reg.Remove(ctx, id, true) {
		t.Fatal("second Remove should be a no-op")
	}
	if m.Active() {
		t.Fatal("removed monitor still active")
	}
	if saved, _ := store.ListConnections(ctx); len(saved) != 0 {
		t.Fatalf("config not forgotten: %v", saved)
	}
	want := []string{"Connected to archipelago.gg:38281", "Disconnected from archipelago.gg:38281"}
	got := store.actions()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("activity = %v", got)
	}
}

func TestRegistryStopAllKeepsConfigs(t *testing.T) {
	env := newTestEnv()
	succeed(env)
	reg, store := newTestRegistry(env)
	ctx := context.Background()
	cfg := testConfig()
	cfg.ID = 0
	m, err := reg.Create(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	reg.StopAll()
	if m.Active() || reg.Len() != 0 {
		t.Fatal("StopAll left monitors running")
	}
	if saved, _ := store.ListConnections(ctx); len(saved) != 1 {
		t.Fatal("StopAll must not forget configs")
	}
}

type unpersistedStore struct{ storage.Store }

func (unpersistedStore) InsertConnection(context.Context, storage.Connection) (int64, error) {
	return 0, errors.New("disk full")
}

func TestUnpersistedMonitorOffersNoRemonitor(t *testing.T) {
	env := newTestEnv()
	succeed(env)
	reg := NewRegistry(env.deps, unpersistedStore{Store: storage.NewMemory()})
	t.Cleanup(reg.StopAll)

	cfg := testConfig()
	cfg.ID = 0
	m, err := reg.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Config().ID != 0 {
		t.Fatalf("id = %d", m.Config().ID)
	}

	env.dialer.dial = func(context.Context, DialParams) (Session, error) {
		return nil, errors.New("still down")
	}
	m.handleDisconnect(m.Session(), errors.New("reset"))
	waitFor(t, "disconnect notice", func() bool { return len(env.sender.Messages()) == 1 })
	if b := env.sender.Messages()[0].Buttons; len(b) != 0 {
		t.Fatalf("unexpected buttons: %+v", b)
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"aprelay/pkg/clock"
	logx "aprelay/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in      string
		spec    string
		wantErr bool
	}{
		{"0 4 * * *", "0 4 * * *", false},
		{"@daily", "@daily", false},
		{"cron:@hourly", "@hourly", false},
		{"6h", "@every 6h0m0s", false},
		{"24:00", "@every 24h0m0s", false},
		{"every:00:30", "@every 30m0s", false},
		{"", "", true},
		{"00:00", "", true},
		{"01:75", "", true},
		{"soon", "", true},
		{"-5m", "", true},
	}
	for _, tc := range cases {
		ps, err := ParseSchedule(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseSchedule(%q): expected error, got %+v", tc.in, ps)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if ps.Spec() != tc.spec {
			t.Fatalf("ParseSchedule(%q).Spec()=%q want %q", tc.in, ps.Spec(), tc.spec)
		}
	}
}

func TestAddScheduleValidation(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop())
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("", "1h", 0, job); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := s.AddSchedule("x", "1h", 0, nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
	if err := s.AddSchedule("x", "61 * * * *", 0, job); err == nil {
		t.Fatalf("expected error for invalid cron field")
	}
}

func TestScheduleLifecycle(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	job := func(context.Context) error { return nil }
	if err := s.AddSchedule("prune", "@daily", time.Minute, job); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if err := s.AddSchedule("prune", "6h", time.Minute, job); err != nil {
		t.Fatalf("AddSchedule replace: %v", err)
	}
	snap := s.Snapshot()
	if snap.Running || len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 6h0m0s" {
		t.Fatalf("before start: %+v", snap)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())
	snap = s.Snapshot()
	if !snap.Running || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("after start: %+v", snap)
	}

	s.Apply(Config{Enabled: false, Timezone: "UTC"})
	if s.Snapshot().Running {
		t.Fatalf("disable did not stop cron")
	}
	s.Apply(Config{Enabled: true, Timezone: "UTC"})
	if !s.Snapshot().Running {
		t.Fatalf("enable did not restart cron")
	}

	if !s.Remove("prune") || s.Remove("prune") {
		t.Fatalf("Remove should report removal exactly once")
	}
	if len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("schedule not removed")
	}
}

func TestStartDisabled(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatalf("disabled scheduler started cron")
	}
	s.Stop(context.Background())
}

func TestRunNowAppliesTimeout(t *testing.T) {
	s := New(Config{}, logx.Nop())
	var hadDeadline bool
	ran := 0
	_ = s.AddSchedule("job", "1h", time.Second, func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		ran++
		return errors.New("boom")
	})
	if err := s.RunNow("job"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if ran != 1 || !hadDeadline {
		t.Fatalf("ran=%d deadline=%v", ran, hadDeadline)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
}

type fakePruner struct {
	before []time.Time
	n      int64
	err    error
}

func (f *fakePruner) PruneActivity(_ context.Context, before time.Time) (int64, error) {
	f.before = append(f.before, before)
	return f.n, f.err
}

func TestPruneActivity(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)

	p := &fakePruner{n: 3}
	if err := PruneActivity(p, 30*24*time.Hour, clk, logx.Nop())(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if len(p.before) != 1 || !p.before[0].Equal(now.Add(-30*24*time.Hour)) {
		t.Fatalf("cutoff=%v", p.before)
	}

	p = &fakePruner{}
	_ = PruneActivity(p, 0, clk, logx.Nop())(context.Background())
	if len(p.before) != 0 {
		t.Fatalf("zero retention must not prune")
	}

	p = &fakePruner{err: errors.New("db locked")}
	if err := PruneActivity(p, time.Hour, clk, logx.Nop())(context.Background()); err == nil {
		t.Fatalf("expected store error")
	}
}

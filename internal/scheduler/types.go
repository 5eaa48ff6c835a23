package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means local
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // normalized cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}

package scheduler

import (
	"context"
	"time"

	"aprelay/pkg/clock"
	logx "aprelay/pkg/logx"
)

const PruneActivityJob = "activity.prune"

// ActivityPruner deletes activity entries older than a cutoff.
type ActivityPruner interface {
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

// PruneActivity returns a job that drops activity older than retention.
func PruneActivity(store ActivityPruner, retention time.Duration, clk clock.Clock, log logx.Logger) Job {
	if clk == nil {
		clk = clock.Real()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return func(ctx context.Context) error {
		if retention <= 0 {
			return nil
		}
		cutoff := clk.Now().Add(-retention)
		n, err := store.PruneActivity(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("activity pruned", logx.Int64("removed", n), logx.Time("before", cutoff))
		}
		return nil
	}
}

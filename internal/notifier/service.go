package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aprelay/internal/eventbus"
	rtsup "aprelay/internal/runtime/supervisor"
	"aprelay/internal/transport"
	logx "aprelay/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	msg transport.OutgoingMessage
}

// Service implements an async delivery pipeline:
// sharded queues + worker pool + rate limit + retry.
//
// It implements transport.Sender and is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	out  transport.Sender
	bus  eventbus.Bus
	cfg  Config
	lim  *rate.Limiter
	rand *rand.Rand

	accepting bool
	sendWG    sync.WaitGroup

	queues   []chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping
}

func New(cfg Config, out transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		out:  out,
		log:  log.With(logx.String("comp", "notifier")),
		bus:  bus,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.applyLocked(cfg)
	return s
}

// Apply updates rate and retry settings immediately. Worker and queue
// sizes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Start is idempotent.
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queues != nil {
		s.mu.Unlock()
		return
	}

	s.queues = make([]chan job, s.cfg.Workers)
	for i := range s.queues {
		s.queues[i] = make(chan job, s.cfg.QueueSize)
	}
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// delivery failures should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	queues := s.queues
	s.mu.Unlock()

	for i, q := range queues {
		q := q
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		})
	}
}

// Stop stops intake and drains the queues best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	queues := s.queues
	sup := s.sup
	if queues == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queues so workers drain.
		s.sendWG.Wait()
		for _, q := range queues {
			close(q)
		}
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queues = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

// Send enqueues msg on its channel's shard. The returned reference is
// empty; delivery happens later.
func (s *Service) Send(ctx context.Context, msg transport.OutgoingMessage) (transport.MessageRef, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return transport.MessageRef{}, err
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queues == nil {
		s.mu.Unlock()
		return transport.MessageRef{}, ErrStopped
	}
	q := s.queues[shard(msg.ChannelID, len(s.queues))]
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- job{msg: msg}:
		return transport.MessageRef{ChannelID: msg.ChannelID}, nil
	default:
		s.publish(eventbus.NotifierDropped, msg.ChannelID, 0, ErrQueueFull)
		return transport.MessageRef{}, ErrQueueFull
	}
}

func shard(channelID string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return int(h.Sum32() % uint32(n))
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.lim
	out := s.out
	s.mu.Unlock()

	if out == nil {
		return
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := out.Send(callCtx, j.msg)
		cancel()
		if err == nil {
			s.publish(eventbus.NotifierSent, j.msg.ChannelID, attempt, nil)
			return
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("channel", j.msg.ChannelID), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))

		if attempt >= attempts {
			break
		}
		t := time.NewTimer(s.retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("message dropped", logx.String("channel", j.msg.ChannelID), logx.Err(lastErr))
	s.publish(eventbus.NotifierFailed, j.msg.ChannelID, attempts, lastErr)
}

func (s *Service) publish(typ, channel string, attempt int, err error) {
	ev := DeliveryEvent{Channel: channel, Attempt: attempt, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Publish(s.bus, typ, ev)
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1) with
// 0.7..1.3 jitter, capped at RetryMaxDelay.
func (s *Service) retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	s.mu.Lock()
	j := 0.7 + s.rand.Float64()*0.6
	s.mu.Unlock()
	d = time.Duration(float64(d) * j)
	return min(d, cfg.RetryMaxDelay)
}

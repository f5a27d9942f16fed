package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is the logging dependency of Retention.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Retention periodically deletes readings older than a horizon.
type Retention struct {
	store    Store
	horizon  time.Duration
	interval time.Duration
	logger   Logger
	now      func() time.Time
	onPurge  func(n int64)

	cron *cron.Cron
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRetention creates a purge worker. It does nothing until Start.
func NewRetention(store Store, horizon, interval time.Duration, logger Logger) *Retention {
	if logger == nil {
		logger = noopLogger{}
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Retention{
		store:    store,
		horizon:  horizon,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		done:     make(chan struct{}),
	}
}

// SetOnPurge registers a callback that receives the row count of every
// successful purge. Call before Start.
func (r *Retention) SetOnPurge(fn func(n int64)) {
	r.onPurge = fn
}

// Start purges once immediately and then every interval until ctx is done
// or Stop is called. A non-positive horizon disables purging.
func (r *Retention) Start(ctx context.Context) {
	if r.horizon <= 0 {
		r.logger.Info("reading retention disabled")
		return
	}
	r.cron.Schedule(cron.Every(r.interval), cron.FuncJob(func() { r.purge(ctx) }))

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop ends the loop and waits for an in-flight purge to finish.
func (r *Retention) Stop() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}

// PurgeNow deletes readings older than the horizon and returns the count.
func (r *Retention) PurgeNow(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.horizon)
	n, err := r.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if r.onPurge != nil {
		r.onPurge(n)
	}
	if n > 0 {
		r.logger.Info("purged old readings", "count", n, "cutoff", cutoff.UTC())
	}
	return n, nil
}

func (r *Retention) run(ctx context.Context) {
	defer r.wg.Done()

	r.purge(ctx)
	r.cron.Start()

	select {
	case <-ctx.Done():
	case <-r.done:
	}
	<-r.cron.Stop().Done()
}

func (r *Retention) purge(ctx context.Context) {
	if _, err := r.PurgeNow(ctx); err != nil {
		r.logger.Error("reading purge failed", "error", err)
	}
}

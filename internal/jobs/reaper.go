package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// IdleSessionEnder ends sessions that saw no activity for idleFor.
type IdleSessionEnder interface {
	ReapIdle(ctx context.Context, idleFor time.Duration) (int, error)
}

// Reaper periodically closes idle chat sessions.
type Reaper struct {
	cron    *cron.Cron
	ender   IdleSessionEnder
	idleFor time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewReaper builds a reaper that ends sessions idle for longer than idleFor.
func NewReaper(ender IdleSessionEnder, idleFor time.Duration, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ender:   ender,
		idleFor: idleFor,
		timeout: time.Minute,
		logger:  logger.Named("reaper"),
	}
}

// Schedule registers the sweep under a standard five-field cron spec.
func (r *Reaper) Schedule(spec string) error {
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.RunOnce(ctx)
	})
	return err
}

// RunOnce performs a single sweep and returns how many sessions were ended.
func (r *Reaper) RunOnce(ctx context.Context) int {
	started := time.Now()
	ended, err := r.ender.ReapIdle(ctx, r.idleFor)
	if err != nil {
		r.logger.Error("idle session sweep failed", zap.Int("ended", ended), zap.Error(err))
		return ended
	}
	if ended > 0 {
		r.logger.Info("ended idle sessions",
			zap.Int("ended", ended),
			zap.Duration("idle_for", r.idleFor),
			zap.Duration("took", time.Since(started)))
	}
	return ended
}

// Run starts the scheduler and blocks until ctx is done, then waits for a
// running sweep to finish.
func (r *Reaper) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Info("cron jobs started", zap.Int("entries", len(r.cron.Entries())))

	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}

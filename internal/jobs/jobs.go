// Package jobs runs the periodic maintenance work of the server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TrialExpirer ends trials whose end date has passed and reports how many
// tenants it changed.
type TrialExpirer interface {
	ExpireTrials(ctx context.Context) (int64, error)
}

const runTimeout = time.Minute

type Scheduler struct {
	cron   *cron.Cron
	trials TrialExpirer
	logger *zap.Logger
}

// NewScheduler registers the trial expiry job on schedule, a standard
// five-field cron expression or a descriptor such as "@hourly".
func NewScheduler(schedule string, trials TrialExpirer, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		trials: trials,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.ExpireTrials); err != nil {
		return nil, fmt.Errorf("schedule trial expiry %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// ExpireTrials runs the trial expiry job once.
func (s *Scheduler) ExpireTrials() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	n, err := s.trials.ExpireTrials(ctx)
	if err != nil {
		s.logger.Error("trial expiry failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("trials expired", zap.Int64("tenants", n))
		return
	}
	s.logger.Debug("no trials to expire")
}

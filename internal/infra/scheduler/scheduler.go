package scheduler

import (
	"context"
	"sync"
	"time"

	"activity_scraper/internal/app"
	"activity_scraper/internal/domain/acquisition"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ErrScheduleExhausted is returned when the schedule has no further activation time.
var ErrScheduleExhausted = errors.New("schedule has no next activation time")

// CycleRunner runs a single acquisition cycle. *app.CycleExecutor implements it.
type CycleRunner interface {
	RunOnce(ctx context.Context, cycle int) (app.CycleResult, error)
}

// FailureNotifier is told about every failed cycle, whatever the policy decides.
type FailureNotifier interface {
	NotifyCycleFailure(ctx context.Context, cycle int, err error)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running         bool
	LastRunTime     time.Time
	NextRunTime     time.Time
	TotalRuns       int
	SuccessfulRuns  int
	FailedRuns      int
	CancelledRuns   int
	LastFetched     int
	LastError       string
	LastFailureKind acquisition.FailureKind
}

// RecurringScheduler runs one cycle immediately and then one cycle per schedule
// activation until its context is cancelled. Cycles never overlap: the wait for
// the next activation only starts once the previous cycle has returned.
type RecurringScheduler struct {
	runner   CycleRunner
	schedule cron.Schedule
	policy   FailurePolicy
	notifier FailureNotifier // optional
	logger   *logrus.Entry

	mu     sync.RWMutex
	status Status
}

func NewRecurringScheduler(
	runner CycleRunner,
	schedule cron.Schedule,
	policy FailurePolicy,
	notifier FailureNotifier,
	logger *logrus.Entry,
) *RecurringScheduler {
	return &RecurringScheduler{
		runner:   runner,
		schedule: schedule,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, in which case it returns nil, or until a
// cycle fails in a way the failure policy treats as fatal, in which case that
// cycle's error is returned.
//
// The first cycle runs even if ctx is already cancelled; cancellation is then
// honoured at the first wait.
func (s *RecurringScheduler) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.WithField("policy", s.policy).Info("Recurring scheduler started")

	for cycle := 1; ; cycle++ {
		if cycle > 1 {
			proceed, err := s.wait(ctx)
			if err != nil {
				s.logger.WithError(err).Error("Recurring scheduler cannot continue")
				return err
			}
			if !proceed {
				s.logger.Info("Cancellation requested. Recurring scheduler stopped.")
				return nil
			}
		}

		if err := s.runCycle(ctx, cycle); err != nil {
			return err
		}
	}
}

// Status returns a copy of the current scheduler status.
func (s *RecurringScheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// wait blocks until the next activation. It reports false if ctx is cancelled
// before or during the wait.
func (s *RecurringScheduler) wait(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	now := time.Now()
	next := s.schedule.Next(now)
	if next.IsZero() {
		return false, ErrScheduleExhausted
	}
	s.setNextRun(next)
	s.logger.WithField("next_run", next.Format(time.RFC3339)).Debug("Waiting for next cycle")

	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, nil
	case <-timer.C:
		return true, nil
	}
}

func (s *RecurringScheduler) runCycle(ctx context.Context, cycle int) error {
	result, err := s.runner.RunOnce(ctx, cycle)
	s.record(result, err)

	logCtx := s.logger.WithFields(logrus.Fields{
		"cycle":    cycle,
		"duration": result.Duration().String(),
	})

	if err == nil {
		if result.Cancelled {
			logCtx.Info("Cycle ended early due to cancellation")
		} else {
			logCtx.WithField("fetched", result.Fetched).Info("Cycle completed")
		}
		return nil
	}

	kind := acquisition.KindOf(err)
	logCtx = logCtx.WithError(err).WithField("kind", kind.String())

	if s.notifier != nil {
		s.notifier.NotifyCycleFailure(ctx, cycle, err)
	}

	if s.policy.ShouldStop(kind) {
		logCtx.Error("Cycle failed. Stopping recurring scheduler per failure policy.")
		return err
	}
	logCtx.Warn("Cycle failed. Retrying at the next scheduled run.")
	return nil
}

func (s *RecurringScheduler) record(result app.CycleResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.TotalRuns++
	s.status.LastRunTime = result.StartedAt
	s.status.LastFetched = result.Fetched
	s.status.NextRunTime = time.Time{}

	switch {
	case err != nil:
		s.status.FailedRuns++
		s.status.LastError = err.Error()
		s.status.LastFailureKind = acquisition.KindOf(err)
	case result.Cancelled:
		s.status.CancelledRuns++
	default:
		s.status.SuccessfulRuns++
		s.status.LastError = ""
		s.status.LastFailureKind = acquisition.KindNone
	}
}

func (s *RecurringScheduler) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = running
	if !running {
		s.status.NextRunTime = time.Time{}
	}
}

func (s *RecurringScheduler) setNextRun(next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.NextRunTime = next
}

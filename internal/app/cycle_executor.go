// internal/app/cycle_executor.go
package app

import (
	"context"
	"time"

	"activity_scraper/internal/domain/acquisition"
	"activity_scraper/internal/domain/activity"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// CycleResult describes one finished fetch-then-persist attempt.
type CycleResult struct {
	Cycle     int
	StartedAt time.Time
	EndedAt   time.Time
	Fetched   int  // Number of activities returned by the fetch step
	Persisted bool // True only when the whole data set was stored
	Cancelled bool // Cancellation was observed after fetch; nothing was stored
}

func (r CycleResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// CycleExecutor performs exactly one acquisition cycle per RunOnce call.
// It keeps no state between calls; every cycle gets its own Source from the factory.
type CycleExecutor struct {
	factory     acquisition.Factory
	stepTimeout time.Duration // Zero means fetch and persist are not bounded
	logger      *logrus.Entry
}

func NewCycleExecutor(factory acquisition.Factory, stepTimeout time.Duration, logger *logrus.Entry) *CycleExecutor {
	return &CycleExecutor{
		factory:     factory,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

// RunOnce acquires a source, fetches the data set and persists it through the
// same source. If ctx is cancelled by the time the fetch returns, the data set
// is dropped and the cycle ends without error. The source is released on every
// path. Returned errors are classified with acquisition.Classify.
func (e *CycleExecutor) RunOnce(ctx context.Context, cycle int) (result CycleResult, err error) {
	result = CycleResult{Cycle: cycle, StartedAt: time.Now()}
	logCtx := e.logger.WithField("cycle", cycle)

	defer func() {
		if r := recover(); r != nil {
			logCtx.WithField("panic", r).Error("Recovered from panic during cycle")
			err = acquisition.Classify(errors.Newf("panic during cycle: %v", r))
			result.Persisted = false
		}
		result.EndedAt = time.Now()
	}()

	// Cancellation is only observed between steps, never inside a collaborator call.
	workCtx := context.WithoutCancel(ctx)

	src, err := e.factory.NewSource(workCtx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to acquire acquisition source")
		return result, acquisition.Classify(err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logCtx.WithError(closeErr).Warn("Failed to release acquisition source")
		}
	}()

	activities, err := e.fetch(workCtx, src)
	if err != nil {
		err = acquisition.Classify(err)
		logCtx.WithError(err).WithField("kind", acquisition.KindOf(err)).Error("Fetch failed")
		return result, err
	}
	result.Fetched = len(activities)
	logCtx.WithField("fetched", result.Fetched).Info("Fetched activities")

	if ctx.Err() != nil {
		result.Cancelled = true
		logCtx.Info("Cancellation requested after fetch. Discarding fetched activities.")
		return result, nil
	}

	if err := e.persist(workCtx, src, activities); err != nil {
		err = acquisition.Classify(err)
		logCtx.WithError(err).WithField("kind", acquisition.KindOf(err)).Error("Persist failed")
		return result, err
	}
	result.Persisted = true
	logCtx.WithField("persisted", len(activities)).Info("Persisted activities")

	return result, nil
}

func (e *CycleExecutor) fetch(ctx context.Context, src acquisition.Source) ([]activity.Activity, error) {
	ctx, cancel := e.stepContext(ctx)
	defer cancel()
	return src.Fetch(ctx)
}

func (e *CycleExecutor) persist(ctx context.Context, src acquisition.Source, activities []activity.Activity) error {
	ctx, cancel := e.stepContext(ctx)
	defer cancel()
	return src.Persist(ctx, activities)
}

func (e *CycleExecutor) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.stepTimeout)
}

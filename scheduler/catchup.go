package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var ErrBreakerOpen = errors.New("catch-up stopped: too many consecutive failed runs")

// Progress answers whether the target has caught up with the legacy schedule.
type Progress interface {
	// HasFuture reports whether rows starting after now already exist.
	HasFuture(ctx context.Context, now time.Time) (bool, error)
	// NextStart is the earliest start after now, nil when there is none.
	NextStart(ctx context.Context, now time.Time) (*time.Time, error)
}

// Step runs one sync iteration.
type Step func(ctx context.Context, iteration int) error

// CatchUp repeats a sync until the target holds rows that start in the future.
type CatchUp struct {
	MaxIterations   int
	Interval        time.Duration
	Margin          time.Duration
	MinWait         time.Duration
	BreakerFailures int

	Clock  Clock
	Logger logrus.FieldLogger
}

type CatchUpResult struct {
	Iterations int
	Failures   int
	Converged  bool
}

// NewCatchUp returns the loop with the production pacing: 10s between runs,
// waking 5 minutes ahead of an imminent start but never sooner than a minute.
func NewCatchUp(maxIterations, breakerFailures int, logger logrus.FieldLogger) CatchUp {
	return CatchUp{
		MaxIterations:   maxIterations,
		Interval:        10 * time.Second,
		Margin:          5 * time.Minute,
		MinWait:         time.Minute,
		BreakerFailures: breakerFailures,
		Clock:           SystemClock(),
		Logger:          logger,
	}
}

// Wait is how long to sleep before the next iteration given the next known start.
func (c CatchUp) Wait(now time.Time, next *time.Time) time.Duration {
	if next == nil {
		return c.Interval
	}
	until := next.Sub(now)
	if until > c.Interval {
		return c.Interval
	}
	return time.Duration(math.Max(float64(c.MinWait), float64(until-c.Margin)))
}

func (c CatchUp) Run(ctx context.Context, step Step, progress Progress) (CatchUpResult, error) {
	var res CatchUpResult
	clock := c.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	failures := c.BreakerFailures
	if failures <= 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "catch-up",
		// Stay open for the rest of the loop once tripped.
		Timeout: 24 * time.Hour,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("breaker state changed")
		},
	})

	for res.Iterations < c.MaxIterations {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Iterations++
		iteration := res.Iterations
		log := logger.WithField("iteration", iteration)

		_, err := cb.Execute(func() (interface{}, error) {
			return nil, step(ctx, iteration)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			res.Iterations--
			return res, fmt.Errorf("%w (%d)", ErrBreakerOpen, res.Failures)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures++
			log.WithError(err).Error("catch-up iteration failed")
		}

		now := clock.Now()
		future, err := progress.HasFuture(ctx, now)
		if err != nil {
			log.WithError(err).Warn("future check failed")
		}
		if future {
			res.Converged = true
			log.Info("target holds future rows, catch-up complete")
			return res, nil
		}

		next, err := progress.NextStart(ctx, now)
		if err != nil {
			log.WithError(err).Warn("next start lookup failed")
			next = nil
		}
		wait := c.Wait(now, next)
		log.WithField("wait", wait.String()).Debug("waiting before next iteration")
		if err := clock.Sleep(ctx, wait); err != nil {
			return res, err
		}
	}
	logger.WithField("iterations", res.Iterations).Warn("catch-up reached the iteration limit")
	return res, nil
}

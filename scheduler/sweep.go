package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweep walks fixed-size windows from a start date up to now.
// A failing window is logged and skipped.
type Sweep struct {
	Step          time.Duration
	Pause         time.Duration
	MaxIterations int

	Clock  Clock
	Logger logrus.FieldLogger
}

type SweepResult struct {
	Windows []Window
	Failed  int
}

func NewSweep(maxIterations int, logger logrus.FieldLogger) Sweep {
	return Sweep{
		Step:          30 * day,
		Pause:         3 * time.Second,
		MaxIterations: maxIterations,
		Clock:         SystemClock(),
		Logger:        logger,
	}
}

// Run calls run for each window [start, min(start+Step, now)) until the start reaches now.
func (s Sweep) Run(ctx context.Context, from time.Time, run func(ctx context.Context, w Window) error) (SweepResult, error) {
	var res SweepResult
	clock := s.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	step := s.Step
	if step <= 0 {
		step = 30 * day
	}

	until := clock.Now()
	start := from
	for start.Before(until) {
		if s.MaxIterations > 0 && len(res.Windows) >= s.MaxIterations {
			logger.WithField("iterations", len(res.Windows)).Warn("sweep reached the iteration limit")
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start.Add(step)
		if end.After(until) {
			end = until
		}
		w := Window{Start: start, End: end}
		res.Windows = append(res.Windows, w)

		log := logger.WithFields(logrus.Fields{"iteration": len(res.Windows), "window": w.String()})
		if err := run(ctx, w); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			log.WithError(err).Error("sweep window failed")
		} else {
			log.Info("sweep window done")
			if err := clock.Sleep(ctx, s.Pause); err != nil {
				return res, err
			}
		}
		start = end
	}
	return res, nil
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/appctx"
	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrTooSoon = errors.New("sync requested before the minimum interval elapsed")

// RunResult is the outcome of one run as reported to callers, history and subscribers.
type RunResult struct {
	RunID         string     `json:"run_id"`
	Family        string     `json:"family"`
	Plant         string     `json:"plant"`
	Status        string     `json:"status"`
	Inserted      int        `json:"inserted"`
	Updated       int        `json:"updated"`
	Deleted       int        `json:"deleted"`
	Message       string     `json:"message,omitempty"`
	WindowStart   *time.Time `json:"window_start,omitempty"`
	WindowEnd     *time.Time `json:"window_end,omitempty"`
	Discrepancies int        `json:"discrepancies"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at"`
}

func (r RunResult) Failed() bool { return r.Status != models.SyncRunStatusSuccess }

// Recorder persists run history.
type Recorder interface {
	Record(ctx context.Context, run *models.SyncRun) error
}

// Runner is the failure boundary around a Job. Every optional collaborator may be nil.
type Runner struct {
	Gate      *scheduler.Gate
	Locker    Locker
	LockTTL   time.Duration
	History   Recorder
	Publisher Publisher
	Cache     ResultCache
	Metrics   *Metrics
	// Sink picks where the discrepancy report of a job goes.
	Sink     func(Job) discrepancy.Sink
	Logger   logrus.FieldLogger
	Now      func() time.Time
	NewRunID func() string
}

// ReportSinks appends every report to <dir>/<job report file>, plus any extra sinks.
func ReportSinks(dir string, extra ...discrepancy.Sink) func(Job) discrepancy.Sink {
	var mu sync.Mutex
	files := map[string]*discrepancy.FileSink{}
	return func(j Job) discrepancy.Sink {
		p := filepath.Join(dir, j.ReportFile())
		mu.Lock()
		fs, ok := files[p]
		if !ok {
			fs = discrepancy.NewFileSink(p)
			files[p] = fs
		}
		mu.Unlock()
		if len(extra) == 0 {
			return fs
		}
		return append(discrepancy.MultiSink{fs}, extra...)
	}
}

// Run synchronizes the window that follows the job's last synced timestamp.
func (r *Runner) Run(ctx context.Context, job Job) (RunResult, error) {
	return r.run(ctx, job, nil)
}

// RunWindow synchronizes an explicit window.
func (r *Runner) RunWindow(ctx context.Context, job Job, w scheduler.Window) (RunResult, error) {
	return r.run(ctx, job, &w)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger != nil {
		return r.Logger
	}
	return config.GetLogger()
}

func (r *Runner) runID() string {
	if r.NewRunID != nil {
		return r.NewRunID()
	}
	return uuid.NewString()
}

func (r *Runner) run(ctx context.Context, job Job, window *scheduler.Window) (res RunResult, err error) {
	family, plant := job.Family(), job.Plant()
	res = RunResult{
		RunID:     r.runID(),
		Family:    family,
		Plant:     plant,
		Status:    models.SyncRunStatusFailed,
		StartedAt: r.now(),
	}
	ctx = appctx.WithRun(ctx, family, plant, res.RunID)
	logger := r.logger().WithFields(logrus.Fields{"family": family, "plant": plant, "run_id": res.RunID})

	if r.Gate != nil {
		if ok, wait := r.Gate.Allow(LockKey(family, plant)); !ok {
			res.FinishedAt = r.now()
			res.Message = fmt.Sprintf("%v: retry in %s", ErrTooSoon, wait.Round(time.Second))
			logger.Warn(res.Message)
			return res, ErrTooSoon
		}
	}
	if r.Locker != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		release, lerr := r.Locker.Obtain(ctx, LockKey(family, plant), ttl)
		if lerr != nil {
			res.FinishedAt = r.now()
			res.Message = lerr.Error()
			logger.Warn(res.Message)
			return res, lerr
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				logger.WithError(rerr).Warn("release sync lock")
			}
		}()
	}

	ctx, span := tracer.Start(ctx, family+".run")
	span.SetAttributes(
		attribute.String("sync.family", family),
		attribute.String("sync.plant", plant),
		attribute.String("sync.run_id", res.RunID),
	)

	tr := discrepancy.NewTracker(family, plant, r.Now)
	if note := job.ReportNote(); note != "" {
		tr.SetNote(note)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		res.Discrepancies = tr.Total()
		res.FinishedAt = r.now()
		if err != nil {
			res.Status = models.SyncRunStatusFailed
			res.Message = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			config.LogError(logger, "syncer", "Run", "synchronize", res, err)
		} else {
			res.Status = models.SyncRunStatusSuccess
			logger.WithFields(logrus.Fields{
				"inserted":      res.Inserted,
				"updated":       res.Updated,
				"deleted":       res.Deleted,
				"discrepancies": res.Discrepancies,
			}).Info("sync completed")
		}
		span.End()
		r.finish(context.WithoutCancel(ctx), job, tr, res, logger)
	}()

	var w scheduler.Window
	if window != nil {
		w = *window
	} else {
		last, lerr := job.LastSynced(ctx)
		if lerr != nil {
			return res, fmt.Errorf("read last synced: %w", lerr)
		}
		w = job.Windows().Next(plant, last)
	}
	res.WindowStart, res.WindowEnd = &w.Start, &w.End
	span.SetAttributes(attribute.String("sync.window", w.String()))
	logger.WithField("window", w.String()).Info("sync started")

	counts, err := job.Synchronize(ctx, w, tr)
	res.Inserted, res.Updated, res.Deleted = counts.Inserted, counts.Updated, counts.Deleted
	return res, err
}

// finish runs after every attempt; none of its failures change the result.
func (r *Runner) finish(ctx context.Context, job Job, tr *discrepancy.Tracker, res RunResult, logger logrus.FieldLogger) {
	var sink discrepancy.Sink
	if r.Sink != nil {
		sink = r.Sink(job)
	}
	if err := tr.Flush(ctx, sink); err != nil {
		logger.WithError(err).Error("flush discrepancy report")
	}
	r.Metrics.observe(res, res.FinishedAt.Sub(res.StartedAt))

	if r.History != nil {
		run := &models.SyncRun{
			RunId:         res.RunID,
			Family:        res.Family,
			Plant:         res.Plant,
			Status:        res.Status,
			Inserted:      res.Inserted,
			Updated:       res.Updated,
			Deleted:       res.Deleted,
			Discrepancies: res.Discrepancies,
			Message:       res.Message,
			WindowStart:   res.WindowStart,
			WindowEnd:     res.WindowEnd,
			StartedAt:     res.StartedAt,
			FinishedAt:    res.FinishedAt,
		}
		if err := r.History.Record(ctx, run); err != nil {
			logger.WithError(err).Error("record sync run")
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, res); err != nil {
			logger.WithError(err).Error("publish sync result")
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Store(ctx, res); err != nil {
			logger.WithError(err).Warn("cache sync result")
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/app"
	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"bitbucket.org/mmdatafocus/mosys_sync/syncapi"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	plant := flag.String("plant", "", "Plant code (it, tn, pl, ...). Defaults to PLANT.")
	recursive := flag.Bool("recursive", false, "Sweep 30-day windows up to today.")
	from := flag.String("from", "", "Optional: start date (YYYY-MM-DD). Defaults to the day after the last synced measurement.")
	flag.Parse()

	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := syncer.RunResult{Status: models.SyncRunStatusFailed}
	var start *time.Time
	if *from != "" {
		t, err := time.ParseInLocation("2006-01-02", *from, time.Local)
		if err != nil {
			return report(failed, fmt.Errorf("invalid -from %q: %w", *from, err))
		}
		start = &t
	}

	settings, err := config.LoadSyncSettings(*plant)
	if err != nil {
		return report(failed, err)
	}
	env, err := app.Connect(ctx, settings, app.Options{ConnectAttempts: 5, Migrate: true})
	if err != nil {
		return report(failed, err)
	}
	defer env.Close()

	job := env.MeasurementJob(settings)

	if !*recursive {
		if start == nil {
			return report(env.Runner.Run(ctx, job))
		}
		w := scheduler.Window{Start: *start, End: start.Add(job.Windows().Lookahead)}
		if now := time.Now(); w.End.After(now) {
			w.End = now
		}
		return report(env.Runner.RunWindow(ctx, job, w))
	}

	if start == nil {
		last, err := job.LastSynced(ctx)
		if err != nil {
			return report(failed, fmt.Errorf("read last synced: %w", err))
		}
		next := job.Windows().Next(settings.Plant, last).Start
		start = &next
	}

	sweep := scheduler.NewSweep(settings.CatchUpMaxIterations, logger)
	var totals syncer.Counts
	var lastRes syncer.RunResult
	var lastErr error
	out, err := sweep.Run(ctx, *start, func(ctx context.Context, w scheduler.Window) error {
		res, err := env.Runner.RunWindow(ctx, job, w)
		totals.Inserted += res.Inserted
		totals.Updated += res.Updated
		totals.Deleted += res.Deleted
		lastRes, lastErr = res, err
		return err
	})
	logger.WithFields(logrus.Fields{
		"plant":   settings.Plant,
		"windows": len(out.Windows),
		"failed":  out.Failed,
	}).Info("measurement sweep finished")

	res := lastRes
	res.Inserted, res.Updated, res.Deleted = totals.Inserted, totals.Updated, totals.Deleted
	switch {
	case err != nil:
		res.Status = models.SyncRunStatusFailed
		res.Message = err.Error()
	case len(out.Windows) == 0:
		res.Status = models.SyncRunStatusSuccess
		res.Message = "already up to date"
	case out.Failed > 0:
		res.Status = models.SyncRunStatusFailed
		res.Message = fmt.Sprintf("%d of %d windows failed", out.Failed, len(out.Windows))
		err = errors.Join(errors.New(res.Message), lastErr)
	default:
		res.Message = fmt.Sprintf("sync completed over %d windows", len(out.Windows))
	}
	return report(res, err)
}

// report prints the result as JSON and returns the exit code.
func report(res syncer.RunResult, err error) int {
	out := syncapi.NewTriggerResponse(res)
	out.Result = nil
	if err != nil {
		out.Status = syncapi.StatusFailed
		if out.Message == "" {
			out.Message = err.Error()
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if out.Status == syncapi.StatusFailed {
		return 1
	}
	return 0
}

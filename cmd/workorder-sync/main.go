package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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
	plant := flag.String("plant", "", "Plant code (tn, pl, ...). Defaults to PLANT.")
	recursive := flag.Bool("recursive", false, "Repeat the sync until the target holds work orders starting in the future.")
	flag.Parse()

	logger := config.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadSyncSettings(*plant)
	if err != nil {
		return report(syncer.RunResult{Status: models.SyncRunStatusFailed}, err)
	}
	env, err := app.Connect(ctx, settings, app.Options{ConnectAttempts: 5, Migrate: true})
	if err != nil {
		return report(syncer.RunResult{Status: models.SyncRunStatusFailed}, err)
	}
	defer env.Close()

	job := env.WorkOrderJob(settings)
	if !*recursive {
		return report(env.Runner.Run(ctx, job))
	}

	var last syncer.RunResult
	var totals syncer.Counts
	loop := scheduler.NewCatchUp(settings.CatchUpMaxIterations, settings.CatchUpBreakerFailures, logger)
	out, err := loop.Run(ctx, func(ctx context.Context, _ int) error {
		res, err := env.Runner.Run(ctx, job)
		last = res
		totals.Inserted += res.Inserted
		totals.Updated += res.Updated
		totals.Deleted += res.Deleted
		return err
	}, job)
	logger.WithFields(logrus.Fields{
		"plant":      settings.Plant,
		"iterations": out.Iterations,
		"failures":   out.Failures,
		"converged":  out.Converged,
	}).Info("work-order catch-up finished")

	last.Inserted, last.Updated, last.Deleted = totals.Inserted, totals.Updated, totals.Deleted
	if err != nil {
		last.Status = models.SyncRunStatusFailed
		last.Message = err.Error()
	} else if !last.Failed() {
		last.Message = fmt.Sprintf("catch-up completed after %d iterations (converged=%t)", out.Iterations, out.Converged)
	}
	return report(last, err)
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

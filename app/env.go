// Package app wires the configured stores, the legacy source and the runner
// shared by the sync binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/mosys_sync/config"
	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
	"bitbucket.org/mmdatafocus/mosys_sync/measurement"
	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
	"bitbucket.org/mmdatafocus/mosys_sync/workorder"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrUnknownFamily = errors.New("unknown sync family")

type Options struct {
	// Registry receives the run metrics. Nil disables them.
	Registry prometheus.Registerer
	// ConnectAttempts bounds every connection retry loop (0 = forever).
	ConnectAttempts int
	// Migrate creates the bookkeeping tables.
	Migrate bool
}

// Env holds the live connections of one process.
type Env struct {
	DB      *gorm.DB
	Legacy  legacy.Source
	History models.RunHistory
	Runner  *syncer.Runner
	Logger  *logrus.Logger

	closers []func() error
}

// Connect opens the target store, the legacy source and the optional Redis,
// Pub/Sub and GCS clients, and builds the runner from base. base carries the
// process-wide knobs (report dir, lock TTL). The runner has no gate; the
// service installs one.
func Connect(ctx context.Context, base config.SyncSettings, opts Options) (*Env, error) {
	logger := config.GetLogger()
	env := &Env{Logger: logger}

	if err := config.ConnectDatabaseWithRetry(opts.ConnectAttempts); err != nil {
		return nil, err
	}
	env.DB = config.GetDB()
	if sqlDB, err := env.DB.DB(); err == nil {
		env.closers = append(env.closers, sqlDB.Close)
	}
	if opts.Migrate {
		if err := models.MigrateTable(env.DB); err != nil {
			env.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	env.History = models.RunHistory{DB: env.DB}

	legacyDB, err := config.ConnectLegacyWithRetry(ctx, opts.ConnectAttempts)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, legacyDB.Close)
	env.Legacy = legacy.NewSQLSource(legacyDB)

	runner := &syncer.Runner{
		LockTTL: base.LockTTL,
		History: env.History,
		Logger:  logger,
	}
	if opts.Registry != nil {
		runner.Metrics = syncer.NewMetrics(opts.Registry)
	}

	if config.RedisEnabled() {
		if err := config.ConnectRedisWithRetry(ctx, opts.ConnectAttempts); err != nil {
			env.Close()
			return nil, err
		}
		runner.Locker = syncer.RedisLocker{Client: config.GetRedisLock()}
		runner.Cache = syncer.RedisResultCache{}
	} else {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("REDIS_ADDRESS not set; runs are not serialized across processes")
	}

	if config.PubSubEnabled() {
		client, err := config.GetPubSubClient(ctx)
		if err != nil {
			config.LogError(logger, "app", "Connect", "pubsub client", config.SyncResultTopic(), err)
		} else {
			topic := client.Topic(config.SyncResultTopic())
			env.closers = append(env.closers, func() error { topic.Stop(); return nil })
			runner.Publisher = syncer.PubSubPublisher{Topic: topic}
		}
	}

	var extra []discrepancy.Sink
	if bucket := config.ReportBucket(); bucket != "" {
		client, err := config.GetGCSClient(ctx)
		if err != nil {
			config.LogError(logger, "app", "Connect", "gcs client", bucket, err)
		} else {
			env.closers = append(env.closers, client.Close)
			extra = append(extra, &discrepancy.GCSSink{Client: client, Bucket: bucket, Prefix: config.ReportPrefix()})
		}
	}
	runner.Sink = syncer.ReportSinks(base.ReportDir, extra...)

	env.Runner = runner
	return env, nil
}

// Close releases every connection opened by Connect, most recent first.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.Logger.WithError(err).Warn("close connection")
		}
	}
	e.closers = nil
}

// WorkOrderJob builds the work-order manager of the plant in s.
func (e *Env) WorkOrderJob(s config.SyncSettings) *workorder.Manager {
	store := &workorder.GormStore{DB: e.DB, Logger: e.Logger}
	return workorder.NewManager(s.Plant, e.Legacy, store, models.LookupLoader{DB: e.DB}, workorder.Options{
		MissPolicy: lookup.ParsePolicy(s.WorkOrderFKMissPolicy),
		BatchSize:  s.InsertBatchSize,
		Logger:     e.Logger,
	})
}

// MeasurementJob builds the NRILDIM manager of the plant in s.
func (e *Env) MeasurementJob(s config.SyncSettings) *measurement.Manager {
	store := &measurement.GormStore{DB: e.DB}
	return measurement.NewManager(s.Plant, e.Legacy, store, models.LookupLoader{DB: e.DB}, measurement.Options{
		MissPolicy:   lookup.ParsePolicy(s.MeasureFKMissPolicy),
		BatchSize:    s.InsertBatchSize,
		ApplyUpdates: s.MeasureApplyUpdates,
		ApplyDeletes: s.MeasureApplyDeletes,
		Logger:       e.Logger,
	})
}

// Job returns the job of family for plant, with the plant's own settings.
func (e *Env) Job(family, plant string) (syncer.Job, error) {
	s, err := config.LoadSyncSettings(plant)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(family)) {
	case workorder.Family:
		return e.WorkOrderJob(s), nil
	case measurement.Family:
		return e.MeasurementJob(s), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
}

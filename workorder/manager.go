package workorder

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
	"bitbucket.org/mmdatafocus/mosys_sync/writer"
	"github.com/sirupsen/logrus"
)

const ReportFile = "diff_workOrder.txt"

type Options struct {
	MissPolicy lookup.MissPolicy
	BatchSize  int
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

// Manager runs the work-order sync of one plant.
type Manager struct {
	plant     string
	extractor Extractor
	store     Store
	loader    lookup.Loader
	policy    lookup.MissPolicy
	batchSize int
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewManager(plant string, src legacy.Source, store Store, loader lookup.Loader, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{"family": Family, "plant": plant})
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	policy := opts.MissPolicy
	if policy == "" {
		policy = lookup.MissKeep
	}
	return &Manager{
		plant:     plant,
		extractor: Extractor{Source: src, Plant: plant, Logger: logger},
		store:     store,
		loader:    loader,
		policy:    policy,
		batchSize: opts.BatchSize,
		logger:    logger,
		now:       now,
	}
}

func (m *Manager) Family() string                  { return Family }
func (m *Manager) Plant() string                   { return m.plant }
func (m *Manager) Windows() scheduler.WindowPolicy { return scheduler.WorkOrderWindows }
func (m *Manager) ReportFile() string              { return ReportFile }
func (m *Manager) ReportNote() string              { return "" }

func (m *Manager) LastSynced(ctx context.Context) (*time.Time, error) {
	return m.store.LastSynced(ctx, m.plant, m.now())
}

func (m *Manager) HasFuture(ctx context.Context, now time.Time) (bool, error) {
	return m.store.HasFuture(ctx, m.plant, now)
}

func (m *Manager) NextStart(ctx context.Context, now time.Time) (*time.Time, error) {
	return m.store.NextStart(ctx, m.plant, now)
}

// Synchronize reconciles the work orders active in w. Codes found in the legacy
// tables are inserted or updated; stored work orders of the window that the
// legacy tables no longer list are deleted.
func (m *Manager) Synchronize(ctx context.Context, w scheduler.Window, tr *discrepancy.Tracker) (syncer.Counts, error) {
	var counts syncer.Counts
	log := m.logger.WithField("window", w.String())

	cache, err := syncer.Stage(ctx, Family, "lookup", func(ctx context.Context) (*lookup.Cache, error) {
		return lookup.Load(ctx, m.loader, m.plant, false)
	})
	if err != nil {
		return counts, err
	}
	log.WithFields(logrus.Fields{"sizes": cache.Sizes()}).Debug("lookup caches loaded")

	rows, err := syncer.Stage(ctx, Family, "extract", func(ctx context.Context) ([]legacy.Row, error) {
		return m.extractor.Extract(ctx, w)
	})
	if err != nil {
		return counts, fmt.Errorf("extract legacy work orders: %w", err)
	}

	// Deletes are decided on the normalized set: a record dropped by Resolve is
	// still listed by the legacy tables.
	listed := Normalize(rows, m.plant, tr)
	records := Resolve(listed, cache, m.policy, tr)
	log.WithFields(logrus.Fields{"legacy_rows": len(rows), "records": len(records)}).Info("legacy work orders prepared")

	codes := make([]string, len(records))
	for i, r := range records {
		codes[i] = r.WorkOrder
	}

	// Phase 1: insert and update the codes the legacy tables list.
	cs, err := syncer.Stage(ctx, Family, "reconcile", func(ctx context.Context) (reconcile.ChangeSet[Record], error) {
		current, err := m.store.Current(ctx, m.plant, codes)
		if err != nil {
			return reconcile.ChangeSet[Record]{}, err
		}
		merged := reconcile.Compare(Schema, records, current)
		return reconcile.Classify(Schema, merged, m.plant), nil
	})
	if err != nil {
		return counts, err
	}
	log.WithFields(logrus.Fields{
		"insert":    len(cs.Inserts),
		"update":    len(cs.Updates),
		"unchanged": cs.Unchanged,
	}).Info("changes identified")

	_, err = syncer.Stage(ctx, Family, "apply", func(ctx context.Context) (struct{}, error) {
		inserted, err := m.insert(ctx, cs.Inserts, tr)
		counts.Inserted = inserted
		if err != nil {
			return struct{}{}, err
		}
		for _, u := range cs.Updates {
			ok, err := m.store.Update(ctx, u)
			if err != nil {
				return struct{}{}, err
			}
			if !ok {
				log.WithField("workOrder", u.Legacy.WorkOrder).Warn("work order vanished before update, skipped")
				continue
			}
			counts.Updated++
		}
		return struct{}{}, nil
	})
	if err != nil {
		return counts, err
	}

	// Phase 2: delete what the window holds but the legacy tables dropped.
	deleted, err := syncer.Stage(ctx, Family, "delete", func(ctx context.Context) (int, error) {
		inWindow, err := m.store.CurrentInWindow(ctx, m.plant, w)
		if err != nil {
			return 0, err
		}
		stale := reconcile.Classify(Schema, reconcile.Compare(Schema, listed, inWindow), m.plant).Deletes
		if len(stale) == 0 {
			return 0, nil
		}
		doomed := make([]string, len(stale))
		for i, r := range stale {
			doomed[i] = r.WorkOrder
		}
		return m.store.Delete(ctx, m.plant, doomed)
	})
	counts.Deleted = deleted
	if err != nil {
		return counts, err
	}

	log.WithFields(logrus.Fields{
		"inserted": counts.Inserted,
		"updated":  counts.Updated,
		"deleted":  counts.Deleted,
	}).Info("work orders synchronized")
	return counts, nil
}

func (m *Manager) insert(ctx context.Context, records []Record, tr *discrepancy.Tracker) (int, error) {
	b := writer.Batcher[Record]{
		Size:        m.batchSize,
		Logger:      m.logger,
		InsertBatch: m.store.InsertBatch,
		InsertOne:   m.store.InsertOne,
		OnRowError: func(r Record, err error) {
			tr.Add(discrepancy.Event{
				Kind:    writer.RowErrorKind(err),
				Subject: discrepancy.KeySubject("workOrder", r.WorkOrder),
				Reason:  err.Error(),
			})
		},
	}
	out, err := b.Insert(ctx, records)
	return out.Inserted, err
}

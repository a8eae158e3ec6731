package measurement

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

const (
	ReportFile = "diff_nrildim.txt"
	ReportNote = "NOTE: these records were inserted with bPortingError=1"
)

type Options struct {
	MissPolicy lookup.MissPolicy
	BatchSize  int

	// The family is insert-only unless these are set.
	ApplyUpdates bool
	ApplyDeletes bool
	Logger       logrus.FieldLogger
}

type Manager struct {
	plant     string
	extractor Extractor
	store     Store
	loader    lookup.Loader
	opts      Options
	logger    logrus.FieldLogger
}

func NewManager(plant string, src legacy.Source, store Store, loader lookup.Loader, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.MissPolicy == "" {
		opts.MissPolicy = lookup.MissKeep
	}
	return &Manager{
		plant:     plant,
		extractor: Extractor{Source: src},
		store:     store,
		loader:    loader,
		opts:      opts,
		logger:    logger.WithFields(logrus.Fields{"family": Family, "plant": plant}),
	}
}

func (m *Manager) Family() string                  { return Family }
func (m *Manager) Plant() string                   { return m.plant }
func (m *Manager) Windows() scheduler.WindowPolicy { return scheduler.MeasurementWindows }
func (m *Manager) ReportFile() string              { return ReportFile }
func (m *Manager) ReportNote() string              { return ReportNote }

// LastSynced is the latest stored measurement timestamp.
func (m *Manager) LastSynced(ctx context.Context) (*time.Time, error) {
	return m.store.LastSynced(ctx, m.plant)
}

// dayWindow widens w to whole days, matching the day granularity of the legacy filter.
func dayWindow(w scheduler.Window) scheduler.Window {
	day := func(t time.Time) time.Time {
		y, mo, d := t.Date()
		return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	}
	return scheduler.Window{Start: day(w.Start), End: day(w.End)}
}

func (m *Manager) Synchronize(ctx context.Context, w scheduler.Window, tr *discrepancy.Tracker) (syncer.Counts, error) {
	var counts syncer.Counts
	w = dayWindow(w)
	log := m.logger.WithField("window", w.String())

	cache, err := syncer.Stage(ctx, Family, "lookup", func(ctx context.Context) (*lookup.Cache, error) {
		return lookup.Load(ctx, m.loader, m.plant, true)
	})
	if err != nil {
		return counts, err
	}

	rows, err := syncer.Stage(ctx, Family, "extract", func(ctx context.Context) ([]legacy.Row, error) {
		return m.extractor.Extract(ctx, w)
	})
	if err != nil {
		return counts, err
	}
	listed := Normalize(rows, m.plant, tr)
	records := Resolve(listed, cache, m.opts.MissPolicy, tr)
	flagged := 0
	for _, r := range records {
		if r.BPortingError() == 1 {
			flagged++
		}
	}
	log.WithFields(logrus.Fields{
		"legacy_rows":    len(rows),
		"records":        len(records),
		"porting_errors": flagged,
	}).Info("legacy measurements prepared")

	cs, err := syncer.Stage(ctx, Family, "reconcile", func(ctx context.Context) (reconcile.ChangeSet[Record], error) {
		current, err := m.store.Current(ctx, m.plant, w)
		if err != nil {
			return reconcile.ChangeSet[Record]{}, err
		}
		cs := reconcile.Classify(Schema, reconcile.Compare(Schema, records, current), m.plant)
		// Records dropped by Resolve are still in the legacy source and must not be deleted.
		cs.Deletes = reconcile.Classify(Schema, reconcile.Compare(Schema, listed, current), m.plant).Deletes
		return cs, nil
	})
	if err != nil {
		return counts, err
	}
	log.WithFields(logrus.Fields{
		"insert":    len(cs.Inserts),
		"update":    len(cs.Updates),
		"delete":    len(cs.Deletes),
		"unchanged": cs.Unchanged,
	}).Info("changes identified")

	_, err = syncer.Stage(ctx, Family, "apply", func(ctx context.Context) (struct{}, error) {
		b := writer.Batcher[Record]{
			Size:        m.opts.BatchSize,
			Logger:      log,
			InsertBatch: m.store.InsertBatch,
			InsertOne:   m.store.InsertOne,
			OnRowError: func(r Record, err error) {
				tr.Add(discrepancy.Event{
					Kind:    writer.RowErrorKind(err),
					Subject: discrepancy.KeySubject("referenceNum", r.ReferenceNum),
					Fields: []discrepancy.Field{
						{Name: "measureDateTime", Value: r.MeasureDateTime.Format(displayLayout)},
						{Name: "numPrint", Value: fmt.Sprint(r.NumPrint)},
						{Name: "numFigure", Value: fmt.Sprint(r.NumFigure)},
					},
					Reason: err.Error(),
				})
			},
		}
		out, err := b.Insert(ctx, cs.Inserts)
		counts.Inserted = out.Inserted
		if err != nil {
			return struct{}{}, err
		}

		if !m.opts.ApplyUpdates {
			if len(cs.Updates) > 0 {
				log.WithField("updates", len(cs.Updates)).Debug("updates disabled, skipped")
			}
			return struct{}{}, nil
		}
		for _, u := range cs.Updates {
			ok, err := m.store.Update(ctx, u)
			if err != nil {
				return struct{}{}, err
			}
			if ok {
				counts.Updated++
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return counts, err
	}

	if !m.opts.ApplyDeletes {
		if len(cs.Deletes) > 0 {
			log.WithField("deletes", len(cs.Deletes)).Debug("deletes disabled, skipped")
		}
	} else if len(cs.Deletes) > 0 {
		deleted, err := syncer.Stage(ctx, Family, "delete", func(ctx context.Context) (int, error) {
			return m.store.Delete(ctx, m.plant, cs.Deletes)
		})
		counts.Deleted = deleted
		if err != nil {
			return counts, err
		}
	}

	log.WithFields(logrus.Fields{
		"inserted": counts.Inserted,
		"updated":  counts.Updated,
		"deleted":  counts.Deleted,
	}).Info("measurements synchronized")
	return counts, nil
}

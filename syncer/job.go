// Package syncer runs one sync family for one plant behind a single failure
// boundary: the discrepancy ledger is always flushed and every outcome, success
// or not, becomes a RunResult.
package syncer

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/mosys_sync/syncer")

type Counts struct {
	Inserted int
	Updated  int
	Deleted  int
}

// Job is one sync family bound to a plant.
type Job interface {
	Family() string
	Plant() string
	Windows() scheduler.WindowPolicy
	// LastSynced is the latest timestamp already present in the target, nil when empty.
	LastSynced(ctx context.Context) (*time.Time, error)
	// Synchronize reconciles window w. Counts reflect what was applied even when err is set.
	Synchronize(ctx context.Context, w scheduler.Window, tr *discrepancy.Tracker) (Counts, error)
	ReportFile() string
	ReportNote() string
}

// Stage runs fn inside a span named family.name.
func Stage[T any](ctx context.Context, family, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, family+"."+name)
	defer span.End()
	span.SetAttributes(attribute.String("sync.family", family), attribute.String("sync.stage", name))
	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

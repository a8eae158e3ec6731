package measurement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"bitbucket.org/mmdatafocus/mosys_sync/syncer"
	"github.com/sirupsen/logrus"
)

type fakeSource struct {
	rows []legacy.Row
	args []any
	err  error
}

func (s *fakeSource) Query(_ context.Context, _ string, args ...any) ([]legacy.Row, error) {
	s.args = args
	return s.rows, s.err
}

type fakeLoader struct{ snap lookup.Snapshot }

func (l fakeLoader) Presses(context.Context, string) ([]lookup.Press, error) { return l.snap.Presses, nil }
func (l fakeLoader) Molds(context.Context, string) ([]lookup.Mold, error)    { return l.snap.Molds, nil }
func (l fakeLoader) Articles(context.Context, string) ([]lookup.Article, error) {
	return l.snap.Articles, nil
}
func (l fakeLoader) WorkOrders(context.Context, string) ([]lookup.WorkOrderRef, error) {
	return l.snap.WorkOrders, nil
}

type memoryStore struct {
	rows    map[Key]Record
	nextID  int64
	updates int
	window  scheduler.Window
}

func newMemoryStore() *memoryStore { return &memoryStore{rows: map[Key]Record{}} }

func (s *memoryStore) Current(_ context.Context, plant string, w scheduler.Window) ([]Record, error) {
	s.window = w
	var out []Record
	for _, r := range s.rows {
		if r.Plant == plant && !r.MeasureDateTime.Before(w.Start) && r.MeasureDateTime.Before(w.End) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertBatch(ctx context.Context, records []Record) error {
	for _, r := range records {
		if _, dup := s.rows[r.Key()]; dup {
			return errors.New("Duplicate entry")
		}
	}
	for _, r := range records {
		_ = s.InsertOne(ctx, r)
	}
	return nil
}

func (s *memoryStore) InsertOne(_ context.Context, r Record) error {
	if _, dup := s.rows[r.Key()]; dup {
		return errors.New("Duplicate entry")
	}
	s.nextID++
	r.IdRilDim = s.nextID
	r.WorkOrder, r.Press, r.Mold, r.Article = "", "", "", ""
	if d := r.PortingErrorDesc(); d != "" {
		r.PortingErrors = []string{d}
	}
	s.rows[r.Key()] = r
	return nil
}

func (s *memoryStore) Update(_ context.Context, u reconcile.Update[Record]) (bool, error) {
	cur, ok := s.rows[u.Legacy.Key()]
	if !ok {
		return false, nil
	}
	r := u.Legacy
	r.IdRilDim = cur.IdRilDim
	s.rows[r.Key()] = r
	s.updates++
	return true, nil
}

func (s *memoryStore) Delete(_ context.Context, _ string, records []Record) (int, error) {
	for _, r := range records {
		delete(s.rows, r.Key())
	}
	return len(records), nil
}

func (s *memoryStore) LastSynced(context.Context, string) (*time.Time, error) { return nil, nil }

func newTestManager(src legacy.Source, store Store, opts Options) *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts.Logger = logger
	loader := fakeLoader{snap: lookup.Snapshot{
		Presses:    []lookup.Press{{Code: "P1", ID: 1}},
		Molds:      []lookup.Mold{{Code: "M00000001", ID: 10}},
		Articles:   []lookup.Article{{Code: "A1", ID: 100}},
		WorkOrders: []lookup.WorkOrderRef{{Code: "WO1", ID: 1000}},
	}}
	return NewManager("tn", src, store, loader, opts)
}

var window = scheduler.Window{
	Start: time.Date(2024, 3, 1, 14, 22, 0, 0, time.Local),
	End:   time.Date(2024, 3, 31, 14, 22, 0, 0, time.Local),
}

func TestSynchronizeInsertsFlaggedRecords(t *testing.T) {
	unknown := sample("R2")
	unknown["press"] = "P9"
	unknown["workOrder"] = "WO9"
	src := &fakeSource{rows: []legacy.Row{sample("R1"), unknown}}
	store := newMemoryStore()
	m := newTestManager(src, store, Options{})

	tr := tracker()
	counts, err := m.Synchronize(context.Background(), window, tr)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if counts.Inserted != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if src.args[0] != "20240301" || src.args[1] != "20240331" {
		t.Fatalf("legacy window args = %v", src.args)
	}
	if !store.window.Start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)) {
		t.Fatalf("current window not day aligned: %s", store.window)
	}

	var flagged Record
	for _, r := range store.rows {
		if r.ReferenceNum == "R2" {
			flagged = r
		}
		if r.ReferenceNum == "R1" && (r.IdWorkOrder == nil || *r.IdWorkOrder != 1000 || r.IdMold == nil || *r.IdMold != 10) {
			t.Errorf("R1 ids not resolved: %+v", r)
		}
	}
	if flagged.BPortingError() != 1 || flagged.IdPress != nil || flagged.IdWorkOrder != nil {
		t.Fatalf("R2 = %+v", flagged)
	}
	if want := "WorkOrder not found: WO9; Press not found: P9"; flagged.PortingErrorDesc() != want {
		t.Fatalf("portingErrorDesc = %q, want %q", flagged.PortingErrorDesc(), want)
	}
	if k := tr.KindCounts(); k["WORKORDER_NOT_FOUND"] != 1 || k["PRESS_NOT_FOUND"] != 1 {
		t.Fatalf("kinds = %v", k)
	}
}

func TestSynchronizeIsInsertOnlyByDefault(t *testing.T) {
	src := &fakeSource{rows: []legacy.Row{sample("R1"), sample("R2")}}
	store := newMemoryStore()
	m := newTestManager(src, store, Options{})
	if _, err := m.Synchronize(context.Background(), window, tracker()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed := sample("R1")
	changed["operator"] = "OP8"
	src.rows = []legacy.Row{changed}
	counts, err := m.Synchronize(context.Background(), window, tracker())
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if counts != (syncer.Counts{}) || store.updates != 0 || len(store.rows) != 2 {
		t.Fatalf("counts = %+v, updates = %d, rows = %d", counts, store.updates, len(store.rows))
	}
}

func TestSynchronizeAppliesEnabledUpdatesAndDeletes(t *testing.T) {
	src := &fakeSource{rows: []legacy.Row{sample("R1"), sample("R2")}}
	store := newMemoryStore()
	m := newTestManager(src, store, Options{ApplyUpdates: true, ApplyDeletes: true})
	if _, err := m.Synchronize(context.Background(), window, tracker()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed := sample("R1")
	changed["operator"] = "OP8"
	src.rows = []legacy.Row{changed}
	counts, err := m.Synchronize(context.Background(), window, tracker())
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if counts.Updated != 1 || counts.Deleted != 1 || counts.Inserted != 0 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	src := &fakeSource{rows: []legacy.Row{sample("R1"), sample(""), sample("R3")}}
	src.rows[2]["mold"] = "UNKNOWN"
	store := newMemoryStore()
	m := newTestManager(src, store, Options{ApplyUpdates: true, ApplyDeletes: true})
	if _, err := m.Synchronize(context.Background(), window, tracker()); err != nil {
		t.Fatalf("first: %v", err)
	}
	counts, err := m.Synchronize(context.Background(), window, tracker())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if counts != (syncer.Counts{}) {
		t.Fatalf("second counts = %+v", counts)
	}
}

func TestSynchronizePropagatesLegacyError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection reset")}
	m := newTestManager(src, newMemoryStore(), Options{})
	if _, err := m.Synchronize(context.Background(), window, tracker()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestResolveDropPolicy(t *testing.T) {
	cache := lookup.New("tn", lookup.Snapshot{Presses: []lookup.Press{{Code: "P1", ID: 1}}})
	recs := []Record{{ReferenceNum: "R1", Press: "P1"}, {ReferenceNum: "R2", Press: "P9"}, {ReferenceNum: "R3"}}

	kept := Resolve(append([]Record(nil), recs...), cache, lookup.MissKeep, tracker())
	if len(kept) != 3 {
		t.Fatalf("keep policy dropped records: %d", len(kept))
	}
	dropped := Resolve(append([]Record(nil), recs...), cache, lookup.MissDrop, tracker())
	if len(dropped) != 2 || dropped[1].ReferenceNum != "R3" {
		t.Fatalf("drop policy = %+v", dropped)
	}
}

func TestSynchronizeDropPolicyKeepsListedMeasurements(t *testing.T) {
	src := &fakeSource{rows: []legacy.Row{sample("R1"), sample("R2")}}
	store := newMemoryStore()
	m := newTestManager(src, store, Options{ApplyDeletes: true, MissPolicy: lookup.MissDrop})
	if _, err := m.Synchronize(context.Background(), window, tracker()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	moved := sample("R2")
	moved["press"] = "P9"
	src.rows = []legacy.Row{sample("R1"), moved}
	counts, err := m.Synchronize(context.Background(), window, tracker())
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if counts.Deleted != 0 || len(store.rows) != 2 {
		t.Fatalf("counts = %+v, stored = %d", counts, len(store.rows))
	}
}

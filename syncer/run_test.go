package syncer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

type fakeJob struct {
	last    *time.Time
	lastErr error
	counts  Counts
	err     error
	panics  bool
	events  int
	note    string
	window  scheduler.Window
	calls   int
}

func (j *fakeJob) Family() string                  { return "workorder" }
func (j *fakeJob) Plant() string                   { return "tn" }
func (j *fakeJob) Windows() scheduler.WindowPolicy { return scheduler.WorkOrderWindows }
func (j *fakeJob) ReportFile() string              { return "diff_workOrder.txt" }
func (j *fakeJob) ReportNote() string              { return j.note }

func (j *fakeJob) LastSynced(context.Context) (*time.Time, error) { return j.last, j.lastErr }

func (j *fakeJob) Synchronize(_ context.Context, w scheduler.Window, tr *discrepancy.Tracker) (Counts, error) {
	j.calls++
	j.window = w
	for i := 0; i < j.events; i++ {
		tr.Add(discrepancy.Event{Kind: "PRESS_NOT_FOUND", Subject: "workOrder=WO1", Reason: "press P9 missing"})
	}
	if j.panics {
		panic("boom")
	}
	return j.counts, j.err
}

type memorySink struct {
	mu     sync.Mutex
	blocks []discrepancy.Block
}

func (s *memorySink) Append(_ context.Context, b discrepancy.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	return nil
}

type memoryHistory struct{ runs []*models.SyncRun }

func (h *memoryHistory) Record(_ context.Context, run *models.SyncRun) error {
	h.runs = append(h.runs, run)
	return nil
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memoryLocker) Obtain(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, ErrLockHeld
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
		return nil
	}, nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }
func (c *fixedClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRunner(sink discrepancy.Sink, hist Recorder) *Runner {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	return &Runner{
		History:  hist,
		Sink:     func(Job) discrepancy.Sink { return sink },
		Logger:   quietLogger(),
		Now:      func() time.Time { return now },
		NewRunID: func() string { return "run-1" },
	}
}

func TestRun_SuccessUsesNextWindow(t *testing.T) {
	last := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	job := &fakeJob{last: &last, counts: Counts{Inserted: 2, Updated: 1, Deleted: 1}}
	hist := &memoryHistory{}
	r := newRunner(&memorySink{}, hist)

	res, err := r.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != models.SyncRunStatusSuccess || res.Failed() {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Inserted != 2 || res.Updated != 1 || res.Deleted != 1 {
		t.Fatalf("counts = %+v", res)
	}
	want := scheduler.WorkOrderWindows.Next("tn", &last)
	if !job.window.Start.Equal(want.Start) || !job.window.End.Equal(want.End) {
		t.Fatalf("window = %s, want %s", job.window, want)
	}
	if res.WindowStart == nil || !res.WindowStart.Equal(want.Start) {
		t.Fatalf("result window start = %v", res.WindowStart)
	}
	if len(hist.runs) != 1 || hist.runs[0].RunId != "run-1" || hist.runs[0].Status != models.SyncRunStatusSuccess {
		t.Fatalf("history = %+v", hist.runs)
	}
}

func TestRun_FailureStillFlushesReport(t *testing.T) {
	job := &fakeJob{events: 3, err: errors.New("legacy query failed"), counts: Counts{Inserted: 4}}
	sink := &memorySink{}
	hist := &memoryHistory{}
	r := newRunner(sink, hist)

	res, err := r.Run(context.Background(), job)
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.Status != models.SyncRunStatusFailed || !strings.Contains(res.Message, "legacy query failed") {
		t.Fatalf("result = %+v", res)
	}
	if res.Inserted != 4 {
		t.Fatalf("partial counts lost: %+v", res)
	}
	if res.Discrepancies != 3 {
		t.Fatalf("discrepancies = %d", res.Discrepancies)
	}
	if len(sink.blocks) != 1 {
		t.Fatalf("report blocks = %d, want 1", len(sink.blocks))
	}
	if !strings.Contains(string(sink.blocks[0].Body), "[x3]") {
		t.Fatalf("report body:\n%s", sink.blocks[0].Body)
	}
	if len(hist.runs) != 1 || hist.runs[0].Status != models.SyncRunStatusFailed {
		t.Fatalf("history = %+v", hist.runs)
	}
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	job := &fakeJob{events: 1, panics: true}
	sink := &memorySink{}
	r := newRunner(sink, nil)

	res, err := r.Run(context.Background(), job)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v", err)
	}
	if !res.Failed() {
		t.Fatalf("status = %q", res.Status)
	}
	if len(sink.blocks) != 1 {
		t.Fatalf("report not flushed after panic")
	}
}

func TestRun_LastSyncedErrorFails(t *testing.T) {
	job := &fakeJob{lastErr: errors.New("target down")}
	r := newRunner(&memorySink{}, nil)

	res, err := r.Run(context.Background(), job)
	if err == nil || !res.Failed() {
		t.Fatalf("expected failure, got %+v %v", res, err)
	}
	if job.calls != 0 {
		t.Fatalf("Synchronize called %d times", job.calls)
	}
}

func TestRunWindow_UsesGivenWindow(t *testing.T) {
	job := &fakeJob{}
	r := newRunner(&memorySink{}, nil)
	w := scheduler.Window{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.Local),
		End:   time.Date(2023, 1, 31, 0, 0, 0, 0, time.Local),
	}
	if _, err := r.RunWindow(context.Background(), job, w); err != nil {
		t.Fatalf("RunWindow: %v", err)
	}
	if !job.window.Start.Equal(w.Start) || !job.window.End.Equal(w.End) {
		t.Fatalf("window = %s", job.window)
	}
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newRunner(&memorySink{}, nil)
	r.Metrics = NewMetrics(reg)

	if _, err := r.Run(context.Background(), &fakeJob{counts: Counts{Inserted: 5, Updated: 2}, events: 2}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, _ = r.Run(context.Background(), &fakeJob{err: errors.New("x")})

	if got := testutil.ToFloat64(r.Metrics.Runs.WithLabelValues("workorder", "tn", "success")); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(r.Metrics.Runs.WithLabelValues("workorder", "tn", "failed")); got != 1 {
		t.Errorf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(r.Metrics.Rows.WithLabelValues("workorder", "tn", "insert")); got != 5 {
		t.Errorf("inserted rows = %v", got)
	}
	if got := testutil.ToFloat64(r.Metrics.Rows.WithLabelValues("workorder", "tn", "update")); got != 2 {
		t.Errorf("updated rows = %v", got)
	}
	if got := testutil.ToFloat64(r.Metrics.Discrepancies.WithLabelValues("workorder", "tn")); got != 2 {
		t.Errorf("discrepancies = %v", got)
	}
}

func TestRun_LockContention(t *testing.T) {
	locker := &memoryLocker{}
	r := newRunner(&memorySink{}, nil)
	r.Locker = locker

	release, err := locker.Obtain(context.Background(), LockKey("workorder", "tn"), time.Minute)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	job := &fakeJob{}
	res, err := r.Run(context.Background(), job)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
	if !res.Failed() || job.calls != 0 {
		t.Fatalf("job ran while lock held: %+v", res)
	}

	_ = release(context.Background())
	if _, err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("Run after release: %v", err)
	}
	if locker.held[LockKey("workorder", "tn")] {
		t.Fatalf("lock not released after run")
	}
}

func TestRun_GateRefusesTooSoon(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)}
	r := newRunner(&memorySink{}, nil)
	r.Gate = scheduler.NewGate(time.Minute, clock)
	job := &fakeJob{}

	if _, err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := r.Run(context.Background(), job); !errors.Is(err, ErrTooSoon) {
		t.Fatalf("second run err = %v, want ErrTooSoon", err)
	}
	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if job.calls != 2 {
		t.Fatalf("calls = %d, want 2", job.calls)
	}
}

func TestReportSinks_AppendsPerFamilyFile(t *testing.T) {
	dir := t.TempDir()
	r := newRunner(nil, nil)
	r.Sink = ReportSinks(filepath.Join(dir, "Notes"))

	job := &fakeJob{events: 1, note: "NOTE: test"}
	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), job); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	b, err := os.ReadFile(filepath.Join(dir, "Notes", "diff_workOrder.txt"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if got := strings.Count(string(b), "SESSION START"); got != 2 {
		t.Fatalf("sessions = %d, want 2", got)
	}
	if !strings.Contains(string(b), "NOTE: test") {
		t.Fatalf("note missing:\n%s", b)
	}
}

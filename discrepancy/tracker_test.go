package discrepancy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
}

type memorySink struct {
	blocks []Block
	err    error
}

func (m *memorySink) Append(_ context.Context, b Block) error {
	m.blocks = append(m.blocks, b)
	return m.err
}

func TestTrackerDeduplicatesAndCounts(t *testing.T) {
	tr := NewTracker("workOrder", "it", fixedNow)
	ev := Event{Kind: "PRESS_NOT_FOUND", Subject: "workOrder=WO1", Fields: []Field{{"press", "P9"}}, Reason: "press not in presses_tbl"}
	for i := 0; i < 5; i++ {
		tr.Add(ev)
	}
	if tr.Total() != 5 || tr.Unique() != 1 {
		t.Fatalf("total=%d unique=%d", tr.Total(), tr.Unique())
	}
	body := string(tr.Render())
	want := "[2024-05-06 07:08:09] PRESS_NOT_FOUND | workOrder=WO1 | press=P9 | reason=press not in presses_tbl [x5]\n"
	if !strings.Contains(body, want) {
		t.Fatalf("missing line %q in\n%s", want, body)
	}
	if strings.Count(body, "PRESS_NOT_FOUND") != 1 {
		t.Fatalf("expected one report line:\n%s", body)
	}
}

func TestTrackerBlockLayoutAndOrdering(t *testing.T) {
	tr := NewTracker("workOrder", "tn", fixedNow)
	tr.SetNote("NOTE: flagged")
	tr.Add(Event{Kind: "MOLD_NOT_FOUND", Subject: "workOrder=B"})
	tr.Add(Event{Kind: "ARTICLE_NOT_FOUND", Subject: "workOrder=A"})
	tr.Add(Event{Kind: "MOLD_NOT_FOUND", Subject: "workOrder=C"})
	tr.Add(Event{Kind: "MOLD_NOT_FOUND", Subject: "workOrder=C"})

	lines := strings.Split(strings.TrimRight(string(tr.Render()), "\n"), "\n")
	sep := strings.Repeat("=", 150)
	want := []string{
		sep,
		"SESSION START: 2024-05-06 07:08:09 | PLANT: tn",
		"Total discrepancies: 4 (Unique: 3)",
		"NOTE: flagged",
		sep,
		"[2024-05-06 07:08:09] ARTICLE_NOT_FOUND | workOrder=A",
		"[2024-05-06 07:08:09] MOLD_NOT_FOUND | workOrder=C [x2]",
		"[2024-05-06 07:08:09] MOLD_NOT_FOUND | workOrder=B",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q want %q", i, lines[i], want[i])
		}
	}
}

func TestCompositionSkipsEmptyParts(t *testing.T) {
	ev := Event{
		Kind:    "WO_DATES_INVERTED",
		Subject: KeySubject("workOrder", "WO7", Field{"start", "2024-01-02 10:00:00"}, Field{"end", ""}),
		Fields:  []Field{{"press", ""}, {"mold", "M1"}},
		Info:    "x",
	}
	got := ev.Composition()
	want := "WO_DATES_INVERTED | workOrder=WO7 [start=2024-01-02 10:00:00] | mold=M1 | info=x"
	if got != want {
		t.Fatalf("composition=%q want %q", got, want)
	}
}

func TestFlushOnceAndEmpty(t *testing.T) {
	sink := &memorySink{}

	empty := NewTracker("nrildim", "it", fixedNow)
	if err := empty.Flush(context.Background(), sink); err != nil {
		t.Fatalf("flush empty: %v", err)
	}
	if len(sink.blocks) != 0 {
		t.Fatalf("empty ledger must not write")
	}

	tr := NewTracker("nrildim", "it", fixedNow)
	tr.Add(Event{Kind: "X"})
	if err := tr.Flush(context.Background(), sink); err != nil {
		t.Fatalf("flush: %v", err)
	}
	tr.Add(Event{Kind: "Y"})
	if err := tr.Flush(context.Background(), sink); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if len(sink.blocks) != 1 {
		t.Fatalf("blocks=%d want 1", len(sink.blocks))
	}
	if sink.blocks[0].Family != "nrildim" || sink.blocks[0].Plant != "it" {
		t.Fatalf("block meta=%+v", sink.blocks[0])
	}
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Notes", "diff_workOrder.txt")
	sink := NewFileSink(path)
	for i := 0; i < 2; i++ {
		tr := NewTracker("workOrder", "it", fixedNow)
		tr.Add(Event{Kind: "WORKORDER_EMPTY", Subject: "workOrder=EMPTY"})
		if err := tr.Flush(context.Background(), sink); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if n := strings.Count(string(data), "SESSION START"); n != 2 {
		t.Fatalf("sessions=%d want 2", n)
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &memorySink{}
	b := &memorySink{err: boom}
	err := MultiSink{a, nil, b}.Append(context.Background(), Block{Body: []byte("x")})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(a.blocks) != 1 || len(b.blocks) != 1 {
		t.Fatalf("every sink must receive the block")
	}
}

func TestGCSObjectName(t *testing.T) {
	s := &GCSSink{Prefix: "discrepancies"}
	got := s.ObjectName(Block{Family: "workOrder", Plant: "pl", StartedAt: fixedNow()})
	if got != "discrepancies/pl/workOrder-20240506T070809.txt" {
		t.Fatalf("object=%q", got)
	}
}

// Package discrepancy keeps a deduplicating, counting ledger of data-quality anomalies
// found during one sync run and writes it as one session block to an append-only report.
package discrepancy

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	separatorWidth = 150
	timeLayout     = "2006-01-02 15:04:05"
)

type Field struct {
	Name  string
	Value string
}

// Event is one anomaly. Events with the same composition are counted, not duplicated.
type Event struct {
	Kind    string
	Subject string
	Fields  []Field
	Reason  string
	Info    string
}

// Composition renders the event as `KIND | subject | name=value | reason=... | info=...`;
// empty parts are skipped.
func (e Event) Composition() string {
	parts := []string{e.Kind}
	if e.Subject != "" {
		parts = append(parts, e.Subject)
	}
	for _, f := range e.Fields {
		if f.Value == "" {
			continue
		}
		parts = append(parts, f.Name+"="+f.Value)
	}
	if e.Reason != "" {
		parts = append(parts, "reason="+e.Reason)
	}
	if e.Info != "" {
		parts = append(parts, "info="+e.Info)
	}
	return strings.Join(parts, " | ")
}

// KeySubject formats a natural key for display, e.g. `workOrder=WO1 [start=..., end=...]`.
func KeySubject(name, value string, detail ...Field) string {
	s := name + "=" + value
	var extra []string
	for _, f := range detail {
		if f.Value == "" {
			continue
		}
		extra = append(extra, f.Name+"="+f.Value)
	}
	if len(extra) > 0 {
		s += " [" + strings.Join(extra, ", ") + "]"
	}
	return s
}

// Tracker accumulates events for one run. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	family  string
	plant   string
	note    string
	now     func() time.Time
	started time.Time
	counts  map[string]int
	kinds   map[string]string
	flushed bool
}

func NewTracker(family, plant string, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		family:  family,
		plant:   plant,
		now:     now,
		started: now(),
		counts:  map[string]int{},
		kinds:   map[string]string{},
	}
}

// SetNote adds a line under the session header.
func (t *Tracker) SetNote(note string) {
	t.mu.Lock()
	t.note = note
	t.mu.Unlock()
}

func (t *Tracker) Add(e Event) {
	key := e.Composition()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flushed {
		return
	}
	t.counts[key]++
	t.kinds[key] = e.Kind
}

// Total is the number of events added, Unique the number of distinct compositions.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.counts {
		n += c
	}
	return n
}

func (t *Tracker) Unique() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

// KindCounts sums event counts per kind.
func (t *Tracker) KindCounts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := map[string]int{}
	for key, c := range t.counts {
		out[t.kinds[key]] += c
	}
	return out
}

type entry struct {
	kind  string
	key   string
	count int
}

// Render builds the session block. It returns nil when nothing was recorded.
func (t *Tracker) Render() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renderLocked()
}

func (t *Tracker) renderLocked() []byte {
	if len(t.counts) == 0 {
		return nil
	}
	entries := make([]entry, 0, len(t.counts))
	total := 0
	for key, c := range t.counts {
		entries = append(entries, entry{kind: t.kinds[key], key: key, count: c})
		total += c
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].kind != entries[j].kind {
			return entries[i].kind < entries[j].kind
		}
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})

	sep := strings.Repeat("=", separatorWidth)
	var b bytes.Buffer
	fmt.Fprintln(&b, sep)
	fmt.Fprintf(&b, "SESSION START: %s | PLANT: %s\n", t.started.Format(timeLayout), t.plant)
	fmt.Fprintf(&b, "Total discrepancies: %d (Unique: %d)\n", total, len(entries))
	if t.note != "" {
		fmt.Fprintln(&b, t.note)
	}
	fmt.Fprintln(&b, sep)

	ts := t.now().Format(timeLayout)
	for _, e := range entries {
		suffix := ""
		if e.count > 1 {
			suffix = fmt.Sprintf(" [x%d]", e.count)
		}
		fmt.Fprintf(&b, "[%s] %s%s\n", ts, e.key, suffix)
	}
	b.WriteString("\n")
	return b.Bytes()
}

// Flush writes the block to sink once and discards the ledger. Later calls are no-ops.
// An empty ledger writes nothing.
func (t *Tracker) Flush(ctx context.Context, sink Sink) error {
	t.mu.Lock()
	if t.flushed {
		t.mu.Unlock()
		return nil
	}
	t.flushed = true
	body := t.renderLocked()
	block := Block{Family: t.family, Plant: t.plant, StartedAt: t.started, Body: body}
	t.counts = map[string]int{}
	t.kinds = map[string]string{}
	t.mu.Unlock()

	if body == nil || sink == nil {
		return nil
	}
	return sink.Append(ctx, block)
}

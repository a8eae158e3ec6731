package scheduler

import (
	"fmt"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Window is the date range one run reconciles. Each family decides whether End is inclusive.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s -> %s", w.Start.Format("2006-01-02 15:04:05"), w.End.Format("2006-01-02 15:04:05"))
}

// WindowPolicy derives the next window from the latest already-synced timestamp.
// With no synced data the window starts at the plant's epoch.
type WindowPolicy struct {
	Lookback  time.Duration
	Lookahead time.Duration
	EpochSpan time.Duration

	Epochs       map[string]time.Time
	DefaultEpoch time.Time
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// WorkOrderWindows re-reads 60 days behind the latest started work order and 30 days ahead.
var WorkOrderWindows = WindowPolicy{
	Lookback:  60 * day,
	Lookahead: 30 * day,
	EpochSpan: 30 * day,
	Epochs: map[string]time.Time{
		"tn": date(2009, time.July, 8),
		"pl": date(2008, time.February, 27),
	},
	DefaultEpoch: date(1989, time.January, 12),
}

// MeasurementWindows moves forward 30 days from the latest synced measurement.
var MeasurementWindows = WindowPolicy{
	Lookahead: 30 * day,
	EpochSpan: 30 * day,
	Epochs: map[string]time.Time{
		"it": date(1998, time.October, 23),
		"tn": date(2009, time.July, 8),
		"pl": date(2008, time.September, 29),
	},
	DefaultEpoch: date(2005, time.January, 1),
}

func (p WindowPolicy) Epoch(plant string) time.Time {
	if e, ok := p.Epochs[strings.ToLower(strings.TrimSpace(plant))]; ok {
		return e
	}
	return p.DefaultEpoch
}

// Next returns the window for plant. lastSynced is nil when the target holds no rows yet.
func (p WindowPolicy) Next(plant string, lastSynced *time.Time) Window {
	if lastSynced == nil || lastSynced.IsZero() {
		start := p.Epoch(plant)
		return Window{Start: start, End: start.Add(p.EpochSpan)}
	}
	return Window{Start: lastSynced.Add(-p.Lookback), End: lastSynced.Add(p.Lookahead)}
}

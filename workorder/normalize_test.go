package workorder

import (
	"math"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
)

func tracker() *discrepancy.Tracker {
	return discrepancy.NewTracker(Family, "tn", func() time.Time {
		return time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
	})
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func baseRow(code string) legacy.Row {
	return legacy.Row{
		"workOrder":    code,
		"press":        "P1",
		"mold":         "",
		"article":      "",
		"state":        "A",
		"woTest":       "N",
		"woStart_date": "20240301",
		"woStart_time": "800",
		"woEnd_date":   "20240310",
		"woEnd_time":   "1700",
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(legacy.Row)
		check func(t *testing.T, r Record)
	}{
		{
			name: "planned dates with short times",
			check: func(t *testing.T, r Record) {
				if r.WoStart == nil || !r.WoStart.Equal(at(2024, 3, 1, 8, 0)) {
					t.Errorf("woStart = %v", r.WoStart)
				}
				if r.WoEnd == nil || !r.WoEnd.Equal(at(2024, 3, 10, 17, 0)) {
					t.Errorf("woEnd = %v", r.WoEnd)
				}
			},
		},
		{
			name: "state mapped",
			edit: func(r legacy.Row) { r["state"] = "P" },
			check: func(t *testing.T, r Record) {
				if r.WoState != "In Lavorazione" {
					t.Errorf("woState = %q", r.WoState)
				}
			},
		},
		{
			name: "unknown state kept",
			edit: func(r legacy.Row) { r["state"] = "X" },
			check: func(t *testing.T, r Record) {
				if r.WoState != "X" {
					t.Errorf("woState = %q", r.WoState)
				}
			},
		},
		{
			name: "test work order",
			edit: func(r legacy.Row) { r["woTest"] = "PR" },
			check: func(t *testing.T, r Record) {
				if r.WoTest != "S" {
					t.Errorf("woTest = %q", r.WoTest)
				}
			},
		},
		{
			name: "non test work order",
			edit: func(r legacy.Row) { r["woTest"] = nil },
			check: func(t *testing.T, r Record) {
				if r.WoTest != "N" {
					t.Errorf("woTest = %q", r.WoTest)
				}
			},
		},
		{
			name: "code truncated and trimmed",
			edit: func(r legacy.Row) { r["workOrder"] = " WO00000001XYZ" },
			check: func(t *testing.T, r Record) {
				if r.WorkOrder != "WO0000000" {
					t.Errorf("workOrder = %q", r.WorkOrder)
				}
			},
		},
		{
			name: "total pieces clamped",
			edit: func(r legacy.Row) { r["woTotPieces"] = int64(math.MaxInt32) + 10 },
			check: func(t *testing.T, r Record) {
				if r.WoTotPieces != math.MaxInt32 {
					t.Errorf("woTotPieces = %d", r.WoTotPieces)
				}
			},
		},
		{
			name: "order cycle preferred with comma decimals",
			edit: func(r legacy.Row) {
				r["woCycle_source"] = "12,5"
				r["cycle"] = "0"
			},
			check: func(t *testing.T, r Record) {
				if r.WoCycle == nil || *r.WoCycle != 12.5 {
					t.Errorf("woCycle = %v", r.WoCycle)
				}
				if r.Cycle == nil || *r.Cycle != 12.5 {
					t.Errorf("cycle = %v", r.Cycle)
				}
			},
		},
		{
			name: "first piece overrides planned start",
			edit: func(r legacy.Row) {
				r["firstPieceTime"] = "20240302063000"
				r["lastPieceTime"] = "20240309120000"
			},
			check: func(t *testing.T, r Record) {
				if !r.WoStart.Equal(time.Date(2024, 3, 2, 6, 30, 0, 0, time.Local)) {
					t.Errorf("woStart = %v", r.WoStart)
				}
				if !r.WoEnd.Equal(at(2024, 3, 10, 17, 0)) {
					t.Errorf("woEnd of an open order = %v", r.WoEnd)
				}
			},
		},
		{
			name: "last piece ends a finished order",
			edit: func(r legacy.Row) {
				r["state"] = "F"
				r["lastPieceTime"] = "20240309120000"
			},
			check: func(t *testing.T, r Record) {
				if r.WoState != StateFinished {
					t.Errorf("woState = %q", r.WoState)
				}
				if !r.WoEnd.Equal(at(2024, 3, 9, 12, 0)) {
					t.Errorf("woEnd = %v", r.WoEnd)
				}
			},
		},
		{
			name: "missing planned time",
			edit: func(r legacy.Row) { r["woEnd_time"] = nil },
			check: func(t *testing.T, r Record) {
				if r.WoEnd != nil {
					t.Errorf("woEnd = %v", r.WoEnd)
				}
			},
		},
		{
			name: "counters default to zero",
			edit: func(r legacy.Row) { r["packedPz"] = "40" },
			check: func(t *testing.T, r Record) {
				if r.PackedPz != 40 || r.WoDonePieces != 0 || r.TotalSegrPz != 0 {
					t.Errorf("counters = %+v", r)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := baseRow("WO1")
			if tc.edit != nil {
				tc.edit(row)
			}
			tr := tracker()
			out := Normalize([]legacy.Row{row}, "tn", tr)
			if len(out) != 1 {
				t.Fatalf("records = %d", len(out))
			}
			if out[0].Plant != "tn" {
				t.Fatalf("plant = %q", out[0].Plant)
			}
			tc.check(t, out[0])
		})
	}
}

func TestNormalizeDiscardsMissingCodes(t *testing.T) {
	nullRow := baseRow("x")
	nullRow["workOrder"] = nil
	tr := tracker()
	out := Normalize([]legacy.Row{nullRow, baseRow("   "), baseRow("WO1")}, "tn", tr)
	if len(out) != 1 || out[0].WorkOrder != "WO1" {
		t.Fatalf("records = %+v", out)
	}
	kinds := tr.KindCounts()
	if kinds["WORKORDER_NULL"] != 1 || kinds["WORKORDER_EMPTY"] != 1 {
		t.Fatalf("kinds = %v", kinds)
	}
	if !strings.Contains(string(tr.Render()), "reason=workOrder is null - record discarded") {
		t.Fatalf("report:\n%s", tr.Render())
	}
}

func TestNormalizeFlagsInvertedDates(t *testing.T) {
	row := baseRow("WO1")
	row["woStart_date"] = "20240310"
	row["woStart_time"] = "0800"
	row["woEnd_date"] = "20240301"
	row["woEnd_time"] = "1700"

	tr := tracker()
	out := Normalize([]legacy.Row{row}, "tn", tr)
	if len(out) != 1 {
		t.Fatalf("inverted record dropped")
	}
	if out[0].BPortingError() != 1 {
		t.Fatalf("porting error not set")
	}
	body := string(tr.Render())
	if !strings.Contains(body, "WO_DATES_INVERTED | workOrder=WO1 [start=2024-03-10 08:00, end=2024-03-01 17:00]") {
		t.Fatalf("report:\n%s", body)
	}
}

func TestNormalizeEqualDatesAreNotInverted(t *testing.T) {
	row := baseRow("WO1")
	row["woEnd_date"] = "20240301"
	row["woEnd_time"] = "800"

	tr := tracker()
	out := Normalize([]legacy.Row{row}, "tn", tr)
	if tr.Total() != 0 {
		t.Fatalf("unexpected events:\n%s", tr.Render())
	}
	if out[0].BPortingError() != 0 {
		t.Fatalf("porting error = %q", out[0].PortingErrorDesc())
	}
}

package workorder

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
)

const (
	workOrderLength = 10
	maxInt32        = math.MaxInt32

	StateFinished = "Finito"

	plannedLayout = "200601021504"
	pieceLayout   = "20060102150405"
	dayLayout     = "20060102"
	displayLayout = "2006-01-02 15:04"
)

var states = map[string]string{
	"A": "Pianificata",
	"P": "In Lavorazione",
	"F": StateFinished,
	"S": "Sospeso",
}

// Normalize converts merged legacy rows into records of plant. Rows without a
// work order code are reported and dropped.
func Normalize(rows []legacy.Row, plant string, tr *discrepancy.Tracker) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, ok := normalizeRow(row, plant, tr)
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func normalizeRow(row legacy.Row, plant string, tr *discrepancy.Tracker) (Record, bool) {
	press, _ := row.String("press")
	mold, _ := row.String("mold")
	article, _ := row.String("article")
	codes := []discrepancy.Field{{Name: "press", Value: press}, {Name: "mold", Value: mold}, {Name: "article", Value: article}}

	raw, ok := row.Raw("workOrder")
	if !ok {
		tr.Add(discrepancy.Event{
			Kind:    "WORKORDER_NULL",
			Subject: discrepancy.KeySubject("workOrder", "NULL"),
			Fields:  codes,
			Reason:  "workOrder is null - record discarded",
		})
		return Record{}, false
	}
	wo := strings.TrimSpace(truncate(raw, workOrderLength))
	if wo == "" {
		tr.Add(discrepancy.Event{
			Kind:    "WORKORDER_EMPTY",
			Subject: discrepancy.KeySubject("workOrder", "EMPTY"),
			Fields:  codes,
			Reason:  "workOrder is empty string - record discarded",
		})
		return Record{}, false
	}

	r := Record{
		WorkOrder:       wo,
		Plant:           plant,
		Press:           press,
		Mold:            mold,
		Article:         article,
		Figures:         intOrZero(row, "figures"),
		WoTotPieces:     intOrZero(row, "woTotPieces"),
		UsedFigures:     intOrZero(row, "usedFigures"),
		WoDonePieces:    intOrZero(row, "woDonePieces"),
		StartScrapedPz:  intOrZero(row, "startScrapedPz"),
		AutomScrapedPz:  intOrZero(row, "automScrapedPz"),
		ManualScrapedPz: intOrZero(row, "manualScrapedPz"),
		TotalSegrPz:     intOrZero(row, "totalSegrPz"),
		ScrapedSegrPz:   intOrZero(row, "scrapedSegrPz"),
		PackedPz:        intOrZero(row, "packedPz"),
	}
	if r.WoTotPieces > maxInt32 {
		r.WoTotPieces = maxInt32
	}

	r.WoTest = "N"
	if t, _ := row.String("woTest"); t == "PR" || t == "S" {
		r.WoTest = "S"
	}
	state, _ := row.String("state")
	r.WoState = state
	if mapped, ok := states[state]; ok {
		r.WoState = mapped
	}
	r.Program, _ = row.String("program")
	r.ProgRegDate = parseDate(row, "progRegDate", dayLayout)

	// Prefer the cycle from the order tables, fall back to the planned cycle.
	if v, ok := row.Float("woCycle_source"); ok {
		r.WoCycle = &v
	} else if v, ok := row.Float("cycle"); ok {
		r.WoCycle = &v
	}
	if v, ok := row.Float("cycle"); ok && v != 0 {
		r.Cycle = &v
	} else if r.WoCycle != nil {
		v := *r.WoCycle
		r.Cycle = &v
	}

	r.WoStart = plannedTime(row, "woStart_date", "woStart_time")
	r.WoEnd = plannedTime(row, "woEnd_date", "woEnd_time")
	if first := parseDate(row, "firstPieceTime", pieceLayout); first != nil {
		r.WoStart = first
	}
	if r.WoState == StateFinished {
		if last := parseDate(row, "lastPieceTime", pieceLayout); last != nil {
			r.WoEnd = last
		}
	}

	checkDates(&r, tr)
	return r, true
}

// checkDates flags a work order that ends before it starts. The record is kept.
func checkDates(r *Record, tr *discrepancy.Tracker) {
	if r.WoStart == nil || r.WoEnd == nil || !r.WoEnd.Before(*r.WoStart) {
		return
	}
	start := r.WoStart.Format(displayLayout)
	end := r.WoEnd.Format(displayLayout)
	tr.Add(discrepancy.Event{
		Kind: "WO_DATES_INVERTED",
		Subject: discrepancy.KeySubject("workOrder", r.WorkOrder,
			discrepancy.Field{Name: "start", Value: start},
			discrepancy.Field{Name: "end", Value: end}),
		Fields: []discrepancy.Field{{Name: "press", Value: r.Press}, {Name: "mold", Value: r.Mold}},
		Reason: "woEnd is before woStart",
	})
	r.AddPortingError("woEnd " + end + " before woStart " + start)
}

// plannedTime joins a yyyymmdd date and an hhmm time that may have lost its leading zeros.
func plannedTime(row legacy.Row, dateCol, timeCol string) *time.Time {
	d, ok := row.String(dateCol)
	if !ok || d == "" {
		return nil
	}
	t, ok := row.String(timeCol)
	if !ok || t == "" {
		return nil
	}
	return parse(d+zeroPad(t, 4), plannedLayout)
}

func parseDate(row legacy.Row, col, layout string) *time.Time {
	s, ok := row.String(col)
	if !ok || s == "" {
		return nil
	}
	return parse(s, layout)
}

func parse(s, layout string) *time.Time {
	t, err := time.ParseInLocation(layout, s, time.Local)
	if err != nil {
		return nil
	}
	return &t
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

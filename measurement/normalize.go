package measurement

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
	"github.com/shopspring/decimal"
)

const (
	measureColumns  = 20
	dateTimeLayout  = "20060102150405"
	displayLayout   = "2006-01-02 15:04:05"
	emptyRefPrefix  = "EMPTY_"
	measureScaleDiv = 10000
)

var (
	dateRe = regexp.MustCompile(`^\d{8}$`)
	hourRe = regexp.MustCompile(`^\d{6}$`)

	scale = decimal.NewFromInt(measureScaleDiv)
)

// Normalize converts NRILDIM rows into records of plant. Rows whose timestamp
// cannot be built are reported and dropped; every other problem is recorded on
// the record as a porting error.
func Normalize(rows []legacy.Row, plant string, tr *discrepancy.Tracker) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		if r, ok := normalizeRow(row, plant, tr); ok {
			out = append(out, r)
		}
	}
	return out
}

func text(row legacy.Row, col string) string {
	s, _ := row.String(col)
	return s
}

func normalizeRow(row legacy.Row, plant string, tr *discrepancy.Tracker) (Record, bool) {
	r := Record{
		Plant:        plant,
		WorkOrder:    text(row, "workOrder"),
		Press:        text(row, "press"),
		Mold:         lookup.MoldKey(text(row, "mold")),
		Article:      text(row, "article"),
		Operator:     text(row, "operator"),
		ReferenceNum: text(row, "referenceNum"),
	}
	r.NumPrint, _ = row.Int("numPrint")
	r.NumFigure, _ = row.Int("numFigure")
	date, hour := text(row, "measureDate"), text(row, "measureHour")

	event := func(kind, reason string, fields ...discrepancy.Field) {
		tr.Add(discrepancy.Event{
			Kind:    kind,
			Subject: discrepancy.KeySubject("referenceNum", r.ReferenceNum),
			Fields: append([]discrepancy.Field{
				{Name: "mold", Value: r.Mold},
				{Name: "workOrder", Value: r.WorkOrder},
				{Name: "article", Value: r.Article},
				{Name: "press", Value: r.Press},
			}, fields...),
			Reason: reason,
		})
	}

	at, ok := measureTime(date, hour)
	if !ok {
		event("DATETIME_INVALID", fmt.Sprintf("Invalid datetime format: date=%s, hour=%s - record discarded", date, hour))
		return Record{}, false
	}
	r.MeasureDateTime = at

	if r.NumPrint <= 0 || r.NumFigure <= 0 {
		desc := fmt.Sprintf("Invalid numPrint=%d or numFigure=%d", r.NumPrint, r.NumFigure)
		event("PRINT_FIGURE_INVALID", desc)
		r.AddPortingError(desc)
	}
	if isBlankRef(r.ReferenceNum) {
		r.ReferenceNum = emptyRefPrefix + date + "_" + hour
		event("REFERENCE_NUM_EMPTY", "Empty or null referenceNum",
			discrepancy.Field{Name: "measureDateTime", Value: at.Format(displayLayout)})
		r.AddPortingError("Empty or null referenceNum")
	}

	r.Measure = average(row, func(col, raw string) {
		event("MEASURE_MALFORMED", "measure is not numeric", discrepancy.Field{Name: col, Value: raw})
	})
	return r, true
}

func isBlankRef(s string) bool {
	return s == "" || s == "null" || s == "NULL"
}

// measureTime joins a yyyymmdd date and an hhmmss hour that may have lost its leading zeros.
func measureTime(date, hour string) (time.Time, bool) {
	d, h := zeroPad(date, 8), zeroPad(hour, 6)
	if !dateRe.MatchString(d) || !hourRe.MatchString(h) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dateTimeLayout, d+h, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// average is the mean of the present mis01..mis20 values scaled down by 10000,
// 0 when none is present. malformed is called for values that are not numbers.
func average(row legacy.Row, malformed func(col, raw string)) float64 {
	sum := decimal.Zero
	n := int64(0)
	for i := 1; i <= measureColumns; i++ {
		c := fmt.Sprintf("mis%02d", i)
		raw, _ := row.String(c)
		v, ok, bad := parseMeasure(raw)
		if bad {
			malformed(c, raw)
		}
		if !ok {
			continue
		}
		sum = sum.Add(v)
		n++
	}
	if n == 0 {
		return 0
	}
	f, _ := sum.Div(decimal.NewFromInt(n)).Div(scale).Float64()
	return f
}

// parseMeasure maps the pass/fail flags S (1), N and O (0) and parses numbers,
// accepting a comma as the decimal separator.
func parseMeasure(raw string) (v decimal.Decimal, ok, malformed bool) {
	s := strings.TrimSpace(raw)
	switch s {
	case "", "null", "NULL":
		return decimal.Zero, false, false
	case "S":
		return decimal.NewFromInt(1), true, false
	case "N", "O":
		return decimal.Zero, true, false
	}
	d, ok := legacy.ParseDecimal(s)
	if !ok {
		return decimal.Zero, false, true
	}
	return d, true, false
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

package workorder

import (
	"context"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// codeChunk bounds the IN-list size of one legacy query; SQL Server caps a
// statement at 2100 parameters.
const codeChunk = 1000

const legacyDateLayout = "20060102"

const baseQuery = `
SELECT COMMESSA AS workOrder, PRESSA AS press, STAMPO AS mold, ARTICOLO AS article,
       STATO AS state, COMMESSA_PROVA AS woTest,
       DATA_INIZIO_EFF AS woStart_date, ORA_INIZIO_EFF AS woStart_time,
       DATA_FINE_EFF AS woEnd_date, ORA_FINE_EFF AS woEnd_time
FROM PLANNING
WHERE DATA_INIZIO_EFF <= ? AND DATA_FINE_EFF >= ?
UNION ALL
SELECT COMMESSA AS workOrder, PRESSA AS press, STAMPO AS mold, ARTICOLO AS article,
       STATO AS state, COMMESSA_PROVA AS woTest,
       DATA_INIZIO_EFF AS woStart_date, ORA_INIZIO_EFF AS woStart_time,
       DATA_FINE_EFF AS woEnd_date, ORA_FINE_EFF AS woEnd_time
FROM FINPLAN
WHERE DATA_INIZIO_EFF <= ? AND DATA_FINE_EFF >= ?`

// Plant tn has no segregation counters on DATITURN.
func datiturnQuery(plant string) string {
	segr := "PEZZI_SEGR, PEZZI_SEGR_SCARTO,"
	if plant == "tn" {
		segr = "0 AS PEZZI_SEGR, 0 AS PEZZI_SEGR_SCARTO,"
	}
	return `
SELECT COMMESSA AS workOrder, PEZZI_BUONI, PZ_SCARTO_AVVIO, PZ_SCARTO_AUTOM, PEZZI_SCARTO,
       SCARTI_MAN, ` + segr + ` PEZZI_CONF, DATA_AGG_SYS, ORA_AGG_SYS
FROM DATITURN WHERE COMMESSA IN (?)`
}

const fincomQuery = `
SELECT fc.COMMESSA AS workOrder,
       fp.DATA_INIZIO_EFF, fp.ORA_INIZIO_EFF, fp.DATA_FINE_EFF, fp.ORA_FINE_EFF,
       fc.PZE01 AS woDonePieces, fc.PZE07 AS manualScrapedPz,
       fc.PZE08 AS startScrapedPz, fc.PZE09 AS automScrapedPz
FROM FINCOM fc
LEFT JOIN FINPLAN fp ON fp.COMMESSA = fc.COMMESSA
WHERE fc.COMMESSA IN (?)`

const segregaQuery = `
SELECT COMMESSA AS workOrder, SUM(PEZZI_SEGREGATI) AS totalSegrPz, SUM(PEZZI_SCARTATI) AS scrapedSegrPz
FROM SEGREGA WHERE COMMESSA IN (?) GROUP BY COMMESSA`

const magconfQuery = `
SELECT COMMESSA AS workOrder, SUM(QT_CONTENUTA) AS packedPz
FROM MAGCONF WHERE COMMESSA IN (?) GROUP BY COMMESSA`

const comlisQuery = `
SELECT COMMESSA AS workOrder, CICLO_STANDARD AS woCycle_source, CAVITA_STAMPO AS figures,
       CAVITA_USATE AS usedFigures, TOTALE_PEZZI AS woTotPieces
FROM COMLIS WHERE COMMESSA IN (?)
UNION ALL
SELECT COMMESSA AS workOrder, CICLO_MEDIO AS woCycle_source, CAVITA_STAMPO AS figures,
       CAVITA_USATE AS usedFigures, PEZZI_TOTALI AS woTotPieces
FROM FINCOM WHERE COMMESSA IN (?)`

const jobsetupQuery = `
SELECT j.COMMESSA AS workOrder, j.NUMERO_PROGRAMMA AS program, o.DATA_REGISTRAZIONE AS progRegDate
FROM JOBSETUP j
LEFT JOIN OFFARB o ON j.NUMERO_PROGRAMMA = o.NUMERO_PROGRAMMA
WHERE j.COMMESSA IN (?)`

var counterColumns = []string{
	"woDonePieces", "startScrapedPz", "automScrapedPz", "manualScrapedPz",
	"totalSegrPz", "scrapedSegrPz", "packedPz",
}

// Extractor reads the legacy rows of one plant's work orders.
type Extractor struct {
	Source legacy.Source
	Plant  string
	Logger logrus.FieldLogger
}

// Extract returns one merged row per work order whose effective dates overlap w.
// Any query error aborts the whole extraction.
func (e Extractor) Extract(ctx context.Context, w scheduler.Window) ([]legacy.Row, error) {
	start := w.Start.Format(legacyDateLayout)
	end := w.End.Format(legacyDateLayout)

	raw, err := e.Source.Query(ctx, baseQuery, end, start, end, start)
	if err != nil {
		return nil, fmt.Errorf("query PLANNING/FINPLAN: %w", err)
	}
	base, codes := uniqueBase(raw)
	if len(codes) == 0 {
		return base, nil
	}

	var counters, comlis, jobsetup map[string]legacy.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counters, err = e.counters(gctx, codes)
		return err
	})
	g.Go(func() error {
		rows, err := queryChunked(gctx, e.Source, comlisQuery, codes, 2)
		if err != nil {
			return fmt.Errorf("query COMLIS/FINCOM: %w", err)
		}
		comlis = indexFirst(rows)
		return nil
	})
	g.Go(func() error {
		rows, err := queryChunked(gctx, e.Source, jobsetupQuery, codes, 1)
		if err != nil {
			return fmt.Errorf("query JOBSETUP/OFFARB: %w", err)
		}
		jobsetup = indexFirst(rows)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, row := range base {
		code, ok := row.String("workOrder")
		if !ok {
			continue
		}
		for _, frag := range []map[string]legacy.Row{counters, comlis, jobsetup} {
			if f, ok := frag[code]; ok {
				for k, v := range f {
					if k != "workOrder" {
						row[k] = v
					}
				}
			}
		}
		if !row.Has("woDonePieces") {
			row["woDonePieces"] = int64(0)
		}
	}

	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"rows":     len(base),
			"codes":    len(codes),
			"counters": len(counters),
			"comlis":   len(comlis),
			"jobsetup": len(jobsetup),
		}).Debug("legacy work orders extracted")
	}
	return base, nil
}

// uniqueBase keeps the first row per workOrder and returns the distinct trimmed codes.
// Rows with a null or blank workOrder are kept so that normalization can report them.
func uniqueBase(rows []legacy.Row) ([]legacy.Row, []string) {
	seen := map[string]bool{}
	var out []legacy.Row
	var codes []string
	for _, r := range rows {
		code, ok := r.String("workOrder")
		if !ok || code == "" {
			out = append(out, r)
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, r)
		codes = append(codes, code)
	}
	return out, codes
}

// indexFirst keys rows by trimmed workOrder, first row wins.
func indexFirst(rows []legacy.Row) map[string]legacy.Row {
	m := make(map[string]legacy.Row, len(rows))
	for _, r := range rows {
		code, ok := r.String("workOrder")
		if !ok {
			continue
		}
		if _, dup := m[code]; !dup {
			m[code] = r
		}
	}
	return m
}

// indexLast keys rows by trimmed workOrder, last row wins.
func indexLast(rows []legacy.Row) map[string]legacy.Row {
	m := make(map[string]legacy.Row, len(rows))
	for _, r := range rows {
		if code, ok := r.String("workOrder"); ok {
			m[code] = r
		}
	}
	return m
}

// queryChunked runs query once per chunk of codes. The chunk is bound to each of
// the query's `IN (?)` placeholders.
func queryChunked(ctx context.Context, src legacy.Source, query string, codes []string, placeholders int) ([]legacy.Row, error) {
	var out []legacy.Row
	for start := 0; start < len(codes); start += codeChunk {
		end := start + codeChunk
		if end > len(codes) {
			end = len(codes)
		}
		args := make([]any, placeholders)
		for i := range args {
			args[i] = codes[start:end]
		}
		rows, err := src.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

type counterAgg struct {
	first, last string
	sums        map[string]int64
}

// counters aggregates DATITURN rows with good pieces per work order. Work orders
// absent from DATITURN, or with any zero-good row, are also read from the
// closed-order tables; a closed-order row replaces the aggregate.
func (e Extractor) counters(ctx context.Context, codes []string) (map[string]legacy.Row, error) {
	rows, err := queryChunked(ctx, e.Source, datiturnQuery(e.Plant), codes, 1)
	if err != nil {
		return nil, fmt.Errorf("query DATITURN: %w", err)
	}

	sources := map[string]string{
		"PEZZI_BUONI":       "woDonePieces",
		"PZ_SCARTO_AVVIO":   "startScrapedPz",
		"PZ_SCARTO_AUTOM":   "automScrapedPz",
		"SCARTI_MAN":        "manualScrapedPz",
		"PEZZI_SEGR":        "totalSegrPz",
		"PEZZI_SEGR_SCARTO": "scrapedSegrPz",
		"PEZZI_CONF":        "packedPz",
	}

	aggs := map[string]*counterAgg{}
	var order []string
	seen := map[string]bool{}
	zero := map[string]bool{}
	for _, r := range rows {
		code, ok := r.String("workOrder")
		if !ok {
			continue
		}
		seen[code] = true
		good, ok := r.Int("PEZZI_BUONI")
		if ok && good == 0 {
			zero[code] = true
		}
		if good <= 0 {
			continue
		}
		a, ok := aggs[code]
		if !ok {
			a = &counterAgg{sums: map[string]int64{}}
			aggs[code] = a
			order = append(order, code)
		}
		if t := pieceTime(r, "DATA_AGG_SYS", "ORA_AGG_SYS"); t != "" {
			if a.first == "" || t < a.first {
				a.first = t
			}
			if t > a.last {
				a.last = t
			}
		}
		for src, dst := range sources {
			n, _ := r.Int(src)
			a.sums[dst] += n
		}
	}

	out := make(map[string]legacy.Row, len(codes))
	for _, code := range order {
		a := aggs[code]
		row := legacy.Row{"workOrder": code}
		if a.first != "" {
			row["firstPieceTime"] = a.first
			row["lastPieceTime"] = a.last
		}
		for _, c := range counterColumns {
			row[c] = a.sums[c]
		}
		out[code] = row
	}

	var secondary []string
	for _, code := range codes {
		if !seen[code] || zero[code] {
			secondary = append(secondary, code)
		}
	}
	if len(secondary) == 0 {
		return out, nil
	}
	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{"codes": len(secondary), "with_zero_rows": len(zero)}).Debug("reading counters of closed work orders")
	}

	closed, err := e.closedCounters(ctx, secondary)
	if err != nil {
		return nil, err
	}
	for code, row := range closed {
		out[code] = row
	}
	return out, nil
}

func (e Extractor) closedCounters(ctx context.Context, codes []string) (map[string]legacy.Row, error) {
	fincom, err := queryChunked(ctx, e.Source, fincomQuery, codes, 1)
	if err != nil {
		return nil, fmt.Errorf("query FINCOM/FINPLAN: %w", err)
	}
	if len(fincom) == 0 {
		return nil, nil
	}
	segrega, err := queryChunked(ctx, e.Source, segregaQuery, codes, 1)
	if err != nil {
		return nil, fmt.Errorf("query SEGREGA: %w", err)
	}
	magconf, err := queryChunked(ctx, e.Source, magconfQuery, codes, 1)
	if err != nil {
		return nil, fmt.Errorf("query MAGCONF: %w", err)
	}
	seg := indexLast(segrega)
	mag := indexLast(magconf)

	// Several FINCOM rows for one code: the last one wins.
	out := map[string]legacy.Row{}
	for _, r := range fincom {
		code, ok := r.String("workOrder")
		if !ok {
			continue
		}
		row := legacy.Row{"workOrder": code}
		if t := effectiveTime(r, "DATA_INIZIO_EFF", "ORA_INIZIO_EFF"); t != "" {
			row["firstPieceTime"] = t
		}
		if t := effectiveTime(r, "DATA_FINE_EFF", "ORA_FINE_EFF"); t != "" {
			row["lastPieceTime"] = t
		}
		for _, c := range []string{"woDonePieces", "manualScrapedPz", "startScrapedPz", "automScrapedPz"} {
			row[c] = intOrZero(r, c)
		}
		row["totalSegrPz"] = intOrZero(seg[code], "totalSegrPz")
		row["scrapedSegrPz"] = intOrZero(seg[code], "scrapedSegrPz")
		row["packedPz"] = intOrZero(mag[code], "packedPz")
		out[code] = row
	}
	return out, nil
}

// pieceTime joins a DATITURN date and hhmmss time into yyyymmddhhmmss.
// Both parts must be present.
func pieceTime(r legacy.Row, dateCol, timeCol string) string {
	d, t := dateAndTime(r, dateCol, timeCol)
	if d == "" || t == "" {
		return ""
	}
	return d + zeroPad(t, 6)
}

// effectiveTime joins a FINPLAN date and hhmm time into yyyymmddhhmm00, the same
// reading the base query's planned times get.
func effectiveTime(r legacy.Row, dateCol, timeCol string) string {
	d, t := dateAndTime(r, dateCol, timeCol)
	if d == "" || t == "" {
		return ""
	}
	return d + zeroPad(t, 4) + "00"
}

func dateAndTime(r legacy.Row, dateCol, timeCol string) (string, string) {
	d, _ := r.String(dateCol)
	t, _ := r.String(timeCol)
	return d, t
}

func intOrZero(r legacy.Row, col string) int64 {
	if r == nil {
		return 0
	}
	n, _ := r.Int(col)
	return n
}

func zeroPad(s string, width int) string {
	s = strings.TrimSpace(s)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

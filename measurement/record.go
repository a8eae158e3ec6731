// Package measurement synchronizes the NRILDIM dimensional measurements into nrildim_tbl.
//
// Every legacy sample is kept even when its foreign keys do not resolve: the
// problems are written to bPortingError / portingErrorDesc instead. Only samples
// without a usable timestamp are discarded, since the timestamp is part of the key.
package measurement

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
)

const Family = "nrildim"

// Record is one measurement sample.
type Record struct {
	IdRilDim        int64
	ReferenceNum    string
	MeasureDateTime time.Time
	NumPrint        int64
	NumFigure       int64
	Plant           string

	// Legacy codes, resolved into the ids below. Not stored.
	WorkOrder string
	Press     string
	Mold      string
	Article   string

	IdWorkOrder *int64
	IdPress     *int64
	IdMold      *int64
	IdArticle   *int64
	Operator    string
	Measure     float64

	PortingErrors []string
}

type Key struct {
	ReferenceNum string
	MeasuredAt   int64
	NumPrint     int64
	NumFigure    int64
	Plant        string
}

// Key uses unix seconds so that equal instants match regardless of location.
func (r Record) Key() Key {
	return Key{
		ReferenceNum: r.ReferenceNum,
		MeasuredAt:   r.MeasureDateTime.Unix(),
		NumPrint:     r.NumPrint,
		NumFigure:    r.NumFigure,
		Plant:        r.Plant,
	}
}

func (r *Record) AddPortingError(desc string) {
	r.PortingErrors = append(r.PortingErrors, desc)
}

func (r Record) BPortingError() int8 {
	if len(r.PortingErrors) > 0 {
		return 1
	}
	return 0
}

func (r Record) PortingErrorDesc() string {
	return strings.Join(r.PortingErrors, "; ")
}

func col(name string, get func(Record) any) reconcile.Column[Record] {
	return reconcile.Column[Record]{Name: name, Table: reconcile.TableStatic, Get: get}
}

var Schema = reconcile.Schema[Key, Record]{
	Key:   Record.Key,
	Plant: func(r Record) string { return r.Plant },
	Columns: []reconcile.Column[Record]{
		col("idWorkOrder", func(r Record) any { return r.IdWorkOrder }),
		col("idPress", func(r Record) any { return r.IdPress }),
		col("idMold", func(r Record) any { return r.IdMold }),
		col("idArticle", func(r Record) any { return r.IdArticle }),
		col("measureDateTime", func(r Record) any { return r.MeasureDateTime }),
		col("operator", func(r Record) any { return r.Operator }),
		col("numPrint", func(r Record) any { return r.NumPrint }),
		col("numFigure", func(r Record) any { return r.NumFigure }),
		col("measure", func(r Record) any { return r.Measure }),
		col("bPortingError", func(r Record) any { return r.BPortingError() }),
		col("portingErrorDesc", func(r Record) any { return r.PortingErrorDesc() }),
	},
}

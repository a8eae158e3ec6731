// Package workorder synchronizes work orders from the legacy planning tables into
// woStatic_tbl / woDynamic_tbl.
package workorder

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
)

const Family = "workorder"

// Record is one work order, either built from legacy rows or read back from the target.
type Record struct {
	IdWorkOrder int64
	WorkOrder   string
	Plant       string

	// Natural codes as found in the legacy tables. Not stored.
	Press   string
	Mold    string
	Article string

	IdPress     *int64
	IdMold      *int64
	IdArticle   *int64
	IdCustomer  *int64
	WoStart     *time.Time
	WoEnd       *time.Time
	WoTest      string
	Figures     int64
	WoTotPieces int64
	Cycle       *float64

	Program         string
	ProgRegDate     *time.Time
	WoState         string
	UsedFigures     int64
	WoCycle         *float64
	WoDonePieces    int64
	StartScrapedPz  int64
	AutomScrapedPz  int64
	ManualScrapedPz int64
	TotalSegrPz     int64
	ScrapedSegrPz   int64
	PackedPz        int64

	// DynamicMissing marks a target row whose woDynamic_tbl row does not exist.
	DynamicMissing bool

	PortingErrors []string
}

type Key struct {
	WorkOrder string
	Plant     string
}

func (r Record) Key() Key { return Key{WorkOrder: r.WorkOrder, Plant: r.Plant} }

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

// WoCycleOrZero is the value written for woCycle, which is NOT NULL in the target.
func (r Record) WoCycleOrZero() float64 {
	if r.WoCycle == nil {
		return 0
	}
	return *r.WoCycle
}

func dynamic(get func(Record) any) func(Record) any {
	return func(r Record) any {
		if r.DynamicMissing {
			return nil
		}
		return get(r)
	}
}

func staticCol(name string, get func(Record) any) reconcile.Column[Record] {
	return reconcile.Column[Record]{Name: name, Table: reconcile.TableStatic, Get: get}
}

func dynamicCol(name string, get func(Record) any) reconcile.Column[Record] {
	return reconcile.Column[Record]{Name: name, Table: reconcile.TableDynamic, Get: dynamic(get)}
}

// Schema declares the natural key and the compared columns of both tables.
var Schema = reconcile.Schema[Key, Record]{
	Key:   Record.Key,
	Plant: func(r Record) string { return r.Plant },
	Columns: []reconcile.Column[Record]{
		staticCol("idPress", func(r Record) any { return r.IdPress }),
		staticCol("idMold", func(r Record) any { return r.IdMold }),
		staticCol("idArticle", func(r Record) any { return r.IdArticle }),
		staticCol("idCustomer", func(r Record) any { return r.IdCustomer }),
		staticCol("woStart", func(r Record) any { return r.WoStart }),
		staticCol("woEnd", func(r Record) any { return r.WoEnd }),
		staticCol("woTest", func(r Record) any { return r.WoTest }),
		staticCol("figures", func(r Record) any { return r.Figures }),
		staticCol("woTotPieces", func(r Record) any { return r.WoTotPieces }),
		staticCol("cycle", func(r Record) any { return r.Cycle }),

		dynamicCol("program", func(r Record) any { return r.Program }),
		dynamicCol("progRegDate", func(r Record) any { return r.ProgRegDate }),
		dynamicCol("woState", func(r Record) any { return r.WoState }),
		dynamicCol("usedFigures", func(r Record) any { return r.UsedFigures }),
		dynamicCol("woCycle", func(r Record) any { return r.WoCycleOrZero() }),
		dynamicCol("woDonePieces", func(r Record) any { return r.WoDonePieces }),
		dynamicCol("startScrapedPz", func(r Record) any { return r.StartScrapedPz }),
		dynamicCol("automScrapedPz", func(r Record) any { return r.AutomScrapedPz }),
		dynamicCol("manualScrapedPz", func(r Record) any { return r.ManualScrapedPz }),
		dynamicCol("totalSegrPz", func(r Record) any { return r.TotalSegrPz }),
		dynamicCol("scrapedSegrPz", func(r Record) any { return r.ScrapedSegrPz }),
		dynamicCol("packedPz", func(r Record) any { return r.PackedPz }),
	},
}

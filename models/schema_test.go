package models

import (
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

func parse(t *testing.T, model any) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse %T: %v", model, err)
	}
	return s
}

func TestTargetTableNames(t *testing.T) {
	cases := []struct {
		model any
		table string
	}{
		{&Press{}, "presses_tbl"},
		{&MoldStatic{}, "moldStatic_tbl"},
		{&Article{}, "articles_tbl"},
		{&WoStatic{}, "woStatic_tbl"},
		{&WoDynamic{}, "woDynamic_tbl"},
		{&Nrildim{}, "nrildim_tbl"},
		{&SyncRun{}, "sync_runs"},
	}
	for _, tc := range cases {
		if got := parse(t, tc.model).Table; got != tc.table {
			t.Errorf("%T table = %q, want %q", tc.model, got, tc.table)
		}
	}
}

func TestTargetColumnsKeepLegacyCase(t *testing.T) {
	cases := []struct {
		model   any
		columns []string
	}{
		{&WoStatic{}, []string{"idWorkOrder", "workOrder", "plant", "idPress", "idMold", "idArticle", "idCustomer", "woStart", "woEnd", "woTest", "figures", "woTotPieces", "cycle", "lastModified", "bPortingError", "portingErrorDesc"}},
		{&WoDynamic{}, []string{"idWoDyn", "idWorkOrder", "program", "progRegDate", "woState", "usedFigures", "woCycle", "woDonePieces", "startScrapedPz", "automScrapedPz", "manualScrapedPz", "totalSegrPz", "scrapedSegrPz", "packedPz"}},
		{&Nrildim{}, []string{"idRilDim", "idWorkOrder", "idPress", "idMold", "idArticle", "measureDateTime", "operator", "referenceNum", "numPrint", "numFigure", "measure", "plant"}},
	}
	for _, tc := range cases {
		s := parse(t, tc.model)
		for _, col := range tc.columns {
			if s.LookUpField(col) == nil {
				t.Errorf("%T: missing column %q", tc.model, col)
			}
		}
	}
}

// The plant guard keys off the "plant" column; woDynamic_tbl must not have one.
func TestPlantColumnPresence(t *testing.T) {
	if parse(t, &WoStatic{}).LookUpField("plant") == nil {
		t.Fatal("woStatic_tbl must have a plant column")
	}
	if parse(t, &WoDynamic{}).LookUpField("plant") != nil {
		t.Fatal("woDynamic_tbl must not have a plant column")
	}
}

func TestCurrentColumnsMatchStruct(t *testing.T) {
	s := parse(t, &WoCurrent{})
	listed := strings.Split(WoCurrentColumns, ",")
	if len(listed) != len(s.DBNames) {
		t.Fatalf("select list has %d columns, WoCurrent has %d", len(listed), len(s.DBNames))
	}
	for _, c := range listed {
		c = strings.TrimSpace(c)
		name := c[strings.Index(c, ".")+1:]
		if s.LookUpField(name) == nil {
			t.Errorf("select column %q has no WoCurrent field", c)
		}
	}
}

func TestNaturalKeyIndexes(t *testing.T) {
	cases := []struct {
		model  any
		index  string
		fields []string
	}{
		{&WoStatic{}, "uq_wo_plant", []string{"workOrder", "plant"}},
		{&Nrildim{}, "uq_nrildim_key", []string{"measureDateTime", "referenceNum", "numPrint", "numFigure", "plant"}},
	}
	for _, tc := range cases {
		s := parse(t, tc.model)
		idx := s.LookIndex(tc.index)
		if idx == nil {
			t.Fatalf("%T: index %s not found", tc.model, tc.index)
		}
		if idx.Class != "UNIQUE" {
			t.Errorf("%T: index %s class = %q, want UNIQUE", tc.model, tc.index, idx.Class)
		}
		if len(idx.Fields) != len(tc.fields) {
			t.Fatalf("%T: index %s has %d fields, want %d", tc.model, tc.index, len(idx.Fields), len(tc.fields))
		}
		for i, f := range idx.Fields {
			if f.DBName != tc.fields[i] {
				t.Errorf("%T: index %s field %d = %q, want %q", tc.model, tc.index, i, f.DBName, tc.fields[i])
			}
		}
	}
}

package reconcile

import (
	"sort"
	"testing"
	"time"
)

type rec struct {
	Code  string
	Plant string
	Press *int64
	Qty   float64
	Start *time.Time
}

type recKey struct{ Code, Plant string }

func ip(v int64) *int64 { return &v }

var recSchema = Schema[recKey, rec]{
	Key:   func(r rec) recKey { return recKey{r.Code, r.Plant} },
	Plant: func(r rec) string { return r.Plant },
	Columns: []Column[rec]{
		{Name: "idPress", Table: TableStatic, Get: func(r rec) any { return r.Press }},
		{Name: "qty", Table: TableDynamic, Get: func(r rec) any { return r.Qty }},
		{Name: "start", Table: TableStatic, Get: func(r rec) any { return r.Start }},
	},
}

func TestEqual(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ts2 := ts
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil pointer vs nil", (*int64)(nil), nil, true},
		{"one nil", nil, "x", false},
		{"one nil pointer", ip(1), (*int64)(nil), false},
		{"within tolerance", "3.0000000001", "3.0000000002", true},
		{"beyond tolerance", "3.1", "3.2", false},
		{"int vs float", int64(4), 4.0, true},
		{"pointer vs value", ip(7), int64(7), true},
		{"trimmed strings", " abc ", "abc", true},
		{"different strings", "P1", "P2", false},
		{"numeric string vs number", " 12 ", int64(12), true},
		{"times", &ts, ts2, true},
		{"time vs later", ts, ts.Add(time.Second), false},
		{"bools", true, int64(1), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Fatalf("Equal(%v, %v)=%v want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func keysOf(rs []rec) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Code+"/"+r.Plant)
	}
	sort.Strings(out)
	return out
}

func TestClassifyPartitionsAreExhaustiveAndDisjoint(t *testing.T) {
	legacy := []rec{
		{Code: "A", Plant: "it", Press: ip(1), Qty: 1},
		{Code: "B", Plant: "it", Press: ip(2), Qty: 2},
		{Code: "C", Plant: "it", Press: ip(3), Qty: 3},
	}
	current := []rec{
		{Code: "B", Plant: "it", Press: ip(2), Qty: 2},
		{Code: "C", Plant: "it", Press: ip(9), Qty: 3},
		{Code: "D", Plant: "it", Press: ip(4), Qty: 4},
	}
	cs := Classify(recSchema, Compare(recSchema, legacy, current), "it")

	if got := keysOf(cs.Inserts); len(got) != 1 || got[0] != "A/it" {
		t.Fatalf("inserts=%v", got)
	}
	if len(cs.Updates) != 1 || cs.Updates[0].Legacy.Code != "C" {
		t.Fatalf("updates=%+v", cs.Updates)
	}
	if names := cs.Updates[0].ChangedNames(); len(names) != 1 || names[0] != "idPress" {
		t.Fatalf("changed=%v", names)
	}
	if got := keysOf(cs.Deletes); len(got) != 1 || got[0] != "D/it" {
		t.Fatalf("deletes=%v", got)
	}
	if cs.Unchanged != 1 {
		t.Fatalf("unchanged=%d want 1", cs.Unchanged)
	}

	seen := map[string]int{}
	for _, k := range keysOf(cs.Inserts) {
		seen[k]++
	}
	for _, u := range cs.Updates {
		seen[u.Legacy.Code+"/"+u.Legacy.Plant]++
	}
	for _, k := range keysOf(cs.Deletes) {
		seen[k]++
	}
	for k, n := range seen {
		if n != 1 {
			t.Fatalf("key %s appears in %d partitions", k, n)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	legacy := []rec{
		{Code: "A", Plant: "it", Press: ip(1), Qty: 1.5},
		{Code: "B", Plant: "it", Qty: 2},
	}
	cs := Classify(recSchema, Compare(recSchema, legacy, nil), "it")
	if len(cs.Inserts) != 2 {
		t.Fatalf("first run inserts=%d", len(cs.Inserts))
	}
	// The target now holds exactly what was inserted.
	applied := append([]rec(nil), cs.Inserts...)
	again := Classify(recSchema, Compare(recSchema, legacy, applied), "it")
	if !again.Empty() {
		t.Fatalf("second run must be a no-op: %+v", again)
	}
}

func TestClassifyDeletesOnlyOwnPlant(t *testing.T) {
	current := []rec{
		{Code: "X", Plant: "it"},
		{Code: "X", Plant: "tn"},
	}
	cs := Classify(recSchema, Compare(recSchema, nil, current), "it")
	if got := keysOf(cs.Deletes); len(got) != 1 || got[0] != "X/it" {
		t.Fatalf("deletes=%v", got)
	}
}

func TestCompareMembershipAndOrder(t *testing.T) {
	legacy := []rec{{Code: "B", Plant: "it"}, {Code: "A", Plant: "it"}, {Code: "A", Plant: "it", Qty: 9}}
	current := []rec{{Code: "Z", Plant: "it"}, {Code: "A", Plant: "it"}}
	merged := Compare(recSchema, legacy, current)
	if len(merged) != 3 {
		t.Fatalf("merged=%d want 3", len(merged))
	}
	want := []struct {
		code string
		m    Membership
	}{{"B", LeftOnly}, {"A", Both}, {"Z", RightOnly}}
	for i, w := range want {
		if merged[i].Key.Code != w.code || merged[i].Membership != w.m {
			t.Fatalf("merged[%d]=%v/%v want %v/%v", i, merged[i].Key.Code, merged[i].Membership, w.code, w.m)
		}
	}
	if merged[1].Legacy.Qty != 9 {
		t.Fatalf("duplicate legacy keys must keep the last row")
	}
}

func TestUpdateChangedIn(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	legacy := rec{Code: "A", Plant: "it", Press: ip(1), Qty: 2, Start: &start}
	current := rec{Code: "A", Plant: "it", Press: ip(1), Qty: 3}
	cs := Classify(recSchema, Compare(recSchema, []rec{legacy}, []rec{current}), "it")
	if len(cs.Updates) != 1 {
		t.Fatalf("updates=%d", len(cs.Updates))
	}
	u := cs.Updates[0]
	if s := u.ChangedIn(TableStatic); len(s) != 1 || s[0] != "start" {
		t.Fatalf("static changes=%v", s)
	}
	if d := u.ChangedIn(TableDynamic); len(d) != 1 || d[0] != "qty" {
		t.Fatalf("dynamic changes=%v", d)
	}
}

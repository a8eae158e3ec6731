// Package reconcile diffs a legacy record set against the current target-store
// records on a natural key and partitions the result into inserts, updates and deletes.
package reconcile

// Table names the target table a comparison column lives in.
type Table string

const (
	TableStatic  Table = "static"
	TableDynamic Table = "dynamic"
)

// Column is one declared comparison column of a record type.
type Column[R any] struct {
	Name  string
	Table Table
	Get   func(R) any
}

// Schema binds a record type to its natural key, plant and comparison columns.
type Schema[K comparable, R any] struct {
	Key     func(R) K
	Plant   func(R) string
	Columns []Column[R]
}

type Membership int

const (
	LeftOnly Membership = iota + 1
	RightOnly
	Both
)

func (m Membership) String() string {
	switch m {
	case LeftOnly:
		return "left_only"
	case RightOnly:
		return "right_only"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Merged is one row of the outer join. Legacy or Current is nil when that side is absent.
type Merged[K comparable, R any] struct {
	Key        K
	Legacy     *R
	Current    *R
	Membership Membership
}

// Compare full-outer-joins legacy and current on the natural key.
// Output order: legacy order first, then current-only rows in current order.
// Duplicate keys on one side keep the last row.
func Compare[K comparable, R any](s Schema[K, R], legacy, current []R) []Merged[K, R] {
	cur := make(map[K]*R, len(current))
	var curOrder []K
	for i := range current {
		k := s.Key(current[i])
		if _, seen := cur[k]; !seen {
			curOrder = append(curOrder, k)
		}
		cur[k] = &current[i]
	}

	leg := make(map[K]*R, len(legacy))
	var legOrder []K
	for i := range legacy {
		k := s.Key(legacy[i])
		if _, seen := leg[k]; !seen {
			legOrder = append(legOrder, k)
		}
		leg[k] = &legacy[i]
	}

	out := make([]Merged[K, R], 0, len(legOrder)+len(curOrder))
	for _, k := range legOrder {
		m := Merged[K, R]{Key: k, Legacy: leg[k], Membership: LeftOnly}
		if c, ok := cur[k]; ok {
			m.Current = c
			m.Membership = Both
		}
		out = append(out, m)
	}
	for _, k := range curOrder {
		if _, ok := leg[k]; ok {
			continue
		}
		out = append(out, Merged[K, R]{Key: k, Current: cur[k], Membership: RightOnly})
	}
	return out
}

// Diff returns the comparison columns whose values differ under Equal.
func Diff[K comparable, R any](s Schema[K, R], legacy, current R) []Column[R] {
	var changed []Column[R]
	for _, c := range s.Columns {
		if !Equal(c.Get(legacy), c.Get(current)) {
			changed = append(changed, c)
		}
	}
	return changed
}

package reconcile

// Update is a matched row with at least one changed comparison column.
type Update[R any] struct {
	Legacy  R
	Current R
	Changed []Column[R]
}

// ChangedIn lists the changed column names that live in table t.
func (u Update[R]) ChangedIn(t Table) []string {
	var names []string
	for _, c := range u.Changed {
		if c.Table == t {
			names = append(names, c.Name)
		}
	}
	return names
}

// ChangedNames lists every changed column name.
func (u Update[R]) ChangedNames() []string {
	names := make([]string, len(u.Changed))
	for i, c := range u.Changed {
		names[i] = c.Name
	}
	return names
}

// ChangeSet holds the three disjoint partitions of a comparison.
type ChangeSet[R any] struct {
	Inserts []R
	Updates []Update[R]
	Deletes []R
	// Unchanged counts matched rows that needed no write.
	Unchanged int
}

func (c ChangeSet[R]) Empty() bool {
	return len(c.Inserts) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}

// Classify partitions merged rows. Right-only rows become deletes only when they
// belong to plant; rows of other plants are left untouched.
func Classify[K comparable, R any](s Schema[K, R], merged []Merged[K, R], plant string) ChangeSet[R] {
	var cs ChangeSet[R]
	for _, m := range merged {
		switch m.Membership {
		case LeftOnly:
			cs.Inserts = append(cs.Inserts, *m.Legacy)
		case RightOnly:
			if s.Plant(*m.Current) == plant {
				cs.Deletes = append(cs.Deletes, *m.Current)
			}
		case Both:
			changed := Diff(s, *m.Legacy, *m.Current)
			if len(changed) == 0 {
				cs.Unchanged++
				continue
			}
			cs.Updates = append(cs.Updates, Update[R]{Legacy: *m.Legacy, Current: *m.Current, Changed: changed})
		}
	}
	return cs
}

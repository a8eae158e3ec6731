package workorder

import (
	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
)

// Resolve fills the surrogate ids of press, mold, article and customer from the
// plant's lookup cache. Every unresolved non-empty code is reported and recorded
// as a porting error; with MissDrop the record is dropped instead of kept.
func Resolve(records []Record, cache *lookup.Cache, policy lookup.MissPolicy, tr *discrepancy.Tracker) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if resolveOne(&r, cache, tr) || policy != lookup.MissDrop {
			out = append(out, r)
		}
	}
	return out
}

// resolveOne reports whether every given code resolved.
func resolveOne(r *Record, cache *lookup.Cache, tr *discrepancy.Tracker) bool {
	complete := true
	miss := func(kind, field, value, reason string) {
		complete = false
		tr.Add(discrepancy.Event{
			Kind:    kind,
			Subject: discrepancy.KeySubject("workOrder", r.WorkOrder),
			Fields:  []discrepancy.Field{{Name: field, Value: value}},
			Reason:  reason,
		})
		r.AddPortingError(reason)
	}

	if zeroOrNil(r.Cycle) && r.WoCycle != nil {
		v := *r.WoCycle
		r.Cycle = &v
	}

	r.IdPress = nil
	if r.Press != "" {
		if id, ok := cache.Press(r.Press); ok {
			r.IdPress = &id
		} else {
			miss("PRESS_NOT_FOUND", "press", r.Press, "Press not found: "+r.Press)
		}
	}

	var mold *lookup.Mold
	r.IdMold = nil
	if r.Mold != "" {
		if m, ok := cache.Mold(r.Mold); ok {
			mold = &m
			id := m.ID
			r.IdMold = &id
			if zeroOrNil(r.Cycle) && m.Cycle != nil {
				v := *m.Cycle
				r.Cycle = &v
			}
		} else {
			miss("MOLD_NOT_FOUND", "mold", r.Mold, "Mold not found: "+lookup.MoldKey(r.Mold))
		}
	}

	// Only an article matched by its own code supplies the customer.
	var article *lookup.Article
	r.IdArticle = nil
	if a, src := cache.ResolveArticle(r.Article, r.IdMold); src != lookup.NotFound {
		id := a.ID
		r.IdArticle = &id
		if src == lookup.ByCode {
			article = &a
		}
	} else if r.Article != "" {
		miss("ARTICLE_NOT_FOUND", "article", r.Article, "Article not found: "+r.Article)
	}

	r.IdCustomer = lookup.Customer(article, mold)
	if r.IdCustomer == nil && (r.Article != "" || r.Mold != "") {
		tr.Add(discrepancy.Event{
			Kind:    "CUSTOMER_NOT_FOUND",
			Subject: discrepancy.KeySubject("workOrder", r.WorkOrder),
			Fields:  []discrepancy.Field{{Name: "article", Value: r.Article}, {Name: "mold", Value: r.Mold}},
			Reason:  "no customer on article or mold",
		})
		r.AddPortingError("Customer not found")
		complete = false
	}
	return complete
}

func zeroOrNil(v *float64) bool {
	return v == nil || *v == 0
}

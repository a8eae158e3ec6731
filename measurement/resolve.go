package measurement

import (
	"bitbucket.org/mmdatafocus/mosys_sync/discrepancy"
	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
)

// Resolve fills idWorkOrder, idPress, idMold and idArticle. Unresolved codes stay
// null and are recorded as porting errors; MissDrop drops such records instead.
func Resolve(records []Record, cache *lookup.Cache, policy lookup.MissPolicy, tr *discrepancy.Tracker) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if resolveOne(&r, cache, tr) || policy != lookup.MissDrop {
			out = append(out, r)
		}
	}
	return out
}

func resolveOne(r *Record, cache *lookup.Cache, tr *discrepancy.Tracker) bool {
	complete := true
	miss := func(kind, label, code string) {
		complete = false
		reason := label + " not found: " + code
		tr.Add(discrepancy.Event{
			Kind:    kind,
			Subject: discrepancy.KeySubject("referenceNum", r.ReferenceNum),
			Fields: []discrepancy.Field{
				{Name: "mold", Value: r.Mold},
				{Name: "workOrder", Value: r.WorkOrder},
				{Name: "article", Value: r.Article},
				{Name: "press", Value: r.Press},
			},
			Reason: reason,
		})
		r.AddPortingError(reason)
	}
	ref := func(id int64) *int64 { return &id }

	r.IdWorkOrder, r.IdPress, r.IdMold, r.IdArticle = nil, nil, nil, nil
	if r.WorkOrder != "" {
		if id, ok := cache.WorkOrder(r.WorkOrder); ok {
			r.IdWorkOrder = ref(id)
		} else {
			miss("WORKORDER_NOT_FOUND", "WorkOrder", r.WorkOrder)
		}
	}
	if r.Press != "" {
		if id, ok := cache.Press(r.Press); ok {
			r.IdPress = ref(id)
		} else {
			miss("PRESS_NOT_FOUND", "Press", r.Press)
		}
	}
	if r.Mold != "" {
		if m, ok := cache.Mold(r.Mold); ok {
			r.IdMold = ref(m.ID)
		} else {
			miss("MOLD_NOT_FOUND", "Mold", r.Mold)
		}
	}
	if r.Article != "" {
		if a, ok := cache.Article(r.Article); ok {
			r.IdArticle = ref(a.ID)
		} else {
			miss("ARTICLE_NOT_FOUND", "Article", r.Article)
		}
	}
	return complete
}

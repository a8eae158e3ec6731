package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/mosys_sync/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PlantGuardPlugin scopes queries/updates/deletes to the run's plant when the
// model has a plant column, so a sync for one plant cannot touch another plant's rows.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include plant manually.
// - Tables without a plant column (woDynamic_tbl) are left alone; they are
//   reached through surrogate ids that were resolved under the guard.
type PlantGuardPlugin struct{}

func NewPlantGuardPlugin() *PlantGuardPlugin { return &PlantGuardPlugin{} }

func (p *PlantGuardPlugin) Name() string { return "plant_guard" }

func (p *PlantGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("plant_guard:query", plantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("plant_guard:row", plantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("plant_guard:update", plantGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("plant_guard:delete", plantGuardCallback); err != nil {
		return err
	}
	return nil
}

func plantGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipPlantScope); ok && v {
		return
	}
	plant := plantFromContext(ctx)
	if plant == "" {
		return
	}
	if db.Statement.Schema == nil {
		return
	}
	if db.Statement.Schema.LookUpField("plant") == nil {
		return
	}
	if whereHasPlant(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "plant"},
				Value:  plant,
			},
		},
	})
}

func plantFromContext(ctx context.Context) string {
	if v, ok := appctx.GetString(ctx, appctx.ContextKeyPlant); ok && v != "" {
		return v
	}
	return ""
}

func whereHasPlant(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasPlant(e) {
			return true
		}
	}
	return false
}

func exprHasPlant(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsPlant(v.Column)
	case clause.Neq:
		return colIsPlant(v.Column)
	case clause.IN:
		return colIsPlant(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasPlant(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasPlant(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "plant")
	case clause.NamedExpr:
		return strings.Contains(strings.ToLower(v.SQL), "plant")
	default:
		return false
	}
}

func colIsPlant(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "plant")
	case clause.Column:
		return strings.EqualFold(c.Name, "plant")
	default:
		return false
	}
}

package config

import (
	"context"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/mosys_sync/appctx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type guardedRow struct {
	ID    int64  `gorm:"column:id;primaryKey"`
	Plant string `gorm:"column:plant"`
	Note  string `gorm:"column:note"`
}

func (guardedRow) TableName() string { return "guarded_tbl" }

type unguardedRow struct {
	ID int64 `gorm:"column:id;primaryKey"`
}

func (unguardedRow) TableName() string { return "unguarded_tbl" }

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/none?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	if err := gdb.Use(NewPlantGuardPlugin()); err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	return gdb
}

func TestPlantGuardScopesQueriesAndDeletes(t *testing.T) {
	gdb := dryRunDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyPlant, "tn")

	var rows []guardedRow
	stmt := gdb.WithContext(ctx).Find(&rows).Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "`plant` = ?") {
		t.Fatalf("query not scoped: %s", sql)
	}
	if len(stmt.Vars) != 1 || stmt.Vars[0] != "tn" {
		t.Fatalf("vars=%v", stmt.Vars)
	}

	stmt = gdb.WithContext(ctx).Where("id IN ?", []int64{1, 2}).Delete(&guardedRow{}).Statement
	sql = stmt.SQL.String()
	if !strings.Contains(sql, "DELETE FROM `guarded_tbl`") || !strings.Contains(sql, "`plant` = ?") {
		t.Fatalf("delete not scoped: %s", sql)
	}
}

func TestPlantGuardLeavesExplicitFilterAndOtherTables(t *testing.T) {
	gdb := dryRunDB(t)
	ctx := appctx.Set(context.Background(), appctx.ContextKeyPlant, "tn")

	var rows []guardedRow
	sql := gdb.WithContext(ctx).Where("plant = ?", "pl").Find(&rows).Statement.SQL.String()
	if strings.Count(sql, "plant") != 1 {
		t.Fatalf("explicit plant filter duplicated: %s", sql)
	}

	var other []unguardedRow
	sql = gdb.WithContext(ctx).Find(&other).Statement.SQL.String()
	if strings.Contains(sql, "plant") {
		t.Fatalf("table without plant column was scoped: %s", sql)
	}

	skip := appctx.Set(ctx, appctx.ContextKeySkipPlantScope, true)
	sql = gdb.WithContext(skip).Find(&rows).Statement.SQL.String()
	if strings.Contains(sql, "plant") {
		t.Fatalf("skip flag ignored: %s", sql)
	}
}

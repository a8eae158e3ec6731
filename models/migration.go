package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates the bookkeeping tables this service owns.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(&SyncRun{})
}

// MigrateTargetTables creates the target tables. Production schemas are managed
// by the dashboard; this is for development databases and integration tests.
func MigrateTargetTables(db *gorm.DB) error {
	return db.AutoMigrate(
		&Press{}, &MoldStatic{}, &Article{},
		&WoStatic{}, &WoDynamic{},
		&Nrildim{},
		&SyncRun{},
	)
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidSettings = errors.New("invalid sync settings")

// SyncSettings holds the knobs shared by both sync families.
type SyncSettings struct {
	Plant           string `validate:"required,alpha,lowercase,max=8"`
	ReportDir       string `validate:"required"`
	InsertBatchSize int    `validate:"min=1,max=100000"`

	WorkOrderFKMissPolicy string `validate:"oneof=keep drop"`
	MeasureFKMissPolicy   string `validate:"oneof=keep drop"`
	MeasureApplyUpdates   bool
	MeasureApplyDeletes   bool

	CatchUpMaxIterations   int `validate:"min=1,max=10000"`
	CatchUpBreakerFailures int `validate:"min=1"`

	LockTTL     time.Duration
	MinInterval time.Duration
}

var settingsValidator = validator.New()

// LoadSyncSettings reads the settings from env. A non-empty plant overrides PLANT.
func LoadSyncSettings(plant string) (SyncSettings, error) {
	if strings.TrimSpace(plant) == "" {
		plant = envString("PLANT", "")
	}
	s := SyncSettings{
		Plant:                  strings.ToLower(strings.TrimSpace(plant)),
		ReportDir:              envString("REPORT_DIR", "./Notes"),
		InsertBatchSize:        intFromEnv("INSERT_BATCH_SIZE", 10000),
		WorkOrderFKMissPolicy:  strings.ToLower(envString("WO_FK_MISS_POLICY", "keep")),
		MeasureFKMissPolicy:    strings.ToLower(envString("MEASURE_FK_MISS_POLICY", "keep")),
		MeasureApplyUpdates:    envBool("MEASURE_APPLY_UPDATES", false),
		MeasureApplyDeletes:    envBool("MEASURE_APPLY_DELETES", false),
		CatchUpMaxIterations:   intFromEnv("CATCHUP_MAX_ITERATIONS", 150),
		CatchUpBreakerFailures: intFromEnv("CATCHUP_BREAKER_FAILURES", 5),
		LockTTL:                time.Duration(intFromEnv("SYNC_LOCK_TTL_MINUTES", 30)) * time.Minute,
		MinInterval:            time.Duration(intFromEnv("SYNC_MIN_INTERVAL_SECONDS", 0)) * time.Second,
	}
	if err := s.Validate(); err != nil {
		return SyncSettings{}, err
	}
	return s, nil
}

func (s SyncSettings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

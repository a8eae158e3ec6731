package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
)

// SyncRun is the history row written at the end of every run.
type SyncRun struct {
	ID            int64      `gorm:"primary_key" json:"id"`
	RunId         string     `gorm:"size:36;uniqueIndex;not null" json:"run_id"`
	Family        string     `gorm:"size:20;not null;index:idx_sync_runs_family_plant" json:"family"`
	Plant         string     `gorm:"size:8;not null;index:idx_sync_runs_family_plant" json:"plant"`
	Status        string     `gorm:"size:10;not null" json:"status"`
	Inserted      int        `gorm:"not null;default:0" json:"inserted"`
	Updated       int        `gorm:"not null;default:0" json:"updated"`
	Deleted       int        `gorm:"not null;default:0" json:"deleted"`
	Discrepancies int        `gorm:"not null;default:0" json:"discrepancies"`
	Message       string     `gorm:"type:text" json:"message"`
	WindowStart   *time.Time `json:"window_start"`
	WindowEnd     *time.Time `json:"window_end"`
	StartedAt     time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt    time.Time  `gorm:"not null" json:"finished_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (SyncRun) TableName() string { return "sync_runs" }

// RunHistory stores SyncRun rows.
type RunHistory struct {
	DB *gorm.DB
}

func (h RunHistory) Record(ctx context.Context, run *SyncRun) error {
	return h.DB.WithContext(ctx).Create(run).Error
}

// Latest returns the most recent run of family for plant, nil when there is none.
func (h RunHistory) Latest(ctx context.Context, family, plant string) (*SyncRun, error) {
	var run SyncRun
	err := h.DB.WithContext(ctx).
		Where("family = ? AND plant = ?", family, plant).
		Order("id DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns up to limit runs of family for plant, newest first.
func (h RunHistory) List(ctx context.Context, family, plant string, limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := h.DB.WithContext(ctx).
		Where("family = ? AND plant = ?", family, plant).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

package measurement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"gorm.io/gorm"
)

// Store is the target side of the measurement sync.
type Store interface {
	// Current returns the stored samples of plant measured in [w.Start, w.End).
	Current(ctx context.Context, plant string, w scheduler.Window) ([]Record, error)
	InsertBatch(ctx context.Context, records []Record) error
	InsertOne(ctx context.Context, r Record) error
	Update(ctx context.Context, u reconcile.Update[Record]) (bool, error)
	Delete(ctx context.Context, plant string, records []Record) (int, error)
	LastSynced(ctx context.Context, plant string) (*time.Time, error)
}

const idBatch = 1000

type GormStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *GormStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *GormStore) Current(ctx context.Context, plant string, w scheduler.Window) ([]Record, error) {
	var rows []models.Nrildim
	err := s.DB.WithContext(ctx).
		Where("plant = ? AND measureDateTime >= ? AND measureDateTime < ?", plant, w.Start, w.End).
		Order("idRilDim").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch current measurements: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = fromModel(row)
	}
	return out, nil
}

func (s *GormStore) InsertBatch(ctx context.Context, records []Record) error {
	now := s.now()
	rows := make([]models.Nrildim, len(records))
	for i, r := range records {
		rows[i] = toModel(r, now)
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, idBatch).Error
	})
}

func (s *GormStore) InsertOne(ctx context.Context, r Record) error {
	row := toModel(r, s.now())
	return s.DB.WithContext(ctx).Create(&row).Error
}

// Update writes the changed columns of the sample with the same natural key.
func (s *GormStore) Update(ctx context.Context, u reconcile.Update[Record]) (bool, error) {
	r := u.Legacy
	db := s.DB.WithContext(ctx)
	var ids []int64
	err := db.Model(&models.Nrildim{}).
		Where("referenceNum = ? AND measureDateTime = ? AND numPrint = ? AND numFigure = ? AND plant = ?",
			r.ReferenceNum, r.MeasureDateTime, r.NumPrint, r.NumFigure, r.Plant).
		Pluck("idRilDim", &ids).Error
	if err != nil {
		return false, fmt.Errorf("look up idRilDim: %w", err)
	}
	if len(ids) == 0 {
		return false, nil
	}
	values := map[string]any{
		"lastModified":     s.now(),
		"bPortingError":    r.BPortingError(),
		"portingErrorDesc": r.PortingErrorDesc(),
	}
	for _, c := range u.Changed {
		values[c.Name] = c.Get(r)
	}
	if err := db.Model(&models.Nrildim{}).Where("idRilDim = ?", ids[0]).Updates(values).Error; err != nil {
		return false, fmt.Errorf("update measurement %s: %w", r.ReferenceNum, err)
	}
	return true, nil
}

// Delete removes stored samples by surrogate id.
func (s *GormStore) Delete(ctx context.Context, plant string, records []Record) (int, error) {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		if r.IdRilDim != 0 {
			ids = append(ids, r.IdRilDim)
		}
	}
	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(ids); start += idBatch {
			end := min(start+idBatch, len(ids))
			res := tx.Where("idRilDim IN ? AND plant = ?", ids[start:end], plant).Delete(&models.Nrildim{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete measurements: %w", err)
	}
	return int(deleted), nil
}

func (s *GormStore) LastSynced(ctx context.Context, plant string) (*time.Time, error) {
	var t sql.NullTime
	err := s.DB.WithContext(ctx).Model(&models.Nrildim{}).
		Select("MAX(measureDateTime)").
		Where("plant = ?", plant).
		Row().Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

func toModel(r Record, now time.Time) models.Nrildim {
	return models.Nrildim{
		IdWorkOrder:      r.IdWorkOrder,
		IdPress:          r.IdPress,
		IdMold:           r.IdMold,
		IdArticle:        r.IdArticle,
		MeasureDateTime:  r.MeasureDateTime,
		Operator:         r.Operator,
		ReferenceNum:     r.ReferenceNum,
		NumPrint:         r.NumPrint,
		NumFigure:        r.NumFigure,
		Measure:          r.Measure,
		BPortingError:    r.BPortingError(),
		PortingErrorDesc: r.PortingErrorDesc(),
		Plant:            r.Plant,
		LastModified:     now,
	}
}

func fromModel(m models.Nrildim) Record {
	r := Record{
		IdRilDim:        m.IdRilDim,
		ReferenceNum:    m.ReferenceNum,
		MeasureDateTime: m.MeasureDateTime,
		NumPrint:        m.NumPrint,
		NumFigure:       m.NumFigure,
		Plant:           m.Plant,
		IdWorkOrder:     m.IdWorkOrder,
		IdPress:         m.IdPress,
		IdMold:          m.IdMold,
		IdArticle:       m.IdArticle,
		Operator:        m.Operator,
		Measure:         m.Measure,
	}
	if m.PortingErrorDesc != "" {
		r.PortingErrors = []string{m.PortingErrorDesc}
	}
	return r
}

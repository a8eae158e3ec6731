package workorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/mosys_sync/models"
	"bitbucket.org/mmdatafocus/mosys_sync/reconcile"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store is the target side of the work-order sync.
type Store interface {
	// Current returns the stored work orders of plant with the given codes.
	Current(ctx context.Context, plant string, codes []string) ([]Record, error)
	// CurrentInWindow returns the stored work orders of plant active in w.
	CurrentInWindow(ctx context.Context, plant string, w scheduler.Window) ([]Record, error)

	// InsertBatch writes the static and dynamic rows of every record atomically.
	InsertBatch(ctx context.Context, records []Record) error
	InsertOne(ctx context.Context, r Record) error
	// Update writes the changed columns of one work order. ok is false when the
	// work order no longer exists.
	Update(ctx context.Context, u reconcile.Update[Record]) (ok bool, err error)
	// Delete removes the work orders of plant with the given codes and returns
	// the number of static rows deleted.
	Delete(ctx context.Context, plant string, codes []string) (int, error)

	LastSynced(ctx context.Context, plant string, now time.Time) (*time.Time, error)
	HasFuture(ctx context.Context, plant string, now time.Time) (bool, error)
	NextStart(ctx context.Context, plant string, now time.Time) (*time.Time, error)
}

// GormStore is the MySQL Store.
type GormStore struct {
	DB     *gorm.DB
	Logger logrus.FieldLogger
	Now    func() time.Time
}

// codeBatch bounds IN-lists and multi-row inserts well under the MySQL placeholder limit.
const codeBatch = 1000

func (s *GormStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *GormStore) logger() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}

func (s *GormStore) joined(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).
		Table("woStatic_tbl s").
		Select(models.WoCurrentColumns).
		Joins("LEFT JOIN woDynamic_tbl d ON s.idWorkOrder = d.idWorkOrder")
}

func (s *GormStore) Current(ctx context.Context, plant string, codes []string) ([]Record, error) {
	var out []Record
	for start := 0; start < len(codes); start += codeBatch {
		end := min(start+codeBatch, len(codes))
		var rows []models.WoCurrent
		err := s.joined(ctx).
			Where("s.plant = ? AND s.workOrder IN ?", plant, codes[start:end]).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("fetch current work orders: %w", err)
		}
		for _, row := range rows {
			out = append(out, fromCurrent(row))
		}
	}
	return out, nil
}

func (s *GormStore) CurrentInWindow(ctx context.Context, plant string, w scheduler.Window) ([]Record, error) {
	var rows []models.WoCurrent
	err := s.joined(ctx).
		Where("s.plant = ? AND s.woStart <= ? AND (s.woEnd >= ? OR s.woEnd IS NULL)", plant, w.End, w.Start).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch work orders in window: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = fromCurrent(row)
	}
	return out, nil
}

func (s *GormStore) InsertBatch(ctx context.Context, records []Record) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(tx, records)
	})
}

func (s *GormStore) InsertOne(ctx context.Context, r Record) error {
	return s.InsertBatch(ctx, []Record{r})
}

// insert writes static rows first, then the dynamic rows keyed by the generated ids.
func (s *GormStore) insert(tx *gorm.DB, records []Record) error {
	now := s.now()
	statics := make([]models.WoStatic, len(records))
	for i, r := range records {
		statics[i] = toStatic(r, now)
	}
	if err := tx.CreateInBatches(&statics, codeBatch).Error; err != nil {
		return err
	}
	dynamics := make([]models.WoDynamic, len(records))
	for i, r := range records {
		if r.WoCycle == nil {
			s.logger().WithField("workOrder", r.WorkOrder).Warn("woCycle is null, inserting default 0.0")
		}
		dynamics[i] = toDynamic(r, statics[i].IdWorkOrder, now)
	}
	return tx.CreateInBatches(&dynamics, codeBatch).Error
}

func (s *GormStore) Update(ctx context.Context, u reconcile.Update[Record]) (bool, error) {
	r := u.Legacy
	db := s.DB.WithContext(ctx)

	var ids []int64
	err := db.Model(&models.WoStatic{}).
		Where("workOrder = ? AND plant = ?", r.WorkOrder, r.Plant).
		Pluck("idWorkOrder", &ids).Error
	if err != nil {
		return false, fmt.Errorf("look up idWorkOrder: %w", err)
	}
	if len(ids) == 0 {
		return false, nil
	}
	id := ids[0]
	now := s.now()

	err = db.Transaction(func(tx *gorm.DB) error {
		static := bookkeeping(r, now)
		for _, c := range u.Changed {
			if c.Table == reconcile.TableStatic {
				static[c.Name] = c.Get(r)
			}
		}
		if err := tx.Model(&models.WoStatic{}).Where("idWorkOrder = ?", id).Updates(static).Error; err != nil {
			return err
		}

		if u.Current.DynamicMissing {
			dyn := toDynamic(r, id, now)
			return tx.Create(&dyn).Error
		}
		dynamic := bookkeeping(r, now)
		for _, c := range u.Changed {
			if c.Table == reconcile.TableDynamic {
				dynamic[c.Name] = c.Get(r)
			}
		}
		return tx.Model(&models.WoDynamic{}).Where("idWorkOrder = ?", id).Updates(dynamic).Error
	})
	if err != nil {
		return false, fmt.Errorf("update work order %s: %w", r.WorkOrder, err)
	}
	return true, nil
}

func (s *GormStore) Delete(ctx context.Context, plant string, codes []string) (int, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	db := s.DB.WithContext(ctx)

	var ids []int64
	err := db.Model(&models.WoStatic{}).
		Where("workOrder IN ? AND plant = ?", codes, plant).
		Pluck("idWorkOrder", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("look up work orders to delete: %w", err)
	}
	if len(ids) == 0 {
		s.logger().WithField("codes", len(codes)).Warn("no stored ids for the work orders to delete")
		return 0, nil
	}

	var deleted int64
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("idWorkOrder IN ?", ids).Delete(&models.WoDynamic{}).Error; err != nil {
			return err
		}
		res := tx.Where("idWorkOrder IN ? AND plant = ?", ids, plant).Delete(&models.WoStatic{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete work orders: %w", err)
	}
	return int(deleted), nil
}

// LastSynced is the latest start of a work order that has already begun.
func (s *GormStore) LastSynced(ctx context.Context, plant string, now time.Time) (*time.Time, error) {
	return s.scanTime(ctx, "MAX(woStart)", "plant = ? AND woStart <= ?", plant, now)
}

func (s *GormStore) HasFuture(ctx context.Context, plant string, now time.Time) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.WoStatic{}).
		Where("plant = ? AND woStart > ?", plant, now).
		Count(&n).Error
	return n > 0, err
}

func (s *GormStore) NextStart(ctx context.Context, plant string, now time.Time) (*time.Time, error) {
	return s.scanTime(ctx, "MIN(woStart)", "plant = ? AND woStart > ?", plant, now)
}

func (s *GormStore) scanTime(ctx context.Context, expr, where string, args ...any) (*time.Time, error) {
	var t sql.NullTime
	err := s.DB.WithContext(ctx).Model(&models.WoStatic{}).
		Select(expr).
		Where(where, args...).
		Row().Scan(&t)
	if err != nil {
		return nil, err
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

func bookkeeping(r Record, now time.Time) map[string]any {
	return map[string]any{
		"lastModified":     now,
		"bPortingError":    r.BPortingError(),
		"portingErrorDesc": r.PortingErrorDesc(),
	}
}

func toStatic(r Record, now time.Time) models.WoStatic {
	return models.WoStatic{
		WorkOrder:        r.WorkOrder,
		Plant:            r.Plant,
		IdPress:          r.IdPress,
		IdMold:           r.IdMold,
		IdArticle:        r.IdArticle,
		IdCustomer:       r.IdCustomer,
		WoStart:          r.WoStart,
		WoEnd:            r.WoEnd,
		WoTest:           r.WoTest,
		Figures:          r.Figures,
		WoTotPieces:      r.WoTotPieces,
		Cycle:            r.Cycle,
		LastModified:     now,
		BPortingError:    r.BPortingError(),
		PortingErrorDesc: r.PortingErrorDesc(),
	}
}

func toDynamic(r Record, id int64, now time.Time) models.WoDynamic {
	return models.WoDynamic{
		IdWorkOrder:      id,
		Program:          r.Program,
		ProgRegDate:      r.ProgRegDate,
		WoState:          r.WoState,
		UsedFigures:      r.UsedFigures,
		WoCycle:          r.WoCycleOrZero(),
		WoDonePieces:     r.WoDonePieces,
		StartScrapedPz:   r.StartScrapedPz,
		AutomScrapedPz:   r.AutomScrapedPz,
		ManualScrapedPz:  r.ManualScrapedPz,
		TotalSegrPz:      r.TotalSegrPz,
		ScrapedSegrPz:    r.ScrapedSegrPz,
		PackedPz:         r.PackedPz,
		LastModified:     now,
		BPortingError:    r.BPortingError(),
		PortingErrorDesc: r.PortingErrorDesc(),
	}
}

func fromCurrent(c models.WoCurrent) Record {
	r := Record{
		IdWorkOrder:     c.IdWorkOrder,
		WorkOrder:       c.WorkOrder,
		Plant:           c.Plant,
		IdPress:         c.IdPress,
		IdMold:          c.IdMold,
		IdArticle:       c.IdArticle,
		IdCustomer:      c.IdCustomer,
		WoStart:         c.WoStart,
		WoEnd:           c.WoEnd,
		WoTest:          deref(c.WoTest),
		Figures:         deref(c.Figures),
		WoTotPieces:     deref(c.WoTotPieces),
		Cycle:           c.Cycle,
		Program:         deref(c.Program),
		ProgRegDate:     c.ProgRegDate,
		WoState:         deref(c.WoState),
		UsedFigures:     deref(c.UsedFigures),
		WoCycle:         c.WoCycle,
		WoDonePieces:    deref(c.WoDonePieces),
		StartScrapedPz:  deref(c.StartScrapedPz),
		AutomScrapedPz:  deref(c.AutomScrapedPz),
		ManualScrapedPz: deref(c.ManualScrapedPz),
		TotalSegrPz:     deref(c.TotalSegrPz),
		ScrapedSegrPz:   deref(c.ScrapedSegrPz),
		PackedPz:        deref(c.PackedPz),
		DynamicMissing:  c.IdWoDyn == nil,
	}
	if c.PortingErrorDesc != nil && *c.PortingErrorDesc != "" {
		r.PortingErrors = []string{*c.PortingErrorDesc}
	}
	return r
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

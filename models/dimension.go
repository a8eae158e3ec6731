package models

import (
	"context"

	"bitbucket.org/mmdatafocus/mosys_sync/lookup"
	"gorm.io/gorm"
)

type Press struct {
	IdPress int64  `gorm:"column:idPress;primaryKey;autoIncrement" json:"idPress"`
	Press   string `gorm:"column:press;size:50;index" json:"press"`
	Plant   string `gorm:"column:plant;size:8;index" json:"plant"`
}

func (Press) TableName() string { return "presses_tbl" }

type MoldStatic struct {
	IdMold      int64    `gorm:"column:idMold;primaryKey;autoIncrement" json:"idMold"`
	Mold        string   `gorm:"column:mold;size:50;index" json:"mold"`
	IdOwnerCode *int64   `gorm:"column:idOwnerCode" json:"idOwnerCode"`
	Cycle       *float64 `gorm:"column:cycle" json:"cycle"`
	Plant       string   `gorm:"column:plant;size:8;index" json:"plant"`
}

func (MoldStatic) TableName() string { return "moldStatic_tbl" }

type Article struct {
	IdArticle  int64  `gorm:"column:idArticle;primaryKey;autoIncrement" json:"idArticle"`
	Article    string `gorm:"column:article;size:50;index" json:"article"`
	IdCustomer *int64 `gorm:"column:idCustomer" json:"idCustomer"`
	IdMold     *int64 `gorm:"column:idMold" json:"idMold"`
	IdMold2    *int64 `gorm:"column:idMold2" json:"idMold2"`
	IdMold3    *int64 `gorm:"column:idMold3" json:"idMold3"`
	IdMold4    *int64 `gorm:"column:idMold4" json:"idMold4"`
	Plant      string `gorm:"column:plant;size:8;index" json:"plant"`
}

func (Article) TableName() string { return "articles_tbl" }

// LookupLoader reads the dimension tables for lookup.Load.
// Rows come back in id order so that "first row wins" is stable.
type LookupLoader struct {
	DB *gorm.DB
}

func (l LookupLoader) Presses(ctx context.Context, plant string) ([]lookup.Press, error) {
	var rows []Press
	err := l.DB.WithContext(ctx).
		Where("plant = ? AND press IS NOT NULL AND TRIM(press) <> ''", plant).
		Order("idPress").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]lookup.Press, len(rows))
	for i, r := range rows {
		out[i] = lookup.Press{Code: r.Press, ID: r.IdPress}
	}
	return out, nil
}

func (l LookupLoader) Molds(ctx context.Context, plant string) ([]lookup.Mold, error) {
	var rows []MoldStatic
	err := l.DB.WithContext(ctx).
		Where("plant = ? AND mold IS NOT NULL AND TRIM(mold) <> ''", plant).
		Order("idMold").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]lookup.Mold, len(rows))
	for i, r := range rows {
		out[i] = lookup.Mold{Code: r.Mold, ID: r.IdMold, OwnerID: r.IdOwnerCode, Cycle: r.Cycle}
	}
	return out, nil
}

// Articles include rows without a code: they can still be reached through their mold references.
func (l LookupLoader) Articles(ctx context.Context, plant string) ([]lookup.Article, error) {
	var rows []Article
	err := l.DB.WithContext(ctx).
		Where("plant = ?", plant).
		Order("idArticle").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]lookup.Article, len(rows))
	for i, r := range rows {
		out[i] = lookup.Article{
			Code:       r.Article,
			ID:         r.IdArticle,
			CustomerID: r.IdCustomer,
			MoldRefs:   [4]*int64{r.IdMold, r.IdMold2, r.IdMold3, r.IdMold4},
		}
	}
	return out, nil
}

func (l LookupLoader) WorkOrders(ctx context.Context, plant string) ([]lookup.WorkOrderRef, error) {
	var rows []WoStatic
	err := l.DB.WithContext(ctx).
		Select("idWorkOrder", "workOrder").
		Where("plant = ? AND workOrder IS NOT NULL AND TRIM(workOrder) <> ''", plant).
		Order("idWorkOrder").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]lookup.WorkOrderRef, len(rows))
	for i, r := range rows {
		out[i] = lookup.WorkOrderRef{Code: r.WorkOrder, ID: r.IdWorkOrder}
	}
	return out, nil
}

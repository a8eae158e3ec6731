package models

import "time"

// Nrildim is one dimensional measurement sample.
// (referenceNum, measureDateTime, numPrint, numFigure, plant) is the natural key.
type Nrildim struct {
	IdRilDim         int64     `gorm:"column:idRilDim;primaryKey;autoIncrement" json:"idRilDim"`
	IdWorkOrder      *int64    `gorm:"column:idWorkOrder;index" json:"idWorkOrder"`
	IdPress          *int64    `gorm:"column:idPress" json:"idPress"`
	IdMold           *int64    `gorm:"column:idMold" json:"idMold"`
	IdArticle        *int64    `gorm:"column:idArticle" json:"idArticle"`
	MeasureDateTime  time.Time `gorm:"column:measureDateTime;not null;index:idx_nrildim_plant_time;uniqueIndex:uq_nrildim_key" json:"measureDateTime"`
	Operator         string    `gorm:"column:operator;size:50" json:"operator"`
	ReferenceNum     string    `gorm:"column:referenceNum;size:50;not null;uniqueIndex:uq_nrildim_key" json:"referenceNum"`
	NumPrint         int64     `gorm:"column:numPrint;uniqueIndex:uq_nrildim_key" json:"numPrint"`
	NumFigure        int64     `gorm:"column:numFigure;uniqueIndex:uq_nrildim_key" json:"numFigure"`
	Measure          float64   `gorm:"column:measure" json:"measure"`
	BPortingError    int8      `gorm:"column:bPortingError;not null;default:0" json:"bPortingError"`
	PortingErrorDesc string    `gorm:"column:portingErrorDesc;type:text" json:"portingErrorDesc"`
	Plant            string    `gorm:"column:plant;size:8;not null;index:idx_nrildim_plant_time;uniqueIndex:uq_nrildim_key" json:"plant"`
	LastModified     time.Time `gorm:"column:lastModified" json:"lastModified"`
}

func (Nrildim) TableName() string { return "nrildim_tbl" }

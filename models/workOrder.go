package models

import "time"

// WoStatic is the slow-changing half of a work order. (workOrder, plant) is the natural key.
type WoStatic struct {
	IdWorkOrder      int64      `gorm:"column:idWorkOrder;primaryKey;autoIncrement" json:"idWorkOrder"`
	WorkOrder        string     `gorm:"column:workOrder;size:10;not null;uniqueIndex:uq_wo_plant" json:"workOrder"`
	Plant            string     `gorm:"column:plant;size:8;not null;uniqueIndex:uq_wo_plant;index:idx_wo_plant_start" json:"plant"`
	IdPress          *int64     `gorm:"column:idPress;index" json:"idPress"`
	IdMold           *int64     `gorm:"column:idMold;index" json:"idMold"`
	IdArticle        *int64     `gorm:"column:idArticle;index" json:"idArticle"`
	IdCustomer       *int64     `gorm:"column:idCustomer" json:"idCustomer"`
	WoStart          *time.Time `gorm:"column:woStart;index:idx_wo_plant_start" json:"woStart"`
	WoEnd            *time.Time `gorm:"column:woEnd" json:"woEnd"`
	WoTest           string     `gorm:"column:woTest;size:1" json:"woTest"`
	Figures          int64      `gorm:"column:figures" json:"figures"`
	WoTotPieces      int64      `gorm:"column:woTotPieces" json:"woTotPieces"`
	Cycle            *float64   `gorm:"column:cycle" json:"cycle"`
	LastModified     time.Time  `gorm:"column:lastModified" json:"lastModified"`
	BPortingError    int8       `gorm:"column:bPortingError;not null;default:0" json:"bPortingError"`
	PortingErrorDesc string     `gorm:"column:portingErrorDesc;type:text" json:"portingErrorDesc"`
}

func (WoStatic) TableName() string { return "woStatic_tbl" }

// WoDynamic holds the counters of a work order that move while it runs.
// It has no plant column and is reached through idWorkOrder.
type WoDynamic struct {
	IdWoDyn          int64      `gorm:"column:idWoDyn;primaryKey;autoIncrement" json:"idWoDyn"`
	IdWorkOrder      int64      `gorm:"column:idWorkOrder;not null;uniqueIndex" json:"idWorkOrder"`
	Program          string     `gorm:"column:program;size:50" json:"program"`
	ProgRegDate      *time.Time `gorm:"column:progRegDate" json:"progRegDate"`
	WoState          string     `gorm:"column:woState;size:20" json:"woState"`
	UsedFigures      int64      `gorm:"column:usedFigures" json:"usedFigures"`
	WoCycle          float64    `gorm:"column:woCycle;not null;default:0" json:"woCycle"`
	WoDonePieces     int64      `gorm:"column:woDonePieces" json:"woDonePieces"`
	StartScrapedPz   int64      `gorm:"column:startScrapedPz" json:"startScrapedPz"`
	AutomScrapedPz   int64      `gorm:"column:automScrapedPz" json:"automScrapedPz"`
	ManualScrapedPz  int64      `gorm:"column:manualScrapedPz" json:"manualScrapedPz"`
	TotalSegrPz      int64      `gorm:"column:totalSegrPz" json:"totalSegrPz"`
	ScrapedSegrPz    int64      `gorm:"column:scrapedSegrPz" json:"scrapedSegrPz"`
	PackedPz         int64      `gorm:"column:packedPz" json:"packedPz"`
	LastModified     time.Time  `gorm:"column:lastModified" json:"lastModified"`
	BPortingError    int8       `gorm:"column:bPortingError;not null;default:0" json:"bPortingError"`
	PortingErrorDesc string     `gorm:"column:portingErrorDesc;type:text" json:"portingErrorDesc"`
}

func (WoDynamic) TableName() string { return "woDynamic_tbl" }

// WoCurrent is a static row left-joined with its dynamic row, as read back for comparison.
// Dynamic columns are nil when the dynamic row is missing.
type WoCurrent struct {
	IdWorkOrder      int64      `gorm:"column:idWorkOrder"`
	WorkOrder        string     `gorm:"column:workOrder"`
	Plant            string     `gorm:"column:plant"`
	IdPress          *int64     `gorm:"column:idPress"`
	IdMold           *int64     `gorm:"column:idMold"`
	IdArticle        *int64     `gorm:"column:idArticle"`
	IdCustomer       *int64     `gorm:"column:idCustomer"`
	WoStart          *time.Time `gorm:"column:woStart"`
	WoEnd            *time.Time `gorm:"column:woEnd"`
	WoTest           *string    `gorm:"column:woTest"`
	Figures          *int64     `gorm:"column:figures"`
	WoTotPieces      *int64     `gorm:"column:woTotPieces"`
	Cycle            *float64   `gorm:"column:cycle"`
	BPortingError    *int8      `gorm:"column:bPortingError"`
	PortingErrorDesc *string    `gorm:"column:portingErrorDesc"`

	IdWoDyn         *int64     `gorm:"column:idWoDyn"`
	Program         *string    `gorm:"column:program"`
	ProgRegDate     *time.Time `gorm:"column:progRegDate"`
	WoState         *string    `gorm:"column:woState"`
	UsedFigures     *int64     `gorm:"column:usedFigures"`
	WoCycle         *float64   `gorm:"column:woCycle"`
	WoDonePieces    *int64     `gorm:"column:woDonePieces"`
	StartScrapedPz  *int64     `gorm:"column:startScrapedPz"`
	AutomScrapedPz  *int64     `gorm:"column:automScrapedPz"`
	ManualScrapedPz *int64     `gorm:"column:manualScrapedPz"`
	TotalSegrPz     *int64     `gorm:"column:totalSegrPz"`
	ScrapedSegrPz   *int64     `gorm:"column:scrapedSegrPz"`
	PackedPz        *int64     `gorm:"column:packedPz"`
}

// WoCurrentColumns is the select list matching WoCurrent over `woStatic_tbl s LEFT JOIN woDynamic_tbl d`.
const WoCurrentColumns = "s.idWorkOrder, s.workOrder, s.plant, s.idPress, s.idMold, s.idArticle, s.idCustomer, " +
	"s.woStart, s.woEnd, s.woTest, s.figures, s.woTotPieces, s.cycle, s.bPortingError, s.portingErrorDesc, " +
	"d.idWoDyn, d.program, d.progRegDate, d.woState, d.usedFigures, d.woCycle, d.woDonePieces, " +
	"d.startScrapedPz, d.automScrapedPz, d.manualScrapedPz, d.totalSegrPz, d.scrapedSegrPz, d.packedPz"

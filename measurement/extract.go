package measurement

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/mosys_sync/legacy"
	"bitbucket.org/mmdatafocus/mosys_sync/scheduler"
)

const legacyDateLayout = "20060102"

const nrildimQuery = `
SELECT ARTICOLO AS article, STAMPO AS mold, PRESSA AS press, COMMESSA AS workOrder,
       OPERATORE AS operator, DATA_RILEVAMENTO AS measureDate, ORA_RILEVAMENTO AS measureHour,
       NUMERO_RIFERIMENTO AS referenceNum, NUMERO_STAMPATA AS numPrint, NUMERO_FIGURA AS numFigure,
       MIS01 AS mis01, MIS02 AS mis02, MIS03 AS mis03, MIS04 AS mis04, MIS05 AS mis05,
       MIS06 AS mis06, MIS07 AS mis07, MIS08 AS mis08, MIS09 AS mis09, MIS10 AS mis10,
       MIS11 AS mis11, MIS12 AS mis12, MIS13 AS mis13, MIS14 AS mis14, MIS15 AS mis15,
       MIS16 AS mis16, MIS17 AS mis17, MIS18 AS mis18, MIS19 AS mis19, MIS20 AS mis20
FROM NRILDIM
WHERE DATA_RILEVAMENTO >= ? AND DATA_RILEVAMENTO < ?`

type Extractor struct {
	Source legacy.Source
}

// Extract reads the samples whose measurement day falls in [w.Start, w.End).
// Only the date part of the window is used.
func (e Extractor) Extract(ctx context.Context, w scheduler.Window) ([]legacy.Row, error) {
	rows, err := e.Source.Query(ctx, nrildimQuery, w.Start.Format(legacyDateLayout), w.End.Format(legacyDateLayout))
	if err != nil {
		return nil, fmt.Errorf("query NRILDIM: %w", err)
	}
	return rows, nil
}

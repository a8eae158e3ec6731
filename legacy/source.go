// Package legacy reads rows from the legacy production database.
//
// The legacy side is read-only: every query is a SELECT scoped by a date window or by
// a list of natural keys passed as an IN-clause.
package legacy

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Source runs a read-only query and returns every row.
type Source interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}

// SQLSource is a Source backed by a database/sql driver through sqlx.
type SQLSource struct {
	db *sqlx.DB
}

func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

// Query expands slice arguments into IN-clauses (sqlx.In), rebinds the
// placeholders for the driver and scans every row into a Row.
func (s *SQLSource) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	q, qargs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("expand query args: %w", err)
	}
	q = s.db.Rebind(q)

	rows, err := s.db.QueryxContext(ctx, q, qargs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{}
		if err := rows.MapScan(r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository aggregates movements with PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// $1 base id ('' for all), $2 equipment types (empty for all), $3/$4 window.
const totalsQuery = `
WITH params AS (
    SELECT $1::text AS base_id, $2::text[] AS eq, $3::date AS from_date, $4::date AS to_date
)
SELECT
    COALESCE((SELECT SUM(p.quantity) FROM purchases p, params
        WHERE p.status = 'delivered'
          AND (params.base_id = '' OR p.base_id = params.base_id)
          AND (cardinality(params.eq) = 0 OR p.equipment_type = ANY(params.eq))
          AND (params.from_date IS NULL OR p.date >= params.from_date)
          AND (params.to_date IS NULL OR p.date < params.to_date)), 0),
    COALESCE((SELECT SUM(t.quantity) FROM transfers t, params
        WHERE t.status = 'delivered'
          AND (params.base_id = '' OR t.to_base_id = params.base_id)
          AND (cardinality(params.eq) = 0 OR t.equipment_type = ANY(params.eq))
          AND (params.from_date IS NULL OR t.date >= params.from_date)
          AND (params.to_date IS NULL OR t.date < params.to_date)), 0),
    COALESCE((SELECT SUM(t.quantity) FROM transfers t, params
        WHERE t.status IN ('in-transit', 'delivered')
          AND (params.base_id = '' OR t.from_base_id = params.base_id)
          AND (cardinality(params.eq) = 0 OR t.equipment_type = ANY(params.eq))
          AND (params.from_date IS NULL OR t.date >= params.from_date)
          AND (params.to_date IS NULL OR t.date < params.to_date)), 0),
    COALESCE((SELECT SUM(a.quantity) FROM assignments a, params
        WHERE a.status <> 'returned'
          AND (params.base_id = '' OR a.base_id = params.base_id)
          AND (cardinality(params.eq) = 0 OR a.equipment_type = ANY(params.eq))
          AND (params.from_date IS NULL OR a.date >= params.from_date)
          AND (params.to_date IS NULL OR a.date < params.to_date)), 0),
    COALESCE((SELECT SUM(e.quantity) FROM expenditures e, params
        WHERE (params.base_id = '' OR e.base_id = params.base_id)
          AND (cardinality(params.eq) = 0 OR e.equipment_type = ANY(params.eq))
          AND (params.from_date IS NULL OR e.date >= params.from_date)
          AND (params.to_date IS NULL OR e.date < params.to_date)), 0)`

// Totals sums movement quantities matching f.
func (r *PGRepository) Totals(ctx context.Context, f Filter) (Totals, error) {
	eq := f.EquipmentTypes
	if eq == nil {
		eq = []string{}
	}
	var t Totals
	err := r.pool.QueryRow(ctx, totalsQuery, f.BaseID, eq, optionalDate(f.From), optionalDate(f.To)).
		Scan(&t.Purchases, &t.TransferIn, &t.TransferOut, &t.Assigned, &t.Expended)
	return t, err
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Repository = (*PGRepository)(nil)

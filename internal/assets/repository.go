package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-ops/sentinel/internal/platform/db"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction. A serialization
// failure from a concurrent writer is reported as shared.ErrConflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return shared.ConflictOnRace(err)
}

const (
	purchaseColumns    = `id, date, equipment_type, item_name, quantity, notes, created_at, unit_cost, total_cost, supplier, base_id, status, purchased_by`
	transferColumns    = `id, date, equipment_type, item_name, quantity, notes, created_at, from_base_id, to_base_id, status, requested_by, COALESCE(approved_by, ''), estimated_delivery, actual_delivery`
	assignmentColumns  = `id, date, equipment_type, item_name, quantity, notes, created_at, assigned_to, rank, unit, base_id, status, assigned_by, return_date`
	expenditureColumns = `id, date, equipment_type, item_name, quantity, notes, created_at, reason, unit, operation, base_id, authorized_by`
)

// ListBases returns every base ordered by id.
func (r *Repository) ListBases(ctx context.Context) ([]Base, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM bases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Base
	for rows.Next() {
		var b Base
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BaseExists reports whether the base id is known.
func (r *Repository) BaseExists(ctx context.Context, id string) (bool, error) {
	return baseExists(ctx, r.pool, id)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func baseExists(ctx context.Context, q queryRower, id string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bases WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// where builds the WHERE clause for a list query. baseCols are OR-ed.
func where(f ListFilter, baseCols ...string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.BaseID != "" {
		args = append(args, f.BaseID)
		ors := make([]string, 0, len(baseCols))
		for _, col := range baseCols {
			ors = append(ors, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until)
		conds = append(conds, fmt.Sprintf("date < $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func list[T any](ctx context.Context, pool *pgxpool.Pool, query string, args []any, scan func(pgx.Row) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListPurchases fetches purchases matching the filter.
func (r *Repository) ListPurchases(ctx context.Context, f ListFilter) ([]Purchase, error) {
	cond, args := where(f, "base_id")
	return list(ctx, r.pool, `SELECT `+purchaseColumns+` FROM purchases`+cond+` ORDER BY date DESC, created_at DESC`, args, scanPurchase)
}

// ListTransfers fetches transfers touching the filtered base.
func (r *Repository) ListTransfers(ctx context.Context, f ListFilter) ([]Transfer, error) {
	cond, args := where(f, "from_base_id", "to_base_id")
	return list(ctx, r.pool, `SELECT `+transferColumns+` FROM transfers`+cond+` ORDER BY date DESC, created_at DESC`, args, scanTransfer)
}

// ListAssignments fetches assignments matching the filter.
func (r *Repository) ListAssignments(ctx context.Context, f ListFilter) ([]Assignment, error) {
	cond, args := where(f, "base_id")
	return list(ctx, r.pool, `SELECT `+assignmentColumns+` FROM assignments`+cond+` ORDER BY date DESC, created_at DESC`, args, scanAssignment)
}

// ListExpenditures fetches expenditures matching the filter.
func (r *Repository) ListExpenditures(ctx context.Context, f ListFilter) ([]Expenditure, error) {
	cond, args := where(f, "base_id")
	return list(ctx, r.pool, `SELECT `+expenditureColumns+` FROM expenditures`+cond+` ORDER BY date DESC, created_at DESC`, args, scanExpenditure)
}

// ListStock returns balances, optionally for one base.
func (r *Repository) ListStock(ctx context.Context, baseID string) ([]StockBalance, error) {
	query := `SELECT base_id, item_name, equipment_type, quantity, updated_at FROM stock_balances`
	var args []any
	if baseID != "" {
		query += ` WHERE base_id = $1`
		args = append(args, baseID)
	}
	query += ` ORDER BY base_id, item_name`
	return list(ctx, r.pool, query, args, func(row pgx.Row) (StockBalance, error) {
		var (
			s  StockBalance
			eq string
		)
		err := row.Scan(&s.BaseID, &s.ItemName, &eq, &s.Quantity, &s.UpdatedAt)
		s.EquipmentType = EquipmentType(eq)
		return s, err
	})
}

func (r *txRepo) BaseExists(ctx context.Context, id string) (bool, error) {
	return baseExists(ctx, r.tx, id)
}

func (r *txRepo) InsertPurchase(ctx context.Context, p Purchase) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchases (`+purchaseColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.Date, string(p.EquipmentType), p.ItemName, p.Quantity, p.Notes, p.CreatedAt,
		p.UnitCost, p.TotalCost, p.Supplier, p.BaseID, string(p.Status), p.PurchasedBy)
	return err
}

func (r *txRepo) InsertTransfer(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transfers (id, date, equipment_type, item_name, quantity, notes, created_at,
from_base_id, to_base_id, status, requested_by, approved_by, estimated_delivery, actual_delivery)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, $14)`,
		t.ID, t.Date, string(t.EquipmentType), t.ItemName, t.Quantity, t.Notes, t.CreatedAt,
		t.FromBaseID, t.ToBaseID, string(t.Status), t.RequestedBy, t.ApprovedBy, t.EstimatedDelivery, t.ActualDelivery)
	return err
}

func (r *txRepo) InsertAssignment(ctx context.Context, a Assignment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO assignments (`+assignmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.Date, string(a.EquipmentType), a.ItemName, a.Quantity, a.Notes, a.CreatedAt,
		a.AssignedTo, a.Rank, a.Unit, a.BaseID, string(a.Status), a.AssignedBy, a.ReturnDate)
	return err
}

func (r *txRepo) InsertExpenditure(ctx context.Context, e Expenditure) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO expenditures (`+expenditureColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Date, string(e.EquipmentType), e.ItemName, e.Quantity, e.Notes, e.CreatedAt,
		e.Reason, e.Unit, e.Operation, e.BaseID, e.AuthorizedBy)
	return err
}

func (r *txRepo) PurchaseForUpdate(ctx context.Context, id uuid.UUID) (Purchase, error) {
	return scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) TransferForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return scanTransfer(r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) AssignmentForUpdate(ctx context.Context, id uuid.UUID) (Assignment, error) {
	return scanAssignment(r.tx.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) UpdatePurchase(ctx context.Context, p Purchase) error {
	return affectOne(r.tx.Exec(ctx, `UPDATE purchases SET status = $2, notes = $3 WHERE id = $1`, p.ID, string(p.Status), p.Notes))
}

func (r *txRepo) UpdateTransfer(ctx context.Context, t Transfer) error {
	return affectOne(r.tx.Exec(ctx, `UPDATE transfers SET status = $2, notes = $3, approved_by = NULLIF($4, ''), actual_delivery = $5 WHERE id = $1`,
		t.ID, string(t.Status), t.Notes, t.ApprovedBy, t.ActualDelivery))
}

func (r *txRepo) UpdateAssignment(ctx context.Context, a Assignment) error {
	return affectOne(r.tx.Exec(ctx, `UPDATE assignments SET status = $2, notes = $3, return_date = $4 WHERE id = $1`,
		a.ID, string(a.Status), a.Notes, a.ReturnDate))
}

func (r *txRepo) StockForUpdate(ctx context.Context, baseID, itemName string) (int, error) {
	var qty int
	err := r.tx.QueryRow(ctx, `SELECT quantity FROM stock_balances WHERE base_id = $1 AND item_name = $2 FOR UPDATE`, baseID, itemName).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (r *txRepo) AdjustStock(ctx context.Context, baseID, itemName string, eq EquipmentType, delta int) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (base_id, item_name, equipment_type, quantity, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (base_id, item_name) DO UPDATE
SET quantity = stock_balances.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		baseID, itemName, string(eq), delta)
	return err
}

func (r *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, r.tx, log)
}

func affectOne(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func scanPurchase(row pgx.Row) (Purchase, error) {
	var (
		p          Purchase
		eq, status string
	)
	err := row.Scan(&p.ID, &p.Date, &eq, &p.ItemName, &p.Quantity, &p.Notes, &p.CreatedAt,
		&p.UnitCost, &p.TotalCost, &p.Supplier, &p.BaseID, &status, &p.PurchasedBy)
	if err != nil {
		return Purchase{}, notFound(err)
	}
	p.EquipmentType = EquipmentType(eq)
	p.Status = PurchaseStatus(status)
	return p, nil
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t          Transfer
		eq, status string
	)
	err := row.Scan(&t.ID, &t.Date, &eq, &t.ItemName, &t.Quantity, &t.Notes, &t.CreatedAt,
		&t.FromBaseID, &t.ToBaseID, &status, &t.RequestedBy, &t.ApprovedBy, &t.EstimatedDelivery, &t.ActualDelivery)
	if err != nil {
		return Transfer{}, notFound(err)
	}
	t.EquipmentType = EquipmentType(eq)
	t.Status = TransferStatus(status)
	return t, nil
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a          Assignment
		eq, status string
	)
	err := row.Scan(&a.ID, &a.Date, &eq, &a.ItemName, &a.Quantity, &a.Notes, &a.CreatedAt,
		&a.AssignedTo, &a.Rank, &a.Unit, &a.BaseID, &status, &a.AssignedBy, &a.ReturnDate)
	if err != nil {
		return Assignment{}, notFound(err)
	}
	a.EquipmentType = EquipmentType(eq)
	a.Status = AssignmentStatus(status)
	return a, nil
}

func scanExpenditure(row pgx.Row) (Expenditure, error) {
	var (
		e  Expenditure
		eq string
	)
	err := row.Scan(&e.ID, &e.Date, &eq, &e.ItemName, &e.Quantity, &e.Notes, &e.CreatedAt,
		&e.Reason, &e.Unit, &e.Operation, &e.BaseID, &e.AuthorizedBy)
	if err != nil {
		return Expenditure{}, notFound(err)
	}
	e.EquipmentType = EquipmentType(eq)
	return e, nil
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepo)(nil)
)

package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel-ops/sentinel/internal/platform/db"
	"github.com/sentinel-ops/sentinel/internal/rbac"
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

const selectColumns = `id, type, status, requested_by, requested_at,
COALESCE(reviewed_by, ''), reviewed_at, COALESCE(approved_by, ''), approved_at,
COALESCE(rejected_by, ''), rejected_at, COALESCE(cancelled_by, ''), cancelled_at,
base_id, title, description, priority, data`

// Get fetches one request.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM requests WHERE id=$1`, id)
	return scanRequest(row)
}

// List fetches requests matching the storage-level filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BaseID != "" {
		add("base_id = $%d", filter.BaseID)
	}
	if filter.RequestedBy != "" {
		add("requested_by = $%d", filter.RequestedBy)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if !filter.Since.IsZero() {
		add("requested_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("requested_at < $%d", filter.Until)
	}
	query := `SELECT ` + selectColumns + ` FROM requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY requested_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// History lists transitions of a request in chronological order.
func (r *Repository) History(ctx context.Context, id uuid.UUID) ([]Transition, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, request_id, action, from_status, to_status, actor_id, actor_username, actor_role, comment, at
FROM request_transitions WHERE request_id=$1 ORDER BY at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transition
	for rows.Next() {
		var (
			tr               Transition
			action, from, to string
			role             string
		)
		if err := rows.Scan(&tr.ID, &tr.RequestID, &action, &from, &to, &tr.ActorID, &tr.ActorUsername, &role, &tr.Comment, &tr.At); err != nil {
			return nil, err
		}
		tr.Action, tr.From, tr.To, tr.ActorRole = Action(action), Status(from), Status(to), rbac.Role(role)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, req Request) error {
	data, err := json.Marshal(req.Data)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO requests (id, type, status, requested_by, requested_at, base_id, title, description, priority, data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, string(req.Type), string(req.Status), req.RequestedBy, req.RequestedAt, req.BaseID, req.Title, req.Description, string(req.Priority), data)
	return err
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Request, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM requests WHERE id=$1 FOR UPDATE`, id)
	return scanRequest(row)
}

func (t *txRepo) UpdateStatus(ctx context.Context, req Request, expected Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requests SET status=$2,
reviewed_by=NULLIF($3, ''), reviewed_at=$4,
approved_by=NULLIF($5, ''), approved_at=$6,
rejected_by=NULLIF($7, ''), rejected_at=$8,
cancelled_by=NULLIF($9, ''), cancelled_at=$10
WHERE id=$1 AND status=$11`,
		req.ID, string(req.Status),
		req.ReviewedBy, req.ReviewedAt,
		req.ApprovedBy, req.ApprovedAt,
		req.RejectedBy, req.RejectedAt,
		req.CancelledBy, req.CancelledAt,
		string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConflict
	}
	return nil
}

func (t *txRepo) InsertTransition(ctx context.Context, tr Transition) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO request_transitions (request_id, action, from_status, to_status, actor_id, actor_username, actor_role, comment, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		tr.RequestID, string(tr.Action), string(tr.From), string(tr.To), tr.ActorID, tr.ActorUsername, string(tr.ActorRole), tr.Comment, tr.At).Scan(&id)
	return id, err
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, t.tx, log)
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req                    Request
		typ, status, priority  string
		data                   []byte
		reviewedAt, approvedAt *time.Time
		rejectedAt, cancelAt   *time.Time
	)
	err := row.Scan(&req.ID, &typ, &status, &req.RequestedBy, &req.RequestedAt,
		&req.ReviewedBy, &reviewedAt, &req.ApprovedBy, &approvedAt,
		&req.RejectedBy, &rejectedAt, &req.CancelledBy, &cancelAt,
		&req.BaseID, &req.Title, &req.Description, &priority, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.Type, req.Status, req.Priority = Type(typ), Status(status), Priority(priority)
	req.ReviewedAt, req.ApprovedAt, req.RejectedAt, req.CancelledAt = reviewedAt, approvedAt, rejectedAt, cancelAt
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req.Data); err != nil {
			return Request{}, fmt.Errorf("requests: decode data: %w", err)
		}
	}
	return req, nil
}

var _ RepositoryPort = (*Repository)(nil)

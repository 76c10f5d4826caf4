package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinel-ops/sentinel/internal/assets"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/requests"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

// ErrNotPermitted is returned when the caller lacks canExportData.
var ErrNotPermitted = fmt.Errorf("export: %w", shared.ErrForbidden)

// ErrUnknownKind is returned for an unsupported record set or format.
var ErrUnknownKind = fmt.Errorf("export: %w", shared.ErrNotFound)

// RequestSource lists requests visible to a principal.
type RequestSource interface {
	List(ctx context.Context, p rbac.Principal, q visibility.Query) ([]requests.Request, error)
}

// MovementSource lists movement records visible to a principal.
type MovementSource interface {
	ListPurchases(ctx context.Context, p rbac.Principal, q assets.ListQuery) ([]assets.Purchase, error)
	ListTransfers(ctx context.Context, p rbac.Principal, q assets.ListQuery) ([]assets.Transfer, error)
	ListAssignments(ctx context.Context, p rbac.Principal, q assets.ListQuery) ([]assets.Assignment, error)
	ListExpenditures(ctx context.Context, p rbac.Principal, q assets.ListQuery) ([]assets.Expenditure, error)
}

// Service assembles export tables from the domain services so role scoping
// applies to downloads exactly as it does to the list endpoints.
type Service struct {
	requests  RequestSource
	movements MovementSource
	logger    *slog.Logger
}

// NewService builds an export Service.
func NewService(reqs RequestSource, movements MovementSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{requests: reqs, movements: movements, logger: logger}
}

// Build collects the rows of kind visible to p.
func (s *Service) Build(ctx context.Context, p rbac.Principal, kind Kind, q assets.ListQuery) (Table, error) {
	if !p.Can(rbac.PermExportData) {
		return Table{}, ErrNotPermitted
	}
	switch kind {
	case KindRequests:
		rows, err := s.requests.List(ctx, p, q.Query)
		if err != nil {
			return Table{}, err
		}
		return requestsTable(withinWindow(rows, q.Since, q.Until)), nil
	case KindPurchases:
		rows, err := s.movements.ListPurchases(ctx, p, q)
		if err != nil {
			return Table{}, err
		}
		return purchasesTable(rows), nil
	case KindTransfers:
		rows, err := s.movements.ListTransfers(ctx, p, q)
		if err != nil {
			return Table{}, err
		}
		return transfersTable(rows), nil
	case KindAssignments:
		rows, err := s.movements.ListAssignments(ctx, p, q)
		if err != nil {
			return Table{}, err
		}
		return assignmentsTable(rows), nil
	case KindExpenditures:
		rows, err := s.movements.ListExpenditures(ctx, p, q)
		if err != nil {
			return Table{}, err
		}
		return expendituresTable(rows), nil
	}
	return Table{}, ErrUnknownKind
}

func withinWindow(rows []requests.Request, since, until time.Time) []requests.Request {
	if since.IsZero() && until.IsZero() {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if !since.IsZero() && r.RequestedAt.Before(since) {
			continue
		}
		if !until.IsZero() && !r.RequestedAt.Before(until) {
			continue
		}
		out = append(out, r)
	}
	return out
}

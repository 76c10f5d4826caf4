package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/requests"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

// Repository aggregates movement quantities.
type Repository interface {
	Totals(ctx context.Context, f Filter) (Totals, error)
}

// RequestCounter counts the requests visible to a principal.
type RequestCounter interface {
	Counts(ctx context.Context, p rbac.Principal, since, until time.Time) (requests.StatusCounts, error)
}

// AuditReader lists recent audit entries.
type AuditReader interface {
	Recent(ctx context.Context, limit, offset int) ([]shared.AuditLog, error)
}

// ErrNotPermitted is returned when the filter falls outside the caller's scope.
var ErrNotPermitted = fmt.Errorf("dashboard: %w", shared.ErrForbidden)

// Service coordinates metric queries with the cache layer.
type Service struct {
	repo     Repository
	requests RequestCounter
	audit    AuditReader
	cache    *Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the dashboard dependencies. cache and audit may be nil.
func NewService(repo Repository, counter RequestCounter, audit AuditReader, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		requests: counter,
		audit:    audit,
		cache:    cache,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// scope applies the role restrictions to q and returns the storage filter.
func scope(p rbac.Principal, q Query) (Filter, error) {
	f := Filter{From: q.From, To: q.To}
	if q.BaseID != visibility.All {
		f.BaseID = q.BaseID
	}
	if q.EquipmentType != "" && q.EquipmentType != visibility.All {
		f.EquipmentTypes = []string{q.EquipmentType}
	}
	switch p.Role {
	case rbac.RoleAdmin:
	case rbac.RoleBaseCommander:
		if p.BaseID == "" {
			return Filter{}, ErrNotPermitted
		}
		f.BaseID = p.BaseID
	case rbac.RoleLogisticsOfficer:
		allowed := visibility.LogisticsEquipment()
		if len(f.EquipmentTypes) == 0 {
			f.EquipmentTypes = allowed
			break
		}
		if !slices.Contains(allowed, f.EquipmentTypes[0]) {
			return Filter{}, ErrNotPermitted
		}
	default:
		return Filter{}, ErrNotPermitted
	}
	return f, nil
}

func cacheParts(p rbac.Principal, f Filter) []string {
	who := "all"
	if p.Role != rbac.RoleAdmin {
		who = p.Username
	}
	base := f.BaseID
	if base == "" {
		base = "-"
	}
	eq := "-"
	if len(f.EquipmentTypes) > 0 {
		eq = strings.Join(f.EquipmentTypes, ",")
	}
	return []string{"dashboard", "metrics", string(p.Role), who, base, eq,
		f.From.Format("2006-01-02"), f.To.Format("2006-01-02")}
}

// Metrics computes the movement summary visible to p. The window defaults to
// the last 30 days.
func (s *Service) Metrics(ctx context.Context, p rbac.Principal, q Query) (Metrics, error) {
	window := shared.DateRange{From: q.From, To: q.To}.Bounded(s.now())
	q.From, q.To = window.From, window.To
	f, err := scope(p, q)
	if err != nil {
		return Metrics{}, err
	}
	key, err := s.cache.Key(ctx, cacheParts(p, f)...)
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.compute(ctx, p, f)
	}
	var m Metrics
	err = s.cache.FetchJSON(ctx, key, &m, func(ctx context.Context) (any, error) {
		return s.compute(ctx, p, f)
	})
	return m, err
}

func (s *Service) compute(ctx context.Context, p rbac.Principal, f Filter) (Metrics, error) {
	var (
		before, during Totals
		counts         requests.StatusCounts
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prior := f
		prior.From, prior.To = time.Time{}, f.From
		t, err := s.repo.Totals(ctx, prior)
		before = t
		return err
	})
	g.Go(func() error {
		t, err := s.repo.Totals(ctx, f)
		during = t
		return err
	})
	if s.requests != nil {
		g.Go(func() error {
			c, err := s.requests.Counts(ctx, p, f.From, f.To)
			counts = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Metrics{}, err
	}
	opening := before.Balance()
	eq := f.EquipmentTypes
	if eq == nil {
		eq = []string{}
	}
	return Metrics{
		BaseID:              f.BaseID,
		EquipmentTypes:      eq,
		From:                f.From,
		To:                  f.To,
		OpeningBalance:      opening,
		ClosingBalance:      opening + during.Balance(),
		NetMovement:         during.Net(),
		Purchases:           during.Purchases,
		TransferIn:          during.TransferIn,
		TransferOut:         during.TransferOut,
		Assigned:            during.Assigned,
		Expended:            during.Expended,
		PendingRequests:     counts[requests.StatusPending],
		UnderReviewRequests: counts[requests.StatusUnderReview],
		ApprovedRequests:    counts[requests.StatusApproved],
		RejectedRequests:    counts[requests.StatusRejected],
		CancelledRequests:   counts[requests.StatusCancelled],
		GeneratedAt:         s.now(),
	}, nil
}

// Invalidate bumps the cache version.
func (s *Service) Invalidate(ctx context.Context) error {
	v, err := s.cache.Bump(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("dashboard cache bumped", slog.Int64("version", v))
	return nil
}

var baseMetaKeys = []string{"base_id", "from_base_id", "to_base_id"}

// Activity returns recent audit entries visible to p. Admins see everything;
// commanders see their own actions and those touching their base; everyone
// else sees only their own actions.
func (s *Service) Activity(ctx context.Context, p rbac.Principal, limit int) ([]shared.AuditLog, error) {
	if s.audit == nil {
		return []shared.AuditLog{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out := make([]shared.AuditLog, 0, limit)
	const batch = 100
	for offset := 0; len(out) < limit && offset < 10*batch; offset += batch {
		rows, err := s.audit.Recent(ctx, batch, offset)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if activityVisible(p, row) {
				out = append(out, row)
				if len(out) == limit {
					break
				}
			}
		}
		if len(rows) < batch || p.Role == rbac.RoleAdmin {
			break
		}
	}
	return out, nil
}

func activityVisible(p rbac.Principal, row shared.AuditLog) bool {
	if p.Role == rbac.RoleAdmin || row.ActorID == p.ID {
		return true
	}
	if p.Role != rbac.RoleBaseCommander || p.BaseID == "" {
		return false
	}
	for _, k := range baseMetaKeys {
		if v, ok := row.Meta[k].(string); ok && v == p.BaseID {
			return true
		}
	}
	return false
}

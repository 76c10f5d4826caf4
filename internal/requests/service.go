package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
	"github.com/sentinel-ops/sentinel/internal/visibility"
)

const idempotencyModule = "requests"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, error)
	History(ctx context.Context, id uuid.UUID) ([]Transition, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, req Request) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Request, error)
	// UpdateStatus persists req when the stored status still equals expected.
	UpdateStatus(ctx context.Context, req Request, expected Status) error
	InsertTransition(ctx context.Context, tr Transition) (int64, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows the candidate rows fetched from storage. Role scoping is
// applied afterwards in Go.
type ListFilter struct {
	BaseID      string
	RequestedBy string
	Status      Status
	Type        Type
	Since       time.Time
	Until       time.Time
}

// IdempotencyPort guards duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// EventPort is notified after a request is created or changes status.
type EventPort interface {
	RequestChanged(ctx context.Context, req Request) error
}

// MetricsPort observes workflow transitions.
type MetricsPort interface {
	ObserveTransition(action, from, to string)
}

// Service orchestrates the request workflow.
type Service struct {
	repo        RepositoryPort
	idempotency IdempotencyPort
	events      EventPort
	metrics     MetricsPort
	logger      *slog.Logger
	validate    *validator.Validate
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithIdempotency enables Idempotency-Key handling on Submit.
func WithIdempotency(store IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithEvents registers a post-commit listener.
func WithEvents(events EventPort) Option {
	return func(s *Service) { s.events = events }
}

// WithMetrics registers a transition observer.
func WithMetrics(m MetricsPort) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the requests service.
func NewService(repo RepositoryPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates and stores a new pending request.
func (s *Service) Submit(ctx context.Context, p rbac.Principal, in SubmitInput, idempotencyKey string) (Request, error) {
	in.normalize()
	if err := in.validate(s.validate); err != nil {
		return Request{}, err
	}
	if !CanSubmit(p, in.Type, in.BaseID) {
		return Request{}, fmt.Errorf("%w: %s cannot submit %s requests for %s", ErrNotPermitted, p.Role, in.Type, in.BaseID)
	}

	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Request{}, ErrDuplicate
			}
			return Request{}, err
		}
	}

	req := Request{
		ID:          uuid.New(),
		Type:        in.Type,
		Status:      StatusPending,
		RequestedBy: p.Username,
		RequestedAt: s.now(),
		BaseID:      in.BaseID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		Data:        in.Data,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, req); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   "REQUEST_SUBMIT",
			Entity:   "request",
			EntityID: req.ID.String(),
			Meta:     map[string]any{"type": req.Type, "base_id": req.BaseID, "priority": req.Priority},
			At:       req.RequestedAt,
		})
	})
	if err != nil {
		if idempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, idempotencyKey, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Request{}, err
	}
	s.notify(ctx, req)
	return req, nil
}

// Get returns a request visible to p. Requests outside p's scope are reported
// as not found.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id uuid.UUID) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !visibility.Allows(visibility.KindRequest, p, req) {
		return Request{}, ErrNotFound
	}
	return req, nil
}

// List returns requests visible to p that match q, newest first.
func (s *Service) List(ctx context.Context, p rbac.Principal, q visibility.Query) ([]Request, error) {
	filter := ListFilter{}
	if Status(q.Status).IsValid() {
		filter.Status = Status(q.Status)
	}
	if Type(q.Type).IsValid() {
		filter.Type = Type(q.Type)
	}
	candidates, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := visibility.Apply(visibility.KindRequest, p, candidates, func(r Request) bool {
		return matchesQuery(r, q)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

// Counts tallies the requests visible to p per status within [since, until).
// Zero bounds are open.
func (s *Service) Counts(ctx context.Context, p rbac.Principal, since, until time.Time) (StatusCounts, error) {
	candidates, err := s.repo.List(ctx, ListFilter{Since: since, Until: until})
	if err != nil {
		return nil, err
	}
	counts := StatusCounts{}
	for _, st := range Statuses() {
		counts[st] = 0
	}
	for _, r := range visibility.Filter(visibility.KindRequest, p, candidates) {
		counts[r.Status]++
	}
	return counts, nil
}

// Transition applies action to the request identified by id on behalf of p.
func (s *Service) Transition(ctx context.Context, p rbac.Principal, id uuid.UUID, action Action, comment string) (Request, error) {
	var updated Request
	var tr Transition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !visibility.Allows(visibility.KindRequest, p, current) {
			return ErrNotFound
		}
		updated, tr, err = Apply(current, action, p, comment, s.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, updated, current.Status); err != nil {
			return err
		}
		trID, err := tx.InsertTransition(ctx, tr)
		if err != nil {
			return err
		}
		tr.ID = trID
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   "REQUEST_" + strings.ToUpper(string(action)),
			Entity:   "request",
			EntityID: id.String(),
			Meta:     map[string]any{"from": tr.From, "to": tr.To, "comment": comment, "base_id": updated.BaseID},
			At:       tr.At,
		})
	})
	if err != nil {
		return Request{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(tr.Action), string(tr.From), string(tr.To))
	}
	s.logger.Info("request transition",
		slog.String("request_id", id.String()),
		slog.String("action", string(action)),
		slog.String("from", string(tr.From)),
		slog.String("to", string(tr.To)),
		slog.String("actor", p.Username))
	s.notify(ctx, updated)
	return updated, nil
}

// History returns the transition trail of a request visible to p.
func (s *Service) History(ctx context.Context, p rbac.Principal, id uuid.UUID) ([]Transition, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

func (s *Service) notify(ctx context.Context, req Request) {
	if s.events == nil {
		return
	}
	if err := s.events.RequestChanged(ctx, req); err != nil {
		s.logger.Warn("publish request event", slog.String("request_id", req.ID.String()), slog.Any("error", err))
	}
}

func matchesQuery(r Request, q visibility.Query) bool {
	if !visibility.MatchField(q.Status, string(r.Status)) ||
		!visibility.MatchField(q.Type, string(r.Type)) ||
		!visibility.MatchField(q.Priority, string(r.Priority)) ||
		!visibility.MatchField(q.EquipmentType, r.Data.EquipmentType) ||
		!visibility.MatchBases(q.BaseID, r.BaseID) {
		return false
	}
	if !matchesTab(q.Tab, r.Status) {
		return false
	}
	return visibility.MatchSearch(q.Search, r.Title, r.Description, r.RequestedBy)
}

// matchesTab mirrors the request list tabs; "closed" groups every terminal status.
func matchesTab(tab string, st Status) bool {
	switch tab {
	case "", visibility.All:
		return true
	case "closed":
		return st.IsTerminal()
	}
	return string(st) == tab
}

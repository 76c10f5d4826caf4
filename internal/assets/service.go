package assets

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

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBases(ctx context.Context) ([]Base, error)
	ListPurchases(ctx context.Context, f ListFilter) ([]Purchase, error)
	ListTransfers(ctx context.Context, f ListFilter) ([]Transfer, error)
	ListAssignments(ctx context.Context, f ListFilter) ([]Assignment, error)
	ListExpenditures(ctx context.Context, f ListFilter) ([]Expenditure, error)
	ListStock(ctx context.Context, baseID string) ([]StockBalance, error)
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	BaseExists(ctx context.Context, id string) (bool, error)
	InsertPurchase(ctx context.Context, p Purchase) error
	InsertTransfer(ctx context.Context, t Transfer) error
	InsertAssignment(ctx context.Context, a Assignment) error
	InsertExpenditure(ctx context.Context, e Expenditure) error
	PurchaseForUpdate(ctx context.Context, id uuid.UUID) (Purchase, error)
	TransferForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error)
	AssignmentForUpdate(ctx context.Context, id uuid.UUID) (Assignment, error)
	UpdatePurchase(ctx context.Context, p Purchase) error
	UpdateTransfer(ctx context.Context, t Transfer) error
	UpdateAssignment(ctx context.Context, a Assignment) error
	// StockForUpdate locks and returns the available quantity, 0 when absent.
	StockForUpdate(ctx context.Context, baseID, itemName string) (int, error)
	AdjustStock(ctx context.Context, baseID, itemName string, eq EquipmentType, delta int) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows the rows fetched from storage. Role scoping happens in Go.
type ListFilter struct {
	BaseID string
	Since  time.Time
	Until  time.Time
}

// ListQuery combines the user filters with an optional date window.
type ListQuery struct {
	visibility.Query
	Since time.Time
	Until time.Time
}

func (q ListQuery) filter() ListFilter {
	f := ListFilter{Since: q.Since, Until: q.Until}
	if q.BaseID != visibility.All {
		f.BaseID = q.BaseID
	}
	return f
}

// IdempotencyPort guards duplicate submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// EventPort is notified after a movement changes stock or status.
type EventPort interface {
	MovementRecorded(ctx context.Context, kind visibility.Kind, bases []string) error
}

// MetricsPort counts recorded movements.
type MetricsPort interface {
	ObserveMovement(kind, status string)
}

// Service records movements and keeps stock balances consistent.
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

// WithIdempotency enables Idempotency-Key handling on create.
func WithIdempotency(store IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = store }
}

// WithEvents registers a post-commit listener.
func WithEvents(events EventPort) Option {
	return func(s *Service) { s.events = events }
}

// WithMetrics registers a movement observer.
func WithMetrics(m MetricsPort) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the assets service.
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

// Bases lists the bases p may pick from. Commanders only get their own.
func (s *Service) Bases(ctx context.Context, p rbac.Principal) ([]Base, error) {
	all, err := s.repo.ListBases(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Base, 0, len(all))
	for _, b := range all {
		if p.CanAccessBase(b.ID) {
			out = append(out, b)
		}
	}
	return out, nil
}

// CreatePurchase records a pending purchase order.
func (s *Service) CreatePurchase(ctx context.Context, p rbac.Principal, in PurchaseInput, idemKey string) (Purchase, error) {
	in.normalize()
	if err := in.validate(s.validate); err != nil {
		return Purchase{}, err
	}
	if !canCreate(p, rbac.PermCreatePurchases, in.BaseID) {
		return Purchase{}, fmt.Errorf("%w: %s cannot record purchases for %s", ErrNotPermitted, p.Role, in.BaseID)
	}
	item, err := in.item(s.now())
	if err != nil {
		return Purchase{}, err
	}
	item.ID = uuid.New()
	rec := Purchase{
		Item:        item,
		UnitCost:    *in.UnitCost,
		TotalCost:   totalCost(item.Quantity, *in.UnitCost),
		Supplier:    in.Supplier,
		BaseID:      in.BaseID,
		Status:      PurchasePending,
		PurchasedBy: p.Username,
	}
	err = s.create(ctx, p, visibility.KindPurchase, idemKey, rec.ID, func(ctx context.Context, tx TxRepository) error {
		if err := requireBase(ctx, tx, rec.BaseID); err != nil {
			return err
		}
		return tx.InsertPurchase(ctx, rec)
	}, map[string]any{"base_id": rec.BaseID, "item": rec.ItemName, "quantity": rec.Quantity, "total_cost": rec.TotalCost})
	if err != nil {
		return Purchase{}, err
	}
	s.after(ctx, visibility.KindPurchase, string(rec.Status), rec.ScopeBases())
	return rec, nil
}

// CreateTransfer records a pending transfer after checking source stock.
func (s *Service) CreateTransfer(ctx context.Context, p rbac.Principal, in TransferInput, idemKey string) (Transfer, error) {
	in.normalize()
	if err := in.validate(s.validate); err != nil {
		return Transfer{}, err
	}
	if !canCreate(p, rbac.PermCreateTransfers, in.FromBaseID) {
		return Transfer{}, fmt.Errorf("%w: %s cannot transfer from %s", ErrNotPermitted, p.Role, in.FromBaseID)
	}
	item, err := in.item(s.now())
	if err != nil {
		return Transfer{}, err
	}
	eta, err := in.estimated()
	if err != nil {
		return Transfer{}, err
	}
	item.ID = uuid.New()
	rec := Transfer{
		Item:              item,
		FromBaseID:        in.FromBaseID,
		ToBaseID:          in.ToBaseID,
		Status:            TransferPending,
		RequestedBy:       p.Username,
		EstimatedDelivery: eta,
	}
	err = s.create(ctx, p, visibility.KindTransfer, idemKey, rec.ID, func(ctx context.Context, tx TxRepository) error {
		for _, b := range rec.ScopeBases() {
			if err := requireBase(ctx, tx, b); err != nil {
				return err
			}
		}
		available, err := tx.StockForUpdate(ctx, rec.FromBaseID, rec.ItemName)
		if err != nil {
			return err
		}
		if rec.Quantity > available {
			return shared.InsufficientStock(available, "transfer")
		}
		return tx.InsertTransfer(ctx, rec)
	}, map[string]any{"from_base_id": rec.FromBaseID, "to_base_id": rec.ToBaseID, "item": rec.ItemName, "quantity": rec.Quantity})
	if err != nil {
		return Transfer{}, err
	}
	s.after(ctx, visibility.KindTransfer, string(rec.Status), rec.ScopeBases())
	return rec, nil
}

// CreateAssignment issues stock to a service member and deducts it.
func (s *Service) CreateAssignment(ctx context.Context, p rbac.Principal, in AssignmentInput, idemKey string) (Assignment, error) {
	in.normalize()
	if err := in.validate(s.validate); err != nil {
		return Assignment{}, err
	}
	if !canCreate(p, rbac.PermCreateAssignments, in.BaseID) {
		return Assignment{}, fmt.Errorf("%w: %s cannot assign equipment at %s", ErrNotPermitted, p.Role, in.BaseID)
	}
	item, err := in.item(s.now())
	if err != nil {
		return Assignment{}, err
	}
	item.ID = uuid.New()
	rec := Assignment{
		Item:       item,
		AssignedTo: in.AssignedTo,
		Rank:       in.Rank,
		Unit:       in.Unit,
		BaseID:     in.BaseID,
		Status:     AssignmentActive,
		AssignedBy: p.Username,
	}
	err = s.create(ctx, p, visibility.KindAssignment, idemKey, rec.ID, func(ctx context.Context, tx TxRepository) error {
		if err := requireBase(ctx, tx, rec.BaseID); err != nil {
			return err
		}
		if err := applyStock(ctx, tx, []stockDelta{{
			BaseID: rec.BaseID, ItemName: rec.ItemName, EquipmentType: rec.EquipmentType,
			Delta: -rec.Quantity, Purpose: "assignment",
		}}); err != nil {
			return err
		}
		return tx.InsertAssignment(ctx, rec)
	}, map[string]any{"base_id": rec.BaseID, "item": rec.ItemName, "quantity": rec.Quantity, "assigned_to": rec.AssignedTo})
	if err != nil {
		return Assignment{}, err
	}
	s.after(ctx, visibility.KindAssignment, string(rec.Status), rec.ScopeBases())
	return rec, nil
}

// CreateExpenditure records consumed stock and deducts it.
func (s *Service) CreateExpenditure(ctx context.Context, p rbac.Principal, in ExpenditureInput, idemKey string) (Expenditure, error) {
	in.normalize()
	if err := in.validate(s.validate); err != nil {
		return Expenditure{}, err
	}
	if !canCreate(p, rbac.PermCreateAssignments, in.BaseID) {
		return Expenditure{}, fmt.Errorf("%w: %s cannot record expenditures at %s", ErrNotPermitted, p.Role, in.BaseID)
	}
	item, err := in.item(s.now())
	if err != nil {
		return Expenditure{}, err
	}
	item.ID = uuid.New()
	rec := Expenditure{
		Item:         item,
		Reason:       in.Reason,
		Unit:         in.Unit,
		Operation:    in.Operation,
		BaseID:       in.BaseID,
		AuthorizedBy: p.Username,
	}
	err = s.create(ctx, p, visibility.KindExpenditure, idemKey, rec.ID, func(ctx context.Context, tx TxRepository) error {
		if err := requireBase(ctx, tx, rec.BaseID); err != nil {
			return err
		}
		if err := applyStock(ctx, tx, []stockDelta{{
			BaseID: rec.BaseID, ItemName: rec.ItemName, EquipmentType: rec.EquipmentType, Delta: -rec.Quantity,
		}}); err != nil {
			return err
		}
		return tx.InsertExpenditure(ctx, rec)
	}, map[string]any{"base_id": rec.BaseID, "item": rec.ItemName, "quantity": rec.Quantity, "reason": rec.Reason})
	if err != nil {
		return Expenditure{}, err
	}
	s.after(ctx, visibility.KindExpenditure, "recorded", rec.ScopeBases())
	return rec, nil
}

// UpdatePurchaseStatus moves a purchase along its lifecycle.
func (s *Service) UpdatePurchaseStatus(ctx context.Context, p rbac.Principal, id uuid.UUID, in StatusInput) (Purchase, error) {
	if err := in.validate(); err != nil {
		return Purchase{}, err
	}
	to := PurchaseStatus(in.Status)
	var out Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.PurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !visibility.Allows(visibility.KindPurchase, p, rec) {
			return ErrNotFound
		}
		if !canCreate(p, rbac.PermCreatePurchases, rec.BaseID) {
			return ErrNotPermitted
		}
		if !CanMovePurchase(rec.Status, to) {
			return fmt.Errorf("%w: purchase %s -> %s", ErrInvalidStatus, rec.Status, in.Status)
		}
		if err := applyStock(ctx, tx, purchaseEffects(rec, to)); err != nil {
			return err
		}
		from := rec.Status
		rec.Status = to
		rec.Notes = appendNote(rec.Notes, in.Notes)
		if err := tx.UpdatePurchase(ctx, rec); err != nil {
			return err
		}
		out = rec
		return tx.RecordAudit(ctx, statusAudit(p, "PURCHASE", rec.ID, string(from), string(to), rec.ScopeBases()))
	})
	if err != nil {
		return Purchase{}, err
	}
	s.after(ctx, visibility.KindPurchase, string(out.Status), out.ScopeBases())
	return out, nil
}

// UpdateTransferStatus ships, delivers or cancels a transfer. Shipping and
// cancelling belong to the source base; either side may confirm delivery.
func (s *Service) UpdateTransferStatus(ctx context.Context, p rbac.Principal, id uuid.UUID, in StatusInput) (Transfer, error) {
	if err := in.validate(); err != nil {
		return Transfer{}, err
	}
	to := TransferStatus(in.Status)
	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.TransferForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !visibility.Allows(visibility.KindTransfer, p, rec) {
			return ErrNotFound
		}
		scope := p.CanAccessBase(rec.FromBaseID)
		if to == TransferDelivered {
			scope = scope || p.CanAccessBase(rec.ToBaseID)
		}
		if !p.Can(rbac.PermCreateTransfers) || !scope {
			return ErrNotPermitted
		}
		if !CanMoveTransfer(rec.Status, to) {
			return fmt.Errorf("%w: transfer %s -> %s", ErrInvalidStatus, rec.Status, in.Status)
		}
		if err := applyStock(ctx, tx, transferEffects(rec, rec.Status, to)); err != nil {
			return err
		}
		from := rec.Status
		rec.Status = to
		rec.Notes = appendNote(rec.Notes, in.Notes)
		switch to {
		case TransferInTransit:
			rec.ApprovedBy = p.Username
		case TransferDelivered:
			today := s.now().Truncate(24 * time.Hour)
			rec.ActualDelivery = &today
		}
		if err := tx.UpdateTransfer(ctx, rec); err != nil {
			return err
		}
		out = rec
		return tx.RecordAudit(ctx, statusAudit(p, "TRANSFER", rec.ID, string(from), string(to), rec.ScopeBases()))
	})
	if err != nil {
		return Transfer{}, err
	}
	s.after(ctx, visibility.KindTransfer, string(out.Status), out.ScopeBases())
	return out, nil
}

// UpdateAssignmentStatus closes an active assignment.
func (s *Service) UpdateAssignmentStatus(ctx context.Context, p rbac.Principal, id uuid.UUID, in StatusInput) (Assignment, error) {
	if err := in.validate(); err != nil {
		return Assignment{}, err
	}
	to := AssignmentStatus(in.Status)
	var out Assignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.AssignmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !visibility.Allows(visibility.KindAssignment, p, rec) {
			return ErrNotFound
		}
		if !canCreate(p, rbac.PermCreateAssignments, rec.BaseID) {
			return ErrNotPermitted
		}
		if !CanMoveAssignment(rec.Status, to) {
			return fmt.Errorf("%w: assignment %s -> %s", ErrInvalidStatus, rec.Status, in.Status)
		}
		if err := applyStock(ctx, tx, assignmentEffects(rec, to)); err != nil {
			return err
		}
		from := rec.Status
		rec.Status = to
		rec.Notes = appendNote(rec.Notes, in.Notes)
		if to == AssignmentReturned {
			today := s.now().Truncate(24 * time.Hour)
			rec.ReturnDate = &today
		}
		if err := tx.UpdateAssignment(ctx, rec); err != nil {
			return err
		}
		out = rec
		return tx.RecordAudit(ctx, statusAudit(p, "ASSIGNMENT", rec.ID, string(from), string(to), rec.ScopeBases()))
	})
	if err != nil {
		return Assignment{}, err
	}
	s.after(ctx, visibility.KindAssignment, string(out.Status), out.ScopeBases())
	return out, nil
}

// ListPurchases returns the purchases visible to p, newest first.
func (s *Service) ListPurchases(ctx context.Context, p rbac.Principal, q ListQuery) ([]Purchase, error) {
	if !visibility.CanList(visibility.KindPurchase, p) {
		return nil, ErrNotPermitted
	}
	rows, err := s.repo.ListPurchases(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	out := visibility.Apply(visibility.KindPurchase, p, rows, func(r Purchase) bool {
		return matchItem(q.Query, r.Item, r.ScopeBases()) &&
			visibility.MatchField(q.Status, string(r.Status)) &&
			visibility.MatchSearch(q.Search, r.ItemName, r.Supplier, r.PurchasedBy)
	})
	sortNewest(out, func(r Purchase) Item { return r.Item })
	return out, nil
}

// ListTransfers returns the transfers visible to p, newest first.
func (s *Service) ListTransfers(ctx context.Context, p rbac.Principal, q ListQuery) ([]Transfer, error) {
	if !visibility.CanList(visibility.KindTransfer, p) {
		return nil, ErrNotPermitted
	}
	rows, err := s.repo.ListTransfers(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	out := visibility.Apply(visibility.KindTransfer, p, rows, func(r Transfer) bool {
		return matchItem(q.Query, r.Item, r.ScopeBases()) &&
			visibility.MatchField(q.Status, string(r.Status)) &&
			visibility.MatchSearch(q.Search, r.ItemName, r.FromBaseID, r.ToBaseID, r.RequestedBy)
	})
	sortNewest(out, func(r Transfer) Item { return r.Item })
	return out, nil
}

// ListAssignments returns the assignments visible to p, newest first.
func (s *Service) ListAssignments(ctx context.Context, p rbac.Principal, q ListQuery) ([]Assignment, error) {
	if !visibility.CanList(visibility.KindAssignment, p) {
		return nil, ErrNotPermitted
	}
	rows, err := s.repo.ListAssignments(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	out := visibility.Apply(visibility.KindAssignment, p, rows, func(r Assignment) bool {
		return matchItem(q.Query, r.Item, r.ScopeBases()) &&
			visibility.MatchField(q.Status, string(r.Status)) &&
			visibility.MatchSearch(q.Search, r.ItemName, r.AssignedTo, r.Unit, r.Rank)
	})
	sortNewest(out, func(r Assignment) Item { return r.Item })
	return out, nil
}

// ListExpenditures returns the expenditures visible to p, newest first.
func (s *Service) ListExpenditures(ctx context.Context, p rbac.Principal, q ListQuery) ([]Expenditure, error) {
	if !visibility.CanList(visibility.KindExpenditure, p) {
		return nil, ErrNotPermitted
	}
	rows, err := s.repo.ListExpenditures(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	out := visibility.Apply(visibility.KindExpenditure, p, rows, func(r Expenditure) bool {
		return matchItem(q.Query, r.Item, r.ScopeBases()) &&
			visibility.MatchSearch(q.Search, r.ItemName, r.Reason, r.Unit, r.Operation)
	})
	sortNewest(out, func(r Expenditure) Item { return r.Item })
	return out, nil
}

// Stock returns the balances visible to p.
func (s *Service) Stock(ctx context.Context, p rbac.Principal, q visibility.Query) ([]StockBalance, error) {
	if !visibility.CanList(visibility.KindStock, p) {
		return nil, ErrNotPermitted
	}
	baseID := q.BaseID
	if baseID == visibility.All {
		baseID = ""
	}
	rows, err := s.repo.ListStock(ctx, baseID)
	if err != nil {
		return nil, err
	}
	return visibility.Apply(visibility.KindStock, p, rows, func(r StockBalance) bool {
		return visibility.MatchField(q.EquipmentType, string(r.EquipmentType)) &&
			visibility.MatchSearch(q.Search, r.ItemName)
	}), nil
}

func (s *Service) create(ctx context.Context, p rbac.Principal, kind visibility.Kind, idemKey string, id uuid.UUID, write func(context.Context, TxRepository) error, meta map[string]any) error {
	module := "assets." + string(kind)
	if idemKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ErrDuplicate
			}
			return err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := write(ctx, tx); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   strings.ToUpper(string(kind)) + "_CREATE",
			Entity:   string(kind),
			EntityID: id.String(),
			Meta:     meta,
			At:       s.now(),
		})
	})
	if err != nil && idemKey != "" && s.idempotency != nil {
		if derr := s.idempotency.Delete(ctx, idemKey, module); derr != nil {
			s.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", derr))
		}
	}
	return err
}

func (s *Service) after(ctx context.Context, kind visibility.Kind, status string, bases []string) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(kind), status)
	}
	s.logger.Info("movement recorded", slog.String("kind", string(kind)), slog.String("status", status), slog.Any("bases", bases))
	if s.events == nil {
		return
	}
	if err := s.events.MovementRecorded(ctx, kind, bases); err != nil {
		s.logger.Warn("notify movement", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}

// applyStock applies deltas in order, refusing any that would go negative.
func applyStock(ctx context.Context, tx TxRepository, deltas []stockDelta) error {
	for _, d := range deltas {
		if d.Delta < 0 {
			available, err := tx.StockForUpdate(ctx, d.BaseID, d.ItemName)
			if err != nil {
				return err
			}
			if available < -d.Delta {
				return shared.InsufficientStock(available, d.Purpose)
			}
		}
		if err := tx.AdjustStock(ctx, d.BaseID, d.ItemName, d.EquipmentType, d.Delta); err != nil {
			return err
		}
	}
	return nil
}

func requireBase(ctx context.Context, tx TxRepository, id string) error {
	ok, err := tx.BaseExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewValidationError("Unknown base %q.", id)
	}
	return nil
}

func statusAudit(p rbac.Principal, prefix string, id uuid.UUID, from, to string, bases []string) shared.AuditLog {
	meta := map[string]any{"from": from, "to": to, "actor": p.Username, "base_id": bases[0]}
	if len(bases) > 1 {
		meta["from_base_id"], meta["to_base_id"] = bases[0], bases[1]
	}
	return shared.AuditLog{
		ActorID:  p.ID,
		Action:   prefix + "_STATUS",
		Entity:   strings.ToLower(prefix),
		EntityID: id.String(),
		Meta:     meta,
	}
}

func matchItem(q visibility.Query, it Item, bases []string) bool {
	return visibility.MatchField(q.EquipmentType, string(it.EquipmentType)) && visibility.MatchBases(q.BaseID, bases...)
}

func sortNewest[T any](items []T, item func(T) Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := item(items[i]), item(items[j])
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func appendNote(existing, note string) string {
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	}
	return existing + "\n" + note
}

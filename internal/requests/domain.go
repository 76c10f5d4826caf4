package requests

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// Type classifies what a request asks for.
type Type string

const (
	TypePurchase   Type = "purchase"
	TypeTransfer   Type = "transfer"
	TypeAssignment Type = "assignment"
)

// IsValid reports whether t is a known request type.
func (t Type) IsValid() bool {
	switch t {
	case TypePurchase, TypeTransfer, TypeAssignment:
		return true
	}
	return false
}

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled}
}

// Priority orders requests in the review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// AssetRef identifies a single serialised asset inside a transfer request.
type AssetRef struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Condition string `json:"condition,omitempty"`
}

// Payload carries the type-specific details of a request.
type Payload struct {
	EquipmentType string     `json:"equipmentType,omitempty"`
	ItemName      string     `json:"itemName,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
	UnitCost      float64    `json:"unitCost,omitempty"`
	TotalCost     float64    `json:"totalCost,omitempty"`
	Supplier      string     `json:"supplier,omitempty"`
	FromBase      string     `json:"fromBase,omitempty"`
	ToBase        string     `json:"toBase,omitempty"`
	Assets        []AssetRef `json:"assets,omitempty"`
	Justification string     `json:"justification,omitempty"`
}

// Request is a submission travelling through the approval workflow.
type Request struct {
	ID          uuid.UUID  `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	RequestedBy string     `json:"requestedBy"`
	RequestedAt time.Time  `json:"requestedAt"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ApprovedBy  string     `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	RejectedBy  string     `json:"rejectedBy,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	CancelledBy string     `json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	BaseID      string     `json:"baseId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Data        Payload    `json:"data"`
}

// ScopeBases implements visibility.Record.
func (r Request) ScopeBases() []string { return []string{r.BaseID} }

// ScopeRequester implements visibility.Record.
func (r Request) ScopeRequester() string { return r.RequestedBy }

// ScopeEquipment implements visibility.Record.
func (r Request) ScopeEquipment() string { return r.Data.EquipmentType }

// Transition is the audit record written for every status change.
type Transition struct {
	ID            int64     `json:"id"`
	RequestID     uuid.UUID `json:"requestId"`
	Action        Action    `json:"action"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	ActorID       int64     `json:"actorId"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     rbac.Role `json:"actorRole"`
	Comment       string    `json:"comment,omitempty"`
	At            time.Time `json:"at"`
}

// StatusCounts aggregates visible requests per status.
type StatusCounts map[Status]int

// Errors returned by the requests module.
var (
	ErrNotFound          = fmt.Errorf("requests: %w", shared.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("requests: invalid state transition: %w", httpx.ErrConflict)
	ErrNotPermitted      = fmt.Errorf("requests: %w", shared.ErrForbidden)
	ErrDuplicate         = fmt.Errorf("requests: %w", httpx.ErrDuplicate)
)

// Package assets records equipment movements between bases: purchases,
// transfers, assignments to personnel and expenditures, together with the
// per-base stock balances they move.
package assets

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentinel-ops/sentinel/internal/platform/httpx"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// EquipmentType categorises stock items.
type EquipmentType string

const (
	EquipmentVehicles       EquipmentType = "vehicles"
	EquipmentWeapons        EquipmentType = "weapons"
	EquipmentAmmunition     EquipmentType = "ammunition"
	EquipmentCommunications EquipmentType = "communications"
	EquipmentMedical        EquipmentType = "medical"
)

// EquipmentTypes lists every equipment category.
func EquipmentTypes() []EquipmentType {
	return []EquipmentType{EquipmentVehicles, EquipmentWeapons, EquipmentAmmunition, EquipmentCommunications, EquipmentMedical}
}

// IsValid reports whether t is a known category.
func (t EquipmentType) IsValid() bool {
	for _, known := range EquipmentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Base is a military installation holding stock.
type Base struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is the part every movement record shares.
type Item struct {
	ID            uuid.UUID     `json:"id"`
	Date          time.Time     `json:"date"`
	EquipmentType EquipmentType `json:"equipmentType"`
	ItemName      string        `json:"itemName"`
	Quantity      int           `json:"quantity"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ScopeEquipment implements visibility.Record.
func (i Item) ScopeEquipment() string { return string(i.EquipmentType) }

// PurchaseStatus tracks a purchase order.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseApproved  PurchaseStatus = "approved"
	PurchaseDelivered PurchaseStatus = "delivered"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

// Purchase is stock bought from a supplier for one base.
type Purchase struct {
	Item
	UnitCost    float64        `json:"unitCost"`
	TotalCost   float64        `json:"totalCost"`
	Supplier    string         `json:"supplier"`
	BaseID      string         `json:"baseId"`
	Status      PurchaseStatus `json:"status"`
	PurchasedBy string         `json:"purchasedBy"`
}

func (p Purchase) ScopeBases() []string   { return []string{p.BaseID} }
func (p Purchase) ScopeRequester() string { return p.PurchasedBy }

// TransferStatus tracks stock moving between bases.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferInTransit TransferStatus = "in-transit"
	TransferDelivered TransferStatus = "delivered"
	TransferCancelled TransferStatus = "cancelled"
)

// Transfer moves stock from one base to another.
type Transfer struct {
	Item
	FromBaseID        string         `json:"fromBaseId"`
	ToBaseID          string         `json:"toBaseId"`
	Status            TransferStatus `json:"status"`
	RequestedBy       string         `json:"requestedBy"`
	ApprovedBy        string         `json:"approvedBy,omitempty"`
	EstimatedDelivery *time.Time     `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time     `json:"actualDelivery,omitempty"`
}

func (t Transfer) ScopeBases() []string   { return []string{t.FromBaseID, t.ToBaseID} }
func (t Transfer) ScopeRequester() string { return t.RequestedBy }

// AssignmentStatus tracks equipment issued to personnel.
type AssignmentStatus string

const (
	AssignmentActive   AssignmentStatus = "active"
	AssignmentReturned AssignmentStatus = "returned"
	AssignmentLost     AssignmentStatus = "lost"
	AssignmentDamaged  AssignmentStatus = "damaged"
)

// Assignment issues stock to a named service member.
type Assignment struct {
	Item
	AssignedTo string           `json:"assignedTo"`
	Rank       string           `json:"rank"`
	Unit       string           `json:"unit"`
	BaseID     string           `json:"baseId"`
	Status     AssignmentStatus `json:"status"`
	AssignedBy string           `json:"assignedBy"`
	ReturnDate *time.Time       `json:"returnDate,omitempty"`
}

func (a Assignment) ScopeBases() []string   { return []string{a.BaseID} }
func (a Assignment) ScopeRequester() string { return a.AssignedBy }

// Expenditure records stock consumed, typically ammunition or medical supplies.
type Expenditure struct {
	Item
	Reason       string `json:"reason"`
	Unit         string `json:"unit"`
	Operation    string `json:"operation,omitempty"`
	BaseID       string `json:"baseId"`
	AuthorizedBy string `json:"authorizedBy"`
}

func (e Expenditure) ScopeBases() []string   { return []string{e.BaseID} }
func (e Expenditure) ScopeRequester() string { return e.AuthorizedBy }

// StockBalance is the available quantity of one item at one base.
type StockBalance struct {
	BaseID        string        `json:"baseId"`
	ItemName      string        `json:"itemName"`
	EquipmentType EquipmentType `json:"equipmentType"`
	Quantity      int           `json:"quantity"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (s StockBalance) ScopeBases() []string   { return []string{s.BaseID} }
func (s StockBalance) ScopeRequester() string { return "" }
func (s StockBalance) ScopeEquipment() string { return string(s.EquipmentType) }

var (
	// ErrNotFound is returned for unknown or invisible records.
	ErrNotFound = fmt.Errorf("movement %w", shared.ErrNotFound)
	// ErrInvalidStatus is returned for a status change the lifecycle forbids.
	ErrInvalidStatus = fmt.Errorf("status change not allowed: %w", httpx.ErrConflict)
	// ErrNotPermitted is returned when the actor lacks the role or base scope.
	ErrNotPermitted = fmt.Errorf("movement %w", shared.ErrForbidden)
	// ErrDuplicate is returned when an Idempotency-Key was already used.
	ErrDuplicate = fmt.Errorf("movement already recorded: %w", httpx.ErrDuplicate)
)

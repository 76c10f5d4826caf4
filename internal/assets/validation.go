package assets

import (
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

const dateLayout = "2006-01-02"

// ItemInput is the part every movement form shares. Quantity is a pointer so
// that a missing value and a non-positive value report different messages.
type ItemInput struct {
	Date          string        `json:"date"`
	EquipmentType EquipmentType `json:"equipmentType" validate:"required,oneof=vehicles weapons ammunition communications medical"`
	ItemName      string        `json:"itemName" validate:"required,max=200"`
	Quantity      *int          `json:"quantity" validate:"required"`
	Notes         string        `json:"notes" validate:"max=2000"`
}

func (in *ItemInput) normalize() {
	in.Date = strings.TrimSpace(in.Date)
	in.ItemName = strings.TrimSpace(in.ItemName)
	in.Notes = strings.TrimSpace(in.Notes)
}

func (in ItemInput) check() error {
	if *in.Quantity <= 0 {
		return &shared.ValidationError{Message: shared.MsgQuantityPositive}
	}
	return nil
}

func (in ItemInput) item(now time.Time) (Item, error) {
	date := now.Truncate(24 * time.Hour)
	if in.Date != "" {
		parsed, err := time.Parse(dateLayout, in.Date)
		if err != nil {
			return Item{}, shared.NewValidationError("Invalid date %q, expected YYYY-MM-DD.", in.Date)
		}
		date = parsed
	}
	return Item{
		Date:          date,
		EquipmentType: in.EquipmentType,
		ItemName:      in.ItemName,
		Quantity:      *in.Quantity,
		Notes:         in.Notes,
		CreatedAt:     now,
	}, nil
}

// PurchaseInput is the new purchase form.
type PurchaseInput struct {
	ItemInput
	UnitCost *float64 `json:"unitCost" validate:"required"`
	Supplier string   `json:"supplier" validate:"required,max=200"`
	BaseID   string   `json:"baseId" validate:"required"`
}

func (in *PurchaseInput) normalize() {
	in.ItemInput.normalize()
	in.Supplier = strings.TrimSpace(in.Supplier)
	in.BaseID = strings.TrimSpace(in.BaseID)
}

func (in PurchaseInput) validate(v *validator.Validate) error {
	if err := shared.ValidateStruct(v, in); err != nil {
		return err
	}
	if err := in.check(); err != nil {
		return err
	}
	if *in.UnitCost <= 0 {
		return &shared.ValidationError{Message: shared.MsgUnitCostPositive}
	}
	return nil
}

// TransferInput is the new transfer form.
type TransferInput struct {
	ItemInput
	FromBaseID        string `json:"fromBaseId" validate:"required"`
	ToBaseID          string `json:"toBaseId" validate:"required"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

func (in *TransferInput) normalize() {
	in.ItemInput.normalize()
	in.FromBaseID = strings.TrimSpace(in.FromBaseID)
	in.ToBaseID = strings.TrimSpace(in.ToBaseID)
	in.EstimatedDelivery = strings.TrimSpace(in.EstimatedDelivery)
}

func (in TransferInput) validate(v *validator.Validate) error {
	if err := shared.ValidateStruct(v, in); err != nil {
		return err
	}
	if in.FromBaseID == in.ToBaseID {
		return &shared.ValidationError{Message: shared.MsgDistinctBases}
	}
	return in.check()
}

func (in TransferInput) estimated() (*time.Time, error) {
	if in.EstimatedDelivery == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, in.EstimatedDelivery)
	if err != nil {
		return nil, shared.NewValidationError("Invalid date %q, expected YYYY-MM-DD.", in.EstimatedDelivery)
	}
	return &t, nil
}

// AssignmentInput is the new assignment form.
type AssignmentInput struct {
	ItemInput
	AssignedTo string `json:"assignedTo" validate:"required,max=200"`
	Rank       string `json:"rank" validate:"required,max=60"`
	Unit       string `json:"unit" validate:"required,max=200"`
	BaseID     string `json:"baseId" validate:"required"`
}

func (in *AssignmentInput) normalize() {
	in.ItemInput.normalize()
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	in.Rank = strings.TrimSpace(in.Rank)
	in.Unit = strings.TrimSpace(in.Unit)
	in.BaseID = strings.TrimSpace(in.BaseID)
}

func (in AssignmentInput) validate(v *validator.Validate) error {
	if err := shared.ValidateStruct(v, in); err != nil {
		return err
	}
	return in.check()
}

// ExpenditureInput is the new expenditure form.
type ExpenditureInput struct {
	ItemInput
	Reason    string `json:"reason" validate:"required,max=500"`
	Unit      string `json:"unit" validate:"required,max=200"`
	Operation string `json:"operation" validate:"max=200"`
	BaseID    string `json:"baseId" validate:"required"`
}

func (in *ExpenditureInput) normalize() {
	in.ItemInput.normalize()
	in.Reason = strings.TrimSpace(in.Reason)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Operation = strings.TrimSpace(in.Operation)
	in.BaseID = strings.TrimSpace(in.BaseID)
}

func (in ExpenditureInput) validate(v *validator.Validate) error {
	if err := shared.ValidateStruct(v, in); err != nil {
		return err
	}
	return in.check()
}

// StatusInput changes the lifecycle status of a movement.
type StatusInput struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (in *StatusInput) validate() error {
	in.Status = strings.TrimSpace(in.Status)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Status == "" {
		return &shared.ValidationError{Message: shared.MsgRequiredFields}
	}
	return nil
}

func totalCost(qty int, unit float64) float64 {
	return math.Round(float64(qty)*unit*100) / 100
}

// canCreate reports whether p may record a movement of kind at baseID.
func canCreate(p rbac.Principal, perm rbac.Permission, baseID string) bool {
	return p.Can(perm) && p.CanAccessBase(baseID)
}

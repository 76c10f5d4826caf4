package requests

import (
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sentinel-ops/sentinel/internal/rbac"
	"github.com/sentinel-ops/sentinel/internal/shared"
)

// SubmitInput is the payload for a new request.
type SubmitInput struct {
	Type        Type     `json:"type" validate:"required,oneof=purchase transfer assignment"`
	BaseID      string   `json:"baseId" validate:"required"`
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=4000"`
	Priority    Priority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Data        Payload  `json:"data"`
}

func (in *SubmitInput) normalize() {
	in.BaseID = strings.TrimSpace(in.BaseID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Data.EquipmentType = strings.TrimSpace(in.Data.EquipmentType)
	in.Data.Supplier = strings.TrimSpace(in.Data.Supplier)
	in.Data.FromBase = strings.TrimSpace(in.Data.FromBase)
	in.Data.ToBase = strings.TrimSpace(in.Data.ToBase)
	if in.Type == TypeTransfer {
		if in.Data.FromBase == "" {
			in.Data.FromBase = in.BaseID
		}
		if in.Data.Quantity == 0 {
			in.Data.Quantity = len(in.Data.Assets)
		}
	}
	if in.Data.Quantity > 0 && in.Data.UnitCost > 0 {
		in.Data.TotalCost = math.Round(float64(in.Data.Quantity)*in.Data.UnitCost*100) / 100
	}
}

// validate checks the form and the type-specific payload.
func (in SubmitInput) validate(v *validator.Validate) error {
	if err := shared.ValidateStruct(v, in); err != nil {
		return err
	}
	d := in.Data
	if d.EquipmentType == "" {
		return &shared.ValidationError{Message: shared.MsgRequiredFields}
	}
	switch in.Type {
	case TypePurchase:
		if d.Supplier == "" {
			return &shared.ValidationError{Message: shared.MsgRequiredFields}
		}
		if d.Quantity <= 0 {
			return &shared.ValidationError{Message: shared.MsgQuantityPositive}
		}
		if d.UnitCost <= 0 {
			return &shared.ValidationError{Message: shared.MsgUnitCostPositive}
		}
	case TypeTransfer:
		if d.FromBase == "" || d.ToBase == "" {
			return &shared.ValidationError{Message: shared.MsgRequiredFields}
		}
		if d.FromBase == d.ToBase {
			return &shared.ValidationError{Message: shared.MsgDistinctBases}
		}
		if d.Quantity <= 0 {
			return &shared.ValidationError{Message: shared.MsgQuantityPositive}
		}
	case TypeAssignment:
		if d.Quantity <= 0 {
			return &shared.ValidationError{Message: shared.MsgQuantityPositive}
		}
		if d.UnitCost < 0 {
			return &shared.ValidationError{Message: shared.MsgUnitCostPositive}
		}
	}
	return nil
}

// CanSubmit reports whether p may submit a request of type t for baseID.
// Logistics officers submit purchase and transfer requests for any base;
// commanders submit for their own base; admins submit anything.
func CanSubmit(p rbac.Principal, t Type, baseID string) bool {
	var allowed bool
	switch t {
	case TypePurchase:
		allowed = p.Can(rbac.PermRequestPurchases) || p.Can(rbac.PermCreatePurchases)
	case TypeTransfer:
		allowed = p.Can(rbac.PermRequestTransfers) || p.Can(rbac.PermCreateTransfers)
	case TypeAssignment:
		allowed = p.Can(rbac.PermCreateAssignments)
	}
	return allowed && p.CanAccessBase(baseID)
}

// Package visibility decides which records a principal may see.
package visibility

import (
	"github.com/sentinel-ops/sentinel/internal/rbac"
)

// Kind names the record family a rule applies to.
type Kind string

const (
	KindRequest     Kind = "request"
	KindPurchase    Kind = "purchase"
	KindTransfer    Kind = "transfer"
	KindAssignment  Kind = "assignment"
	KindExpenditure Kind = "expenditure"
	KindStock       Kind = "stock"
)

// Record is implemented by every scoped domain record.
type Record interface {
	// ScopeBases returns the base ids the record belongs to. Transfers return
	// both the source and the destination.
	ScopeBases() []string
	// ScopeRequester returns the username that submitted the record.
	ScopeRequester() string
	// ScopeEquipment returns the equipment type, or "" when not applicable.
	ScopeEquipment() string
}

// logisticsEquipment is the purchase/transfer category set a logistics officer may see.
var logisticsEquipment = map[string]struct{}{
	"weapons":  {},
	"vehicles": {},
}

// LogisticsEquipment returns the equipment types visible to logistics officers.
func LogisticsEquipment() []string {
	return []string{"vehicles", "weapons"}
}

// Allows reports whether p may see rec of the given kind.
func Allows(kind Kind, p rbac.Principal, rec Record) bool {
	switch p.Role {
	case rbac.RoleAdmin:
		return true
	case rbac.RoleBaseCommander:
		if p.Username != "" && rec.ScopeRequester() == p.Username {
			return true
		}
		if p.BaseID == "" {
			return false
		}
		for _, b := range rec.ScopeBases() {
			if b == p.BaseID {
				return true
			}
		}
		return false
	case rbac.RoleLogisticsOfficer:
		switch kind {
		case KindRequest:
			return p.Username != "" && rec.ScopeRequester() == p.Username
		case KindPurchase, KindTransfer, KindStock:
			_, ok := logisticsEquipment[rec.ScopeEquipment()]
			return ok
		default:
			return false
		}
	}
	return false
}

// CanList reports whether p may list records of kind at all. It mirrors the
// view permissions of the matrix; requests are listable by every role.
func CanList(kind Kind, p rbac.Principal) bool {
	switch kind {
	case KindRequest:
		return p.Role.IsValid()
	case KindPurchase, KindStock:
		return p.Can(rbac.PermViewPurchases)
	case KindTransfer:
		return p.Can(rbac.PermViewTransfers)
	case KindAssignment, KindExpenditure:
		return p.Can(rbac.PermViewAssignments)
	}
	return false
}

// Filter returns the subset of items p may see, preserving order.
func Filter[T Record](kind Kind, p rbac.Principal, items []T) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if Allows(kind, p, it) {
			out = append(out, it)
		}
	}
	return out
}

// Apply runs the role filter first and then the caller's query predicate.
// match may be nil.
func Apply[T Record](kind Kind, p rbac.Principal, items []T, match func(T) bool) []T {
	scoped := Filter(kind, p, items)
	if match == nil {
		return scoped
	}
	out := scoped[:0]
	for _, it := range scoped {
		if match(it) {
			out = append(out, it)
		}
	}
	return out
}

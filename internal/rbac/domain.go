// Package rbac holds the static role/permission matrix and the HTTP guards
// built on top of it.
package rbac

import (
	"context"
	"sort"
)

// Role is the coarse account type attached to every user.
type Role string

const (
	RoleAdmin            Role = "admin"
	RoleBaseCommander    Role = "base_commander"
	RoleLogisticsOfficer Role = "logistics_officer"
)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleBaseCommander, RoleLogisticsOfficer}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleBaseCommander, RoleLogisticsOfficer:
		return true
	}
	return false
}

// DisplayName is the label shown next to a user's name.
func (r Role) DisplayName() string {
	switch r {
	case RoleAdmin:
		return "Administrator"
	case RoleBaseCommander:
		return "Base Commander"
	case RoleLogisticsOfficer:
		return "Logistics Officer"
	}
	return "Unknown"
}

// Permission is an atomic capability key.
type Permission string

const (
	PermViewAllBases      Permission = "canViewAllBases"
	PermManageUsers       Permission = "canManageUsers"
	PermViewPurchases     Permission = "canViewPurchases"
	PermCreatePurchases   Permission = "canCreatePurchases"
	PermViewTransfers     Permission = "canViewTransfers"
	PermCreateTransfers   Permission = "canCreateTransfers"
	PermViewAssignments   Permission = "canViewAssignments"
	PermCreateAssignments Permission = "canCreateAssignments"
	PermApproveRequests   Permission = "canApproveRequests"
	PermViewAllRequests   Permission = "canViewAllRequests"
	PermManageWorkflow    Permission = "canManageWorkflow"
	PermViewReports       Permission = "canViewReports"
	PermExportData        Permission = "canExportData"
	PermRequestPurchases  Permission = "canRequestPurchases"
	PermRequestTransfers  Permission = "canRequestTransfers"
)

// Permissions lists every permission key known to the matrix.
func Permissions() []Permission {
	return []Permission{
		PermViewAllBases,
		PermManageUsers,
		PermViewPurchases,
		PermCreatePurchases,
		PermViewTransfers,
		PermCreateTransfers,
		PermViewAssignments,
		PermCreateAssignments,
		PermApproveRequests,
		PermViewAllRequests,
		PermManageWorkflow,
		PermViewReports,
		PermExportData,
		PermRequestPurchases,
		PermRequestTransfers,
	}
}

// Principal describes the authenticated actor of a request.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     Role   `json:"role"`
	BaseID   string `json:"baseId,omitempty"`
}

// Can reports whether the principal's role holds perm.
func (p Principal) Can(perm Permission) bool {
	return HasPermission(p.Role, perm)
}

// CanAccessBase reports whether the principal may see records of baseID.
func (p Principal) CanAccessBase(baseID string) bool {
	switch p.Role {
	case RoleAdmin, RoleLogisticsOfficer:
		return true
	case RoleBaseCommander:
		return p.BaseID != "" && p.BaseID == baseID
	}
	return false
}

// Granted returns the sorted list of permissions held by the principal.
func (p Principal) Granted() []Permission {
	var out []Permission
	for perm, ok := range matrix[p.Role] {
		if ok {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

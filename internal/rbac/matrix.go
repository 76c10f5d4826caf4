package rbac

// matrix is fully enumerated per role; roles do not inherit from each other.
// It is never mutated after package initialisation.
var matrix = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermViewAllBases:      true,
		PermManageUsers:       true,
		PermViewPurchases:     true,
		PermCreatePurchases:   true,
		PermViewTransfers:     true,
		PermCreateTransfers:   true,
		PermViewAssignments:   true,
		PermCreateAssignments: true,
		PermApproveRequests:   true,
		PermViewAllRequests:   true,
		PermManageWorkflow:    true,
		PermViewReports:       true,
		PermExportData:        true,
		PermRequestPurchases:  false,
		PermRequestTransfers:  false,
	},
	RoleBaseCommander: {
		PermViewAllBases:      false,
		PermManageUsers:       false,
		PermViewPurchases:     true,
		PermCreatePurchases:   true,
		PermViewTransfers:     true,
		PermCreateTransfers:   true,
		PermViewAssignments:   true,
		PermCreateAssignments: true,
		PermApproveRequests:   true,
		PermViewAllRequests:   false,
		PermManageWorkflow:    false,
		PermViewReports:       true,
		PermExportData:        false,
		PermRequestPurchases:  false,
		PermRequestTransfers:  false,
	},
	RoleLogisticsOfficer: {
		PermViewAllBases:      true,
		PermManageUsers:       false,
		PermViewPurchases:     true,
		PermCreatePurchases:   false,
		PermViewTransfers:     true,
		PermCreateTransfers:   false,
		PermViewAssignments:   false,
		PermCreateAssignments: false,
		PermApproveRequests:   false,
		PermViewAllRequests:   false,
		PermManageWorkflow:    false,
		PermViewReports:       false,
		PermExportData:        false,
		PermRequestPurchases:  true,
		PermRequestTransfers:  true,
	},
}

// HasPermission reports whether role holds perm. Unknown roles and unknown
// permissions resolve to false.
func HasPermission(role Role, perm Permission) bool {
	return matrix[role][perm]
}

// Matrix returns a copy of the permission table for role.
func Matrix(role Role) map[Permission]bool {
	src, ok := matrix[role]
	if !ok {
		return map[Permission]bool{}
	}
	out := make(map[Permission]bool, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasPermissionMatchesTable(t *testing.T) {
	granted := map[Role][]Permission{
		RoleAdmin: {
			PermViewAllBases, PermManageUsers, PermViewPurchases, PermCreatePurchases,
			PermViewTransfers, PermCreateTransfers, PermViewAssignments, PermCreateAssignments,
			PermApproveRequests, PermViewAllRequests, PermManageWorkflow, PermViewReports, PermExportData,
		},
		RoleBaseCommander: {
			PermViewPurchases, PermCreatePurchases, PermViewTransfers, PermCreateTransfers,
			PermViewAssignments, PermCreateAssignments, PermApproveRequests, PermViewReports,
		},
		RoleLogisticsOfficer: {
			PermViewAllBases, PermViewPurchases, PermViewTransfers, PermRequestPurchases, PermRequestTransfers,
		},
	}
	for _, role := range Roles() {
		want := map[Permission]bool{}
		for _, p := range granted[role] {
			want[p] = true
		}
		for _, perm := range Permissions() {
			require.Equalf(t, want[perm], HasPermission(role, perm), "%s/%s", role, perm)
		}
	}
}

func TestHasPermissionUnknownInputs(t *testing.T) {
	require.False(t, HasPermission(Role("quartermaster"), PermViewPurchases))
	require.False(t, HasPermission(RoleAdmin, Permission("canLaunchMissiles")))
	require.False(t, HasPermission("", ""))
}

func TestMatrixReturnsCopy(t *testing.T) {
	m := Matrix(RoleLogisticsOfficer)
	m[PermExportData] = true
	require.False(t, HasPermission(RoleLogisticsOfficer, PermExportData))
	require.Len(t, Matrix(RoleAdmin), len(Permissions()))
	require.Empty(t, Matrix(Role("ghost")))
}

func TestCanAccessBase(t *testing.T) {
	admin := Principal{Role: RoleAdmin}
	commander := Principal{Role: RoleBaseCommander, BaseID: "base-alpha"}
	homeless := Principal{Role: RoleBaseCommander}
	logistics := Principal{Role: RoleLogisticsOfficer}
	unknown := Principal{Role: Role("ghost")}

	require.True(t, admin.CanAccessBase("base-bravo"))
	require.True(t, commander.CanAccessBase("base-alpha"))
	require.False(t, commander.CanAccessBase("base-bravo"))
	require.False(t, homeless.CanAccessBase(""))
	require.True(t, logistics.CanAccessBase("base-charlie"))
	require.False(t, unknown.CanAccessBase("base-alpha"))
}

func TestPrincipalGrantedSorted(t *testing.T) {
	p := Principal{Role: RoleLogisticsOfficer}
	require.Equal(t, []Permission{
		PermRequestPurchases, PermRequestTransfers, PermViewAllBases, PermViewPurchases, PermViewTransfers,
	}, p.Granted())
}

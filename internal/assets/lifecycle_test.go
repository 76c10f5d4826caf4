package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	for _, to := range []PurchaseStatus{PurchasePending, PurchaseApproved, PurchaseDelivered, PurchaseCancelled} {
		require.False(t, CanMovePurchase(PurchaseDelivered, to))
		require.False(t, CanMovePurchase(PurchaseCancelled, to))
	}
	for _, to := range []TransferStatus{TransferPending, TransferInTransit, TransferDelivered, TransferCancelled} {
		require.False(t, CanMoveTransfer(TransferDelivered, to))
		require.False(t, CanMoveTransfer(TransferCancelled, to))
	}
	for _, from := range []AssignmentStatus{AssignmentReturned, AssignmentLost, AssignmentDamaged} {
		require.False(t, CanMoveAssignment(from, AssignmentActive))
	}
}

func TestTransferEffects(t *testing.T) {
	tr := Transfer{Item: Item{ItemName: "M4", EquipmentType: EquipmentWeapons, Quantity: 3}, FromBaseID: "a", ToBaseID: "b"}

	require.Equal(t, []stockDelta{{BaseID: "a", ItemName: "M4", EquipmentType: EquipmentWeapons, Delta: -3, Purpose: "transfer"}},
		transferEffects(tr, TransferPending, TransferInTransit))
	require.Equal(t, []stockDelta{{BaseID: "b", ItemName: "M4", EquipmentType: EquipmentWeapons, Delta: 3}},
		transferEffects(tr, TransferInTransit, TransferDelivered))
	require.Empty(t, transferEffects(tr, TransferPending, TransferCancelled))
	require.Len(t, transferEffects(tr, TransferInTransit, TransferCancelled), 1)
}

func TestAssignmentEffectsOnlyOnReturn(t *testing.T) {
	a := Assignment{Item: Item{ItemName: "NVG", Quantity: 2}, BaseID: "a"}
	require.Len(t, assignmentEffects(a, AssignmentReturned), 1)
	require.Empty(t, assignmentEffects(a, AssignmentLost))
	require.Empty(t, assignmentEffects(a, AssignmentDamaged))
}

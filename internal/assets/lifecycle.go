package assets

var purchaseEdges = map[PurchaseStatus][]PurchaseStatus{
	PurchasePending:  {PurchaseApproved, PurchaseCancelled},
	PurchaseApproved: {PurchaseDelivered, PurchaseCancelled},
}

var transferEdges = map[TransferStatus][]TransferStatus{
	TransferPending:   {TransferInTransit, TransferCancelled},
	TransferInTransit: {TransferDelivered, TransferCancelled},
}

var assignmentEdges = map[AssignmentStatus][]AssignmentStatus{
	AssignmentActive: {AssignmentReturned, AssignmentLost, AssignmentDamaged},
}

func allowed[S comparable](edges map[S][]S, from, to S) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanMovePurchase reports whether a purchase may go from one status to another.
func CanMovePurchase(from, to PurchaseStatus) bool { return allowed(purchaseEdges, from, to) }

// CanMoveTransfer reports whether a transfer may go from one status to another.
func CanMoveTransfer(from, to TransferStatus) bool { return allowed(transferEdges, from, to) }

// CanMoveAssignment reports whether an assignment may go from one status to another.
func CanMoveAssignment(from, to AssignmentStatus) bool { return allowed(assignmentEdges, from, to) }

// stockDelta is a signed change to one balance row.
type stockDelta struct {
	BaseID        string
	ItemName      string
	EquipmentType EquipmentType
	Delta         int
	// Purpose is used in the insufficient stock message.
	Purpose string
}

// purchaseEffects returns the balance changes caused by a purchase status change.
// Stock arrives only on delivery.
func purchaseEffects(p Purchase, to PurchaseStatus) []stockDelta {
	if to != PurchaseDelivered {
		return nil
	}
	return []stockDelta{{BaseID: p.BaseID, ItemName: p.ItemName, EquipmentType: p.EquipmentType, Delta: p.Quantity}}
}

// transferEffects returns the balance changes for a transfer status change.
// Stock leaves the source when the transfer ships and lands on delivery; a
// cancelled shipment returns to the source.
func transferEffects(t Transfer, from, to TransferStatus) []stockDelta {
	src := stockDelta{BaseID: t.FromBaseID, ItemName: t.ItemName, EquipmentType: t.EquipmentType, Purpose: "transfer"}
	dst := stockDelta{BaseID: t.ToBaseID, ItemName: t.ItemName, EquipmentType: t.EquipmentType}
	switch {
	case to == TransferInTransit:
		src.Delta = -t.Quantity
		return []stockDelta{src}
	case to == TransferDelivered:
		dst.Delta = t.Quantity
		return []stockDelta{dst}
	case to == TransferCancelled && from == TransferInTransit:
		src.Delta = t.Quantity
		return []stockDelta{src}
	}
	return nil
}

// assignmentEffects returns the balance changes for an assignment status
// change. Returned equipment goes back into stock; lost or damaged does not.
func assignmentEffects(a Assignment, to AssignmentStatus) []stockDelta {
	if to != AssignmentReturned {
		return nil
	}
	return []stockDelta{{BaseID: a.BaseID, ItemName: a.ItemName, EquipmentType: a.EquipmentType, Delta: a.Quantity}}
}

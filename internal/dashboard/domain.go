// Package dashboard computes the stock movement summary shown on the landing
// page and the recent activity feed.
package dashboard

import (
	"time"
)

// Filter selects the movements that feed one Totals row. An empty BaseID
// means every base and an empty EquipmentTypes means every category. Zero
// bounds are unbounded.
type Filter struct {
	BaseID         string
	EquipmentTypes []string
	From           time.Time
	To             time.Time
}

// Totals sums movement quantities over a Filter.
type Totals struct {
	Purchases   int `json:"purchases"`
	TransferIn  int `json:"transferIn"`
	TransferOut int `json:"transferOut"`
	Assigned    int `json:"assigned"`
	Expended    int `json:"expended"`
}

// Net is purchases plus transfers in minus transfers out.
func (t Totals) Net() int {
	return t.Purchases + t.TransferIn - t.TransferOut
}

// Balance is the stock left after assignments and expenditures.
func (t Totals) Balance() int {
	return t.Net() - t.Assigned - t.Expended
}

// Metrics is the dashboard summary for one scope and window.
type Metrics struct {
	BaseID         string    `json:"baseId"`
	EquipmentTypes []string  `json:"equipmentTypes"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`

	OpeningBalance int `json:"openingBalance"`
	ClosingBalance int `json:"closingBalance"`
	NetMovement    int `json:"netMovement"`
	Purchases      int `json:"purchases"`
	TransferIn     int `json:"transferIn"`
	TransferOut    int `json:"transferOut"`
	Assigned       int `json:"assigned"`
	Expended       int `json:"expended"`

	PendingRequests     int `json:"pendingRequests"`
	UnderReviewRequests int `json:"underReviewRequests"`
	ApprovedRequests    int `json:"approvedRequests"`
	RejectedRequests    int `json:"rejectedRequests"`
	CancelledRequests   int `json:"cancelledRequests"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// Query is the caller's dashboard filter before role scoping.
type Query struct {
	BaseID        string
	EquipmentType string
	From          time.Time
	To            time.Time
}

// Package export renders request and movement records as CSV or XLSX
// downloads.
package export

import (
	"strconv"
	"time"

	"github.com/sentinel-ops/sentinel/internal/assets"
	"github.com/sentinel-ops/sentinel/internal/requests"
)

// Kind names an exportable record set.
type Kind string

const (
	KindRequests     Kind = "requests"
	KindPurchases    Kind = "purchases"
	KindTransfers    Kind = "transfers"
	KindAssignments  Kind = "assignments"
	KindExpenditures Kind = "expenditures"
)

// IsValid reports whether k is a known record set.
func (k Kind) IsValid() bool {
	switch k {
	case KindRequests, KindPurchases, KindTransfers, KindAssignments, KindExpenditures:
		return true
	}
	return false
}

// Format is the file encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Table is a rendered export: one header row plus string cells.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

func requestsTable(rows []requests.Request) Table {
	t := Table{
		Sheet: "Requests",
		Headers: []string{"ID", "Type", "Status", "Priority", "Title", "Base", "Requested By",
			"Requested At", "Equipment Type", "Item", "Quantity", "Reviewed By", "Approved By", "Rejected By"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.ID.String(),
			string(r.Type),
			string(r.Status),
			string(r.Priority),
			r.Title,
			r.BaseID,
			r.RequestedBy,
			formatTime(r.RequestedAt),
			r.Data.EquipmentType,
			r.Data.ItemName,
			formatInt(r.Data.Quantity),
			r.ReviewedBy,
			r.ApprovedBy,
			r.RejectedBy,
		})
	}
	return t
}

func purchasesTable(rows []assets.Purchase) Table {
	t := Table{
		Sheet: "Purchases",
		Headers: []string{"ID", "Date", "Base", "Equipment Type", "Item", "Quantity", "Unit Cost",
			"Total Cost", "Supplier", "Status", "Purchased By"},
	}
	for _, p := range rows {
		t.Rows = append(t.Rows, []string{
			p.ID.String(),
			formatDate(p.Date),
			p.BaseID,
			string(p.EquipmentType),
			p.ItemName,
			formatInt(p.Quantity),
			formatFloat(p.UnitCost),
			formatFloat(p.TotalCost),
			p.Supplier,
			string(p.Status),
			p.PurchasedBy,
		})
	}
	return t
}

func transfersTable(rows []assets.Transfer) Table {
	t := Table{
		Sheet: "Transfers",
		Headers: []string{"ID", "Date", "From Base", "To Base", "Equipment Type", "Item", "Quantity",
			"Status", "Requested By", "Approved By", "Estimated Delivery", "Actual Delivery"},
	}
	for _, tr := range rows {
		t.Rows = append(t.Rows, []string{
			tr.ID.String(),
			formatDate(tr.Date),
			tr.FromBaseID,
			tr.ToBaseID,
			string(tr.EquipmentType),
			tr.ItemName,
			formatInt(tr.Quantity),
			string(tr.Status),
			tr.RequestedBy,
			tr.ApprovedBy,
			formatDatePtr(tr.EstimatedDelivery),
			formatDatePtr(tr.ActualDelivery),
		})
	}
	return t
}

func assignmentsTable(rows []assets.Assignment) Table {
	t := Table{
		Sheet: "Assignments",
		Headers: []string{"ID", "Date", "Base", "Equipment Type", "Item", "Quantity", "Assigned To",
			"Rank", "Unit", "Status", "Assigned By", "Return Date"},
	}
	for _, a := range rows {
		t.Rows = append(t.Rows, []string{
			a.ID.String(),
			formatDate(a.Date),
			a.BaseID,
			string(a.EquipmentType),
			a.ItemName,
			formatInt(a.Quantity),
			a.AssignedTo,
			a.Rank,
			a.Unit,
			string(a.Status),
			a.AssignedBy,
			formatDatePtr(a.ReturnDate),
		})
	}
	return t
}

func expendituresTable(rows []assets.Expenditure) Table {
	t := Table{
		Sheet: "Expenditures",
		Headers: []string{"ID", "Date", "Base", "Equipment Type", "Item", "Quantity", "Reason",
			"Unit", "Operation", "Authorized By"},
	}
	for _, e := range rows {
		t.Rows = append(t.Rows, []string{
			e.ID.String(),
			formatDate(e.Date),
			e.BaseID,
			string(e.EquipmentType),
			e.ItemName,
			formatInt(e.Quantity),
			e.Reason,
			e.Unit,
			e.Operation,
			e.AuthorizedBy,
		})
	}
	return t
}

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package canonical

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidStatusTransition indicates an invoice lifecycle transition that is not allowed
	ErrInvalidStatusTransition = errors.New("canonical: invalid invoice status transition")
)

// ---------------------------------------------------------------------------
// InvoiceStatus
// ---------------------------------------------------------------------------

// InvoiceStatus represents the canonical invoice lifecycle state.
// The lifecycle is monotonic (draft → sent → paid → overdue → cancelled) except
// cancellation, which is reachable from any non-terminal state.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// IsValid returns true if the status is valid
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a final state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// rank orders the monotonic part of the lifecycle
func (s InvoiceStatus) rank() int {
	switch s {
	case InvoiceStatusDraft:
		return 0
	case InvoiceStatusSent:
		return 1
	case InvoiceStatusOverdue:
		return 2
	case InvoiceStatusPaid:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo returns true if the lifecycle allows moving to the target status
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	if !s.IsValid() || !target.IsValid() || s == target {
		return false
	}
	// Cancellation is reachable from any non-terminal state
	if target == InvoiceStatusCancelled {
		return !s.IsTerminal()
	}
	if s == InvoiceStatusCancelled {
		return false
	}
	return target.rank() > s.rank()
}

// ---------------------------------------------------------------------------
// CanonicalInvoice
// ---------------------------------------------------------------------------

// LineItem represents a single ordered line on a canonical invoice
type LineItem struct {
	// Description is the line description
	Description string `json:"description" validate:"required"`
	// Quantity is the ordered quantity
	Quantity decimal.Decimal `json:"quantity"`
	// UnitPrice is the price per unit
	UnitPrice decimal.Decimal `json:"unit_price"`
	// LineTotal is the computed line total (quantity * unit price)
	LineTotal decimal.Decimal `json:"line_total"`
}

// CanonicalInvoice is the system-neutral representation of an invoice
type CanonicalInvoice struct {
	// InternalID is the immutable internal id
	InternalID string `json:"internal_id" validate:"required"`
	// Number is the invoice number, unique and immutable once issued
	Number string `json:"number" validate:"required"`
	// CustomerID references the internal customer id
	CustomerID string `json:"customer_id" validate:"required"`
	// Lines contains the ordered line items
	Lines []LineItem `json:"lines" validate:"min=1,dive"`
	// Subtotal is the sum of line totals before tax
	Subtotal decimal.Decimal `json:"subtotal"`
	// Tax is the total tax amount
	Tax decimal.Decimal `json:"tax"`
	// Total is subtotal plus tax
	Total decimal.Decimal `json:"total"`
	// Currency is the ISO currency code
	Currency string `json:"currency" validate:"required,len=3"`
	// Status is the canonical lifecycle status
	Status InvoiceStatus `json:"status"`
	// IssueDate is when the invoice was issued
	IssueDate time.Time `json:"issue_date"`
	// DueDate is when payment is due (optional)
	DueDate *time.Time `json:"due_date,omitempty"`
}

// ComputeTotals recomputes line totals, subtotal and total from the line items
func (inv *CanonicalInvoice) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range inv.Lines {
		inv.Lines[i].LineTotal = inv.Lines[i].Quantity.Mul(inv.Lines[i].UnitPrice)
		subtotal = subtotal.Add(inv.Lines[i].LineTotal)
	}
	inv.Subtotal = subtotal
	inv.Total = subtotal.Add(inv.Tax)
}

// Transition moves the invoice to the target status, enforcing the lifecycle rules
func (inv *CanonicalInvoice) Transition(target InvoiceStatus) error {
	if !inv.Status.CanTransitionTo(target) {
		return ErrInvalidStatusTransition
	}
	inv.Status = target
	return nil
}

package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// booksDateLayout is the date format Books uses in record fields
const booksDateLayout = "2006-01-02"

// booksTimeLayout is the timestamp format Books uses for modification times
const booksTimeLayout = "2006-01-02T15:04:05-0700"

// Books API result codes
const (
	booksCodeSuccess       = 0
	booksCodeDuplicate     = 4062
	booksCodeNotFound      = 1002
	booksCodeInvalidValue  = 15
	booksCodeMandatoryMiss = 4
)

// BooksTokenResponse is the OAuth token endpoint response
type BooksTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// BooksResponse is the envelope every Books API response shares
type BooksResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IsSuccess returns true if the call succeeded
func (r *BooksResponse) IsSuccess() bool {
	return r.Code == booksCodeSuccess
}

// BooksLineItem is the wire shape of an invoice line
type BooksLineItem struct {
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
	Rate     decimal.Decimal `json:"rate"`
}

// BooksInvoice is the wire shape of a Books invoice
type BooksInvoice struct {
	InvoiceID        string          `json:"invoice_id,omitempty"`
	InvoiceNumber    string          `json:"invoice_number,omitempty"`
	CustomerID       string          `json:"customer_id,omitempty"`
	ReferenceNumber  string          `json:"reference_number,omitempty"`
	Status           string          `json:"status,omitempty"`
	Date             string          `json:"date,omitempty"`
	DueDate          string          `json:"due_date,omitempty"`
	CurrencyCode     string          `json:"currency_code,omitempty"`
	LineItems        []BooksLineItem `json:"line_items,omitempty"`
	SubTotal         decimal.Decimal `json:"sub_total,omitempty"`
	TaxTotal         decimal.Decimal `json:"tax_total,omitempty"`
	Total            decimal.Decimal `json:"total,omitempty"`
	LastModifiedTime string          `json:"last_modified_time,omitempty"`
}

// ModifiedAt parses the invoice's modification timestamp
func (inv *BooksInvoice) ModifiedAt() time.Time {
	t, err := time.Parse(booksTimeLayout, inv.LastModifiedTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ToCanonical normalizes a Books invoice into the canonical shape. The
// reference number carries the internal id round trip; needsStatusDefault is
// true when the remote status had no canonical equivalent.
func (inv *BooksInvoice) ToCanonical() (invoice *canonical.CanonicalInvoice, unmappedStatus string) {
	status, ok := invoiceStatusFromBooks(inv.Status)
	if !ok {
		unmappedStatus = inv.Status
		status = canonical.InvoiceStatusDraft
	}

	out := &canonical.CanonicalInvoice{
		InternalID: inv.ReferenceNumber,
		Number:     inv.InvoiceNumber,
		Lines:      make([]canonical.LineItem, 0, len(inv.LineItems)),
		Subtotal:   inv.SubTotal,
		Tax:        inv.TaxTotal,
		Total:      inv.Total,
		Currency:   inv.CurrencyCode,
		Status:     status,
	}
	if d, err := time.Parse(booksDateLayout, inv.Date); err == nil {
		out.IssueDate = d
	}
	if inv.DueDate != "" {
		if d, err := time.Parse(booksDateLayout, inv.DueDate); err == nil {
			out.DueDate = &d
		}
	}
	for _, line := range inv.LineItems {
		out.Lines = append(out.Lines, canonical.LineItem{
			Description: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.Rate,
			LineTotal:   line.Quantity.Mul(line.Rate),
		})
	}
	return out, unmappedStatus
}

// invoiceFromCanonical maps the canonical invoice to the wire shape
func invoiceFromCanonical(invoice *canonical.CanonicalInvoice, customerID string) BooksInvoice {
	out := BooksInvoice{
		InvoiceNumber:   invoice.Number,
		CustomerID:      customerID,
		ReferenceNumber: invoice.InternalID,
		Date:            invoice.IssueDate.Format(booksDateLayout),
		CurrencyCode:    invoice.Currency,
		LineItems:       make([]BooksLineItem, 0, len(invoice.Lines)),
	}
	if invoice.DueDate != nil {
		out.DueDate = invoice.DueDate.Format(booksDateLayout)
	}
	for _, line := range invoice.Lines {
		out.LineItems = append(out.LineItems, BooksLineItem{
			Name:     line.Description,
			Quantity: line.Quantity,
			Rate:     line.UnitPrice,
		})
	}
	return out
}

// invoiceStatusFromBooks maps Books statuses back to the canonical lifecycle.
// ok is false when the remote status has no canonical equivalent.
func invoiceStatusFromBooks(status string) (canonical.InvoiceStatus, bool) {
	switch status {
	case "draft":
		return canonical.InvoiceStatusDraft, true
	case "sent", "viewed", "unpaid", "partially_paid":
		return canonical.InvoiceStatusSent, true
	case "paid":
		return canonical.InvoiceStatusPaid, true
	case "overdue":
		return canonical.InvoiceStatusOverdue, true
	case "void":
		return canonical.InvoiceStatusCancelled, true
	default:
		return canonical.InvoiceStatusDraft, false
	}
}

// BooksPayment is the wire shape of a customer payment
type BooksPayment struct {
	PaymentID       string          `json:"payment_id,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	InvoiceID       string          `json:"invoice_id,omitempty"`
	PaymentMode     string          `json:"payment_mode,omitempty"`
	Amount          decimal.Decimal `json:"amount,omitempty"`
	Date            string          `json:"date,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
}

// paymentModeFromMethod maps the canonical payment method to a Books mode
func paymentModeFromMethod(method canonical.PaymentMethod) string {
	switch method {
	case canonical.PaymentMethodCard:
		return "creditcard"
	case canonical.PaymentMethodBankTransfer:
		return "banktransfer"
	case canonical.PaymentMethodCash:
		return "cash"
	case canonical.PaymentMethodLedgerAsset:
		return "others"
	default:
		return "others"
	}
}

// BooksContact is the wire shape of a Books contact. The custom field
// carries the internal id round trip and is what contact lookups filter on.
type BooksContact struct {
	ContactID     string `json:"contact_id,omitempty"`
	ContactName   string `json:"contact_name,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	CFInternalRef string `json:"cf_internal_ref,omitempty"`
}

// contactFromCanonical maps the canonical customer to the wire shape
func contactFromCanonical(customer *canonical.CanonicalCustomer) BooksContact {
	return BooksContact{
		ContactName:   customer.Name,
		CompanyName:   customer.Organization,
		Email:         customer.Email,
		Phone:         customer.Phone,
		CFInternalRef: customer.InternalID,
	}
}

// BooksPageContext carries the paging cursor of list responses
type BooksPageContext struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	HasMorePage bool `json:"has_more_page"`
}

// BooksBankTransaction is one settled transaction from a bank feed
type BooksBankTransaction struct {
	TransactionID   string          `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyCode    string          `json:"currency_code"`
	ReferenceNumber string          `json:"reference_number"`
	Description     string          `json:"description"`
	Date            string          `json:"date"`
}

// SettledAt parses the transaction date
func (t *BooksBankTransaction) SettledAt() time.Time {
	d, err := time.Parse(booksDateLayout, t.Date)
	if err != nil {
		return time.Time{}
	}
	return d
}

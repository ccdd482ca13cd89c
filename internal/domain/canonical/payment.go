package canonical

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod represents how a canonical payment was made
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodLedgerAsset  PaymentMethod = "LEDGER_ASSET"
	PaymentMethodCash         PaymentMethod = "CASH"
)

// IsValid returns true if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodLedgerAsset, PaymentMethodCash:
		return true
	default:
		return false
	}
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// CanonicalPayment is the system-neutral representation of a payment
type CanonicalPayment struct {
	// InternalID is the immutable internal id
	InternalID string `json:"internal_id" validate:"required"`
	// InvoiceID references the internal invoice id the payment settles
	InvoiceID string `json:"invoice_id" validate:"required"`
	// Amount is the paid amount
	Amount decimal.Decimal `json:"amount"`
	// Currency is the ISO currency code
	Currency string `json:"currency" validate:"required,len=3"`
	// Method is the payment method
	Method PaymentMethod `json:"method"`
	// PaidAt is the payment date
	PaidAt time.Time `json:"paid_at"`
	// GatewayReference is the external payment gateway transaction reference (optional)
	GatewayReference string `json:"gateway_reference,omitempty"`
}

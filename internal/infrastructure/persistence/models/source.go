package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// Internal authoritative tables. Canonical shapes are derived from these rows
// on demand and never persisted independently.

// CustomerModel is the authoritative internal customer record.
type CustomerModel struct {
	InternalID     string    `gorm:"type:varchar(64);primary_key"`
	Name           string    `gorm:"type:varchar(255);not null"`
	Email          string    `gorm:"type:varchar(255)"`
	Phone          string    `gorm:"type:varchar(50)"`
	Organization   string    `gorm:"type:varchar(255)"`
	Classification string    `gorm:"type:varchar(50)"`
	Tags           string    `gorm:"type:text"`
	LastActivityAt time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToCanonical derives the canonical customer shape from the internal record
func (m *CustomerModel) ToCanonical() *canonical.CanonicalCustomer {
	c := &canonical.CanonicalCustomer{
		InternalID:     m.InternalID,
		Name:           m.Name,
		Email:          m.Email,
		Phone:          m.Phone,
		Organization:   m.Organization,
		Classification: m.Classification,
		LastActivityAt: m.LastActivityAt,
	}
	if m.Tags != "" {
		c.Tags = strings.Split(m.Tags, ",")
	}
	return c
}

// InvoiceModel is the authoritative internal invoice record.
type InvoiceModel struct {
	InternalID string                  `gorm:"type:varchar(64);primary_key"`
	Number     string                  `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID string                  `gorm:"type:varchar(64);not null;index"`
	LinesJSON  string                  `gorm:"type:text;column:lines"`
	Subtotal   decimal.Decimal         `gorm:"type:decimal(20,2);not null"`
	Tax        decimal.Decimal         `gorm:"type:decimal(20,2);not null"`
	Total      decimal.Decimal         `gorm:"type:decimal(20,2);not null"`
	Currency   string                  `gorm:"type:varchar(3);not null"`
	Status     canonical.InvoiceStatus `gorm:"type:varchar(12);not null;index"`
	IssueDate  time.Time               `gorm:"not null"`
	DueDate    *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToCanonical derives the canonical invoice shape from the internal record
func (m *InvoiceModel) ToCanonical() *canonical.CanonicalInvoice {
	inv := &canonical.CanonicalInvoice{
		InternalID: m.InternalID,
		Number:     m.Number,
		CustomerID: m.CustomerID,
		Lines:      make([]canonical.LineItem, 0),
		Subtotal:   m.Subtotal,
		Tax:        m.Tax,
		Total:      m.Total,
		Currency:   m.Currency,
		Status:     m.Status,
		IssueDate:  m.IssueDate,
		DueDate:    m.DueDate,
	}
	if m.LinesJSON != "" {
		var lines []canonical.LineItem
		if err := json.Unmarshal([]byte(m.LinesJSON), &lines); err == nil {
			inv.Lines = lines
		}
	}
	return inv
}

// PaymentModel is the authoritative internal payment record.
type PaymentModel struct {
	InternalID       string                  `gorm:"type:varchar(64);primary_key"`
	InvoiceID        string                  `gorm:"type:varchar(64);not null;index"`
	Amount           decimal.Decimal         `gorm:"type:decimal(20,2);not null"`
	Currency         string                  `gorm:"type:varchar(3);not null"`
	Method           canonical.PaymentMethod `gorm:"type:varchar(20);not null"`
	PaidAt           time.Time               `gorm:"not null"`
	GatewayReference string                  `gorm:"type:varchar(100)"`
	CreatedAt        time.Time               `gorm:"not null"`
	UpdatedAt        time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToCanonical derives the canonical payment shape from the internal record
func (m *PaymentModel) ToCanonical() *canonical.CanonicalPayment {
	return &canonical.CanonicalPayment{
		InternalID:       m.InternalID,
		InvoiceID:        m.InvoiceID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Method:           m.Method,
		PaidAt:           m.PaidAt,
		GatewayReference: m.GatewayReference,
	}
}

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
	"github.com/partpulse/gateway/internal/infrastructure/persistence/models"
)

func TestEntitySourceCustomer(t *testing.T) {
	db := setupTestDB(t)
	source := NewGormEntitySource(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CustomerModel{
		InternalID:     "CUST-1001",
		Name:           "Garage Nord",
		Email:          "ops@garagenord.example",
		Phone:          "+49 30 1234567",
		Organization:   "Garage Nord GmbH",
		Classification: "workshop",
		Tags:           "priority,b2b",
		LastActivityAt: time.Now().UTC(),
	}).Error)

	customer, err := source.Customer(ctx, "CUST-1001")
	require.NoError(t, err)
	assert.Equal(t, "Garage Nord", customer.Name)
	assert.Equal(t, []string{"priority", "b2b"}, customer.Tags)
	assert.Equal(t, "workshop", customer.Classification)
}

func TestEntitySourceCustomerMissing(t *testing.T) {
	db := setupTestDB(t)
	source := NewGormEntitySource(db)

	_, err := source.Customer(context.Background(), "CUST-404")
	assert.ErrorIs(t, err, gateway.ErrEntityNotFound)
}

func TestEntitySourceInvoice(t *testing.T) {
	db := setupTestDB(t)
	source := NewGormEntitySource(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.InvoiceModel{
		InternalID: "INV-1001",
		Number:     "2026-0042",
		CustomerID: "CUST-1001",
		LinesJSON:  `[{"description":"Brake pad set","quantity":"2","unit_price":"45.00","line_total":"90.00"}]`,
		Subtotal:   decimal.NewFromInt(90),
		Tax:        decimal.NewFromFloat(17.10),
		Total:      decimal.NewFromFloat(107.10),
		Currency:   "EUR",
		Status:     canonical.InvoiceStatusSent,
		IssueDate:  time.Now().UTC(),
	}).Error)

	invoice, err := source.Invoice(ctx, "INV-1001")
	require.NoError(t, err)
	assert.Equal(t, "2026-0042", invoice.Number)
	assert.Equal(t, canonical.InvoiceStatusSent, invoice.Status)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "Brake pad set", invoice.Lines[0].Description)
	assert.True(t, invoice.Total.Equal(decimal.NewFromFloat(107.10)))
}

func TestEntitySourcePayment(t *testing.T) {
	db := setupTestDB(t)
	source := NewGormEntitySource(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.PaymentModel{
		InternalID: "PAY-2001",
		InvoiceID:  "INV-1001",
		Amount:     decimal.NewFromFloat(107.10),
		Currency:   "EUR",
		Method:     canonical.PaymentMethodBankTransfer,
		PaidAt:     time.Now().UTC(),
	}).Error)

	payment, err := source.Payment(ctx, "PAY-2001")
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", payment.InvoiceID)
	assert.Equal(t, canonical.PaymentMethodBankTransfer, payment.Method)
}

func TestEntitySourceLoadDispatch(t *testing.T) {
	db := setupTestDB(t)
	source := NewGormEntitySource(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CustomerModel{
		InternalID:     "CUST-1001",
		Name:           "Garage Nord",
		LastActivityAt: time.Now().UTC(),
	}).Error)

	record, err := source.Load(ctx, canonical.RecordKindCustomer, "CUST-1001")
	require.NoError(t, err)
	assert.Equal(t, canonical.RecordKindCustomer, record.RecordKind())
	assert.Equal(t, "CUST-1001", record.RecordID())

	_, err = source.Load(ctx, canonical.RecordKindProvenance, "PRT-1")
	assert.ErrorIs(t, err, gateway.ErrUnsupportedRecord)
}

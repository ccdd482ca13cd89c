package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/canonical"
	"github.com/partpulse/gateway/internal/domain/gateway"
)

const (
	// maxBooksResponseSize limits the response body size to prevent memory exhaustion
	maxBooksResponseSize = 10 * 1024 * 1024

	// tokenExpirySlack refreshes the access token slightly before Books expires it
	tokenExpirySlack = time.Minute
)

// ZohoBooksAdapter implements gateway.Adapter and gateway.SettlementSource for
// the Zoho Books accounting platform
type ZohoBooksAdapter struct {
	config     *ZohoBooksConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewZohoBooksAdapter creates a new Zoho Books adapter with the given configuration
func NewZohoBooksAdapter(config *ZohoBooksConfig, logger *zap.Logger) (*ZohoBooksAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ZohoBooksAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

var (
	_ gateway.Adapter          = (*ZohoBooksAdapter)(nil)
	_ gateway.SettlementSource = (*ZohoBooksAdapter)(nil)
)

// SystemCode returns the system this adapter speaks to
func (a *ZohoBooksAdapter) SystemCode() gateway.SystemCode {
	return gateway.SystemCodeZohoBooks
}

// Handles reports whether the adapter maps the given record kind
func (a *ZohoBooksAdapter) Handles(kind canonical.RecordKind) bool {
	switch kind {
	case canonical.RecordKindCustomer, canonical.RecordKindInvoice, canonical.RecordKindPayment:
		return true
	default:
		return false
	}
}

// Connect exchanges the refresh token for an access token. Calling it while a
// valid token is held is a no-op.
func (a *ZohoBooksAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}
	return a.refreshTokenLocked(ctx)
}

func (a *ZohoBooksAdapter) refreshTokenLocked(ctx context.Context) error {
	form := url.Values{
		"refresh_token": {a.config.RefreshToken},
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"grant_type":    {"refresh_token"},
	}

	endpoint := a.config.AccountsURL + "/oauth/v2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("zoho books: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBooksResponseSize))
	if err != nil {
		return fmt.Errorf("zoho books: failed to read token response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: token endpoint HTTP %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var token BooksTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("zoho books: failed to parse token response: %w", err)
	}
	if token.Error != "" || token.AccessToken == "" {
		a.logger.Warn("zoho books token refresh rejected", zap.String("error", token.Error))
		return fmt.Errorf("%w: %s", gateway.ErrAuthentication, token.Error)
	}

	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpirySlack)
	return nil
}

// ---------------------------------------------------------------------------
// Record operations
// ---------------------------------------------------------------------------

// CreateRecord creates the mapped record and returns its Books id
func (a *ZohoBooksAdapter) CreateRecord(ctx context.Context, record canonical.Record) (string, error) {
	switch rec := record.(type) {
	case *canonical.CanonicalCustomer:
		return a.createContact(ctx, rec)
	case *canonical.CanonicalInvoice:
		return a.createInvoice(ctx, rec)
	case *canonical.CanonicalPayment:
		return a.createPayment(ctx, rec)
	default:
		return "", fmt.Errorf("%w: %s", gateway.ErrUnsupportedRecord, record.RecordKind())
	}
}

// UpdateRecord updates an existing remote record by Books id
func (a *ZohoBooksAdapter) UpdateRecord(ctx context.Context, externalID string, record canonical.Record) error {
	switch rec := record.(type) {
	case *canonical.CanonicalCustomer:
		return a.updateContact(ctx, externalID, rec)
	case *canonical.CanonicalInvoice:
		return a.updateInvoice(ctx, externalID, rec)
	case *canonical.CanonicalPayment:
		// Payments are immutable in Books; a settled payment is never edited
		return nil
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnsupportedRecord, record.RecordKind())
	}
}

func (a *ZohoBooksAdapter) createContact(ctx context.Context, customer *canonical.CanonicalCustomer) (string, error) {
	// Duplicate detection goes through the internal ref, not the display name
	if existing, err := a.findContactID(ctx, customer.InternalID); err == nil && existing != "" {
		return "", &gateway.ConflictError{ExistingExternalID: existing}
	}

	var resp struct {
		BooksResponse
		Contact BooksContact `json:"contact"`
	}
	if err := a.call(ctx, http.MethodPost, "/contacts", nil, contactFromCanonical(customer), &resp); err != nil {
		return "", err
	}
	return resp.Contact.ContactID, nil
}

func (a *ZohoBooksAdapter) updateContact(ctx context.Context, externalID string, customer *canonical.CanonicalCustomer) error {
	var resp struct {
		BooksResponse
		Contact BooksContact `json:"contact"`
	}
	return a.call(ctx, http.MethodPut, "/contacts/"+externalID, nil, contactFromCanonical(customer), &resp)
}

func (a *ZohoBooksAdapter) createInvoice(ctx context.Context, invoice *canonical.CanonicalInvoice) (string, error) {
	contactID, err := a.requireContactID(ctx, invoice.CustomerID)
	if err != nil {
		return "", err
	}

	var resp struct {
		BooksResponse
		Invoice BooksInvoice `json:"invoice"`
	}
	err = a.call(ctx, http.MethodPost, "/invoices", nil, invoiceFromCanonical(invoice, contactID), &resp)
	if err != nil {
		if conflict := a.resolveInvoiceConflict(ctx, invoice, err); conflict != nil {
			return "", conflict
		}
		return "", err
	}

	if err := a.pushInvoiceStatus(ctx, resp.Invoice.InvoiceID, invoice.Status); err != nil {
		return "", err
	}
	return resp.Invoice.InvoiceID, nil
}

func (a *ZohoBooksAdapter) updateInvoice(ctx context.Context, externalID string, invoice *canonical.CanonicalInvoice) error {
	contactID, err := a.requireContactID(ctx, invoice.CustomerID)
	if err != nil {
		return err
	}

	var resp struct {
		BooksResponse
		Invoice BooksInvoice `json:"invoice"`
	}
	if err := a.call(ctx, http.MethodPut, "/invoices/"+externalID, nil, invoiceFromCanonical(invoice, contactID), &resp); err != nil {
		return err
	}
	return a.pushInvoiceStatus(ctx, externalID, invoice.Status)
}

// pushInvoiceStatus propagates lifecycle transitions Books models as marking
// endpoints. Draft needs nothing; paid happens through payments; overdue is
// derived remotely from the due date.
func (a *ZohoBooksAdapter) pushInvoiceStatus(ctx context.Context, invoiceID string, status canonical.InvoiceStatus) error {
	var action string
	switch status {
	case canonical.InvoiceStatusSent:
		action = "sent"
	case canonical.InvoiceStatusCancelled:
		action = "void"
	default:
		return nil
	}

	var resp BooksResponse
	return a.call(ctx, http.MethodPost, fmt.Sprintf("/invoices/%s/status/%s", invoiceID, action), nil, nil, &resp)
}

func (a *ZohoBooksAdapter) createPayment(ctx context.Context, payment *canonical.CanonicalPayment) (string, error) {
	invoiceID, contactID, err := a.findInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return "", err
	}

	var resp struct {
		BooksResponse
		Payment BooksPayment `json:"payment"`
	}
	body := BooksPayment{
		CustomerID:      contactID,
		InvoiceID:       invoiceID,
		PaymentMode:     paymentModeFromMethod(payment.Method),
		Amount:          payment.Amount,
		Date:            payment.PaidAt.Format(booksDateLayout),
		ReferenceNumber: payment.InternalID,
	}
	if err := a.call(ctx, http.MethodPost, "/customerpayments", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Payment.PaymentID, nil
}

// resolveInvoiceConflict converts a duplicate-number rejection into a typed
// conflict carrying the existing invoice's id
func (a *ZohoBooksAdapter) resolveInvoiceConflict(ctx context.Context, invoice *canonical.CanonicalInvoice, cause error) error {
	var apiErr *booksAPIError
	if !errors.As(cause, &apiErr) || apiErr.Code != booksCodeDuplicate {
		return nil
	}
	existingID, _, err := a.findInvoice(ctx, invoice.InternalID)
	if err != nil {
		a.logger.Warn("zoho books duplicate invoice lookup failed",
			zap.String("internal_id", invoice.InternalID),
			zap.Error(err))
		return &gateway.ConflictError{}
	}
	return &gateway.ConflictError{ExistingExternalID: existingID}
}

// findContactID returns the Books contact id carrying the internal ref, or
// empty when none exists
func (a *ZohoBooksAdapter) findContactID(ctx context.Context, internalID string) (string, error) {
	var resp struct {
		BooksResponse
		Contacts []BooksContact `json:"contacts"`
	}
	query := url.Values{"cf_internal_ref": {internalID}}
	if err := a.call(ctx, http.MethodGet, "/contacts", query, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Contacts) == 0 {
		return "", nil
	}
	return resp.Contacts[0].ContactID, nil
}

// requireContactID resolves the Books contact for an internal customer id,
// failing with ErrValidation when the customer has not been synced yet
func (a *ZohoBooksAdapter) requireContactID(ctx context.Context, internalCustomerID string) (string, error) {
	contactID, err := a.findContactID(ctx, internalCustomerID)
	if err != nil {
		return "", err
	}
	if contactID == "" {
		return "", fmt.Errorf("%w: customer %s has no books contact", gateway.ErrValidation, internalCustomerID)
	}
	return contactID, nil
}

// findInvoice resolves a Books invoice by internal reference number
func (a *ZohoBooksAdapter) findInvoice(ctx context.Context, internalInvoiceID string) (invoiceID, contactID string, err error) {
	var resp struct {
		BooksResponse
		Invoices []BooksInvoice `json:"invoices"`
	}
	query := url.Values{"reference_number": {internalInvoiceID}}
	if err := a.call(ctx, http.MethodGet, "/invoices", query, nil, &resp); err != nil {
		return "", "", err
	}
	if len(resp.Invoices) == 0 {
		return "", "", fmt.Errorf("%w: invoice %s not found in books", gateway.ErrValidation, internalInvoiceID)
	}
	return resp.Invoices[0].InvoiceID, resp.Invoices[0].CustomerID, nil
}

// ---------------------------------------------------------------------------
// Inbound pull
// ---------------------------------------------------------------------------

// PullRecent returns a lazy iterator over invoices modified since the watermark
func (a *ZohoBooksAdapter) PullRecent(ctx context.Context, since time.Time) (gateway.ChangeIterator, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return &booksInvoiceIterator{adapter: a, since: since, page: 1}, nil
}

// booksInvoiceIterator pages through modified invoices one record at a time
type booksInvoiceIterator struct {
	adapter *ZohoBooksAdapter
	since   time.Time

	page   int
	buffer []BooksInvoice
	pos    int
	done   bool
}

// Next returns the next changed invoice, fetching pages on demand
func (it *booksInvoiceIterator) Next(ctx context.Context) (gateway.Change, bool, error) {
	for it.pos >= len(it.buffer) {
		if it.done {
			return gateway.Change{}, false, nil
		}
		if err := it.fetchPage(ctx); err != nil {
			return gateway.Change{}, false, err
		}
	}

	row := it.buffer[it.pos]
	it.pos++

	invoice, unmapped := row.ToCanonical()
	if unmapped != "" {
		it.adapter.logger.Warn("zoho books invoice status has no canonical mapping, defaulting to draft",
			zap.String("invoice_id", row.InvoiceID),
			zap.String("remote_status", unmapped))
	}
	return gateway.Change{
		ExternalID: row.InvoiceID,
		Record:     invoice,
		ChangedAt:  row.ModifiedAt(),
	}, true, nil
}

func (it *booksInvoiceIterator) fetchPage(ctx context.Context) error {
	query := url.Values{
		"page":        {strconv.Itoa(it.page)},
		"per_page":    {strconv.Itoa(it.adapter.config.PageSize)},
		"sort_column": {"last_modified_time"},
		"sort_order":  {"A"},
	}
	if !it.since.IsZero() {
		query.Set("last_modified_time", it.since.Format(booksTimeLayout))
	}

	var resp struct {
		BooksResponse
		Invoices    []BooksInvoice   `json:"invoices"`
		PageContext BooksPageContext `json:"page_context"`
	}
	if err := it.adapter.call(ctx, http.MethodGet, "/invoices", query, nil, &resp); err != nil {
		return err
	}

	it.buffer = resp.Invoices
	it.pos = 0
	it.page++
	if !resp.PageContext.HasMorePage {
		it.done = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settlement source
// ---------------------------------------------------------------------------

// ListSettledTransactions returns bank transactions settled within the window
func (a *ZohoBooksAdapter) ListSettledTransactions(ctx context.Context, from, to time.Time) ([]gateway.SettledTransaction, error) {
	var out []gateway.SettledTransaction
	page := 1
	for {
		query := url.Values{
			"date_start": {from.Format(booksDateLayout)},
			"date_end":   {to.Format(booksDateLayout)},
			"status":     {"categorized"},
			"page":       {strconv.Itoa(page)},
			"per_page":   {strconv.Itoa(a.config.PageSize)},
		}

		var resp struct {
			BooksResponse
			Transactions []BooksBankTransaction `json:"banktransactions"`
			PageContext  BooksPageContext       `json:"page_context"`
		}
		if err := a.call(ctx, http.MethodGet, "/banktransactions", query, nil, &resp); err != nil {
			return nil, err
		}

		for _, tx := range resp.Transactions {
			out = append(out, gateway.SettledTransaction{
				ExternalID:  tx.TransactionID,
				Amount:      tx.Amount,
				Currency:    tx.CurrencyCode,
				Reference:   tx.ReferenceNumber,
				Description: tx.Description,
				SettledAt:   tx.SettledAt(),
			})
		}
		if !resp.PageContext.HasMorePage {
			return out, nil
		}
		page++
	}
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// booksAPIError carries a Books application-level error code
type booksAPIError struct {
	Code    int
	Message string
	wrapped error
}

func (e *booksAPIError) Error() string {
	return fmt.Sprintf("zoho books: %d - %s", e.Code, e.Message)
}

func (e *booksAPIError) Unwrap() error {
	return e.wrapped
}

// call performs an authenticated API call, refreshing the access token once on
// a 401 and translating failures into the shared taxonomy
func (a *ZohoBooksAdapter) call(ctx context.Context, method, path string, query url.Values, payload, result any) error {
	if err := a.Connect(ctx); err != nil {
		return err
	}

	body, status, err := a.attempt(ctx, method, path, query, payload)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		a.mu.Lock()
		a.accessToken = ""
		err = a.refreshTokenLocked(ctx)
		a.mu.Unlock()
		if err != nil {
			return err
		}
		body, status, err = a.attempt(ctx, method, path, query, payload)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: token rejected after refresh", gateway.ErrAuthentication)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return gateway.ErrRateLimited
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d", gateway.ErrUnavailable, status)
	case status == http.StatusNotFound:
		return gateway.ErrNotFound
	}

	var envelope BooksResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("zoho books: failed to parse response: %w", err)
	}
	if !envelope.IsSuccess() {
		apiErr := &booksAPIError{Code: envelope.Code, Message: envelope.Message}
		switch envelope.Code {
		case booksCodeNotFound:
			apiErr.wrapped = gateway.ErrNotFound
		default:
			apiErr.wrapped = gateway.ErrValidation
		}
		return apiErr
	}
	return json.Unmarshal(body, result)
}

func (a *ZohoBooksAdapter) attempt(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("organization_id", a.config.OrganizationID)
	endpoint := a.config.APIBaseURL + path + "?" + query.Encode()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("zoho books: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("zoho books: failed to create request: %w", err)
	}

	a.mu.Lock()
	token := a.accessToken
	a.mu.Unlock()
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBooksResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("zoho books: failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

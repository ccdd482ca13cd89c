package crm

import (
	"bytes"
	"context"
	"encoding/json"
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
	// maxZohoResponseSize limits the response body size to prevent memory exhaustion
	maxZohoResponseSize = 10 * 1024 * 1024

	// tokenExpirySlack refreshes the access token slightly before Zoho expires it
	tokenExpirySlack = time.Minute
)

// ZohoCRMAdapter implements gateway.Adapter for the Zoho CRM contact module
type ZohoCRMAdapter struct {
	config     *ZohoCRMConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewZohoCRMAdapter creates a new Zoho CRM adapter with the given configuration
func NewZohoCRMAdapter(config *ZohoCRMConfig, logger *zap.Logger) (*ZohoCRMAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ZohoCRMAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

var _ gateway.Adapter = (*ZohoCRMAdapter)(nil)

// SystemCode returns the system this adapter speaks to
func (a *ZohoCRMAdapter) SystemCode() gateway.SystemCode {
	return gateway.SystemCodeZohoCRM
}

// Handles reports whether the adapter maps the given record kind
func (a *ZohoCRMAdapter) Handles(kind canonical.RecordKind) bool {
	return kind == canonical.RecordKindCustomer
}

// Connect exchanges the refresh token for an access token. Calling it while a
// valid token is held is a no-op.
func (a *ZohoCRMAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}
	return a.refreshTokenLocked(ctx)
}

// refreshTokenLocked performs the OAuth refresh grant. Caller must hold a.mu.
func (a *ZohoCRMAdapter) refreshTokenLocked(ctx context.Context) error {
	form := url.Values{
		"refresh_token": {a.config.RefreshToken},
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"grant_type":    {"refresh_token"},
	}

	endpoint := a.config.AccountsURL + "/oauth/v2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("zoho crm: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxZohoResponseSize))
	if err != nil {
		return fmt.Errorf("zoho crm: failed to read token response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: token endpoint HTTP %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	var token ZohoTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("zoho crm: failed to parse token response: %w", err)
	}
	if token.Error != "" || token.AccessToken == "" {
		a.logger.Warn("zoho crm token refresh rejected", zap.String("error", token.Error))
		return fmt.Errorf("%w: %s", gateway.ErrAuthentication, token.Error)
	}

	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpirySlack)
	a.logger.Debug("zoho crm access token refreshed",
		zap.Time("expires_at", a.tokenExpiry))
	return nil
}

// CreateRecord creates a contact and returns its Zoho record id
func (a *ZohoCRMAdapter) CreateRecord(ctx context.Context, record canonical.Record) (string, error) {
	customer, err := a.asCustomer(record)
	if err != nil {
		return "", err
	}

	body, status, err := a.doRequest(ctx, http.MethodPost, "/Contacts", nil, writeBody(contactFromCanonical(customer)))
	if err != nil {
		return "", err
	}
	return parseWriteResult(body, status)
}

// UpdateRecord updates an existing contact by Zoho record id
func (a *ZohoCRMAdapter) UpdateRecord(ctx context.Context, externalID string, record canonical.Record) error {
	customer, err := a.asCustomer(record)
	if err != nil {
		return err
	}

	body, status, err := a.doRequest(ctx, http.MethodPut, "/Contacts/"+externalID, nil, writeBody(contactFromCanonical(customer)))
	if err != nil {
		return err
	}
	_, err = parseWriteResult(body, status)
	return err
}

// PullRecent returns a lazy iterator over contacts modified since the watermark
func (a *ZohoCRMAdapter) PullRecent(ctx context.Context, since time.Time) (gateway.ChangeIterator, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return &zohoContactIterator{adapter: a, since: since, page: 1}, nil
}

func (a *ZohoCRMAdapter) asCustomer(record canonical.Record) (*canonical.CanonicalCustomer, error) {
	customer, ok := record.(*canonical.CanonicalCustomer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnsupportedRecord, record.RecordKind())
	}
	return customer, nil
}

// ---------------------------------------------------------------------------
// Change iterator
// ---------------------------------------------------------------------------

// zohoContactIterator pages through modified contacts one record at a time
type zohoContactIterator struct {
	adapter *ZohoCRMAdapter
	since   time.Time

	page   int
	buffer []ZohoContact
	pos    int
	done   bool
}

// Next returns the next changed contact, fetching pages on demand
func (it *zohoContactIterator) Next(ctx context.Context) (gateway.Change, bool, error) {
	for it.pos >= len(it.buffer) {
		if it.done {
			return gateway.Change{}, false, nil
		}
		if err := it.fetchPage(ctx); err != nil {
			return gateway.Change{}, false, err
		}
	}

	contact := it.buffer[it.pos]
	it.pos++
	return gateway.Change{
		ExternalID: contact.ID,
		Record:     contact.ToCanonical(),
		ChangedAt:  contact.ModifiedAt(),
	}, true, nil
}

func (it *zohoContactIterator) fetchPage(ctx context.Context) error {
	query := url.Values{
		"page":       {strconv.Itoa(it.page)},
		"per_page":   {strconv.Itoa(it.adapter.config.PageSize)},
		"sort_by":    {"Modified_Time"},
		"sort_order": {"asc"},
	}

	headers := http.Header{}
	if !it.since.IsZero() {
		headers.Set("If-Modified-Since", it.since.Format(zohoTimeLayout))
	}

	body, status, err := it.adapter.doRequestWithHeaders(ctx, http.MethodGet, "/Contacts", query, nil, headers)
	if err != nil {
		return err
	}
	// Zoho answers 304 when nothing changed since the watermark
	if status == http.StatusNotModified || status == http.StatusNoContent {
		it.done = true
		it.buffer = nil
		it.pos = 0
		return nil
	}

	var resp ZohoContactListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("zoho crm: failed to parse contact list: %w", err)
	}

	it.buffer = resp.Data
	it.pos = 0
	it.page++
	if !resp.Info.MoreRecords {
		it.done = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// writeBody wraps a record in Zoho's data array envelope
func writeBody(contact ZohoContact) map[string]any {
	return map[string]any{"data": []ZohoContact{contact}}
}

// parseWriteResult extracts the record id from a write response, translating
// per-record error codes into the shared taxonomy
func parseWriteResult(body []byte, status int) (string, error) {
	var resp ZohoWriteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("zoho crm: failed to parse write response: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: empty write response", gateway.ErrValidation)
	}

	result := resp.Data[0]
	switch {
	case result.IsSuccess():
		return result.Details.ID, nil
	case result.IsDuplicate():
		return "", &gateway.ConflictError{ExistingExternalID: result.Details.ID}
	case status == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", gateway.ErrNotFound, result.Message)
	default:
		return "", fmt.Errorf("%w: %s: %s", gateway.ErrValidation, result.Code, result.Message)
	}
}

func (a *ZohoCRMAdapter) doRequest(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, error) {
	return a.doRequestWithHeaders(ctx, method, path, query, payload, nil)
}

// doRequestWithHeaders performs an authenticated API call, refreshing the
// access token once on a 401 before giving up
func (a *ZohoCRMAdapter) doRequestWithHeaders(ctx context.Context, method, path string, query url.Values, payload any, headers http.Header) ([]byte, int, error) {
	if err := a.Connect(ctx); err != nil {
		return nil, 0, err
	}

	body, status, err := a.attempt(ctx, method, path, query, payload, headers)
	if err != nil {
		return nil, status, err
	}
	if status == http.StatusUnauthorized {
		a.mu.Lock()
		a.accessToken = ""
		err = a.refreshTokenLocked(ctx)
		a.mu.Unlock()
		if err != nil {
			return nil, status, err
		}
		body, status, err = a.attempt(ctx, method, path, query, payload, headers)
		if err != nil {
			return nil, status, err
		}
		if status == http.StatusUnauthorized {
			return nil, status, fmt.Errorf("%w: token rejected after refresh", gateway.ErrAuthentication)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return nil, status, gateway.ErrRateLimited
	case status >= 500:
		return nil, status, fmt.Errorf("%w: HTTP %d", gateway.ErrUnavailable, status)
	case status == http.StatusNotFound:
		return nil, status, gateway.ErrNotFound
	}
	return body, status, nil
}

func (a *ZohoCRMAdapter) attempt(ctx context.Context, method, path string, query url.Values, payload any, headers http.Header) ([]byte, int, error) {
	endpoint := a.config.APIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("zoho crm: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("zoho crm: failed to create request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
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

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxZohoResponseSize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("zoho crm: failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

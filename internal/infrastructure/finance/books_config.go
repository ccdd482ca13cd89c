package finance

import (
	"errors"
	"time"
)

// ZohoBooksConfig holds the credentials and endpoints for the Zoho Books API
type ZohoBooksConfig struct {
	// APIBaseURL is the Books REST API root, e.g. https://books.zoho.com/api/v3
	APIBaseURL string
	// AccountsURL is the OAuth token endpoint root
	AccountsURL string
	// ClientID is the registered OAuth client id
	ClientID string
	// ClientSecret is the registered OAuth client secret
	ClientSecret string
	// RefreshToken is the long-lived OAuth refresh token
	RefreshToken string
	// OrganizationID scopes every call to one Books organization
	OrganizationID string
	// Timeout bounds each HTTP call
	Timeout time.Duration
	// PageSize is the page size used when pulling modified records
	PageSize int
}

// Validate checks that the configuration is complete
func (c *ZohoBooksConfig) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("zoho books: api base URL is required")
	}
	if c.AccountsURL == "" {
		return errors.New("zoho books: accounts URL is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("zoho books: client credentials are required")
	}
	if c.RefreshToken == "" {
		return errors.New("zoho books: refresh token is required")
	}
	if c.OrganizationID == "" {
		return errors.New("zoho books: organization id is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PageSize <= 0 || c.PageSize > 200 {
		c.PageSize = 200
	}
	return nil
}

package crm

import (
	"errors"
	"time"
)

// ZohoCRMConfig holds the credentials and endpoints for the Zoho CRM API
type ZohoCRMConfig struct {
	// APIBaseURL is the CRM REST API root, e.g. https://www.zohoapis.com/crm/v2
	APIBaseURL string
	// AccountsURL is the OAuth token endpoint root, e.g. https://accounts.zoho.com
	AccountsURL string
	// ClientID is the registered OAuth client id
	ClientID string
	// ClientSecret is the registered OAuth client secret
	ClientSecret string
	// RefreshToken is the long-lived OAuth refresh token
	RefreshToken string
	// Timeout bounds each HTTP call
	Timeout time.Duration
	// PageSize is the page size used when pulling modified records
	PageSize int
}

// Validate checks that the configuration is complete
func (c *ZohoCRMConfig) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("zoho crm: api base URL is required")
	}
	if c.AccountsURL == "" {
		return errors.New("zoho crm: accounts URL is required")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("zoho crm: client credentials are required")
	}
	if c.RefreshToken == "" {
		return errors.New("zoho crm: refresh token is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PageSize <= 0 || c.PageSize > 200 {
		c.PageSize = 200
	}
	return nil
}

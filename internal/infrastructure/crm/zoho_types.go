package crm

import (
	"strings"
	"time"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// zohoTimeLayout is the timestamp format Zoho uses in record fields
const zohoTimeLayout = "2006-01-02T15:04:05-07:00"

// ZohoTokenResponse is the OAuth token endpoint response
type ZohoTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// ZohoContact is the wire shape of a CRM contact record.
// Empty optional fields are omitted so a blank value never overwrites
// valid remote data.
type ZohoContact struct {
	ID           string `json:"id,omitempty"`
	LastName     string `json:"Last_Name,omitempty"`
	Email        string `json:"Email,omitempty"`
	Phone        string `json:"Phone,omitempty"`
	AccountName  string `json:"Account_Name,omitempty"`
	Description  string `json:"Description,omitempty"`
	LeadSource   string `json:"Lead_Source,omitempty"`
	ExternalRef  string `json:"External_Ref__c,omitempty"`
	ModifiedTime string `json:"Modified_Time,omitempty"`
}

// ModifiedAt parses the record's modification timestamp
func (c *ZohoContact) ModifiedAt() time.Time {
	t, err := time.Parse(zohoTimeLayout, c.ModifiedTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ToCanonical normalizes the contact into the canonical customer shape.
// The external ref field carries the internal id round trip.
func (c *ZohoContact) ToCanonical() *canonical.CanonicalCustomer {
	return &canonical.CanonicalCustomer{
		InternalID:     c.ExternalRef,
		Name:           c.LastName,
		Email:          c.Email,
		Phone:          c.Phone,
		Organization:   c.AccountName,
		Classification: strings.ToLower(c.LeadSource),
		LastActivityAt: c.ModifiedAt(),
	}
}

// contactFromCanonical maps the canonical customer to the wire shape
func contactFromCanonical(customer *canonical.CanonicalCustomer) ZohoContact {
	return ZohoContact{
		LastName:    customer.Name,
		Email:       customer.Email,
		Phone:       customer.Phone,
		AccountName: customer.Organization,
		LeadSource:  customer.Classification,
		ExternalRef: customer.InternalID,
	}
}

// ZohoWriteResult is one element of the data array in a write response
type ZohoWriteResult struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		ID string `json:"id"`
	} `json:"details"`
}

// IsSuccess returns true if the record write succeeded
func (r *ZohoWriteResult) IsSuccess() bool {
	return r.Code == "SUCCESS"
}

// IsDuplicate returns true if the record was rejected as a duplicate
func (r *ZohoWriteResult) IsDuplicate() bool {
	return r.Code == "DUPLICATE_DATA"
}

// ZohoWriteResponse is the envelope of create/update responses
type ZohoWriteResponse struct {
	Data []ZohoWriteResult `json:"data"`
}

// ZohoListInfo carries the paging cursor of a list response
type ZohoListInfo struct {
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
	Count       int  `json:"count"`
	MoreRecords bool `json:"more_records"`
}

// ZohoContactListResponse is the envelope of contact list responses
type ZohoContactListResponse struct {
	Data []ZohoContact `json:"data"`
	Info ZohoListInfo  `json:"info"`
}

// ZohoErrorResponse is the envelope of API-level errors
type ZohoErrorResponse struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

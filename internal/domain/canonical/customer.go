package canonical

import "time"

// CanonicalCustomer is the system-neutral representation of a customer.
// It is derived on demand from the authoritative internal record and is the
// only customer shape that crosses an adapter boundary.
type CanonicalCustomer struct {
	// InternalID is the immutable internal id, the only stable cross-system join key
	InternalID string `json:"internal_id" validate:"required"`
	// Name is the customer's display name
	Name string `json:"name" validate:"required"`
	// Email is the primary contact email
	Email string `json:"email" validate:"omitempty,email"`
	// Phone is the primary contact phone; empty means unknown, adapters must
	// omit it rather than send a blank that would overwrite valid remote data
	Phone string `json:"phone,omitempty"`
	// Organization is the customer's company/organization name
	Organization string `json:"organization,omitempty"`
	// Classification is a customer classification tag (e.g. "workshop", "fleet", "retail")
	Classification string `json:"classification,omitempty"`
	// Tags is a free-form tag set
	Tags []string `json:"tags,omitempty"`
	// LastActivityAt is the timestamp of the customer's last internal activity
	LastActivityAt time.Time `json:"last_activity_at"`
}

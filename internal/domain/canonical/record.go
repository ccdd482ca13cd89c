package canonical

// RecordKind identifies which canonical shape a record is
type RecordKind string

const (
	RecordKindCustomer   RecordKind = "CUSTOMER"
	RecordKindInvoice    RecordKind = "INVOICE"
	RecordKindPayment    RecordKind = "PAYMENT"
	RecordKindProvenance RecordKind = "PROVENANCE"
)

// IsValid returns true if the record kind is valid
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordKindCustomer, RecordKindInvoice, RecordKindPayment, RecordKindProvenance:
		return true
	default:
		return false
	}
}

// String returns the string representation of RecordKind
func (k RecordKind) String() string {
	return string(k)
}

// Record is a canonical entity together with its identity. It is the only
// data shape that crosses an adapter boundary in either direction.
type Record interface {
	RecordKind() RecordKind
	RecordID() string
}

// RecordKind implements Record
func (c *CanonicalCustomer) RecordKind() RecordKind { return RecordKindCustomer }

// RecordID implements Record
func (c *CanonicalCustomer) RecordID() string { return c.InternalID }

// RecordKind implements Record
func (inv *CanonicalInvoice) RecordKind() RecordKind { return RecordKindInvoice }

// RecordID implements Record
func (inv *CanonicalInvoice) RecordID() string { return inv.InternalID }

// RecordKind implements Record
func (p *CanonicalPayment) RecordKind() RecordKind { return RecordKindPayment }

// RecordID implements Record
func (p *CanonicalPayment) RecordID() string { return p.InternalID }

// RecordKind implements Record
func (r *ProvenanceRecord) RecordKind() RecordKind { return RecordKindProvenance }

// RecordID implements Record
func (r *ProvenanceRecord) RecordID() string { return r.EntityID }

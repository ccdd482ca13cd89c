package gateway

// SystemCode identifies one concrete external system
type SystemCode string

const (
	// SystemCodeZohoCRM is the CRM platform
	SystemCodeZohoCRM SystemCode = "ZOHO_CRM"
	// SystemCodeZohoBooks is the accounting/finance platform
	SystemCodeZohoBooks SystemCode = "ZOHO_BOOKS"
	// SystemCodeHedera is the distributed ledger used for provenance attestation
	SystemCodeHedera SystemCode = "HEDERA"
)

// IsValid returns true if the system code is valid
func (c SystemCode) IsValid() bool {
	switch c {
	case SystemCodeZohoCRM, SystemCodeZohoBooks, SystemCodeHedera:
		return true
	default:
		return false
	}
}

// String returns the string representation of SystemCode
func (c SystemCode) String() string {
	return string(c)
}

package ledger

import (
	"errors"
	"time"
)

// HederaConfig holds the endpoints for the Hedera consensus service bridge
// and mirror node
type HederaConfig struct {
	// SubmitURL is the REST bridge endpoint that accepts topic message
	// submissions on the gateway's behalf
	SubmitURL string
	// MirrorURL is the mirror node REST API root, e.g.
	// https://mainnet-public.mirrornode.hedera.com/api/v1
	MirrorURL string
	// APIKey authenticates against the submit bridge
	APIKey string
	// Timeout bounds each HTTP call
	Timeout time.Duration
	// PollInterval is how often the finality stream polls the mirror node
	PollInterval time.Duration
}

// Validate checks that the configuration is complete
func (c *HederaConfig) Validate() error {
	if c.SubmitURL == "" {
		return errors.New("hedera: submit URL is required")
	}
	if c.MirrorURL == "" {
		return errors.New("hedera: mirror URL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	return nil
}

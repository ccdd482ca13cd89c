package ledger

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// hederaSubmitRequest is the submit bridge request body
type hederaSubmitRequest struct {
	TopicID string `json:"topic_id"`
	// Message is the base64-encoded payload
	Message string `json:"message"`
}

// hederaSubmitResponse is the submit bridge response
type hederaSubmitResponse struct {
	// TransactionID is the Hedera transaction id, e.g.
	// 0.0.1234@1756600000.000000001
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
}

// hederaMirrorMessage is one consensus message from the mirror node
type hederaMirrorMessage struct {
	ConsensusTimestamp string `json:"consensus_timestamp"`
	TopicID            string `json:"topic_id"`
	// Message is the base64-encoded payload
	Message        string `json:"message"`
	SequenceNumber uint64 `json:"sequence_number"`
	// PayerAccountID doubles as the transaction reference prefix
	PayerAccountID string `json:"payer_account_id"`
}

// DecodedPayload returns the raw payload bytes
func (m *hederaMirrorMessage) DecodedPayload() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Message)
}

// ConsensusAt parses the consensus timestamp
func (m *hederaMirrorMessage) ConsensusAt() (time.Time, error) {
	return parseConsensusTimestamp(m.ConsensusTimestamp)
}

// hederaMirrorResponse is the mirror node topic messages envelope
type hederaMirrorResponse struct {
	Messages []hederaMirrorMessage `json:"messages"`
	Links    struct {
		Next string `json:"next"`
	} `json:"links"`
}

// parseConsensusTimestamp parses the mirror node's seconds.nanoseconds format
func parseConsensusTimestamp(ts string) (time.Time, error) {
	parts := strings.SplitN(ts, ".", 2)
	secs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("hedera: invalid consensus timestamp %q: %w", ts, err)
	}
	var nanos int64
	if len(parts) == 2 {
		// Right-pad to nine digits so "5" means 500ms, not 5ns
		frac := parts[1]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("hedera: invalid consensus timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(secs, nanos).UTC(), nil
}

// formatConsensusTimestamp renders a time in the mirror node's cursor format
func formatConsensusTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

package gateway

import (
	"context"
	"time"

	"github.com/partpulse/gateway/internal/domain/canonical"
)

// LedgerMessage is one finalized message observed on the ledger's public stream
type LedgerMessage struct {
	// TransactionRef is the ledger transaction reference
	TransactionRef string
	// TopicID is the consensus topic the message was published on
	TopicID string
	// SequenceNumber is the message's position within the topic
	SequenceNumber uint64
	// Payload is the decoded message payload
	Payload []byte
	// ConsensusAt is the consensus timestamp at which the message reached finality
	ConsensusAt time.Time
}

// ContentHash computes the hash of the observed payload for matching against
// the hash recorded at submission.
func (m *LedgerMessage) ContentHash() string {
	return canonical.HashPayload(m.Payload)
}

// MessageStream is a lazy, infinite, restartable sequence of finalized ledger
// messages. Next blocks until a message is available or the context ends.
type MessageStream interface {
	Next(ctx context.Context) (LedgerMessage, error)
	Close() error
}

// LedgerClient is the documented contract of the distributed ledger
type LedgerClient interface {
	// SubmitMessage submits a payload to the given consensus topic and
	// returns the transaction reference once the ledger accepts it into its
	// queue. Acceptance is not finality.
	SubmitMessage(ctx context.Context, topicID string, payload []byte) (string, error)

	// Subscribe opens a stream of finalized messages on the topic, starting
	// from the given consensus timestamp.
	Subscribe(ctx context.Context, topicID string, since time.Time) (MessageStream, error)
}

// ProvenanceStore persists provenance records; they outlive the sync attempt
// that created them and form part of the audit trail.
type ProvenanceStore interface {
	Save(ctx context.Context, record *canonical.ProvenanceRecord) error
	Update(ctx context.Context, record *canonical.ProvenanceRecord) error
	Get(ctx context.Context, entityID string) (*canonical.ProvenanceRecord, error)
	// FindSubmittedBefore returns submitted records whose submission is older
	// than the cutoff, for finality-timeout enforcement
	FindSubmittedBefore(ctx context.Context, cutoff time.Time) ([]*canonical.ProvenanceRecord, error)
}

// VerificationStamper marks an internal entity as ledger-verified once its
// provenance record finalizes. Stamping is idempotent per entity.
type VerificationStamper interface {
	StampVerified(ctx context.Context, kind canonical.EntityKind, entityID, transactionRef string, at time.Time) error
}

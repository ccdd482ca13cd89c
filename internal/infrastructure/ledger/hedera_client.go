package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/partpulse/gateway/internal/domain/gateway"
)

// maxLedgerResponseSize limits the response body size to prevent memory exhaustion
const maxLedgerResponseSize = 10 * 1024 * 1024

// HederaClient implements gateway.LedgerClient against a Hedera consensus
// service submit bridge and a mirror node. Finality is never inferred from
// submission; it is observed on the mirror stream.
type HederaClient struct {
	config     *HederaConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHederaClient creates a new Hedera client with the given configuration
func NewHederaClient(config *HederaConfig, logger *zap.Logger) (*HederaClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HederaClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

var _ gateway.LedgerClient = (*HederaClient)(nil)

// SubmitMessage submits a payload to the topic and returns the transaction id
// once the bridge accepts it into the consensus queue
func (c *HederaClient) SubmitMessage(ctx context.Context, topicID string, payload []byte) (string, error) {
	body := hederaSubmitRequest{
		TopicID: topicID,
		Message: base64.StdEncoding.EncodeToString(payload),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("hedera: failed to marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SubmitURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("hedera: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxLedgerResponseSize))
	if err != nil {
		return "", fmt.Errorf("hedera: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: submit bridge rejected credentials", gateway.ErrAuthentication)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", gateway.ErrRateLimited
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: HTTP %d", gateway.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: HTTP %d: %s", gateway.ErrValidation, resp.StatusCode, respBody)
	}

	var result hederaSubmitResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("hedera: failed to parse submit response: %w", err)
	}
	if result.Error != "" || result.TransactionID == "" {
		return "", fmt.Errorf("%w: %s", gateway.ErrValidation, result.Error)
	}

	c.logger.Debug("hedera message submitted",
		zap.String("topic_id", topicID),
		zap.String("transaction_id", result.TransactionID))
	return result.TransactionID, nil
}

// Subscribe opens a polling stream of finalized messages on the topic,
// starting from the given consensus timestamp
func (c *HederaClient) Subscribe(ctx context.Context, topicID string, since time.Time) (gateway.MessageStream, error) {
	if topicID == "" {
		return nil, fmt.Errorf("%w: topic id is required", gateway.ErrValidation)
	}
	return &hederaMessageStream{
		client:  c,
		topicID: topicID,
		cursor:  since,
	}, nil
}

// hederaMessageStream polls the mirror node's topic messages endpoint,
// advancing a consensus-timestamp cursor
type hederaMessageStream struct {
	client  *HederaClient
	topicID string
	cursor  time.Time

	buffer []gateway.LedgerMessage
	pos    int
}

// Next blocks until a finalized message is available or the context ends
func (s *hederaMessageStream) Next(ctx context.Context) (gateway.LedgerMessage, error) {
	for {
		if s.pos < len(s.buffer) {
			msg := s.buffer[s.pos]
			s.pos++
			return msg, nil
		}

		if err := s.poll(ctx); err != nil {
			return gateway.LedgerMessage{}, err
		}
		if s.pos < len(s.buffer) {
			continue
		}

		select {
		case <-ctx.Done():
			return gateway.LedgerMessage{}, ctx.Err()
		case <-time.After(s.client.config.PollInterval):
		}
	}
}

// Close releases the stream. The underlying transport is poll-based, so there
// is no connection to tear down.
func (s *hederaMessageStream) Close() error {
	return nil
}

func (s *hederaMessageStream) poll(ctx context.Context) error {
	query := url.Values{
		"order": {"asc"},
		"limit": {"100"},
	}
	if !s.cursor.IsZero() {
		query.Set("timestamp", "gt:"+formatConsensusTimestamp(s.cursor))
	}

	endpoint := fmt.Sprintf("%s/topics/%s/messages?%s", s.client.config.MirrorURL, s.topicID, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("hedera: failed to create mirror request: %w", err)
	}

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLedgerResponseSize))
	if err != nil {
		return fmt.Errorf("hedera: failed to read mirror response: %w", err)
	}
	// The mirror node answers 404 for a topic with no messages yet
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: mirror HTTP %d", gateway.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: mirror HTTP %d", gateway.ErrValidation, resp.StatusCode)
	}

	var mirror hederaMirrorResponse
	if err := json.Unmarshal(body, &mirror); err != nil {
		return fmt.Errorf("hedera: failed to parse mirror response: %w", err)
	}

	s.buffer = s.buffer[:0]
	s.pos = 0
	for _, raw := range mirror.Messages {
		payload, err := raw.DecodedPayload()
		if err != nil {
			s.client.logger.Warn("hedera mirror message payload is not valid base64, skipping",
				zap.String("topic_id", raw.TopicID),
				zap.Uint64("sequence_number", raw.SequenceNumber))
			continue
		}
		consensusAt, err := raw.ConsensusAt()
		if err != nil {
			s.client.logger.Warn("hedera mirror message has malformed consensus timestamp, skipping",
				zap.String("topic_id", raw.TopicID),
				zap.Uint64("sequence_number", raw.SequenceNumber))
			continue
		}

		s.buffer = append(s.buffer, gateway.LedgerMessage{
			TransactionRef: fmt.Sprintf("%s@%s", raw.PayerAccountID, raw.ConsensusTimestamp),
			TopicID:        raw.TopicID,
			SequenceNumber: raw.SequenceNumber,
			Payload:        payload,
			ConsensusAt:    consensusAt,
		})
		if consensusAt.After(s.cursor) {
			s.cursor = consensusAt
		}
	}
	return nil
}

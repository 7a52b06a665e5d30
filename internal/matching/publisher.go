package matching

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/peercode/match-service/internal/messaging"
	"github.com/peercode/match-service/internal/model"
	"github.com/peercode/match-service/internal/protocol"
)

// Publisher delivers outcomes over NATS, addressed to the originating
// connection's match.result subject. It implements Notifier.
type Publisher struct {
	nats *messaging.NATSClient
}

// NewPublisher creates a NATS-backed notifier.
func NewPublisher(nats *messaging.NATSClient) *Publisher {
	return &Publisher{nats: nats}
}

func (p *Publisher) MatchFound(_ context.Context, connectionID string, pair *model.MatchedPair, peerUserID string) error {
	data, err := protocol.NewOutboundMessage(protocol.TypeMatchResult, protocol.MatchResultMsg{
		Success:    true,
		MatchID:    pair.MatchID,
		Difficulty: pair.Difficulty.String(),
		PeerUserID: peerUserID,
	})
	if err != nil {
		return fmt.Errorf("matching: marshal result: %w", err)
	}
	if err := p.nats.PublishMatchResult(connectionID, data); err != nil {
		return fmt.Errorf("matching: publish match result: %w", err)
	}
	return nil
}

func (p *Publisher) MatchFailed(_ context.Context, connectionID string, message string) error {
	data, err := protocol.NewOutboundMessage(protocol.TypeMatchResult, protocol.MatchResultMsg{
		Success: false,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("matching: marshal failure: %w", err)
	}
	if err := p.nats.PublishMatchResult(connectionID, data); err != nil {
		return fmt.Errorf("matching: publish failure: %w", err)
	}
	return nil
}

func (p *Publisher) MatchCancelled(_ context.Context, connectionID string, userID string) error {
	data, err := protocol.NewOutboundMessage(protocol.TypeCancelAcknowledged, protocol.CancelAckMsg{
		UserID: userID,
	})
	if err != nil {
		return fmt.Errorf("matching: marshal cancel ack: %w", err)
	}
	if err := p.nats.PublishMatchResult(connectionID, data); err != nil {
		return fmt.Errorf("matching: publish cancel ack: %w", err)
	}
	return nil
}

// PairCreated publishes the immutable MatchedPair record on match.created
// for the downstream session bootstrap. Publisher therefore also serves as
// a PairSink.
func (p *Publisher) PairCreated(_ context.Context, pair *model.MatchedPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("matching: marshal pair: %w", err)
	}
	if err := p.nats.PublishMatchCreated(data); err != nil {
		return fmt.Errorf("matching: publish pair: %w", err)
	}
	return nil
}

package matching

import (
	"context"
	"log"
	"time"

	"github.com/peercode/match-service/internal/messaging"
	"github.com/peercode/match-service/internal/metrics"
	"github.com/peercode/match-service/internal/model"
	"github.com/peercode/match-service/internal/protocol"
	"github.com/peercode/match-service/internal/store"
)

// gaugeInterval is how often the pending-pool gauge is reconciled against
// the store, catching entries reclaimed by the safety-net TTL.
const gaugeInterval = 5 * time.Second

// Service connects the lifecycle controller to the gateway: it subscribes
// to the inbound match subjects, decodes and validates payloads, and
// drives the controller.
type Service struct {
	controller *Controller
	store      store.Store
	nats       *messaging.NATSClient
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewService wires a controller to a NATS client.
func NewService(controller *Controller, s store.Store, nats *messaging.NATSClient) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		controller: controller,
		store:      s,
		nats:       nats,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the inbound subjects and starts the gauge loop.
func (s *Service) Start() error {
	if err := s.nats.SubscribeMatchRequest(s.handleMatchRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchCancel(s.handleCancelRequest); err != nil {
		return err
	}
	if err := s.nats.SubscribeMatchDisconnect(s.handleDisconnect); err != nil {
		return err
	}

	go s.gaugeLoop()

	log.Println("[matcher] service started")
	return nil
}

// Stop shuts down the service and clears all armed timers.
func (s *Service) Stop() {
	s.cancel()
	s.controller.Shutdown()
	log.Println("[matcher] service stopped")
}

func (s *Service) handleMatchRequest(data []byte) {
	msgType, parsed, err := protocol.ParseInboundMessage(data)
	if err != nil {
		log.Printf("[matcher] invalid match request: %v", err)
		return
	}
	msg, ok := parsed.(protocol.MatchRequestMsg)
	if !ok {
		log.Printf("[matcher] dropped %q message on %s", msgType, messaging.SubjectMatchRequest)
		return
	}

	difficulty, err := model.ParseDifficulty(msg.Difficulty)
	if err != nil || msg.UserID == "" || msg.Topic == "" {
		log.Printf("[matcher] malformed request from %s: %v", msg.ConnectionID, err)
		s.rejectRequest(msg.ConnectionID)
		return
	}

	req := &model.MatchRequest{
		UserID:       msg.UserID,
		Topic:        msg.Topic,
		Difficulty:   difficulty,
		SubmittedAt:  time.Now().UnixMilli(),
		ConnectionID: msg.ConnectionID,
	}

	if err := s.controller.Submit(s.ctx, req); err != nil {
		log.Printf("[matcher] submit %s: %v", msg.UserID, err)
		return
	}

	log.Printf("[matcher] submitted %s topic=%s difficulty=%s", msg.UserID, msg.Topic, difficulty)
}

func (s *Service) handleCancelRequest(data []byte) {
	msgType, parsed, err := protocol.ParseInboundMessage(data)
	if err != nil {
		log.Printf("[matcher] invalid cancel request: %v", err)
		return
	}
	msg, ok := parsed.(protocol.CancelMatchMsg)
	if !ok {
		log.Printf("[matcher] dropped %q message on %s", msgType, messaging.SubjectMatchCancel)
		return
	}
	if msg.UserID == "" {
		return
	}

	if err := s.controller.Cancel(s.ctx, msg.UserID); err != nil {
		log.Printf("[matcher] cancel %s: %v", msg.UserID, err)
		return
	}

	log.Printf("[matcher] cancelled %s", msg.UserID)
}

func (s *Service) handleDisconnect(data []byte) {
	msgType, parsed, err := protocol.ParseInboundMessage(data)
	if err != nil {
		log.Printf("[matcher] invalid disconnect event: %v", err)
		return
	}
	msg, ok := parsed.(protocol.DisconnectMsg)
	if !ok {
		log.Printf("[matcher] dropped %q message on %s", msgType, messaging.SubjectMatchDisconnect)
		return
	}
	if msg.ConnectionID == "" {
		return
	}

	if err := s.controller.Disconnect(s.ctx, msg.ConnectionID); err != nil {
		log.Printf("[matcher] disconnect %s: %v", msg.ConnectionID, err)
	}
}

// rejectRequest reports a malformed submission back to its connection.
func (s *Service) rejectRequest(connectionID string) {
	if connectionID == "" {
		return
	}
	data, err := protocol.NewOutboundMessage(protocol.TypeMatchResult, protocol.MatchResultMsg{
		Success: false,
		Message: protocol.MsgInternalError,
	})
	if err != nil {
		return
	}
	if err := s.nats.PublishMatchResult(connectionID, data); err != nil {
		log.Printf("[matcher] publish rejection: %v", err)
	}
}

// gaugeLoop periodically reconciles the pending-pool gauge with the store.
func (s *Service) gaugeLoop() {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if count, err := s.store.PendingCount(s.ctx); err == nil {
				metrics.PendingRequests.Set(float64(count))
			}
		}
	}
}

// Package protocol defines the message types exchanged between the gateway
// (the client-facing messaging channel) and the match service. All messages
// are serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Gateway -> Matcher message types.
const (
	TypeRequestMatch = "request_match"
	TypeCancelMatch  = "cancel_match"
	TypeDisconnect   = "disconnect"
)

// Matcher -> Gateway message types.
const (
	TypeMatchResult        = "match_result"
	TypeCancelAcknowledged = "cancel_acknowledged"
)

// Failure messages carried in MatchResultMsg when Success is false.
const (
	MsgDuplicateRequest = "User already has an active match request"
	MsgTimedOut         = "No match found within the timeout period"
	MsgInternalError    = "Internal server error"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Gateway -> Matcher message structs
// ---------------------------------------------------------------------------

// MatchRequestMsg is sent by the gateway when a user asks to be paired.
// ConnectionID is the delivery handle results should be addressed to; it is
// distinct from UserID, which is the stable identity the pending pool is
// keyed by.
type MatchRequestMsg struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	ConnectionID string `json:"connection_id"`
}

// CancelMatchMsg is sent by the gateway when a user withdraws their request.
type CancelMatchMsg struct {
	Type         string `json:"type"`
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
}

// DisconnectMsg is sent by the gateway when a client connection closes. The
// matcher resolves the connection to a user and withdraws any pending
// request without notifying (the channel is already gone).
type DisconnectMsg struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

// ---------------------------------------------------------------------------
// Matcher -> Gateway message structs
// ---------------------------------------------------------------------------

// MatchResultMsg carries the outcome of a match request. On success each
// paired participant receives the peer's user ID, never their own. On
// failure (timeout, duplicate request) Message explains why.
type MatchResultMsg struct {
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	MatchID    string `json:"match_id,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	PeerUserID string `json:"peer_user_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CancelAckMsg confirms an explicit cancellation to the cancelling user only.
type CancelAckMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseInboundMessage parses raw gateway bytes into a typed matcher message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// outbound-only message types.
func ParseInboundMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRequestMatch:
		var m MatchRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCancelMatch:
		var m CancelMatchMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDisconnect:
		var m DisconnectMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown inbound message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewOutboundMessage creates a JSON-encoded byte slice for a matcher message.
// The msgType is injected into the payload under the "type" key.
func NewOutboundMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal outbound message: %w", err)
	}
	return out, nil
}

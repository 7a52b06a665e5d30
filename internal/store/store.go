// Package store persists active match requests. It is the single source of
// truth for the pending pool: membership here is the only signal that a
// request is still unresolved, and every terminal transition (pairing,
// cancellation, timeout) is a removal. Two implementations share the same
// semantics: a Redis-backed store for production and an in-memory store for
// tests and single-node deployments.
package store

import (
	"context"
	"errors"

	"github.com/peercode/match-service/internal/model"
)

var (
	// ErrDuplicateRequest is returned by Add when the user already has an
	// active request. The existing request is left untouched.
	ErrDuplicateRequest = errors.New("store: user already has an active match request")

	// ErrRaceLost is returned by ClaimPair when another pairing attempt
	// already removed one of the two requests. Callers retry against
	// fresh state; the error never reaches a client.
	ErrRaceLost = errors.New("store: pairing candidate already claimed")
)

// Store provides atomic access to the pending pool. All conflicting
// operations on the same user or topic serialize inside the store, so
// callers never hold locks across calls.
type Store interface {
	// Add inserts a request if the user has no active one, or fails with
	// ErrDuplicateRequest leaving existing state unchanged.
	Add(ctx context.Context, req *model.MatchRequest) error

	// Get returns the user's active request, or nil when none exists.
	Get(ctx context.Context, userID string) (*model.MatchRequest, error)

	// Remove deletes the user's active request if present and returns it.
	// Returns nil (and no error) when there was nothing to remove.
	Remove(ctx context.Context, userID string) (*model.MatchRequest, error)

	// Candidates returns the pending requests for a topic, oldest first,
	// excluding excludeUserID.
	Candidates(ctx context.Context, topic, excludeUserID string) ([]*model.MatchRequest, error)

	// ClaimPair atomically removes both users' requests. If either is
	// already gone it removes neither and returns ErrRaceLost. Success
	// is the exclusive license to pair these two users.
	ClaimPair(ctx context.Context, userA, userB string) (*model.MatchRequest, *model.MatchRequest, error)

	// UserByConnection resolves a connection handle to the owning user ID,
	// or "" when no active request uses that connection.
	UserByConnection(ctx context.Context, connectionID string) (string, error)

	// PendingCount returns the number of active requests across all topics.
	PendingCount(ctx context.Context) (int64, error)
}

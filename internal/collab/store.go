// Package collab writes the bootstrap record for the collaborative
// interview session created once a match succeeds. The record is the sole
// input the downstream editor and question services read; this core writes
// it exactly once and never mutates it.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peercode/match-service/internal/model"
)

const (
	// SessionPrefix is the Redis key prefix for session bootstrap records.
	SessionPrefix = "collab:session:"

	// SessionTTL bounds how long an unclaimed session record lives.
	SessionTTL = 2 * time.Hour
)

// Record is the session bootstrap payload. Question and QuestionIDs start
// empty; the question service fills them in as the session progresses.
type Record struct {
	MatchID     string          `json:"match_id"`
	UserA       string          `json:"user_a"`
	UserB       string          `json:"user_b"`
	Topic       string          `json:"topic"`
	Difficulty  string          `json:"difficulty"`
	CreatedAt   int64           `json:"created_at"`
	Question    json.RawMessage `json:"question"`
	QuestionIDs []string        `json:"question_ids"`
}

// Store manages session bootstrap records in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a collab store on an existing Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// PairCreated writes the bootstrap record for a new pair. The write is
// create-only: a second write for the same match ID is refused, keeping
// the record immutable from this side.
func (s *Store) PairCreated(ctx context.Context, pair *model.MatchedPair) error {
	record := Record{
		MatchID:     pair.MatchID,
		UserA:       pair.UserA,
		UserB:       pair.UserB,
		Topic:       pair.Topic,
		Difficulty:  pair.Difficulty.String(),
		CreatedAt:   pair.CreatedAt,
		Question:    json.RawMessage("null"),
		QuestionIDs: []string{},
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("collab: marshal record %s: %w", pair.MatchID, err)
	}

	ok, err := s.rdb.SetNX(ctx, SessionPrefix+pair.MatchID, data, SessionTTL).Result()
	if err != nil {
		return fmt.Errorf("collab: write record %s: %w", pair.MatchID, err)
	}
	if !ok {
		return fmt.Errorf("collab: record %s already exists", pair.MatchID)
	}
	return nil
}

// Get retrieves a session bootstrap record. Returns nil if not found.
func (s *Store) Get(ctx context.Context, matchID string) (*Record, error) {
	data, err := s.rdb.Get(ctx, SessionPrefix+matchID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("collab: read record %s: %w", matchID, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("collab: decode record %s: %w", matchID, err)
	}
	return &record, nil
}

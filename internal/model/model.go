// Package model holds the domain types shared by the matching engine:
// difficulty levels, match requests, and matched pairs.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Difficulty is the requested question difficulty. Levels are ordered
// Easy < Medium < Hard; the ordering matters when two requests with
// different preferences are paired.
type Difficulty int

const (
	DifficultyEasy Difficulty = iota
	DifficultyMedium
	DifficultyHard
)

// ParseDifficulty converts a wire string ("easy", "medium", "hard",
// case-insensitive) to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return 0, fmt.Errorf("model: unknown difficulty %q", s)
	}
}

// String returns the wire form of the difficulty.
func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// MarshalJSON encodes the difficulty as its wire string.
func (d Difficulty) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a difficulty from its wire string.
func (d *Difficulty) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDifficulty(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Valid reports whether d is one of the defined levels.
func (d Difficulty) Valid() bool {
	return d >= DifficultyEasy && d <= DifficultyHard
}

// MinDifficulty returns the lower of two difficulties. Equal values pass
// through unchanged. A pair of mismatched requests is resolved to the
// easier level so neither participant is pushed above their preference.
func MinDifficulty(a, b Difficulty) Difficulty {
	if b < a {
		return b
	}
	return a
}

// MatchRequest is one user's standing request to be paired. At most one
// active request may exist per UserID; enforcement lives in the store.
// Requests are never edited in place: pairing, cancellation, and timeout
// all resolve a request by removing it.
type MatchRequest struct {
	UserID       string     `json:"user_id"`
	Topic        string     `json:"topic"`
	Difficulty   Difficulty `json:"difficulty"`
	SubmittedAt  int64      `json:"submitted_at"` // unix milliseconds
	ConnectionID string     `json:"connection_id"`
}

// MatchedPair is the immutable record of a successful pairing. It is
// written once and handed to the downstream collaboration bootstrap;
// this core never mutates it afterwards.
type MatchedPair struct {
	MatchID    string     `json:"match_id"`
	UserA      string     `json:"user_a"`
	UserB      string     `json:"user_b"`
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"` // min of the two requests
	CreatedAt  int64      `json:"created_at"` // unix milliseconds
}

// Peer returns the other participant's user ID, or "" when userID is not
// part of the pair.
func (p *MatchedPair) Peer(userID string) string {
	switch userID {
	case p.UserA:
		return p.UserB
	case p.UserB:
		return p.UserA
	default:
		return ""
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/peercode/match-service/internal/model"
)

func testRequest(userID, topic string, submittedAt int64) *model.MatchRequest {
	return &model.MatchRequest{
		UserID:       userID,
		Topic:        topic,
		Difficulty:   model.DifficultyMedium,
		SubmittedAt:  submittedAt,
		ConnectionID: "conn-" + userID,
	}
}

func TestMemory_AddAndGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Add(ctx, testRequest("alice", "graphs", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := m.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Topic != "graphs" || got.SubmittedAt != 100 {
		t.Errorf("unexpected request: %+v", got)
	}

	if got, _ := m.Get(ctx, "nobody"); got != nil {
		t.Errorf("expected nil for unknown user, got %+v", got)
	}
}

func TestMemory_AddDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Add(ctx, testRequest("alice", "graphs", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := m.Add(ctx, testRequest("alice", "trees", 200))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	// The original entry is untouched.
	got, _ := m.Get(ctx, "alice")
	if got.Topic != "graphs" || got.SubmittedAt != 100 {
		t.Errorf("original request was modified: %+v", got)
	}
}

func TestMemory_RemoveIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("alice", "graphs", 100))

	removed, err := m.Remove(ctx, "alice")
	if err != nil || removed == nil {
		t.Fatalf("remove: %v, %v", removed, err)
	}
	if removed.UserID != "alice" {
		t.Errorf("removed wrong request: %+v", removed)
	}

	removed, err = m.Remove(ctx, "alice")
	if err != nil || removed != nil {
		t.Errorf("second remove should be a nil no-op, got %v, %v", removed, err)
	}

	// The connection index is cleared with the request.
	if uid, _ := m.UserByConnection(ctx, "conn-alice"); uid != "" {
		t.Errorf("connection index should be empty, got %q", uid)
	}
}

func TestMemory_CandidatesOrderedAndFiltered(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("carol", "graphs", 300))
	m.Add(ctx, testRequest("alice", "graphs", 100))
	m.Add(ctx, testRequest("bob", "graphs", 200))
	m.Add(ctx, testRequest("dave", "strings", 50))

	got, err := m.Candidates(ctx, "graphs", "bob")
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}

	want := []string{"alice", "carol"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, uid := range want {
		if got[i].UserID != uid {
			t.Errorf("candidate[%d]: expected %s, got %s", i, uid, got[i].UserID)
		}
	}
}

func TestMemory_ClaimPair(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("alice", "graphs", 100))
	m.Add(ctx, testRequest("bob", "graphs", 200))

	a, b, err := m.ClaimPair(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if a.UserID != "alice" || b.UserID != "bob" {
		t.Errorf("claim returned wrong requests: %+v, %+v", a, b)
	}

	if count, _ := m.PendingCount(ctx); count != 0 {
		t.Errorf("expected empty pool, got %d", count)
	}
}

func TestMemory_ClaimPairAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("alice", "graphs", 100))

	_, _, err := m.ClaimPair(ctx, "alice", "ghost")
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}

	// The present request must not have been removed.
	if got, _ := m.Get(ctx, "alice"); got == nil {
		t.Error("claim of a half-missing pair removed the present request")
	}
}

func TestMemory_ClaimPairConcurrentSingleWinner(t *testing.T) {
	// Many claimants race for the same candidate: exactly one wins.
	const claimants = 16

	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("target", "graphs", 1))
	for i := 0; i < claimants; i++ {
		m.Add(ctx, testRequest(fmt.Sprintf("claimant-%02d", i), "graphs", int64(100+i)))
	}

	var wg sync.WaitGroup
	wins := make(chan string, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := fmt.Sprintf("claimant-%02d", i)
			if _, _, err := m.ClaimPair(ctx, uid, "target"); err == nil {
				wins <- uid
			} else if !errors.Is(err, ErrRaceLost) {
				t.Errorf("unexpected claim error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []string
	for uid := range wins {
		winners = append(winners, uid)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}

	// Losers are still pending; the winner and target are gone.
	count, _ := m.PendingCount(ctx)
	if count != claimants-1 {
		t.Errorf("expected %d pending after the race, got %d", claimants-1, count)
	}
}

func TestMemory_UserByConnection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Add(ctx, testRequest("alice", "graphs", 100))

	uid, err := m.UserByConnection(ctx, "conn-alice")
	if err != nil || uid != "alice" {
		t.Errorf("expected alice, got %q, %v", uid, err)
	}

	uid, _ = m.UserByConnection(ctx, "conn-ghost")
	if uid != "" {
		t.Errorf("expected empty for unknown connection, got %q", uid)
	}
}

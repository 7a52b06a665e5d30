package store

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis store on a test instance. Requires Redis
// on localhost:6379; tests are skipped if unavailable.
func setupTestRedis(t *testing.T) (*Redis, context.Context) {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}

	rdb.FlushDB(ctx)

	t.Cleanup(func() {
		rdb.FlushDB(ctx)
		rdb.Close()
	})

	return NewRedis(rdb), ctx
}

func TestRedis_AddGetRemove(t *testing.T) {
	s, ctx := setupTestRedis(t)

	req := testRequest("alice", "graphs", 100)
	if err := s.Add(ctx, req); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := s.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Topic != "graphs" || got.Difficulty != req.Difficulty || got.SubmittedAt != 100 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ConnectionID != "conn-alice" {
		t.Errorf("connection id mismatch: %q", got.ConnectionID)
	}

	removed, err := s.Remove(ctx, "alice")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed == nil || removed.UserID != "alice" {
		t.Errorf("remove returned %+v", removed)
	}

	if got, _ := s.Get(ctx, "alice"); got != nil {
		t.Errorf("request should be gone, got %+v", got)
	}

	removed, err = s.Remove(ctx, "alice")
	if err != nil || removed != nil {
		t.Errorf("second remove should be a nil no-op, got %v, %v", removed, err)
	}
}

func TestRedis_AddDuplicate(t *testing.T) {
	s, ctx := setupTestRedis(t)

	if err := s.Add(ctx, testRequest("alice", "graphs", 100)); err != nil {
		t.Fatalf("add: %v", err)
	}

	err := s.Add(ctx, testRequest("alice", "trees", 200))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	got, _ := s.Get(ctx, "alice")
	if got.Topic != "graphs" {
		t.Errorf("original request was modified: %+v", got)
	}
}

func TestRedis_CandidatesOrderedAndFiltered(t *testing.T) {
	s, ctx := setupTestRedis(t)

	s.Add(ctx, testRequest("carol", "graphs", 300))
	s.Add(ctx, testRequest("alice", "graphs", 100))
	s.Add(ctx, testRequest("bob", "graphs", 200))
	s.Add(ctx, testRequest("dave", "strings", 50))

	got, err := s.Candidates(ctx, "graphs", "bob")
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

func TestRedis_ClaimPair(t *testing.T) {
	s, ctx := setupTestRedis(t)

	s.Add(ctx, testRequest("alice", "graphs", 100))
	s.Add(ctx, testRequest("bob", "graphs", 200))

	a, b, err := s.ClaimPair(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if a.UserID != "alice" || b.UserID != "bob" {
		t.Errorf("claim returned wrong requests: %+v, %+v", a, b)
	}

	// Both request hashes and topic index entries are gone.
	if got, _ := s.Get(ctx, "alice"); got != nil {
		t.Errorf("alice should be gone, got %+v", got)
	}
	candidates, _ := s.Candidates(ctx, "graphs", "")
	if len(candidates) != 0 {
		t.Errorf("topic index should be empty, got %d entries", len(candidates))
	}
}

func TestRedis_ClaimPairAllOrNothing(t *testing.T) {
	s, ctx := setupTestRedis(t)

	s.Add(ctx, testRequest("alice", "graphs", 100))
	s.Add(ctx, testRequest("bob", "graphs", 200))
	s.Remove(ctx, "bob")

	_, _, err := s.ClaimPair(ctx, "alice", "bob")
	if !errors.Is(err, ErrRaceLost) {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}

	if got, _ := s.Get(ctx, "alice"); got == nil {
		t.Error("claim of a half-missing pair removed the present request")
	}
}

func TestRedis_UserByConnection(t *testing.T) {
	s, ctx := setupTestRedis(t)

	s.Add(ctx, testRequest("alice", "graphs", 100))

	uid, err := s.UserByConnection(ctx, "conn-alice")
	if err != nil || uid != "alice" {
		t.Errorf("expected alice, got %q, %v", uid, err)
	}

	s.Remove(ctx, "alice")
	uid, _ = s.UserByConnection(ctx, "conn-alice")
	if uid != "" {
		t.Errorf("connection index should be cleared on remove, got %q", uid)
	}
}

func TestRedis_PendingCount(t *testing.T) {
	s, ctx := setupTestRedis(t)

	s.Add(ctx, testRequest("alice", "graphs", 100))
	s.Add(ctx, testRequest("bob", "strings", 200))

	count, err := s.PendingCount(ctx)
	if err != nil || count != 2 {
		t.Errorf("expected 2 pending, got %d, %v", count, err)
	}
}

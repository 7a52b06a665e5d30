package history

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/peercode/match-service/internal/model"
)

// TestClose_DrainsPendingArchives verifies that Close does not race the
// background archive writes onto a closed handle. No server listens on
// port 1, so each write fails fast with a logged connection error; the
// assertion is only that Close returns after they finish.
func TestClose_DrainsPendingArchives(t *testing.T) {
	db, err := sql.Open("postgres", "host=127.0.0.1 port=1 user=peercode dbname=peercode sslmode=disable connect_timeout=1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	s := &Store{db: db}
	for i := 0; i < 4; i++ {
		pair := &model.MatchedPair{
			MatchID:    fmt.Sprintf("m-%d", i),
			UserA:      "alice",
			UserB:      "bob",
			Topic:      "graphs",
			Difficulty: model.DifficultyEasy,
			CreatedAt:  time.Now().UnixMilli(),
		}
		if err := s.PairCreated(context.Background(), pair); err != nil {
			t.Fatalf("pair created: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		if err := s.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close did not return; archive goroutines were not drained")
	}
}

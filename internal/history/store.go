// Package history provides PostgreSQL-backed archival of completed
// matches. Each row captures who was paired with whom, on what topic and
// difficulty, for later review in interview history. Archival is
// best-effort: a history failure never fails a pairing.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/peercode/match-service/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store manages the matches archive in PostgreSQL.
type Store struct {
	db *sql.DB
	wg sync.WaitGroup
}

// Open connects to PostgreSQL, applies pending migrations, and returns a
// ready store.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("history: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: apply migrations: %w", err)
	}
	return nil
}

// PairCreated archives a matched pair. It implements the matching PairSink
// and runs the insert in the background so pairing latency never depends
// on PostgreSQL.
func (s *Store) PairCreated(_ context.Context, pair *model.MatchedPair) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.insert(ctx, pair); err != nil {
			log.Printf("[history] archive %s: %v", pair.MatchID, err)
		}
	}()
	return nil
}

func (s *Store) insert(ctx context.Context, pair *model.MatchedPair) error {
	const query = `
		INSERT INTO matches (match_id, user_a, user_b, topic, difficulty, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		pair.MatchID,
		pair.UserA,
		pair.UserB,
		pair.Topic,
		pair.Difficulty.String(),
		time.UnixMilli(pair.CreatedAt).UTC(),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Entry is one archived match from a user's perspective.
type Entry struct {
	MatchID    string
	PeerUserID string
	Topic      string
	Difficulty string
	CreatedAt  time.Time
}

// RecentByUser returns a user's most recent matches, newest first.
func (s *Store) RecentByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const query = `
		SELECT match_id, user_a, user_b, topic, difficulty, created_at
		FROM matches
		WHERE user_a = $1 OR user_b = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var userA, userB string
		if err := rows.Scan(&e.MatchID, &userA, &userB, &e.Topic, &e.Difficulty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.PeerUserID = userB
		if userID == userB {
			e.PeerUserID = userA
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close waits for in-flight archive writes, then closes the database
// handle.
func (s *Store) Close() error {
	s.wg.Wait()
	return s.db.Close()
}

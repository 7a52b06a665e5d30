package store

import (
	"context"
	"sort"
	"sync"

	"github.com/peercode/match-service/internal/model"
)

// Memory is a mutex-guarded in-process Store. It mirrors the Redis
// implementation's semantics exactly, including the all-or-nothing
// behavior of ClaimPair.
type Memory struct {
	mu     sync.Mutex
	byUser map[string]*model.MatchRequest
	byConn map[string]string // connectionID -> userID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byUser: make(map[string]*model.MatchRequest),
		byConn: make(map[string]string),
	}
}

func (m *Memory) Add(_ context.Context, req *model.MatchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUser[req.UserID]; ok {
		return ErrDuplicateRequest
	}

	cp := *req
	m.byUser[req.UserID] = &cp
	if req.ConnectionID != "" {
		m.byConn[req.ConnectionID] = req.UserID
	}
	return nil
}

func (m *Memory) Get(_ context.Context, userID string) (*model.MatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.byUser[userID]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (m *Memory) Remove(_ context.Context, userID string) (*model.MatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(userID), nil
}

// removeLocked deletes a request and its connection index entry.
// Caller holds mu.
func (m *Memory) removeLocked(userID string) *model.MatchRequest {
	req, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	delete(m.byUser, userID)
	if req.ConnectionID != "" {
		delete(m.byConn, req.ConnectionID)
	}
	return req
}

func (m *Memory) Candidates(_ context.Context, topic, excludeUserID string) ([]*model.MatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.MatchRequest
	for _, req := range m.byUser {
		if req.Topic != topic || req.UserID == excludeUserID {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt != out[j].SubmittedAt {
			return out[i].SubmittedAt < out[j].SubmittedAt
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (m *Memory) ClaimPair(_ context.Context, userA, userB string) (*model.MatchRequest, *model.MatchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqA, okA := m.byUser[userA]
	reqB, okB := m.byUser[userB]
	if !okA || !okB {
		return nil, nil, ErrRaceLost
	}

	m.removeLocked(userA)
	m.removeLocked(userB)
	return reqA, reqB, nil
}

func (m *Memory) UserByConnection(_ context.Context, connectionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byConn[connectionID], nil
}

func (m *Memory) PendingCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byUser)), nil
}

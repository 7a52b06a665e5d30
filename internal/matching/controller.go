package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peercode/match-service/internal/metrics"
	"github.com/peercode/match-service/internal/model"
	"github.com/peercode/match-service/internal/protocol"
	"github.com/peercode/match-service/internal/store"
)

// maxClaimAttempts bounds pairing retries after lost claim races. Beyond
// this the attempt degrades to "remain pending"; the tolerance or global
// timer picks the request up later.
const maxClaimAttempts = 3

// ErrInvalidRequest is returned by Submit for requests missing a user ID,
// topic, or valid difficulty.
var ErrInvalidRequest = errors.New("matching: invalid match request")

// Notifier delivers outcomes to the originating client connections. Exactly
// one outcome is delivered per resolved request.
type Notifier interface {
	// MatchFound reports a successful pairing to one participant. Each
	// participant sees the peer's user ID, not their own.
	MatchFound(ctx context.Context, connectionID string, pair *model.MatchedPair, peerUserID string) error

	// MatchFailed reports a rejection or timeout to the requester.
	MatchFailed(ctx context.Context, connectionID string, message string) error

	// MatchCancelled acknowledges an explicit cancellation.
	MatchCancelled(ctx context.Context, connectionID string, userID string) error
}

// PairSink receives each newly created MatchedPair exactly once. Sinks feed
// the downstream collaborators: the collaboration session bootstrap, the
// match history archive, and the match.created event stream.
type PairSink interface {
	PairCreated(ctx context.Context, pair *model.MatchedPair) error
}

// MultiSink fans a pair out to several sinks. Individual sink failures are
// logged and do not affect the others; a created pair is never rolled back.
type MultiSink []PairSink

func (s MultiSink) PairCreated(ctx context.Context, pair *model.MatchedPair) error {
	for _, sink := range s {
		if err := sink.PairCreated(ctx, pair); err != nil {
			log.Printf("[matcher] pair sink: %v", err)
		}
	}
	return nil
}

// requestTimers are the two armed timers of one pending request.
type requestTimers struct {
	tolerance *time.Timer
	global    *time.Timer
}

// Controller owns the lifecycle of every match request: it registers
// requests in the store, sequences the algorithm's two phases, arms and
// clears the per-request timers, and guarantees each request reaches
// exactly one terminal outcome. The store's atomic removals are the
// linearization points: whichever path removes a request from the pool
// owns emitting its outcome.
type Controller struct {
	store    store.Store
	notifier Notifier
	pairs    PairSink // may be nil
	rules    Rules

	mu     sync.Mutex
	timers map[string]*requestTimers // keyed by user ID
}

// NewController creates a controller. pairs may be nil when no downstream
// consumers are wired (tests).
func NewController(s store.Store, notifier Notifier, pairs PairSink, rules Rules) *Controller {
	return &Controller{
		store:    s,
		notifier: notifier,
		pairs:    pairs,
		rules:    rules,
		timers:   make(map[string]*requestTimers),
	}
}

// Submit registers a new match request, runs the strict phase once, and
// arms the tolerance and global timers if the request stays pending.
// Returns store.ErrDuplicateRequest (after notifying the new connection
// only) when the user already has an active request; the original request
// is untouched.
func (c *Controller) Submit(ctx context.Context, req *model.MatchRequest) error {
	if req.UserID == "" || req.Topic == "" || !req.Difficulty.Valid() {
		return ErrInvalidRequest
	}
	if req.SubmittedAt == 0 {
		req.SubmittedAt = time.Now().UnixMilli()
	}

	if err := c.store.Add(ctx, req); err != nil {
		if errors.Is(err, store.ErrDuplicateRequest) {
			metrics.DuplicateRequests.Inc()
			c.notifyFailed(ctx, req.ConnectionID, protocol.MsgDuplicateRequest)
			return err
		}
		// Store unavailable: nothing was written and the caller may
		// retry the whole submission. The requester still hears about
		// the failure.
		c.notifyFailed(ctx, req.ConnectionID, protocol.MsgInternalError)
		return fmt.Errorf("matching: submit %s: %w", req.UserID, err)
	}
	c.refreshPendingGauge(ctx)

	if resolved := c.tryPair(ctx, req, PhaseSubmit); resolved {
		return nil
	}

	c.armTimers(req.UserID)
	return nil
}

// Cancel withdraws a user's pending request and acknowledges to that user
// only. A cancel for a user with no active request is a silent no-op, so
// the operation is idempotent and always wins a race against a timer that
// has not yet acted.
func (c *Controller) Cancel(ctx context.Context, userID string) error {
	removed, err := c.store.Remove(ctx, userID)
	if err != nil {
		return fmt.Errorf("matching: cancel %s: %w", userID, err)
	}
	if removed == nil {
		return nil
	}

	c.stopTimers(userID)
	metrics.Outcomes.WithLabelValues("cancelled").Inc()
	c.refreshPendingGauge(ctx)

	if err := c.notifier.MatchCancelled(ctx, removed.ConnectionID, userID); err != nil {
		log.Printf("[matcher] cancel ack for %s: %v", userID, err)
	}
	return nil
}

// Disconnect withdraws the request owned by a closed connection. No
// notification is emitted; the delivery channel is already gone.
func (c *Controller) Disconnect(ctx context.Context, connectionID string) error {
	userID, err := c.store.UserByConnection(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("matching: disconnect %s: %w", connectionID, err)
	}
	if userID == "" {
		return nil
	}

	removed, err := c.store.Remove(ctx, userID)
	if err != nil {
		return fmt.Errorf("matching: disconnect %s: %w", connectionID, err)
	}
	if removed == nil {
		return nil
	}

	c.stopTimers(userID)
	metrics.Outcomes.WithLabelValues("cancelled").Inc()
	c.refreshPendingGauge(ctx)
	return nil
}

// Shutdown stops every armed timer. Pending requests are left in the store;
// their safety-net TTL reclaims them if no instance takes over.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, t := range c.timers {
		t.tolerance.Stop()
		t.global.Stop()
		delete(c.timers, userID)
	}
}

// tryPair runs one algorithm phase for a request and, on a pairing
// decision, races for the atomic claim. It reports whether the request
// was resolved (paired here, or already claimed by a concurrent attempt
// that now owns its outcome). Lost races against other candidates retry
// with a refreshed pool, bounded by maxClaimAttempts.
func (c *Controller) tryPair(ctx context.Context, req *model.MatchRequest, phase Phase) bool {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		candidates, err := c.store.Candidates(ctx, req.Topic, req.UserID)
		if err != nil {
			log.Printf("[matcher] candidates for %s: %v", req.UserID, err)
			return false
		}

		decision := c.rules.Decide(req, candidates, time.Now(), phase)
		if decision.Kind != DecisionPair {
			return false
		}

		a, b, err := c.store.ClaimPair(ctx, req.UserID, decision.Candidate.UserID)
		if errors.Is(err, store.ErrRaceLost) {
			metrics.ClaimConflicts.Inc()

			// The loss may mean we ourselves were claimed by a
			// concurrent attempt; that attempt owns our outcome.
			self, err := c.store.Get(ctx, req.UserID)
			if err != nil {
				log.Printf("[matcher] recheck %s: %v", req.UserID, err)
				return false
			}
			if self == nil {
				return true
			}
			continue
		}
		if err != nil {
			log.Printf("[matcher] claim %s/%s: %v", req.UserID, decision.Candidate.UserID, err)
			return false
		}

		c.finishPair(ctx, a, b)
		return true
	}
	return false
}

// finishPair turns two claimed requests into an immutable MatchedPair,
// clears both users' timers, feeds the downstream sinks, and notifies both
// participants. The claim already removed both requests from the pool, so
// no other path can emit an outcome for either user.
func (c *Controller) finishPair(ctx context.Context, a, b *model.MatchRequest) {
	now := time.Now()
	pair := &model.MatchedPair{
		MatchID:    uuid.New().String(),
		UserA:      a.UserID,
		UserB:      b.UserID,
		Topic:      a.Topic,
		Difficulty: model.MinDifficulty(a.Difficulty, b.Difficulty),
		CreatedAt:  now.UnixMilli(),
	}

	c.stopTimers(a.UserID)
	c.stopTimers(b.UserID)

	if c.pairs != nil {
		if err := c.pairs.PairCreated(ctx, pair); err != nil {
			log.Printf("[matcher] pair sink for %s: %v", pair.MatchID, err)
		}
	}

	if err := c.notifier.MatchFound(ctx, a.ConnectionID, pair, b.UserID); err != nil {
		log.Printf("[matcher] notify %s: %v", a.UserID, err)
	}
	if err := c.notifier.MatchFound(ctx, b.ConnectionID, pair, a.UserID); err != nil {
		log.Printf("[matcher] notify %s: %v", b.UserID, err)
	}

	metrics.Outcomes.WithLabelValues("matched").Add(2)
	metrics.MatchDuration.Observe(now.Sub(time.UnixMilli(a.SubmittedAt)).Seconds())
	metrics.MatchDuration.Observe(now.Sub(time.UnixMilli(b.SubmittedAt)).Seconds())
	c.refreshPendingGauge(ctx)

	log.Printf("[matcher] matched %s and %s on %s (%s) match=%s",
		a.UserID, b.UserID, pair.Topic, pair.Difficulty, pair.MatchID)
}

// armTimers arms the tolerance-window and global-timeout timers for a
// request that stayed pending after the strict phase.
func (c *Controller) armTimers(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timers[userID] = &requestTimers{
		tolerance: time.AfterFunc(c.rules.ToleranceWindow, func() {
			c.onToleranceExpiry(userID)
		}),
		global: time.AfterFunc(c.rules.GlobalTimeout, func() {
			c.onGlobalTimeout(userID)
		}),
	}
}

// stopTimers clears a user's armed timers. Missing entries are fine: the
// user may have paired during phase one, before any timer was armed.
func (c *Controller) stopTimers(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[userID]; ok {
		t.tolerance.Stop()
		t.global.Stop()
		delete(c.timers, userID)
	}
}

// onToleranceExpiry re-runs the algorithm with relaxed criteria. A fire for
// an already-resolved request is silently discarded.
func (c *Controller) onToleranceExpiry(userID string) {
	ctx := context.Background()

	req, err := c.store.Get(ctx, userID)
	if err != nil {
		log.Printf("[matcher] tolerance recheck %s: %v", userID, err)
		return
	}
	if req == nil {
		return // resolved while the timer was in flight
	}

	c.tryPair(ctx, req, PhaseTolerance)
}

// onGlobalTimeout fails a request that is still pending at its deadline.
// The atomic removal decides ownership: if another path already resolved
// the request, the removal comes back empty and the fire is discarded.
func (c *Controller) onGlobalTimeout(userID string) {
	ctx := context.Background()

	// The global timer is the last to fire; drop the timer bookkeeping
	// whether or not this fire owns the outcome.
	c.stopTimers(userID)

	removed, err := c.store.Remove(ctx, userID)
	if err != nil {
		log.Printf("[matcher] timeout remove %s: %v", userID, err)
		return
	}
	if removed == nil {
		return
	}

	metrics.Outcomes.WithLabelValues("timed_out").Inc()
	c.refreshPendingGauge(ctx)

	c.notifyFailed(ctx, removed.ConnectionID, protocol.MsgTimedOut)
	log.Printf("[matcher] timeout for %s (%s)", userID, c.rules.GlobalTimeout)
}

func (c *Controller) notifyFailed(ctx context.Context, connectionID, message string) {
	if err := c.notifier.MatchFailed(ctx, connectionID, message); err != nil {
		log.Printf("[matcher] notify failure: %v", err)
	}
}

func (c *Controller) refreshPendingGauge(ctx context.Context) {
	if count, err := c.store.PendingCount(ctx); err == nil {
		metrics.PendingRequests.Set(float64(count))
	}
}

// Package matching implements the matchmaking engine: the pairing
// algorithm, the per-request lifecycle controller, and the NATS-facing
// service that connects both to the gateway.
package matching

import (
	"sort"
	"time"

	"github.com/peercode/match-service/internal/model"
)

// Phase selects which pairing criteria apply. The engine evaluates a
// request twice: strictly at submission, and with relaxed criteria once
// the tolerance window has elapsed.
type Phase int

const (
	// PhaseSubmit accepts only exact-difficulty candidates, except when
	// the oldest candidate is close enough to its own deadline that
	// waiting would starve it.
	PhaseSubmit Phase = iota

	// PhaseTolerance still prefers exact-difficulty candidates but falls
	// back to the oldest candidate of any difficulty.
	PhaseTolerance
)

// DecisionKind is the outcome of one algorithm evaluation.
type DecisionKind int

const (
	// DecisionDefer leaves the request pending until its tolerance
	// window fires.
	DecisionDefer DecisionKind = iota

	// DecisionPair selects a candidate to claim.
	DecisionPair

	// DecisionNone means the pool has nothing to offer; the request
	// stays pending until the global timeout fails it.
	DecisionNone
)

// Decision is the result of evaluating a request against the pool.
// Candidate is set only when Kind is DecisionPair.
type Decision struct {
	Kind      DecisionKind
	Candidate *model.MatchRequest
}

// Rules holds the timing parameters of the two-phase algorithm.
type Rules struct {
	// ToleranceWindow is how long a request accepts only exact-difficulty
	// matches before relaxing.
	ToleranceWindow time.Duration

	// GlobalTimeout is the absolute deadline after which an unmatched
	// request fails. Must be >= ToleranceWindow.
	GlobalTimeout time.Duration
}

// DefaultRules returns the production timing parameters.
func DefaultRules() Rules {
	return Rules{
		ToleranceWindow: 20 * time.Second,
		GlobalTimeout:   30 * time.Second,
	}
}

// Decide evaluates a request against the same-topic candidates and picks a
// pairing decision. It is a pure function of its inputs: no store access,
// no clock reads. Candidates may arrive in any order; ties on submission
// time break toward the lexically smaller user ID so the choice is
// deterministic.
func (r Rules) Decide(req *model.MatchRequest, candidates []*model.MatchRequest, now time.Time, phase Phase) Decision {
	if len(candidates) == 0 {
		if phase == PhaseSubmit {
			return Decision{Kind: DecisionDefer}
		}
		return Decision{Kind: DecisionNone}
	}

	ordered := make([]*model.MatchRequest, len(candidates))
	copy(ordered, candidates)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].SubmittedAt != ordered[j].SubmittedAt {
			return ordered[i].SubmittedAt < ordered[j].SubmittedAt
		}
		return ordered[i].UserID < ordered[j].UserID
	})

	// Oldest exact-difficulty candidate wins in both phases.
	for _, c := range ordered {
		if c.Difficulty == req.Difficulty {
			return Decision{Kind: DecisionPair, Candidate: c}
		}
	}

	oldest := ordered[0]

	if phase == PhaseSubmit {
		// Starvation protection: if the oldest candidate's remaining
		// lifetime is already below the relaxed-phase span, it would
		// time out before its own fallback could run against us. Pair
		// immediately instead of deferring.
		waited := now.Sub(time.UnixMilli(oldest.SubmittedAt))
		remaining := r.GlobalTimeout - waited
		if remaining < r.GlobalTimeout-r.ToleranceWindow {
			return Decision{Kind: DecisionPair, Candidate: oldest}
		}
		return Decision{Kind: DecisionDefer}
	}

	// Tolerance window has elapsed: any same-topic candidate will do,
	// oldest first.
	return Decision{Kind: DecisionPair, Candidate: oldest}
}

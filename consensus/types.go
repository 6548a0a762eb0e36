package consensus

import (
	"sort"
	"sync"

	"github.com/chenseanxy/symbol-game/game"
)

// TurnRecord is the state of the one in-flight turn: the pending move
// and the validation replies collected so far. At most one record is
// active per session; it is replaced wholesale when the turn concludes.
// Replies arrive concurrently from the per-peer read pumps, so the
// reply set is guarded and completion is signaled by closing a channel.
type TurnRecord struct {
	Drawer int
	Move   game.Move

	mu       sync.Mutex
	required map[int]struct{}
	replies  map[int]game.ValidationResult
	done     chan struct{}
	closed   bool
}

// NewTurnRecord creates the record for one proposal. required lists
// the players whose validation is awaited; on a validator node it is
// empty and the record only tracks the pending move.
func NewTurnRecord(drawer int, move game.Move, required []int) *TurnRecord {
	r := &TurnRecord{
		Drawer:   drawer,
		Move:     move,
		required: make(map[int]struct{}, len(required)),
		replies:  make(map[int]game.ValidationResult, len(required)),
		done:     make(chan struct{}),
	}
	for _, id := range required {
		r.required[id] = struct{}{}
	}
	if len(r.required) == 0 {
		r.closed = true
		close(r.done)
	}
	return r
}

// Record stores one validator's reply. A later reply from the same
// player supersedes the earlier one; replies from players outside the
// required set are ignored.
func (r *TurnRecord) Record(player int, v game.ValidationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.required[player]; !ok {
		return
	}
	r.replies[player] = v
	if !r.closed && len(r.replies) == len(r.required) {
		r.closed = true
		close(r.done)
	}
}

// Done is closed once every required validator has replied.
func (r *TurnRecord) Done() <-chan struct{} {
	return r.done
}

// Replies returns a copy of the collected replies.
func (r *TurnRecord) Replies() map[int]game.ValidationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]game.ValidationResult, len(r.replies))
	for id, v := range r.replies {
		out[id] = v
	}
	return out
}

// Missing returns the required validators that have not replied,
// sorted for stable logging.
func (r *TurnRecord) Missing() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for id := range r.required {
		if _, ok := r.replies[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// FaultReason classifies why a peer is considered failed.
type FaultReason string

const (
	FaultTimeout    FaultReason = "timeout"
	FaultDisconnect FaultReason = "disconnect"
)

// Fault implicates one peer. Any fault during Starting or Active is
// fatal to the session.
type Fault struct {
	Player int
	Reason FaultReason
}

// Outcome is how one turn cycle concluded.
type Outcome int

const (
	// OutcomeCommitted: unanimous valid, result none; the move is on
	// every board and the turn advanced.
	OutcomeCommitted Outcome = iota
	// OutcomeRejected: at least one explicit valid=false (or the
	// validators disagreed on the result); no board changed and the
	// drawer is re-prompted within the same turn.
	OutcomeRejected
	// OutcomeEnded: unanimous valid with an agreed win or tie; the
	// session is over.
	OutcomeEnded
	// OutcomeFault: one or more replies missing at the deadline;
	// escalated to the fault detector.
	OutcomeFault
)

// Decision is the result of one turn cycle, the only protocol state
// visible outside the coordinator.
type Decision struct {
	Outcome   Outcome
	Result    game.Result
	Winner    int
	Rejecters []int
	Missing   []int
}

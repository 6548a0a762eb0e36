package game

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State is the session lifecycle phase. Transitions are monotonic:
// Lobby → Starting → Active → Ended, with Ended reachable from any
// earlier state on a fault. No backward transition exists.
type State int

const (
	Lobby State = iota
	Starting
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Lobby:
		return "lobby"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EndReason records why a session reached Ended.
type EndReason string

const (
	EndWin   EndReason = "win"
	EndTie   EndReason = "tie"
	EndFault EndReason = "fault"
)

// StateMachine drives the session lifecycle on one node. It owns the
// frozen Session, the Board and the turn cursor. Board mutation happens
// only through Apply on the commit path, so the internal lock is the
// only synchronization the board needs.
type StateMachine struct {
	mu sync.Mutex

	state   State
	session Session
	board   *Board

	turnIdx int
	nextSeq uint64

	endReason EndReason
	result    Result
	winner    int
}

func NewStateMachine() *StateMachine {
	return &StateMachine{state: Lobby}
}

// State returns the current lifecycle phase.
func (sm *StateMachine) State() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// Session returns the frozen session. Meaningful once past Lobby.
func (sm *StateMachine) Session() Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.session
}

// StartSession freezes the session and moves Lobby → Starting.
func (sm *StateMachine) StartSession(s Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Lobby {
		return fmt.Errorf("%w: start_game in state %s", ErrSessionState, sm.state)
	}
	if len(s.TurnOrder) != len(s.Players) {
		return fmt.Errorf("%w: turn order size %d for %d players", ErrProtocol, len(s.TurnOrder), len(s.Players))
	}
	sm.session = s
	sm.state = Starting
	return nil
}

// Activate moves Starting → Active with an empty board, the first
// drawer at turn_order[0] and sequence numbering starting at 1.
func (sm *StateMachine) Activate() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Starting {
		return fmt.Errorf("%w: activate in state %s", ErrSessionState, sm.state)
	}
	sm.board = NewBoard(sm.session.BoardSize)
	sm.turnIdx = 0
	sm.nextSeq = 1
	sm.state = Active
	return nil
}

// CurrentDrawer returns the player ID whose turn it is, or -1 when the
// session is not active.
func (sm *StateMachine) CurrentDrawer() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Active {
		return -1
	}
	return sm.session.TurnOrder[sm.turnIdx]
}

// AllocateSeq hands out the next sequence number to the local drawer.
// Every proposal consumes one, including proposals later rejected.
func (sm *StateMachine) AllocateSeq() (uint64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Active {
		return 0, fmt.Errorf("%w: propose in state %s", ErrSessionState, sm.state)
	}
	seq := sm.nextSeq
	sm.nextSeq++
	return seq, nil
}

// Validate judges a peer's proposed move against the local board view.
// A stale or duplicate sequence number, an unknown proposer or a
// proposal out of turn is a protocol error and consumes nothing. An
// accepted proposal consumes the sequence number even when the verdict
// is valid=false, mirroring the drawer side.
func (sm *StateMachine) Validate(m Move) (ValidationResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Active {
		return ValidationResult{}, fmt.Errorf("%w: propose_move in state %s", ErrSessionState, sm.state)
	}
	if m.Seq != sm.nextSeq {
		return ValidationResult{}, fmt.Errorf("%w: sequence %d, expected %d", ErrProtocol, m.Seq, sm.nextSeq)
	}
	player, ok := sm.session.PlayerByID(m.Player)
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: unknown player %d", ErrProtocol, m.Player)
	}
	if m.Player != sm.session.TurnOrder[sm.turnIdx] {
		return ValidationResult{}, fmt.Errorf("%w: player %d proposed out of turn", ErrProtocol, m.Player)
	}
	sm.nextSeq++

	res := ValidationResult{Move: m, Valid: sm.board.InBounds(m.Row, m.Col) && !sm.board.Occupied(m.Row, m.Col)}
	if !res.Valid {
		return res, nil
	}
	// Recompute the outcome on a copy holding the hypothetical move.
	scratch := sm.board.clone()
	scratch.Cells[m.Row][m.Col] = player.Symbol
	switch {
	case scratch.WinningMove(m.Row, m.Col, player.Symbol):
		res.Result = ResultWin
		res.WinningPlayer = m.Player
	case scratch.Full():
		res.Result = ResultTie
	}
	return res, nil
}

// Apply commits a move to the board. Only the commit path calls this,
// after unanimous validation.
func (sm *StateMachine) Apply(m Move) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Active {
		return fmt.Errorf("%w: commit in state %s", ErrSessionState, sm.state)
	}
	player, ok := sm.session.PlayerByID(m.Player)
	if !ok {
		return fmt.Errorf("%w: unknown player %d", ErrProtocol, m.Player)
	}
	return sm.board.Apply(m.Row, m.Col, player.Symbol)
}

// Advance moves the drawer cursor to the next player in turn order and
// returns the new drawer's ID.
func (sm *StateMachine) Advance() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != Active {
		return -1
	}
	sm.turnIdx = (sm.turnIdx + 1) % len(sm.session.TurnOrder)
	return sm.session.TurnOrder[sm.turnIdx]
}

// End moves the session to Ended. Ended is terminal: a second call is
// a state error and mutates nothing.
func (sm *StateMachine) End(reason EndReason, result Result, winner int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == Ended {
		return fmt.Errorf("%w: already ended", ErrSessionState)
	}
	sm.state = Ended
	sm.endReason = reason
	sm.result = result
	sm.winner = winner
	return nil
}

// Outcome reports how an ended session finished.
func (sm *StateMachine) Outcome() (EndReason, Result, int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.endReason, sm.result, sm.winner
}

// BoardView returns a copy of the board for display. Nil before Active.
func (sm *StateMachine) BoardView() *Board {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.board == nil {
		return nil
	}
	return sm.board.clone()
}

type snapshot struct {
	State     State     `json:"state"`
	Session   Session   `json:"session"`
	Board     *Board    `json:"board,omitempty"`
	TurnIdx   int       `json:"turn_idx"`
	NextSeq   uint64    `json:"next_seq"`
	EndReason EndReason `json:"end_reason,omitempty"`
	Result    Result    `json:"game_result,omitempty"`
	Winner    int       `json:"winning_player,omitempty"`
}

// Snapshot serializes the full game state for resynchronization.
func (sm *StateMachine) Snapshot() ([]byte, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := snapshot{
		State:     sm.state,
		Session:   sm.session,
		TurnIdx:   sm.turnIdx,
		NextSeq:   sm.nextSeq,
		EndReason: sm.endReason,
		Result:    sm.result,
		Winner:    sm.winner,
	}
	if sm.board != nil {
		s.Board = sm.board.clone()
	}
	return json.Marshal(s)
}

// Restore replaces the local state with a snapshot received from the
// host. Restoring never regresses an ended session.
func (sm *StateMachine) Restore(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: bad snapshot: %v", ErrProtocol, err)
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state == Ended && s.State != Ended {
		return fmt.Errorf("%w: refusing to resurrect ended session", ErrSessionState)
	}
	sm.state = s.State
	sm.session = s.Session
	sm.board = s.Board
	sm.turnIdx = s.TurnIdx
	sm.nextSeq = s.NextSeq
	sm.endReason = s.EndReason
	sm.result = s.Result
	sm.winner = s.Winner
	return nil
}

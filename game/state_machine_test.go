package game

import (
	"errors"
	"testing"

	"github.com/chenseanxy/symbol-game/network"
)

func testSession() Session {
	return Session{
		BoardSize: 3,
		Players: []Player{
			{ID: 1, Name: "alice", Symbol: "X", Identity: network.Identity{IP: "127.0.0.1", Port: 53550}},
			{ID: 2, Name: "bob", Symbol: "O", Identity: network.Identity{IP: "127.0.0.1", Port: 53560}},
		},
		TurnOrder: []int{1, 2},
	}
}

func activeMachine(t *testing.T) *StateMachine {
	t.Helper()
	sm := NewStateMachine()
	if err := sm.StartSession(testSession()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := sm.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return sm
}

func TestLifecycleMonotonic(t *testing.T) {
	sm := NewStateMachine()
	if sm.State() != Lobby {
		t.Fatalf("new machine not in lobby, got %s", sm.State())
	}
	if err := sm.Activate(); err == nil {
		t.Fatalf("activate from lobby should fail")
	}
	if err := sm.StartSession(testSession()); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if sm.State() != Starting {
		t.Fatalf("expected starting, got %s", sm.State())
	}
	if err := sm.StartSession(testSession()); err == nil {
		t.Fatalf("second start_game should fail")
	}
	if err := sm.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := sm.End(EndFault, ResultNone, 0); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := sm.End(EndFault, ResultNone, 0); err == nil {
		t.Fatalf("ended state must be terminal")
	}
	if err := sm.StartSession(testSession()); err == nil {
		t.Fatalf("start_game after ended should fail")
	}
}

func TestStartSessionRejectsBadTurnOrder(t *testing.T) {
	sm := NewStateMachine()
	s := testSession()
	s.TurnOrder = []int{1}
	if err := sm.StartSession(s); err == nil {
		t.Fatalf("turn order shorter than roster should fail")
	}
}

func TestEndFromLobbyOnFault(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.End(EndFault, ResultNone, 0); err != nil {
		t.Fatalf("fault end from lobby: %v", err)
	}
	if sm.State() != Ended {
		t.Fatalf("expected ended, got %s", sm.State())
	}
}

func TestValidateSequenceDiscipline(t *testing.T) {
	sm := activeMachine(t)

	if _, err := sm.Validate(Move{Player: 1, Row: 0, Col: 0, Seq: 2}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("future sequence accepted, err=%v", err)
	}
	res, err := sm.Validate(Move{Player: 1, Row: 0, Col: 0, Seq: 1})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Valid || res.Result != ResultNone {
		t.Fatalf("expected plain valid verdict, got %+v", res)
	}
	// Seq 1 is consumed whether or not the move commits.
	if _, err := sm.Validate(Move{Player: 1, Row: 0, Col: 1, Seq: 1}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("duplicate sequence accepted, err=%v", err)
	}
}

func TestValidateConsumesSeqOnInvalidMove(t *testing.T) {
	sm := activeMachine(t)
	res, err := sm.Validate(Move{Player: 1, Row: 5, Col: 5, Seq: 1})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid {
		t.Fatalf("out-of-bounds move validated")
	}
	// The re-proposal must use the next sequence number.
	if _, err := sm.Validate(Move{Player: 1, Row: 0, Col: 0, Seq: 1}); err == nil {
		t.Fatalf("consumed sequence reused")
	}
	res, err = sm.Validate(Move{Player: 1, Row: 0, Col: 0, Seq: 2})
	if err != nil || !res.Valid {
		t.Fatalf("re-proposal with next seq refused: %+v, %v", res, err)
	}
}

func TestValidateOutOfTurn(t *testing.T) {
	sm := activeMachine(t)
	if _, err := sm.Validate(Move{Player: 2, Row: 0, Col: 0, Seq: 1}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("out-of-turn proposal accepted, err=%v", err)
	}
	if _, err := sm.Validate(Move{Player: 99, Row: 0, Col: 0, Seq: 1}); !errors.Is(err, ErrProtocol) {
		t.Fatalf("unknown player accepted, err=%v", err)
	}
}

func TestValidateDetectsWin(t *testing.T) {
	sm := activeMachine(t)
	// Alice fills row 0, Bob plays elsewhere.
	moves := []Move{
		{Player: 1, Row: 0, Col: 0, Seq: 1},
		{Player: 2, Row: 1, Col: 0, Seq: 2},
		{Player: 1, Row: 0, Col: 1, Seq: 3},
		{Player: 2, Row: 1, Col: 1, Seq: 4},
	}
	for _, m := range moves {
		res, err := sm.Validate(m)
		if err != nil || !res.Valid {
			t.Fatalf("setup move %+v refused: %+v, %v", m, res, err)
		}
		if res.Result != ResultNone {
			t.Fatalf("premature result for %+v: %+v", m, res)
		}
		if err := sm.Apply(m); err != nil {
			t.Fatalf("apply: %v", err)
		}
		sm.Advance()
	}
	res, err := sm.Validate(Move{Player: 1, Row: 0, Col: 2, Seq: 5})
	if err != nil {
		t.Fatalf("validate winning move: %v", err)
	}
	if !res.Valid || res.Result != ResultWin || res.WinningPlayer != 1 {
		t.Fatalf("win not detected: %+v", res)
	}
	// The hypothetical win must not have touched the real board.
	if sm.BoardView().Occupied(0, 2) {
		t.Fatalf("validation mutated the board")
	}
}

func TestAdvanceCycles(t *testing.T) {
	sm := activeMachine(t)
	if sm.CurrentDrawer() != 1 {
		t.Fatalf("first drawer is %d, want 1", sm.CurrentDrawer())
	}
	if next := sm.Advance(); next != 2 {
		t.Fatalf("advance to %d, want 2", next)
	}
	if next := sm.Advance(); next != 1 {
		t.Fatalf("turn order did not wrap, got %d", next)
	}
}

func TestSnapshotRestore(t *testing.T) {
	sm := activeMachine(t)
	m := Move{Player: 1, Row: 2, Col: 2, Seq: 1}
	if _, err := sm.Validate(m); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := sm.Apply(m); err != nil {
		t.Fatalf("apply: %v", err)
	}
	sm.Advance()

	snap, err := sm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	other := NewStateMachine()
	if err := other.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if other.State() != Active {
		t.Fatalf("restored state %s, want active", other.State())
	}
	if other.CurrentDrawer() != 2 {
		t.Fatalf("restored drawer %d, want 2", other.CurrentDrawer())
	}
	if other.BoardView().At(2, 2) != "X" {
		t.Fatalf("restored board missing applied move")
	}
	// The next proposal on the restored node continues the sequence.
	if _, err := other.Validate(Move{Player: 2, Row: 0, Col: 0, Seq: 2}); err != nil {
		t.Fatalf("restored machine refused next move: %v", err)
	}
}

func TestRestoreNeverResurrectsEnded(t *testing.T) {
	sm := activeMachine(t)
	snap, err := sm.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := sm.End(EndFault, ResultNone, 0); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := sm.Restore(snap); err == nil {
		t.Fatalf("restore resurrected an ended session")
	}
}

package consensus

import (
	"testing"

	"github.com/chenseanxy/symbol-game/game"
)

func TestTurnRecordCompletes(t *testing.T) {
	move := game.Move{Player: 1, Row: 0, Col: 0, Seq: 1}
	r := NewTurnRecord(1, move, []int{2, 3})

	select {
	case <-r.Done():
		t.Fatalf("record done before any reply")
	default:
	}

	r.Record(2, game.ValidationResult{Move: move, Valid: true})
	select {
	case <-r.Done():
		t.Fatalf("record done with a reply missing")
	default:
	}
	if missing := r.Missing(); len(missing) != 1 || missing[0] != 3 {
		t.Fatalf("missing = %v, want [3]", missing)
	}

	r.Record(3, game.ValidationResult{Move: move, Valid: false})
	select {
	case <-r.Done():
	default:
		t.Fatalf("record not done after all replies")
	}
	if len(r.Missing()) != 0 {
		t.Fatalf("missing after completion: %v", r.Missing())
	}
}

func TestTurnRecordIgnoresOutsiders(t *testing.T) {
	move := game.Move{Player: 1, Row: 0, Col: 0, Seq: 1}
	r := NewTurnRecord(1, move, []int{2})

	r.Record(99, game.ValidationResult{Move: move, Valid: true})
	select {
	case <-r.Done():
		t.Fatalf("reply from non-validator completed the record")
	default:
	}
	if len(r.Replies()) != 0 {
		t.Fatalf("outsider reply stored: %v", r.Replies())
	}
}

func TestTurnRecordLaterReplySupersedes(t *testing.T) {
	move := game.Move{Player: 1, Row: 0, Col: 0, Seq: 1}
	r := NewTurnRecord(1, move, []int{2})

	r.Record(2, game.ValidationResult{Move: move, Valid: false})
	r.Record(2, game.ValidationResult{Move: move, Valid: true})
	if got := r.Replies()[2]; !got.Valid {
		t.Fatalf("later reply did not supersede: %+v", got)
	}
}

func TestTurnRecordNoValidators(t *testing.T) {
	// A validator-side record tracks only the pending move.
	r := NewTurnRecord(2, game.Move{Player: 2, Seq: 4}, nil)
	select {
	case <-r.Done():
	default:
		t.Fatalf("record with no required validators must start done")
	}
}

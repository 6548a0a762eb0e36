package consensus

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/messages"
)

// TurnCoordinator runs one turn's agreement cycle on the drawer's
// node: broadcast the proposal, collect replies into the TurnRecord,
// decide by unanimity and perform the resulting commit or end_game
// broadcast. Partial validation state never leaves the record.
type TurnCoordinator struct {
	sm       *game.StateMachine
	net      Messenger
	detector *FaultDetector
	record   *TurnRecord
	log      *zap.SugaredLogger
}

func NewTurnCoordinator(sm *game.StateMachine, net Messenger, detector *FaultDetector, record *TurnRecord, log *zap.SugaredLogger) *TurnCoordinator {
	return &TurnCoordinator{sm: sm, net: net, detector: detector, record: record, log: log}
}

// Run executes the cycle. The context is the session context: its
// cancellation means the session was forced to end mid-wait. The
// validation deadline is layered on top of it, so the wait aborts
// promptly on whichever comes first.
func (tc *TurnCoordinator) Run(ctx context.Context) (Decision, error) {
	move := tc.record.Move
	tc.log.Infow("proposing move", "row", move.Row, "col", move.Col, "seq", move.Seq)
	if err := tc.net.Broadcast(messages.NewProposeMove(move)); err != nil {
		return Decision{}, fmt.Errorf("broadcast propose_move: %w", err)
	}

	wait, cancel := context.WithTimeout(ctx, tc.detector.ValidateTimeout())
	defer cancel()
	select {
	case <-tc.record.Done():
	case <-wait.Done():
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if missing := tc.record.Missing(); len(missing) > 0 {
		// A missing reply is a peer fault, never retried.
		tc.log.Warnw("validation replies missing", "players", missing, "seq", move.Seq)
		for _, id := range missing {
			tc.detector.Report(Fault{Player: id, Reason: FaultTimeout})
		}
		return Decision{Outcome: OutcomeFault, Missing: missing}, nil
	}

	replies := tc.record.Replies()
	if rejecters := collectRejecters(replies); len(rejecters) > 0 {
		tc.log.Infow("move rejected", "by", rejecters, "seq", move.Seq)
		return Decision{Outcome: OutcomeRejected, Rejecters: rejecters}, nil
	}

	result, winner, agreed := agreeResult(replies)
	if !agreed {
		// All valid but the validators disagree on the outcome: treat
		// as a disagreement, not a fault, and let the drawer re-propose.
		tc.log.Warnw("validators disagree on game result", "seq", move.Seq)
		return Decision{Outcome: OutcomeRejected}, nil
	}

	if result == game.ResultNone {
		if err := tc.sm.Apply(move); err != nil {
			return Decision{}, err
		}
		if err := tc.net.Broadcast(messages.NewCommitMove(move.Seq)); err != nil {
			return Decision{}, fmt.Errorf("broadcast commit: %w", err)
		}
		tc.log.Infow("move committed", "row", move.Row, "col", move.Col, "seq", move.Seq)
		return Decision{Outcome: OutcomeCommitted}, nil
	}

	// Unanimous win or tie: the move itself is not applied, the
	// session ends instead.
	if err := tc.net.Broadcast(messages.NewEndGame(messages.ReasonWinOrTie, result, winner)); err != nil {
		tc.log.Warnw("broadcast end_game failed", "err", err)
	}
	reason := game.EndTie
	if result == game.ResultWin {
		reason = game.EndWin
	}
	if err := tc.sm.End(reason, result, winner); err != nil {
		return Decision{}, err
	}
	tc.log.Infow("game over", "result", result, "winner", winner)
	return Decision{Outcome: OutcomeEnded, Result: result, Winner: winner}, nil
}

func collectRejecters(replies map[int]game.ValidationResult) []int {
	var out []int
	for id, v := range replies {
		if !v.Valid {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// agreeResult returns the game result the validators settled on. All
// non-none results must name the same outcome and winner.
func agreeResult(replies map[int]game.ValidationResult) (game.Result, int, bool) {
	result := game.ResultNone
	winner := 0
	for _, v := range replies {
		if v.Result == game.ResultNone {
			continue
		}
		if result == game.ResultNone {
			result, winner = v.Result, v.WinningPlayer
			continue
		}
		if v.Result != result || v.WinningPlayer != winner {
			return game.ResultNone, 0, false
		}
	}
	return result, winner, true
}

package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/messages"
	"github.com/chenseanxy/symbol-game/network"
)

// Notify carries the frontend callbacks. Nil fields are skipped.
type Notify struct {
	// OnTurn fires whenever the current drawer changes, including at
	// session start.
	OnTurn func(drawer game.Player, mine bool)
	// OnApplied fires after a committed move reached the local board.
	OnApplied func(move game.Move)
	// OnEnded fires once when the session reaches its terminal state.
	OnEnded func(reason game.EndReason, result game.Result, winner int)
	// OnLobbyDisconnect fires for peers dropping while still in the
	// lobby, where a disconnect is not a session fault.
	OnLobbyDisconnect func(ident network.Identity)
}

// Node runs the consensus protocol for one participant: it owns the
// single in-flight TurnRecord slot, sequences turns over the state
// machine and reacts to faults. Turn progression is single-writer by
// construction; the record slot is the only structure the per-peer
// read pumps and the coordinator share.
type Node struct {
	me       network.Identity
	sm       *game.StateMachine
	store    *network.Store
	net      Messenger
	detector *FaultDetector
	log      *zap.SugaredLogger
	notify   Notify

	mu     sync.Mutex
	myID   int
	record *TurnRecord
	sctx   context.Context
	cancel context.CancelFunc
}

func NewNode(me network.Identity, sm *game.StateMachine, store *network.Store, net Messenger, detector *FaultDetector, log *zap.SugaredLogger) *Node {
	return &Node{
		me:       me,
		sm:       sm,
		store:    store,
		net:      net,
		detector: detector,
		log:      log,
	}
}

// SetNotify installs the frontend callbacks. Call before Run.
func (n *Node) SetNotify(notify Notify) {
	n.notify = notify
}

// ID returns this node's player ID, valid once the session started.
func (n *Node) ID() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.myID
}

// Run starts the fault and disconnect watchers. Call once at startup;
// the watchers run for the life of the process and consult the state
// machine to tell lobby drops from session faults.
func (n *Node) Run(ctx context.Context) {
	go n.watchFaults(ctx)
	go n.watchDisconnects(ctx)
}

// BindConnection registers the game-phase message handlers on a
// connection. Call for every peer link, inbound or dialed, before its
// read pump starts.
func (n *Node) BindConnection(conn *network.Connection) {
	conn.Handle(messages.ActionStartGame, n.handleStartGame)
	conn.Handle(messages.ActionProposeMove, n.handleProposeMove)
	conn.Handle(messages.ActionValidateMove, n.handleValidateMove)
	conn.Handle(messages.ActionCommitMove, n.handleCommitMove)
	conn.Handle(messages.ActionEndGame, n.handleEndGame)
	conn.Handle(messages.ActionRequestGameState, n.handleRequestGameState)
}

// Begin enters the active game on this node: resolves the local player
// ID, creates the session context and arms the draw timer for the
// first drawer. The state machine must already be Active.
func (n *Node) Begin(ctx context.Context) error {
	session := n.sm.Session()
	me, ok := session.PlayerByIdentity(n.me)
	if !ok {
		return fmt.Errorf("%w: local node %s not in session", game.ErrProtocol, n.me.Addr())
	}
	sctx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.myID = me.ID
	n.sctx = sctx
	n.cancel = cancel
	n.mu.Unlock()
	n.armTurn(n.sm.CurrentDrawer())
	return nil
}

// ProposeMove runs one full turn cycle for the local drawer. The
// coordinates come from the frontend. A locally impossible move
// (out of bounds, occupied on our own view) fails fast without
// consuming a sequence number; everything else goes through the
// propose → validate → commit cycle. The validation wait is bounded
// by the validate timeout and cut short if the session ends.
func (n *Node) ProposeMove(row, col int) (Decision, error) {
	if n.sm.State() != game.Active {
		return Decision{}, fmt.Errorf("%w: move in state %s", game.ErrSessionState, n.sm.State())
	}
	n.mu.Lock()
	myID := n.myID
	sctx := n.sctx
	n.mu.Unlock()
	if sctx == nil {
		return Decision{}, fmt.Errorf("%w: session not begun", game.ErrSessionState)
	}
	if n.sm.CurrentDrawer() != myID {
		return Decision{}, fmt.Errorf("%w: not your turn", game.ErrSessionState)
	}
	board := n.sm.BoardView()
	if !board.InBounds(row, col) {
		return Decision{}, fmt.Errorf("coordinates out of bounds, pick 0..%d", board.Size-1)
	}
	if board.Occupied(row, col) {
		return Decision{}, fmt.Errorf("cell (%d,%d) is already marked", row, col)
	}

	seq, err := n.sm.AllocateSeq()
	if err != nil {
		return Decision{}, err
	}
	move := game.Move{Player: myID, Row: row, Col: col, Seq: seq}
	record := NewTurnRecord(myID, move, n.connectedValidators(myID))
	n.setRecord(record)

	coordinator := NewTurnCoordinator(n.sm, n.net, n.detector, record, n.log)
	decision, err := coordinator.Run(sctx)
	if err != nil {
		return Decision{}, err
	}
	switch decision.Outcome {
	case OutcomeCommitted:
		n.setRecord(nil)
		if n.notify.OnApplied != nil {
			n.notify.OnApplied(move)
		}
		n.armTurn(n.sm.Advance())
	case OutcomeEnded:
		n.setRecord(nil)
		n.detector.DisarmDraw()
		n.finish()
		if n.notify.OnEnded != nil {
			reason, result, winner := n.sm.Outcome()
			n.notify.OnEnded(reason, result, winner)
		}
	case OutcomeRejected:
		// The record stays until the re-proposal replaces it wholesale.
	case OutcomeFault:
		// Escalated inside the coordinator; the fault watcher ends the
		// session.
	}
	return decision, nil
}

// Resync pulls a full state snapshot from the host, for a node whose
// local view went stale.
func (n *Node) Resync(ctx context.Context, host *network.Connection) error {
	got := make(chan messages.GameState, 1)
	host.Handle(messages.ActionGameState, func(_ *network.Connection, payload []byte) {
		var msg messages.GameState
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		select {
		case got <- msg:
		default:
		}
	})
	defer host.Handle(messages.ActionGameState, nil)
	if err := host.Send(messages.NewRequestGameState()); err != nil {
		return err
	}
	select {
	case msg := <-got:
		return n.sm.Restore(msg.Snapshot)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort force-ends the session, broadcasting end_game(fault) best
// effort. Used for the start acknowledgment timeout and host loss.
func (n *Node) Abort() {
	n.endSession()
}

func (n *Node) handleStartGame(conn *network.Connection, payload []byte) {
	var msg messages.StartGame
	if err := json.Unmarshal(payload, &msg); err != nil {
		n.log.Debugw("malformed start_game", "from", conn.Other().Addr(), "err", err)
		return
	}
	session := msg.Session()
	if err := n.sm.StartSession(session); err != nil {
		n.log.Warnw("start_game refused", "err", err)
		_ = conn.Send(messages.NewError(err.Error()))
		return
	}
	me, ok := session.PlayerByIdentity(n.me)
	if !ok {
		n.log.Errorw("local node missing from session roster")
		_ = n.sm.End(game.EndFault, game.ResultNone, 0)
		return
	}
	// Complete the mesh: every node dials the players with smaller
	// IDs, so each pair connects exactly once (the host link already
	// exists from joining).
	for _, p := range session.Players {
		if p.ID >= me.ID || p.Identity.Same(n.me) {
			continue
		}
		if _, connected := n.store.Get(p.Identity); connected {
			continue
		}
		peer, err := network.Dial(n.me, p.Identity, n.log)
		if err != nil {
			n.log.Errorw("mesh dial failed", "peer", p.Identity.Addr(), "err", err)
			n.endSession()
			return
		}
		n.BindConnection(peer)
		n.store.Add(peer)
		peer.Start()
	}
	// Activate before acknowledging: once the start_ack is out, any
	// player may treat this node as in the game and propose to it.
	if err := n.sm.Activate(); err != nil {
		n.log.Errorw("activate failed", "err", err)
		return
	}
	if err := conn.Send(messages.NewStartAck(me.ID)); err != nil {
		n.log.Errorw("start_ack send failed", "err", err)
		n.endSession()
		return
	}
	if err := n.Begin(context.Background()); err != nil {
		n.log.Errorw("begin failed", "err", err)
	}
}

func (n *Node) handleProposeMove(conn *network.Connection, payload []byte) {
	var msg messages.ProposeMove
	if err := json.Unmarshal(payload, &msg); err != nil {
		n.log.Debugw("malformed propose_move", "from", conn.Other().Addr(), "err", err)
		return
	}
	proposer, ok := n.sm.Session().PlayerByIdentity(conn.Other())
	if !ok {
		n.log.Debugw("propose_move from unknown peer", "from", conn.Other().Addr())
		return
	}
	move := game.Move{Player: proposer.ID, Row: msg.Location[0], Col: msg.Location[1], Seq: msg.Seq}
	verdict, err := n.sm.Validate(move)
	if err != nil {
		// Stale sequence numbers, out-of-turn proposals and wrong-state
		// messages are all discarded locally.
		n.log.Debugw("propose_move discarded", "from", proposer.ID, "seq", msg.Seq, "err", err)
		return
	}
	// Replace the turn record wholesale: this proposal supersedes any
	// earlier one that never committed.
	n.setRecord(NewTurnRecord(proposer.ID, move, nil))
	if err := conn.Send(messages.NewValidateMove(verdict)); err != nil {
		n.log.Warnw("validate_move send failed", "to", proposer.ID, "err", err)
	}
	// The drawer now owes us a commit, a re-proposal or an end_game;
	// keep the draw timer running against it.
	n.detector.ArmDraw(proposer.ID)
	n.log.Infow("validated proposal", "from", proposer.ID, "seq", move.Seq, "valid", verdict.Valid, "result", verdict.Result)
}

func (n *Node) handleValidateMove(conn *network.Connection, payload []byte) {
	var msg messages.ValidateMove
	if err := json.Unmarshal(payload, &msg); err != nil {
		n.log.Debugw("malformed validate_move", "from", conn.Other().Addr(), "err", err)
		return
	}
	record := n.currentRecord()
	n.mu.Lock()
	myID := n.myID
	n.mu.Unlock()
	if record == nil || record.Drawer != myID {
		n.log.Debugw("validate_move with no pending proposal", "from", conn.Other().Addr())
		return
	}
	if msg.Seq != record.Move.Seq {
		n.log.Debugw("stale validate_move", "seq", msg.Seq, "want", record.Move.Seq)
		return
	}
	voter, ok := n.sm.Session().PlayerByIdentity(conn.Other())
	if !ok {
		return
	}
	record.Record(voter.ID, game.ValidationResult{
		Move:          record.Move,
		Valid:         msg.Valid,
		Result:        msg.Result,
		WinningPlayer: msg.WinningPlayer,
	})
}

func (n *Node) handleCommitMove(conn *network.Connection, payload []byte) {
	var msg messages.CommitMove
	if err := json.Unmarshal(payload, &msg); err != nil {
		n.log.Debugw("malformed commit_move", "from", conn.Other().Addr(), "err", err)
		return
	}
	record := n.currentRecord()
	if record == nil || msg.Seq != record.Move.Seq {
		// Re-delivered or stale commit: the move is already applied (or
		// never pending). Applying again would mutate the board twice.
		n.log.Debugw("commit_move discarded", "seq", msg.Seq, "from", conn.Other().Addr())
		return
	}
	sender, ok := n.sm.Session().PlayerByIdentity(conn.Other())
	if !ok || sender.ID != record.Drawer {
		n.log.Debugw("commit_move not from drawer", "from", conn.Other().Addr())
		return
	}
	if err := n.sm.Apply(record.Move); err != nil {
		n.log.Errorw("commit apply failed", "err", err)
		return
	}
	n.setRecord(nil)
	if n.notify.OnApplied != nil {
		n.notify.OnApplied(record.Move)
	}
	n.armTurn(n.sm.Advance())
}

func (n *Node) handleEndGame(conn *network.Connection, payload []byte) {
	var msg messages.EndGame
	if err := json.Unmarshal(payload, &msg); err != nil {
		n.log.Debugw("malformed end_game", "from", conn.Other().Addr(), "err", err)
		return
	}
	reason := game.EndFault
	if msg.Reason == messages.ReasonWinOrTie {
		if msg.Result == game.ResultWin {
			reason = game.EndWin
		} else {
			reason = game.EndTie
		}
	}
	n.detector.DisarmDraw()
	n.setRecord(nil)
	if err := n.sm.End(reason, msg.Result, msg.WinningPlayer); err != nil {
		n.log.Debugw("end_game on ended session", "err", err)
		return
	}
	n.finish()
	n.log.Infow("session ended by peer", "reason", msg.Reason, "result", msg.Result, "winner", msg.WinningPlayer)
	if n.notify.OnEnded != nil {
		n.notify.OnEnded(reason, msg.Result, msg.WinningPlayer)
	}
}

func (n *Node) handleRequestGameState(conn *network.Connection, _ []byte) {
	snap, err := n.sm.Snapshot()
	if err != nil {
		n.log.Errorw("snapshot failed", "err", err)
		return
	}
	if err := conn.Send(messages.NewGameState(snap)); err != nil {
		n.log.Warnw("game_state send failed", "to", conn.Other().Addr(), "err", err)
	}
}

func (n *Node) watchFaults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-n.detector.Faults():
			state := n.sm.State()
			if state != game.Starting && state != game.Active {
				continue
			}
			n.log.Errorw("peer fault, ending session", "player", f.Player, "reason", f.Reason)
			n.endSession()
		}
	}
}

func (n *Node) watchDisconnects(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ident := <-n.store.Disconnects():
			switch n.sm.State() {
			case game.Lobby:
				if n.notify.OnLobbyDisconnect != nil {
					n.notify.OnLobbyDisconnect(ident)
				}
			case game.Starting, game.Active:
				player, ok := n.sm.Session().PlayerByIdentity(ident)
				if !ok {
					continue
				}
				n.detector.Report(Fault{Player: player.ID, Reason: FaultDisconnect})
			}
		}
	}
}

// endSession is the single fault exit: best-effort end_game broadcast,
// terminal state, prompt cancellation of any in-flight wait.
func (n *Node) endSession() {
	if err := n.net.Broadcast(messages.NewEndGame(messages.ReasonFault, game.ResultNone, 0)); err != nil {
		n.log.Debugw("end_game broadcast failed", "err", err)
	}
	n.detector.DisarmDraw()
	n.setRecord(nil)
	if err := n.sm.End(game.EndFault, game.ResultNone, 0); err != nil {
		return
	}
	n.finish()
	if n.notify.OnEnded != nil {
		n.notify.OnEnded(game.EndFault, game.ResultNone, 0)
	}
}

func (n *Node) finish() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (n *Node) armTurn(drawer int) {
	if drawer < 0 {
		return
	}
	n.mu.Lock()
	myID := n.myID
	n.mu.Unlock()
	if drawer == myID {
		n.detector.DisarmDraw()
	} else {
		n.detector.ArmDraw(drawer)
	}
	if n.notify.OnTurn != nil {
		if player, ok := n.sm.Session().PlayerByID(drawer); ok {
			n.notify.OnTurn(player, drawer == myID)
		}
	}
}

// connectedValidators lists the session players other than the drawer
// that are currently reachable.
func (n *Node) connectedValidators(drawer int) []int {
	session := n.sm.Session()
	var out []int
	for _, ident := range n.store.Peers() {
		player, ok := session.PlayerByIdentity(ident)
		if !ok || player.ID == drawer {
			continue
		}
		out = append(out, player.ID)
	}
	return out
}

func (n *Node) setRecord(r *TurnRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.record = r
}

func (n *Node) currentRecord() *TurnRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.record
}

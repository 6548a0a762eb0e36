package lobby

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chenseanxy/symbol-game/consensus"
	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/network"
)

// testNode is the full wiring of one participant, the same shape the
// CLI assembles.
type testNode struct {
	me       network.Identity
	sm       *game.StateMachine
	store    *network.Store
	server   *network.Server
	node     *consensus.Node
	manager  *Manager
	detector *consensus.FaultDetector
}

func startTestNode(t *testing.T, name string) *testNode {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(l.Addr().String())
	port, _ := strconv.Atoi(portStr)
	me := network.Identity{IP: "127.0.0.1", Port: port, Name: name}

	log := zap.NewNop().Sugar()
	n := &testNode{
		me:    me,
		sm:    game.NewStateMachine(),
		store: network.NewStore(log),
	}
	n.server = network.NewServer(me, n.store, log)
	n.detector = consensus.NewFaultDetector(5*time.Second, 2*time.Second, log)
	n.node = consensus.NewNode(me, n.sm, n.store, n.store, n.detector, log)
	n.manager = NewManager(me, name, n.sm, n.store, 2*time.Second, log)
	n.server.SetOnConnect(func(conn *network.Connection) {
		n.node.BindConnection(conn)
		n.manager.BindConnection(conn)
	})
	n.node.Run(context.Background())
	n.server.Start(l)
	t.Cleanup(func() {
		n.store.CloseAll()
		_ = n.server.Close()
	})
	return n
}

// joinHost dials the host and completes the join exchange.
func (n *testNode) joinHost(t *testing.T, host *testNode) *network.Connection {
	t.Helper()
	conn, err := network.Dial(n.me, host.me, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("dial host: %v", err)
	}
	n.node.BindConnection(conn)
	n.store.Add(conn)
	conn.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Join(ctx, conn, n.me, game.Preferences{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTwoPlayerGameToWin(t *testing.T) {
	host := startTestNode(t, "host")
	client := startTestNode(t, "client")

	client.joinHost(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := host.manager.Start(ctx, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.node.Begin(context.Background()); err != nil {
		t.Fatalf("host begin: %v", err)
	}
	if len(session.Players) != 2 || session.TurnOrder[0] != 1 {
		t.Fatalf("unexpected session %+v", session)
	}
	// Peers activate before acknowledging, so once Start has collected
	// the acks the client is already in the game.
	if got := client.sm.State(); got != game.Active {
		t.Fatalf("client state %s after start, want active", got)
	}

	// Host opens at (0,0).
	decision, err := host.node.ProposeMove(0, 0)
	if err != nil {
		t.Fatalf("host move: %v", err)
	}
	if decision.Outcome != consensus.OutcomeCommitted {
		t.Fatalf("host move outcome %v, want committed", decision.Outcome)
	}
	waitFor(t, "client board sync", func() bool {
		b := client.sm.BoardView()
		return b != nil && b.Occupied(0, 0)
	})
	waitFor(t, "client turn", func() bool { return client.sm.CurrentDrawer() == 2 })

	// Client replies at (1,0).
	decision, err = client.node.ProposeMove(1, 0)
	if err != nil {
		t.Fatalf("client move: %v", err)
	}
	if decision.Outcome != consensus.OutcomeCommitted {
		t.Fatalf("client move outcome %v, want committed", decision.Outcome)
	}
	waitFor(t, "host board sync", func() bool { return host.sm.BoardView().Occupied(1, 0) })
	waitFor(t, "host turn", func() bool { return host.sm.CurrentDrawer() == 1 })

	// Host completes row 0 on the 2x2 board and wins.
	decision, err = host.node.ProposeMove(0, 1)
	if err != nil {
		t.Fatalf("host winning move: %v", err)
	}
	if decision.Outcome != consensus.OutcomeEnded {
		t.Fatalf("winning move outcome %v, want ended", decision.Outcome)
	}
	if decision.Result != game.ResultWin || decision.Winner != 1 {
		t.Fatalf("decision %+v, want win by player 1", decision)
	}
	if host.sm.State() != game.Ended {
		t.Fatalf("host state %s, want ended", host.sm.State())
	}
	waitFor(t, "client game end", func() bool { return client.sm.State() == game.Ended })
	reason, result, winner := client.sm.Outcome()
	if reason != game.EndWin || result != game.ResultWin || winner != 1 {
		t.Fatalf("client outcome %s/%s/%d, want win by player 1", reason, result, winner)
	}
}

func TestRejectedMoveIsRetriedWithNextSeq(t *testing.T) {
	host := startTestNode(t, "host")
	client := startTestNode(t, "client")
	client.joinHost(t, host)

	if _, err := host.manager.Start(context.Background(), 3); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.node.Begin(context.Background()); err != nil {
		t.Fatalf("host begin: %v", err)
	}
	waitFor(t, "client activation", func() bool { return client.sm.State() == game.Active })

	if decision, err := host.node.ProposeMove(0, 0); err != nil || decision.Outcome != consensus.OutcomeCommitted {
		t.Fatalf("host move: %+v, %v", decision, err)
	}
	waitFor(t, "client turn", func() bool { return client.sm.CurrentDrawer() == 2 })

	// The client proposes the occupied cell. Its own precheck catches
	// the conflict before anything goes on the wire.
	if _, err := client.node.ProposeMove(0, 0); err == nil {
		t.Fatalf("move onto occupied cell not refused")
	}

	// The retry goes through and both boards converge.
	decision, err := client.node.ProposeMove(1, 1)
	if err != nil || decision.Outcome != consensus.OutcomeCommitted {
		t.Fatalf("retry: %+v, %v", decision, err)
	}
	waitFor(t, "host board sync", func() bool { return host.sm.BoardView().Occupied(1, 1) })
}

func TestChooseSymbolOverTheWire(t *testing.T) {
	host := startTestNode(t, "host")
	client := startTestNode(t, "client")
	hostConn := client.joinHost(t, host)

	if err := host.manager.ChooseHostSymbol("X"); err != nil {
		t.Fatalf("host symbol: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := ChooseSymbol(ctx, hostConn, "X")
	if err != nil {
		t.Fatalf("choose symbol: %v", err)
	}
	if ok {
		t.Fatalf("duplicate symbol accepted over the wire")
	}
	ok, err = ChooseSymbol(ctx, hostConn, "O")
	if err != nil || !ok {
		t.Fatalf("free symbol refused: %v, %v", ok, err)
	}
	waitFor(t, "symbol registration", func() bool {
		for _, p := range host.manager.Players() {
			if p.ID == 2 && p.Symbol == "O" {
				return true
			}
		}
		return false
	})
}

func TestJoinRefusedAfterStart(t *testing.T) {
	host := startTestNode(t, "host")
	client := startTestNode(t, "client")
	client.joinHost(t, host)

	if _, err := host.manager.Start(context.Background(), 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	late := startTestNode(t, "late")
	conn, err := network.Dial(late.me, host.me, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	late.node.BindConnection(conn)
	conn.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Join(ctx, conn, late.me, game.Preferences{}); err == nil {
		t.Fatalf("join accepted after the game started")
	}
	// The refused peer is dropped entirely, so session broadcasts
	// never reach it.
	waitFor(t, "refused peer eviction", func() bool {
		_, ok := host.store.Get(late.me)
		return !ok
	})
}

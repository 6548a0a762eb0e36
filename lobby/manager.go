// Package lobby implements the join/start phase. The host is the one
// authoritative state holder while the session forms; everyone else
// only talks to the host until the start_game broadcast freezes the
// roster.
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chenseanxy/symbol-game/consensus"
	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/messages"
	"github.com/chenseanxy/symbol-game/network"
)

// defaultSymbols is the pool assigned to players that never picked one.
var defaultSymbols = []string{"X", "O", "Δ", "□", "◯", "*", "#", "&"}

// Manager is the host-side session manager: it owns the lobby roster,
// assigns player IDs, arbitrates symbol choices and runs the
// start_game/acknowledgment exchange that freezes the session.
type Manager struct {
	me  network.Identity
	sm  *game.StateMachine
	net consensus.Messenger
	log *zap.SugaredLogger

	startWindow time.Duration

	mu      sync.Mutex
	players []game.Player
	prefs   map[int]game.Preferences
	symbols map[string]int
	nextID  int

	acks chan int
}

func NewManager(me network.Identity, name string, sm *game.StateMachine, net consensus.Messenger, startWindow time.Duration, log *zap.SugaredLogger) *Manager {
	m := &Manager{
		me:          me,
		sm:          sm,
		net:         net,
		log:         log,
		startWindow: startWindow,
		prefs:       make(map[int]game.Preferences),
		symbols:     make(map[string]int),
		nextID:      1,
		acks:        make(chan int, 16),
	}
	// The host is a player too and joins its own lobby first.
	m.addPlayer(name, me, game.Preferences{})
	return m
}

// BindConnection registers the lobby-phase handlers for a newly
// connected peer.
func (m *Manager) BindConnection(conn *network.Connection) {
	conn.Handle(messages.ActionJoinGame, m.handleJoin)
	conn.Handle(messages.ActionChooseSymbol, m.handleChooseSymbol)
	conn.Handle(messages.ActionStartAck, m.handleStartAck)
}

// Players returns the current roster in arrival order.
func (m *Manager) Players() []game.Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]game.Player, len(m.players))
	copy(out, m.players)
	return out
}

// RemovePlayer drops a player that disconnected while still in the
// lobby. Its ID is never reused.
func (m *Manager) RemovePlayer(ident network.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.players {
		if p.Identity.Same(ident) {
			m.players = append(m.players[:i], m.players[i+1:]...)
			if p.Symbol != "" {
				delete(m.symbols, p.Symbol)
			}
			m.log.Infow("player left lobby", "player", p.Name, "id", p.ID)
			return
		}
	}
}

// ChooseHostSymbol reserves a symbol for the host itself.
func (m *Manager) ChooseHostSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sm.State() != game.Lobby {
		return game.ErrSessionState
	}
	return m.reserveSymbol(m.players[0].ID, symbol)
}

// Start freezes the session and broadcasts start_game. boardSize 0
// picks the default of one more than the number of players. It blocks
// until every player acknowledged or the window elapsed; on a missing
// acknowledgment the session is already aborted when Start returns.
func (m *Manager) Start(ctx context.Context, boardSize int) (game.Session, error) {
	session, err := m.freeze(boardSize)
	if err != nil {
		return game.Session{}, err
	}
	if err := m.sm.StartSession(session); err != nil {
		return game.Session{}, err
	}
	if err := m.net.Broadcast(messages.NewStartGame(session)); err != nil {
		m.abort()
		return game.Session{}, fmt.Errorf("broadcast start_game: %w", err)
	}
	// Activate before waiting for acknowledgments: a peer that acked
	// may propose its first move right away, and the host has to be
	// ready to validate it.
	if err := m.sm.Activate(); err != nil {
		return game.Session{}, err
	}
	if err := m.collectAcks(ctx, session); err != nil {
		m.abort()
		return game.Session{}, err
	}
	m.log.Infow("session active", "players", len(session.Players), "board", session.BoardSize)
	return session, nil
}

// freeze validates the lobby and builds the immutable session.
func (m *Manager) freeze(boardSize int) (game.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sm.State() != game.Lobby {
		return game.Session{}, fmt.Errorf("%w: start_game in state %s", game.ErrSessionState, m.sm.State())
	}
	if len(m.players) < 2 {
		return game.Session{}, fmt.Errorf("need at least 2 players, have %d", len(m.players))
	}
	if boardSize <= 0 {
		boardSize = len(m.players) + 1
	}

	players := make([]game.Player, len(m.players))
	copy(players, m.players)
	for i := range players {
		if players[i].Symbol == "" {
			players[i].Symbol = m.pickSymbol()
		}
	}

	return game.Session{
		BoardSize: boardSize,
		Players:   players,
		TurnOrder: m.turnOrder(players),
		Settings:  game.Settings{"start_window": m.startWindow.String()},
	}, nil
}

// turnOrder places players with an explicit position preference first,
// ordered by preference and tie-broken by join ID; everyone else
// follows in arrival order.
func (m *Manager) turnOrder(players []game.Player) []int {
	order := make([]game.Player, len(players))
	copy(order, players)
	pos := func(p game.Player) int {
		if pref, ok := m.prefs[p.ID]; ok && pref.TurnPosition > 0 {
			return pref.TurnPosition
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(order, func(i, j int) bool {
		pi, pj := pos(order[i]), pos(order[j])
		if pi != pj {
			return pi < pj
		}
		return order[i].ID < order[j].ID
	})
	ids := make([]int, len(order))
	for i, p := range order {
		ids[i] = p.ID
	}
	return ids
}

func (m *Manager) collectAcks(ctx context.Context, session game.Session) error {
	myID := session.Players[0].ID
	if me, ok := session.PlayerByIdentity(m.me); ok {
		myID = me.ID
	}
	waiting := make(map[int]struct{}, len(session.Players))
	for _, p := range session.Players {
		if p.ID != myID {
			waiting[p.ID] = struct{}{}
		}
	}
	deadline := time.NewTimer(m.startWindow)
	defer deadline.Stop()
	for len(waiting) > 0 {
		select {
		case id := <-m.acks:
			delete(waiting, id)
		case <-deadline.C:
			missing := make([]int, 0, len(waiting))
			for id := range waiting {
				missing = append(missing, id)
			}
			sort.Ints(missing)
			return fmt.Errorf("start_game not acknowledged by players %v within %s", missing, m.startWindow)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) abort() {
	if err := m.net.Broadcast(messages.NewEndGame(messages.ReasonFault, game.ResultNone, 0)); err != nil {
		m.log.Debugw("abort broadcast failed", "err", err)
	}
	if err := m.sm.End(game.EndFault, game.ResultNone, 0); err != nil {
		m.log.Debugw("abort on ended session", "err", err)
	}
}

func (m *Manager) handleJoin(conn *network.Connection, payload []byte) {
	var msg messages.JoinGame
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.log.Debugw("malformed join_game", "from", conn.Other().Addr(), "err", err)
		return
	}
	m.mu.Lock()
	if m.sm.State() != game.Lobby {
		m.mu.Unlock()
		m.log.Infow("join refused outside lobby", "from", conn.Other().Addr())
		_ = conn.Send(messages.NewError("cannot join: game already started"))
		// Drop the connection too, or session broadcasts would keep
		// reaching a peer that is not a player.
		_ = conn.Close()
		return
	}
	ident := msg.Address
	if ident.Addr() != conn.Other().Addr() {
		// Trust the live connection over the advertised address.
		ident = conn.Other()
	}
	ident.Name = msg.Name
	player := m.addPlayer(msg.Name, ident, msg.Preferences)
	m.mu.Unlock()

	m.log.Infow("player joined", "player", msg.Name, "id", player.ID)
	if err := conn.Send(messages.NewJoinAck(player.ID)); err != nil {
		m.log.Warnw("join_ack send failed", "to", conn.Other().Addr(), "err", err)
	}
}

func (m *Manager) handleChooseSymbol(conn *network.Connection, payload []byte) {
	var msg messages.ChooseSymbol
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.log.Debugw("malformed choose_symbol", "from", conn.Other().Addr(), "err", err)
		return
	}
	m.mu.Lock()
	var player *game.Player
	for i := range m.players {
		if m.players[i].Identity.Same(conn.Other()) {
			player = &m.players[i]
			break
		}
	}
	valid := false
	if player != nil && m.sm.State() == game.Lobby {
		valid = m.reserveSymbol(player.ID, msg.Symbol) == nil
		if valid {
			player.Symbol = msg.Symbol
		}
	}
	m.mu.Unlock()
	m.log.Infow("symbol choice", "from", conn.Other().Addr(), "symbol", msg.Symbol, "valid", valid)
	if err := conn.Send(messages.NewValidateSymbol(valid)); err != nil {
		m.log.Warnw("validate_symbol send failed", "err", err)
	}
}

func (m *Manager) handleStartAck(conn *network.Connection, payload []byte) {
	var msg messages.StartAck
	if err := json.Unmarshal(payload, &msg); err != nil {
		m.log.Debugw("malformed start_ack", "from", conn.Other().Addr(), "err", err)
		return
	}
	select {
	case m.acks <- msg.ID:
	default:
		m.log.Debugw("start_ack dropped", "id", msg.ID)
	}
}

// addPlayer appends a player preserving arrival order. IDs are
// strictly increasing and never reused. Callers hold the lock except
// the constructor.
func (m *Manager) addPlayer(name string, ident network.Identity, prefs game.Preferences) game.Player {
	player := game.Player{
		ID:        m.nextID,
		Name:      name,
		Identity:  ident,
		JoinOrder: len(m.players),
	}
	m.nextID++
	if prefs.Symbol != "" && m.reserveSymbol(player.ID, prefs.Symbol) == nil {
		player.Symbol = prefs.Symbol
	}
	m.prefs[player.ID] = prefs
	m.players = append(m.players, player)
	return player
}

func (m *Manager) reserveSymbol(playerID int, symbol string) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if owner, taken := m.symbols[symbol]; taken && owner != playerID {
		return fmt.Errorf("symbol %q already taken", symbol)
	}
	// Release any symbol this player held before.
	for s, owner := range m.symbols {
		if owner == playerID {
			delete(m.symbols, s)
		}
	}
	m.symbols[symbol] = playerID
	for i := range m.players {
		if m.players[i].ID == playerID {
			m.players[i].Symbol = symbol
		}
	}
	return nil
}

func (m *Manager) pickSymbol() string {
	for _, s := range defaultSymbols {
		if _, taken := m.symbols[s]; !taken {
			m.symbols[s] = -1
			return s
		}
	}
	return fmt.Sprintf("P%d", len(m.symbols))
}

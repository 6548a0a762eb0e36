// Package messages defines the wire format: one JSON object per
// message, tagged by an action field. Constructors fill the tag so a
// message built in code can never go out untagged.
package messages

import (
	"encoding/json"

	"github.com/chenseanxy/symbol-game/game"
	"github.com/chenseanxy/symbol-game/network"
)

// Action names on the wire.
const (
	ActionJoinGame         = "join_game"
	ActionJoinAck          = "join_ack"
	ActionChooseSymbol     = "choose_symbol"
	ActionValidateSymbol   = "validate_symbol"
	ActionStartGame        = "start_game"
	ActionStartAck         = "start_ack"
	ActionProposeMove      = "propose_move"
	ActionValidateMove     = "validate_move"
	ActionCommitMove       = "commit_move"
	ActionEndGame          = "end_game"
	ActionRequestGameState = "request_game_state"
	ActionGameState        = "game_state"
	ActionError            = "error"
)

// End reasons carried by end_game.
const (
	ReasonWinOrTie = "win_or_tie"
	ReasonFault    = "fault"
)

// JoinGame is sent by a peer to the host to enter the lobby.
type JoinGame struct {
	Action      string           `json:"action"`
	Name        string           `json:"name"`
	Address     network.Identity `json:"address"`
	Preferences game.Preferences `json:"preferences,omitempty"`
}

func NewJoinGame(name string, addr network.Identity, prefs game.Preferences) JoinGame {
	return JoinGame{Action: ActionJoinGame, Name: name, Address: addr, Preferences: prefs}
}

// JoinAck is the host's reply carrying the assigned player ID.
type JoinAck struct {
	Action string `json:"action"`
	ID     int    `json:"id"`
}

func NewJoinAck(id int) JoinAck {
	return JoinAck{Action: ActionJoinAck, ID: id}
}

// ChooseSymbol asks the host to reserve a symbol for the sender.
type ChooseSymbol struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

func NewChooseSymbol(symbol string) ChooseSymbol {
	return ChooseSymbol{Action: ActionChooseSymbol, Symbol: symbol}
}

// ValidateSymbol is the host's verdict on a symbol choice.
type ValidateSymbol struct {
	Action string `json:"action"`
	Valid  bool   `json:"valid"`
}

func NewValidateSymbol(valid bool) ValidateSymbol {
	return ValidateSymbol{Action: ActionValidateSymbol, Valid: valid}
}

// StartGame freezes the session and is broadcast to every joined
// player.
type StartGame struct {
	Action    string        `json:"action"`
	Players   []game.Player `json:"players"`
	BoardSize int           `json:"board_size"`
	TurnOrder []int         `json:"turn_order"`
	Settings  game.Settings `json:"session_settings,omitempty"`
}

func NewStartGame(s game.Session) StartGame {
	return StartGame{
		Action:    ActionStartGame,
		Players:   s.Players,
		BoardSize: s.BoardSize,
		TurnOrder: s.TurnOrder,
		Settings:  s.Settings,
	}
}

// Session rebuilds the frozen session carried by a start_game message.
func (m StartGame) Session() game.Session {
	return game.Session{
		BoardSize: m.BoardSize,
		Players:   m.Players,
		TurnOrder: m.TurnOrder,
		Settings:  m.Settings,
	}
}

// StartAck acknowledges a start_game broadcast back to the host.
type StartAck struct {
	Action string `json:"action"`
	ID     int    `json:"id"`
}

func NewStartAck(id int) StartAck {
	return StartAck{Action: ActionStartAck, ID: id}
}

// ProposeMove is the drawer's move proposal to every other player.
type ProposeMove struct {
	Action   string `json:"action"`
	Location [2]int `json:"location"`
	Seq      uint64 `json:"seq"`
}

func NewProposeMove(m game.Move) ProposeMove {
	return ProposeMove{Action: ActionProposeMove, Location: [2]int{m.Row, m.Col}, Seq: m.Seq}
}

// ValidateMove is one validator's reply to the drawer.
type ValidateMove struct {
	Action        string      `json:"action"`
	Valid         bool        `json:"valid"`
	Result        game.Result `json:"game_result,omitempty"`
	WinningPlayer int         `json:"winning_player,omitempty"`
	Seq           uint64      `json:"seq"`
}

func NewValidateMove(v game.ValidationResult) ValidateMove {
	return ValidateMove{
		Action:        ActionValidateMove,
		Valid:         v.Valid,
		Result:        v.Result,
		WinningPlayer: v.WinningPlayer,
		Seq:           v.Move.Seq,
	}
}

// CommitMove finalizes the unanimously validated proposal with the
// given sequence number. It carries no coordinates: every peer applies
// the pending move it validated.
type CommitMove struct {
	Action string `json:"action"`
	Seq    uint64 `json:"seq"`
}

func NewCommitMove(seq uint64) CommitMove {
	return CommitMove{Action: ActionCommitMove, Seq: seq}
}

// EndGame terminates the session on every node.
type EndGame struct {
	Action        string      `json:"action"`
	Reason        string      `json:"reason"`
	Result        game.Result `json:"game_result,omitempty"`
	WinningPlayer int         `json:"winning_player,omitempty"`
}

func NewEndGame(reason string, result game.Result, winner int) EndGame {
	return EndGame{Action: ActionEndGame, Reason: reason, Result: result, WinningPlayer: winner}
}

// RequestGameState asks the host for a full state snapshot.
type RequestGameState struct {
	Action string `json:"action"`
}

func NewRequestGameState() RequestGameState {
	return RequestGameState{Action: ActionRequestGameState}
}

// GameState carries the host's state snapshot.
type GameState struct {
	Action   string          `json:"action"`
	Snapshot json.RawMessage `json:"snapshot"`
}

func NewGameState(snapshot []byte) GameState {
	return GameState{Action: ActionGameState, Snapshot: snapshot}
}

// Error is a rejection reply to the issuer of a bad command; it never
// changes any state.
type Error struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func NewError(reason string) Error {
	return Error{Action: ActionError, Reason: reason}
}

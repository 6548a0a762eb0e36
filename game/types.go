package game

import "github.com/chenseanxy/symbol-game/network"

// Player is a joined participant. Created when the host accepts a
// join, never mutated after the session is frozen.
type Player struct {
	ID        int              `json:"id"`
	Name      string           `json:"name"`
	Identity  network.Identity `json:"identity"`
	Symbol    string           `json:"symbol"`
	JoinOrder int              `json:"join_order"`
}

// Preferences are optional wishes a player sends along with join_game.
// TurnPosition is 1-based; zero means no preference.
type Preferences struct {
	Symbol       string `json:"symbol,omitempty"`
	TurnPosition int    `json:"turn_position,omitempty"`
}

// Settings carries free-form session options chosen by the host.
type Settings map[string]string

// Session is the frozen outcome of the lobby phase: the roster, the
// board size and the turn order. It never changes once the start_game
// broadcast went out.
type Session struct {
	BoardSize int      `json:"board_size"`
	Players   []Player `json:"players"`
	TurnOrder []int    `json:"turn_order"`
	Settings  Settings `json:"session_settings,omitempty"`
}

// PlayerByID returns the player with the given ID.
func (s Session) PlayerByID(id int) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// PlayerByIdentity returns the player reachable at the given identity.
func (s Session) PlayerByIdentity(ident network.Identity) (Player, bool) {
	for _, p := range s.Players {
		if p.Identity.Same(ident) {
			return p, true
		}
	}
	return Player{}, false
}

// Move is one proposed placement. Seq is strictly increasing per
// session, including proposals that end up rejected.
type Move struct {
	Player int    `json:"player"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Seq    uint64 `json:"seq"`
}

// Result is the game outcome a validator computes for a move.
type Result string

const (
	ResultNone Result = ""
	ResultWin  Result = "win"
	ResultTie  Result = "tie"
)

// ValidationResult is one validator's verdict on a proposed move.
type ValidationResult struct {
	Move          Move   `json:"move"`
	Valid         bool   `json:"valid"`
	Result        Result `json:"game_result,omitempty"`
	WinningPlayer int    `json:"winning_player,omitempty"`
}

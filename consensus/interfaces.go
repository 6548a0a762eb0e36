package consensus

import "github.com/chenseanxy/symbol-game/network"

// Messenger delivers wire messages to peers. *network.Store satisfies
// it; tests substitute a fake.
type Messenger interface {
	// Broadcast sends v to every currently reachable peer.
	Broadcast(v any) error

	// Send delivers v to one peer.
	Send(ident network.Identity, v any) error
}

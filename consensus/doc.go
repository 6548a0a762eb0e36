// Package consensus implements the turn-coordination and
// fault-detection protocol of the symbol game. It runs one
// propose → validate → commit cycle per turn across a small set of
// fully connected nodes, each holding its own copy of the board.
//
// # Core Components
//
// Node: ties the connection layer to the game state machine on one
// node, registers the per-action message handlers and holds the single
// in-flight TurnRecord slot.
//
// TurnCoordinator: executes exactly one turn's agreement cycle for the
// local drawer.
//
// FaultDetector: timeout and disconnect monitor feeding the fault
// channel the Node reacts to.
//
// # Protocol
//
// Each turn follows these steps:
//  1. The drawer broadcasts the proposed move with a per-session
//     strictly increasing sequence number.
//  2. Every other player validates it against its own board view and
//     replies with a verdict and the recomputed game result.
//  3. The drawer waits for a reply from every currently connected peer,
//     bounded by the validation deadline.
//  4. On unanimous valid=true the move commits everywhere (or the game
//     ends when the validators agree on win or tie). A single
//     valid=false rejects the move and the drawer is re-prompted. A
//     missing reply is a peer fault, not a disagreement.
//
// # Fault Model
//
// Agreement is unanimity among the reachable validators, not a
// byzantine quorum: the player set is small and cooperative. Any
// timeout or disconnect while a session is starting or active is fatal
// to the whole session; there is no player-removal-and-continue path
// and no retry.
package consensus

package game

import "errors"

var (
	// ErrSessionState marks a command issued against the wrong game
	// state. It is reported back to the issuer and changes nothing.
	ErrSessionState = errors.New("not allowed in current game state")

	// ErrProtocol marks a malformed or stale message, including
	// duplicate or out-of-order sequence numbers. Protocol errors are
	// discarded locally and never escalate.
	ErrProtocol = errors.New("protocol violation")
)

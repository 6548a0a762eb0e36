// Package network provides the peer-to-peer connection layer for the
// symbol game. Every node runs one Server accepting inbound peers and
// dials outbound connections to the peers it must reach.
//
// # Core Components
//
// Identity: a node identified by its address and listening port.
//
// Connection: a single peer link carrying one JSON object per websocket
// message, with per-action handler dispatch running on the connection's
// read pump.
//
// Store: the set of currently reachable peers, surfacing an explicit
// disconnect signal for fault detection.
//
// Server: the inbound accept path; adopts a connection once the remote
// node has introduced itself with a hello frame.
//
// # Delivery Guarantees
//
// Websocket frames over TCP give ordered, reliable, message-framed
// delivery per peer. Each inbound message is dispatched exactly once to
// the handler registered for its action; messages with no registered
// handler are dropped.
package network

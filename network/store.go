package network

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store tracks the currently reachable peers. It owns the disconnect
// signal: whenever a tracked connection dies, its identity is pushed on
// the Disconnects channel exactly once.
type Store struct {
	log *zap.SugaredLogger

	mu    sync.Mutex
	conns map[string]*Connection

	disconnects chan Identity
}

func NewStore(log *zap.SugaredLogger) *Store {
	return &Store{
		log:         log,
		conns:       make(map[string]*Connection),
		disconnects: make(chan Identity, 16),
	}
}

// Add adopts a connection into the store. A connection to the same
// identity replaces the previous one.
func (s *Store) Add(conn *Connection) {
	conn.onClose = func(c *Connection) {
		s.remove(c)
		select {
		case s.disconnects <- c.other:
		default:
			s.log.Warnw("disconnect signal dropped", "peer", c.other.Addr())
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.other.Addr()] = conn
}

// Get returns the live connection to ident, if any.
func (s *Store) Get(ident Identity) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[ident.Addr()]
	return conn, ok
}

// Peers returns the identities of all currently reachable peers.
func (s *Store) Peers() []Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	peers := make([]Identity, 0, len(s.conns))
	for _, conn := range s.conns {
		peers = append(peers, conn.other)
	}
	return peers
}

// Disconnects surfaces peers whose connection dropped, for fault
// detection.
func (s *Store) Disconnects() <-chan Identity {
	return s.disconnects
}

// Broadcast sends v to every reachable peer. Errors are joined so a
// single dead peer does not hide the others.
func (s *Store) Broadcast(v any) error {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	var errs []error
	for _, conn := range conns {
		if err := conn.Send(v); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", conn.other.Addr(), err))
		}
	}
	return errors.Join(errs...)
}

// Send delivers v to one peer.
func (s *Store) Send(ident Identity, v any) error {
	conn, ok := s.Get(ident)
	if !ok {
		return fmt.Errorf("no connection to %s", ident.Addr())
	}
	return conn.Send(v)
}

// CloseAll tears down every tracked connection.
func (s *Store) CloseAll() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Store) remove(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.conns[conn.other.Addr()]; ok && current == conn {
		delete(s.conns, conn.other.Addr())
	}
}

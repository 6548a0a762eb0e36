package network

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const helloTimeout = 10 * time.Second

// Server is the inbound accept path. Each remote node upgrades to a
// websocket on /ws and must introduce itself with a hello frame before
// the connection is adopted into the store.
type Server struct {
	me    Identity
	store *Store
	log   *zap.SugaredLogger

	srv       *http.Server
	upgrader  websocket.Upgrader
	onConnect func(*Connection)
}

func NewServer(me Identity, store *Store, log *zap.SugaredLogger) *Server {
	s := &Server{
		me:    me,
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Addr: me.Addr(), Handler: mux}
	return s
}

// SetOnConnect registers the hook that runs for every adopted inbound
// connection, before its read pump starts. Handler registration for the
// new peer belongs here.
func (s *Server) SetOnConnect(fn func(*Connection)) {
	s.onConnect = fn
}

// Start serves on the given listener until Close.
func (s *Server) Start(l net.Listener) {
	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("server stopped", "err", err)
		}
	}()
}

func (s *Server) Close() error {
	return s.srv.Shutdown(context.Background())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	// The hello frame must arrive first so the peer can be keyed by its
	// listening address rather than its ephemeral dialing port.
	_ = ws.SetReadDeadline(time.Now().Add(helloTimeout))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		s.log.Warnw("no hello frame", "remote", r.RemoteAddr, "err", err)
		_ = ws.Close()
		return
	}
	var hello helloFrame
	if err := json.Unmarshal(payload, &hello); err != nil || hello.Action != actionHello {
		s.log.Warnw("bad hello frame", "remote", r.RemoteAddr)
		_ = ws.Close()
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	conn := newConnection(ws, hello.Identity, s.log)
	s.store.Add(conn)
	s.log.Infow("peer connected", "peer", hello.Identity.String())
	if s.onConnect != nil {
		s.onConnect(conn)
	}
	conn.Start()
}

// Package server ties the chat components together: it accepts WebSocket
// connections, runs one dispatch loop per client, and owns the connection
// registry and the online-user index.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"parley/internal/auth"
	"parley/internal/chat"
	"parley/internal/chatlog"
	"parley/internal/config"
	"parley/internal/credstore"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server accepts client connections and serves the chat protocol.
type Server struct {
	cfg      *config.Config
	creds    *credstore.Store
	auth     *auth.Authenticator
	chats    *chat.Manager
	chatlog  *chatlog.Log
	registry *Registry
	online   *onlineIndex

	httpServer *http.Server
}

// New wires the server from its collaborators. The registry stays unstarted
// until Start enters the accept loop.
func New(cfg *config.Config, creds *credstore.Store, authn *auth.Authenticator, chats *chat.Manager, l *chatlog.Log, registry *Registry) *Server {
	s := &Server{
		cfg:      cfg,
		creds:    creds,
		auth:     authn,
		chats:    chats,
		chatlog:  l,
		registry: registry,
		online:   newOnlineIndex(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Start opens the listener and returns once the server is accepting
// connections, or with the startup error.
func (s *Server) Start(ctx context.Context) error {
	s.registry.Start()
	log.Printf("server: listening on %s", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the listener down gracefully. Per-connection cleanup runs as
// each dispatch loop observes its closed transport.
func (s *Server) Stop(ctx context.Context) error {
	log.Printf("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// handleWS upgrades the HTTP request and hands the connection to its own
// dispatch loop. The loop runs in the handler goroutine; returning from it
// is what triggers connection cleanup.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	log.Printf("server: client connected from %s", r.RemoteAddr)

	h := &clientHandler{
		srv:  s,
		conn: newConn(ws, s.cfg.WebSocket.SendBuffer, s.cfg.WebSocket.WriteTimeout),
	}
	h.run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"online": s.registry.Count(),
	})
}

// broadcastOnline pushes the current online-user list to every connected
// client. Write failures mean the recipient is gone and are dropped.
func (s *Server) broadcastOnline() {
	users := s.online.list()
	evt := Event{Type: EvtOnlineUsers, Users: users}
	for _, u := range users {
		if c, online := s.registry.Writable(u.ID); online {
			if err := c.WriteJSON(evt); err != nil {
				log.Printf("server: broadcasting online list to %s: %v", u.ID, err)
			}
		}
	}
}

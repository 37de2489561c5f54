// Package monitor streams training progress to websocket clients, so a
// dashboard can follow loss history while a run is in flight.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Server broadcasts JSON progress events to every connected websocket
// client. New clients are replayed the full history first, so late
// dashboards see the whole run.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	history [][]byte
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from anywhere during local runs.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// All writes happen under s.mu, so the history replay cannot interleave
	// with a concurrent Publish on the same connection.
	s.mu.Lock()
	for _, msg := range s.history {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("monitor client connected")

	// Read loop only detects disconnects; clients send nothing meaningful.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug().Err(err).Msg("monitor client read error")
				}
				s.drop(conn)
				return
			}
		}
	}()
}

// Publish marshals v and sends it to every connected client. Clients whose
// writes fail are dropped.
func (s *Server) Publish(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Msg("marshal monitor event")
		return
	}

	s.mu.Lock()
	s.history = append(s.history, msg)
	var dead []*websocket.Conn
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

package network

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"wisp/internal/module"
)

// Server is the compiler-service counterpart to Loader: it answers a
// unit-name request with that unit's gob-encoded bytes. It is grounded on
// the teacher's WebSocketListen/accept-loop shape, generalized from an
// interactive multi-client relay to a single request/response unit
// fetch.
type Server struct {
	mu       sync.RWMutex
	units    map[string]module.Unit
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer returns a Server with no units registered. Register adds
// units it will answer requests for.
func NewServer(logger *log.Logger) *Server {
	return &Server{
		units:    make(map[string]module.Unit),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// Register makes unit fetchable under name.
func (s *Server) Register(name string, unit module.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[name] = unit
}

// ServeHTTP upgrades the connection and serves exactly one fetch request
// before closing it, mirroring Loader's one-connection-per-fetch client.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("websocket upgrade failed: %v", err)
		}
		return
	}
	defer conn.Close()

	msgType, data, err := conn.ReadMessage()
	if err != nil || msgType != websocket.TextMessage {
		return
	}
	name := string(data)

	s.mu.RLock()
	unit, ok := s.units[name]
	s.mu.RUnlock()
	if !ok {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "unit not found: "+name))
		return
	}

	encoded, err := module.EncodeUnit(unit)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("encoding unit %q: %v", name, err)
		}
		return
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, encoded); err != nil && s.logger != nil {
		s.logger.Printf("sending unit %q: %v", name, err)
	}
}

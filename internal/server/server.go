// internal/server/server.go
package server

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/parlor-games/parlor/internal/config"
	"github.com/parlor-games/parlor/internal/feed"
	"github.com/parlor-games/parlor/internal/middleware"
	"github.com/parlor-games/parlor/internal/protocol"
	"github.com/parlor-games/parlor/internal/room"
	"github.com/parlor-games/parlor/internal/session"
)

// Server wires the WebSocket endpoint and the read-only HTTP surface to the
// room registry and the session broker.
type Server struct {
	cfg      config.Config
	logger   *logrus.Logger
	registry *room.Registry
	broker   *session.Broker
	feed     *feed.Feed
}

func New(cfg config.Config, logger *logrus.Logger, registry *room.Registry, broker *session.Broker, f *feed.Feed) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		broker:   broker,
		feed:     f,
	}
}

// Routes builds the HTTP mux. The WebSocket endpoint is mounted bare; the
// JSON endpoints go through the request logger.
func (s *Server) Routes() http.Handler {
	logged := middleware.LogMiddleware(s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/rooms", logged(http.HandlerFunc(s.handleListRooms)))
	mux.Handle("/healthz", logged(http.HandlerFunc(s.handleHealthz)))
	return mux
}

// handleListRooms serves the public room listing for clients browsing before
// they open a WebSocket.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(protocol.RoomList{Rooms: s.registry.ListPublic()}); err != nil {
		s.logger.Errorf("encode room list: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

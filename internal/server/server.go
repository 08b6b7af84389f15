// Package server serves spectators of running combats: JSON snapshots over
// HTTP and a websocket that pushes a fresh view after every combat step.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/magefree/mage-combat-go/internal/game"
	"go.uber.org/zap"
)

// Message types pushed to spectators.
const (
	MessageGameView  = "game_view"
	MessageGameEnded = "game_ended"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server routes spectator requests to the engine and the hub.
type Server struct {
	engine *game.Engine
	hub    *Hub
	router *mux.Router
	logger *zap.Logger
}

// New creates a server over engine. The hub must be running.
func New(engine *game.Engine, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		hub:    hub,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/games", s.handleGames).Methods(http.MethodGet)

	games := s.router.PathPrefix("/games/{gameID}").Subrouter()
	games.HandleFunc("/view", s.handleView).Methods(http.MethodGet)
	games.HandleFunc("/combat", s.handleCombat).Methods(http.MethodGet)
	games.HandleFunc("/messages", s.handleMessages).Methods(http.MethodGet)
	games.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	s.router.HandleFunc("/replays/{gameID}", s.handleReplay).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleNotification pushes engine notifications to the game's spectators.
// Register it with Engine.SetNotificationHandler.
func (s *Server) HandleNotification(n game.GameNotification) {
	var msg WSMessage
	switch n.Type {
	case "GAME_ENDED":
		msg = WSMessage{Type: MessageGameEnded, GameID: n.GameID, Data: n.Data}
	default:
		view, err := s.engine.GetGameView(n.GameID)
		if err != nil {
			s.logger.Debug("no view for notification",
				zap.String("game_id", n.GameID),
				zap.String("type", n.Type),
				zap.Error(err))
			return
		}
		msg = WSMessage{Type: MessageGameView, GameID: n.GameID, Data: view}
	}

	if err := s.hub.Broadcast(n.GameID, msg); err != nil {
		s.logger.Warn("failed to broadcast",
			zap.String("game_id", n.GameID),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrReplayNotFound):
		status = http.StatusNotFound
	case errors.Is(err, game.ErrInvalidReplay):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"games":      len(s.engine.GameIDs()),
		"spectators": s.hub.Spectators(),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	ids := s.engine.GameIDs()
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"games": ids, "count": len(ids)})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetGameView(mux.Vars(r)["gameID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCombat(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetCombatView(mux.Vars(r)["gameID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.engine.GetMessages(mux.Vars(r)["gameID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	replay, err := s.engine.Replays().Lookup(mux.Vars(r)["gameID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := replay.Views()
	writeJSON(w, http.StatusOK, map[string]any{
		"game_id": replay.GameID,
		"winner":  replay.Winner,
		"size":    len(views),
		"steps":   replay.Steps(),
		"states":  views,
	})
}

// handleWS upgrades a spectator and sends the current view straight away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]
	view, err := s.engine.GetGameView(gameID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	client := s.hub.newClient(conn, gameID)
	payload, err := json.Marshal(WSMessage{Type: MessageGameView, GameID: gameID, Data: view})
	if err != nil {
		s.logger.Error("failed to encode view", zap.String("game_id", gameID), zap.Error(err))
		conn.Close()
		return
	}
	client.send <- payload

	if !s.hub.join(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

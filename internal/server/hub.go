package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrHubClosed is returned once the hub has stopped.
var ErrHubClosed = errors.New("spectator hub closed")

// WSMessage is a message pushed to spectators.
type WSMessage struct {
	Type   string `json:"type"`
	GameID string `json:"game_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Client is one spectator connection watching one game.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	gameID string
}

type gameMessage struct {
	gameID  string
	payload []byte
}

// Hub fans game messages out to the spectators of each game. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan gameMessage
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	done       chan struct{}
	bufferSize int
	logger     *zap.Logger
}

// NewHub creates a hub whose clients buffer up to bufferSize messages.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan gameMessage, bufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case client := <-h.register:
			clients, ok := h.clients[client.gameID]
			if !ok {
				clients = make(map[*Client]bool)
				h.clients[client.gameID] = clients
			}
			clients[client] = true
			h.logger.Debug("spectator registered",
				zap.String("game_id", client.gameID),
				zap.Int("spectators", len(clients)))

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			for client := range h.clients[message.gameID] {
				select {
				case client.send <- message.payload:
				default:
					h.logger.Warn("spectator too slow, dropping",
						zap.String("game_id", client.gameID))
					h.remove(client)
				}
			}

		case reply := <-h.count:
			n := 0
			for _, clients := range h.clients {
				n += len(clients)
			}
			reply <- n
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.gameID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.gameID)
	}
	h.logger.Debug("spectator unregistered", zap.String("game_id", client.gameID))
}

// Broadcast queues msg for every spectator of gameID.
func (h *Hub) Broadcast(gameID string, msg WSMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}
	select {
	case h.broadcast <- gameMessage{gameID: gameID, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Spectators returns the number of connected spectators.
func (h *Hub) Spectators() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// join registers client. It reports false if the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) newClient(conn *websocket.Conn, gameID string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.bufferSize),
		gameID: gameID,
	}
}

// readPump only watches for the connection closing; spectators don't send
// commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Idle period after which a heartbeat is sent
	heartbeatPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Per-subscriber send buffer; overflow drops the subscriber
	sendBufferSize = 256
)

// Client is one feed subscriber.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
	log  *logger.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	id := uuid.New().String()
	return &Client{
		ID:   id,
		conn: conn,
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
		log:  log.WithFields(zap.String("client_id", id)),
	}
}

// enqueue places a serialized event on the send buffer without blocking.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ReadPump services incoming control messages. A bare "ping" (or a JSON
// object with type "ping") gets a pong event back; disconnect unsubscribes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if isPing(message) {
			if data, err := json.Marshal(NewLiveEvent(EventPong, nil)); err == nil {
				c.enqueue(data)
			}
		}
	}
}

// WritePump delivers queued events and emits a heartbeat after 30s of
// outbound silence.
func (c *Client) WritePump() {
	ticker := time.NewTicker(heartbeatPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			ticker.Reset(heartbeatPeriod)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(NewLiveEvent(EventHeartbeat, nil))
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func isPing(message []byte) bool {
	text := strings.TrimSpace(string(message))
	if text == "ping" || text == `"ping"` {
		return true
	}
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err == nil && msg.Type == "ping" {
		return true
	}
	return false
}

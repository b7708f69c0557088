package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Feed upgrades the connection and enrolls it as a live-feed subscriber.
// GET /ws/feed
func (h *Handler) Feed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.core.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := feed.NewClient(conn, h.core.Hub, h.core.Log)
	h.core.Hub.Register(client)
	metrics.FeedSubscribers.Set(float64(h.core.Hub.ClientCount()))

	go client.WritePump()
	go client.ReadPump()
}

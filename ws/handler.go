package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/metrics"
)

const maxMessageSize = 512

type Options struct {
	CookieName     string
	AllowedOrigins []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingPeriod     time.Duration
}

// Handler admits realtime channels. The credential gate runs before the
// upgrade, so a rejected handshake never reaches a room.
type Handler struct {
	hub      *Hub
	tokens   *common.TokenManager
	upgrader *websocket.Upgrader
	opts     Options
	log      *zap.Logger
}

func NewHandler(hub *Hub, tokens *common.TokenManager, opts Options, logger *zap.Logger) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	return &Handler{
		hub:      hub,
		tokens:   tokens,
		upgrader: common.NewUpgrader(opts.AllowedOrigins),
		opts:     opts,
		log:      logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.tokens.ValidateRequest(r, h.opts.CookieName)
	if err != nil {
		metrics.WSRejected.Inc()
		h.log.Info("channel rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "authentication error", http.StatusUnauthorized)
		return
	}

	conn, err := common.NewWSConn(h.upgrader, w, r, h.opts.WriteTimeout)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("userId", userID), zap.Error(err))
		return
	}

	client := NewClient(conn, userID, h.opts.SendBuffer)
	if !h.hub.Register(client) {
		conn.WriteClose()
		conn.Close()
		return
	}

	go h.write(client)
	go h.read(client)
}

// read only watches for close and pong frames; clients send no
// application messages.
func (h *Handler) read(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.Conn.Close()
	}()
	pongWait := h.opts.PingPeriod * 2
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.String("userId", c.UserID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) write(c *Client) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				c.Conn.WriteClose()
				return
			}
			if err := c.Conn.WriteMessage(msg); err != nil {
				metrics.PushesDropped.WithLabelValues("write_error").Inc()
				h.log.Debug("websocket write error", zap.String("userId", c.UserID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.Conn.WritePing(); err != nil {
				return
			}
		}
	}
}

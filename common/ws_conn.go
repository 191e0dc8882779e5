package common

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// NewUpgrader accepts same-origin requests, requests without an Origin
// header, and the listed origins. A "*" entry accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] || allowed[origin] {
				return true
			}
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		},
	}
}

type WSConn struct {
	*websocket.Conn
	writeTimeout time.Duration
}

func NewWSConn(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, writeTimeout time.Duration) (*WSConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &WSConn{Conn: conn, writeTimeout: writeTimeout}, nil
}

func (ws *WSConn) WriteMessage(data []byte) error {
	ws.Conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
	return ws.Conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WSConn) WritePing() error {
	ws.Conn.SetWriteDeadline(time.Now().Add(ws.writeTimeout))
	return ws.Conn.WriteMessage(websocket.PingMessage, nil)
}

func (ws *WSConn) WriteClose() error {
	return ws.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(ws.writeTimeout))
}

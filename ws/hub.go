package ws

import (
	"context"

	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/metrics"
)

// Client is one admitted connection. UserID is fixed at admission.
type Client struct {
	Conn   *common.WSConn
	UserID string
	Send   chan []byte
}

func NewClient(conn *common.WSConn, userID string, buffer int) *Client {
	return &Client{Conn: conn, UserID: userID, Send: make(chan []byte, buffer)}
}

type delivery struct {
	userID string // empty means every admitted client
	event  string
	data   []byte
}

// Hub is the realtime channel registry. Room membership (userID -> set of
// clients) is owned by the Run goroutine; every other method talks to it
// over channels, so admit, emit and disconnect never race.
type Hub struct {
	rooms map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	query      chan func()
	done       chan struct{}

	log *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 64),
		query:      make(chan func()),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Run owns the room map until ctx is cancelled. On exit every client's send
// channel is closed so its writer sends a close frame.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, room := range h.rooms {
				for c := range room {
					close(c.Send)
					metrics.WSConnections.Dec()
				}
				delete(h.rooms, userID)
			}
			return
		case c := <-h.register:
			room, ok := h.rooms[c.UserID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[c.UserID] = room
			}
			room[c] = struct{}{}
			metrics.WSConnections.Inc()
			h.log.Info("channel admitted", zap.String("userId", c.UserID), zap.Int("roomSize", len(room)))
		case c := <-h.unregister:
			if h.remove(c) {
				h.log.Info("channel disconnected", zap.String("userId", c.UserID))
			}
		case d := <-h.deliver:
			h.fanOut(d)
		case fn := <-h.query:
			fn()
		}
	}
}

// remove drops c from its room and discards the room once empty.
func (h *Hub) remove(c *Client) bool {
	room, ok := h.rooms[c.UserID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	close(c.Send)
	metrics.WSConnections.Dec()
	if len(room) == 0 {
		delete(h.rooms, c.UserID)
	}
	return true
}

func (h *Hub) fanOut(d delivery) {
	if d.userID != "" {
		for c := range h.rooms[d.userID] {
			h.push(c, d)
		}
		return
	}
	for _, room := range h.rooms {
		for c := range room {
			h.push(c, d)
		}
	}
}

// push never blocks the loop. A client that cannot keep up is evicted.
func (h *Hub) push(c *Client, d delivery) {
	select {
	case c.Send <- d.data:
		metrics.Pushes.WithLabelValues(d.event).Inc()
	default:
		metrics.PushesDropped.WithLabelValues("slow_consumer").Inc()
		h.log.Warn("evicting slow channel", zap.String("userId", c.UserID), zap.String("event", d.event))
		h.remove(c)
	}
}

// Register joins an already authenticated client to its user's room. It
// reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// EmitToUser delivers ev to every connection in the user's room. It is a
// no-op when the room is empty.
func (h *Hub) EmitToUser(userID string, ev common.Event) {
	if userID == "" {
		return
	}
	h.send(delivery{userID: userID}, ev)
}

// Broadcast delivers ev to every admitted connection.
func (h *Hub) Broadcast(ev common.Event) {
	h.send(delivery{}, ev)
}

func (h *Hub) send(d delivery, ev common.Event) {
	data, err := common.EncodeEvent(ev)
	if err != nil {
		h.log.Error("encode push", zap.String("event", ev.EventName()), zap.Error(err))
		return
	}
	d.event, d.data = ev.EventName(), data
	select {
	case h.deliver <- d:
	case <-h.done:
		metrics.PushesDropped.WithLabelValues("hub_stopped").Inc()
	}
}

// RoomSize returns the number of open connections for userID.
func (h *Hub) RoomSize(userID string) int {
	n := 0
	h.do(func() { n = len(h.rooms[userID]) })
	return n
}

// Rooms returns the number of non-empty rooms.
func (h *Hub) Rooms() int {
	n := 0
	h.do(func() { n = len(h.rooms) })
	return n
}

func (h *Hub) do(fn func()) {
	finished := make(chan struct{})
	select {
	case h.query <- func() { fn(); close(finished) }:
		<-finished
	case <-h.done:
	}
}

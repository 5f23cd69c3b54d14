package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"
	"score-rooms/internal/room"
	"score-rooms/pkg/metrics"
)

// Session is the presence side of the room service: it counts live
// connections in and out of rooms.
type Session interface {
	ConnectJoin(ctx context.Context, connID, roomID string) error
	Disconnect(ctx context.Context, connID string)
}

// envelope is the server→client frame: {"event": ..., "data": ...}
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// clientMessage is the client→server frame; only join is understood.
type clientMessage struct {
	Event string `json:"event"`
	Data  struct {
		RoomID string `json:"room_id"`
	} `json:"data"`
}

type Hub struct {
	log  *slog.Logger
	bus  *Bus // nil when running on the memory store
	sess Session

	mu    sync.RWMutex
	rooms map[string]*Room // active rooms by roomID
}

// NewHub sets up the hub; the session is bound afterwards because the room
// service broadcasts through the hub.
func NewHub(logger *slog.Logger, bus *Bus) *Hub {
	return &Hub{log: logger, bus: bus, rooms: map[string]*Room{}}
}

// SetSession binds the presence handler called on join/disconnect.
func (h *Hub) SetSession(s Session) { h.sess = s }

// Run forwards bus messages from other instances to local rooms
func (h *Hub) Run(ctx context.Context) {
	if h.bus != nil {
		go h.bus.Subscribe(ctx, h.deliver)
	}
	<-ctx.Done()
}

// Broadcast implements room.Broadcaster: wrap the payload in an event
// envelope, publish for other instances, deliver to local subscribers.
func (h *Hub) Broadcast(roomID, event string, payload any) {
	raw, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Error("ws.encode", "event", event, "err", err)
		return
	}
	if h.bus != nil {
		if err := h.bus.Publish(context.Background(), roomID, raw); err != nil {
			h.log.Warn("ws.bus.publish", "room", roomID, "err", err)
		}
	}
	h.deliver(roomID, raw)
	metrics.Broadcasts.Inc()
}

func (h *Hub) deliver(roomID string, payload []byte) {
	h.mu.RLock()
	rm := h.rooms[roomID]
	h.mu.RUnlock()
	if rm != nil {
		rm.Broadcast(payload)
	}
}

// room returns the Room for an id, creating it if needed
func (h *Hub) room(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm := h.rooms[roomID]
	if rm == nil {
		rm = NewRoom()
		h.rooms[roomID] = rm
	}
	return rm
}

// ServeWS handles a new /ws connection. The client announces the room it
// wants with a join frame; a later join frame for a different room is a
// switch. Closing the socket removes the connection's counted presence.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}
	c := NewConn(conn)
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	// Outbound writer
	go c.WriteLoop(ctx)

	var current *Room
	for {
		payload, ok := c.Read(ctx)
		if !ok {
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Event != "join" {
			continue
		}
		roomID := msg.Data.RoomID
		if !room.ValidID(roomID) {
			h.log.Debug("ws.join.badroom", "room", roomID)
			continue
		}

		// Subscribe locally first so the joining client receives its own
		// init_scores snapshot.
		rm := h.room(roomID)
		if current != nil && current != rm {
			current.Leave(c)
		}
		rm.Join(c)
		current = rm

		if err := h.sess.ConnectJoin(ctx, c.ID(), roomID); err != nil {
			h.log.Warn("ws.join", "room", roomID, "err", err)
		}
	}

	if current != nil {
		current.Leave(c)
	}
	// The request context is gone once the client hangs up; the decrement
	// and farewell snapshot still have to run.
	h.sess.Disconnect(context.Background(), c.ID())
	_ = c.Close()
}

// Package realtime streams attendance changes to connected staff consoles.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/attendance"
)

// Feed event names.
const (
	EventAttendanceChanged = "attendance_changed"
	EventCounts            = "counts"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 64
)

// CountsFunc loads the current totals for an event.
type CountsFunc func(ctx context.Context, eventID uuid.UUID) (attendance.Counts, error)

// Publisher fans an event out to every instance (including this one).
type Publisher interface {
	PublishEvent(ctx context.Context, eventID uuid.UUID, event string, payload []byte) error
}

// Subscriber delivers events published for one room.
type Subscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// ChangeMessage is the payload of EventAttendanceChanged.
type ChangeMessage struct {
	attendance.Change
	Counts *attendance.Counts `json:"counts,omitempty"`
}

// Hub maintains event_id -> set of connections. With a Publisher, messages go
// through Redis and the subscription callback performs the local broadcast, so
// every instance delivers each message exactly once.
type Hub struct {
	rooms  map[uuid.UUID]map[string]*Client
	subs   map[uuid.UUID]func()
	mu     sync.RWMutex
	pub    Publisher
	sub    Subscriber
	counts CountsFunc
	logger *zap.Logger
}

// NewHub creates a hub. pub and sub may be nil for a single instance; counts may be nil.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber, counts CountsFunc) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		pub:    pub,
		sub:    sub,
		counts: counts,
		logger: logger,
	}
}

// Register adds a client to its event room, subscribing the room on first join.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
		if h.sub != nil {
			eventID := c.EventID
			cancel, err := h.sub.SubscribeEvent(eventID, func(event string, payload []byte) {
				h.Broadcast(eventID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("room subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
			} else {
				h.subs[eventID] = cancel
			}
		}
	}
	h.rooms[c.EventID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined feed", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Unregister removes a client, cancelling the room subscription when it empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left feed", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Listeners returns the number of local connections watching eventID.
func (h *Hub) Listeners(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

func encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

// Broadcast sends a message to local clients of eventID. Slow clients whose
// buffer is full miss the message.
func (h *Hub) Broadcast(eventID uuid.UUID, event string, payload any) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode feed message failed", zap.String("event", event), zap.Error(err))
		return
	}
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Publish delivers a message to eventID's listeners on every instance.
func (h *Hub) Publish(ctx context.Context, eventID uuid.UUID, event string, payload any) {
	if h.pub == nil {
		h.Broadcast(eventID, event, payload)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode feed message failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.pub.PublishEvent(ctx, eventID, event, data); err != nil {
		h.logger.Warn("publish feed message failed", zap.String("event_id", eventID.String()), zap.Error(err))
	}
}

// AttendanceChanged publishes a committed transition with fresh totals.
func (h *Hub) AttendanceChanged(ctx context.Context, c attendance.Change) {
	msg := ChangeMessage{Change: c}
	if h.counts != nil {
		counts, err := h.counts(ctx, c.EventID)
		if err != nil {
			h.logger.Warn("load attendance counts failed", zap.String("event_id", c.EventID.String()), zap.Error(err))
		} else {
			msg.Counts = &counts
		}
	}
	h.Publish(ctx, c.EventID, EventAttendanceChanged, msg)
}

// sendCounts pushes the current totals to one client.
func (h *Hub) sendCounts(ctx context.Context, c *Client) {
	if h.counts == nil {
		return
	}
	counts, err := h.counts(ctx, c.EventID)
	if err != nil {
		h.logger.Warn("load attendance counts failed", zap.String("event_id", c.EventID.String()), zap.Error(err))
		return
	}
	data, _ := json.Marshal(counts)
	select {
	case c.send <- Message{Event: EventCounts, Data: data}:
	default:
	}
}

// Package bus implements the room-addressed live update fabric. Publishes go
// through a single redis channel and are fanned out to every in-process
// connection joined to the target room, so all publishers share one global
// publish sequence.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Event names pushed to clients.
const (
	EventActivityUpdate = "github-activity-update"
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventNewLog         = "new-log"
)

// RoomForUser returns the routing key shared by all of a user's connections.
func RoomForUser(userID string) string {
	return "user-" + userID
}

// Event is one named payload addressed to a room.
type Event struct {
	Room string          `json:"room"`
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

type connection struct {
	ch    chan Event
	rooms map[string]struct{}
}

// Hub tracks live connections and their room memberships.
type Hub struct {
	redis   *redis.Client
	channel string

	mu    sync.Mutex
	conns map[string]*connection
	rooms map[string]map[string]*connection
}

// New creates a Hub publishing through the given redis channel.
func New(client *redis.Client, channel string) *Hub {
	return &Hub{
		redis:   client,
		channel: channel,
		conns:   make(map[string]*connection),
		rooms:   make(map[string]map[string]*connection),
	}
}

// Connect registers a connection and returns its receive channel. Delivery is
// best-effort: events are dropped for connections that stop draining.
func (h *Hub) Connect(id string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[id]; ok {
		return c.ch
	}
	c := &connection{ch: make(chan Event, 10), rooms: make(map[string]struct{})}
	h.conns[id] = c
	return c.ch
}

// Join subscribes a connection to a room. Unknown connections are ignored.
func (h *Hub) Join(id, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	c.rooms[room] = struct{}{}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*connection)
	}
	h.rooms[room][id] = c
}

// Leave removes a connection from a room.
func (h *Hub) Leave(id, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Disconnect removes a connection from every room it joined. Safe to call
// more than once for the same id.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[id]
	if !ok {
		return
	}
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.conns, id)
}

// Publish sends a named payload to every connection joined to the room at the
// moment of delivery. There is no replay: connections joining later never see
// this event.
func (h *Hub) Publish(ctx context.Context, room, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{Room: room, Name: name, Data: data}
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, h.channel, msg).Err()
}

// Run consumes the redis channel and dispatches events to local rooms. It
// reconnects on channel loss and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		sub := h.redis.Subscribe(ctx, h.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Errorf("bus: unable to parse event: %v", err)
					continue
				}
				h.dispatch(ev)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.Error("bus: pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (h *Hub) dispatch(ev Event) {
	h.mu.Lock()
	members := make([]*connection, 0, len(h.rooms[ev.Room]))
	for _, c := range h.rooms[ev.Room] {
		members = append(members, c)
	}
	h.mu.Unlock()
	for _, c := range members {
		select {
		case c.ch <- ev:
		default:
		}
	}
}

package service

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/khdrvss/co-found-sub000/internal/metrics"
	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/gofiber/contrib/websocket"
)

// WSClient is one live connection. A user with several devices has
// several clients sharing the same room.
type WSClient struct {
	Conn   *websocket.Conn
	ConnID string
	UserID string
	Room   string
	Send   chan []byte
}

// Hub is the process-local connection registry. Rooms are keyed
// "user:<id>"; everything here is ephemeral and rebuilt on reconnect,
// never a source of truth for message state.
type Hub struct {
	rooms      map[string]map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	emit       chan roomMessage
	broadcast  chan []byte
	mu         sync.RWMutex
	done       chan struct{}
}

type roomMessage struct {
	room string
	data []byte
}

// RoomForUser names the logical room shared by all of a user's devices.
func RoomForUser(userID string) string {
	return "user:" + userID
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		emit:       make(chan roomMessage, 256),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.Room] == nil {
				h.rooms[client.Room] = make(map[*WSClient]bool)
			}
			h.rooms[client.Room][client] = true
			total := h.countLocked()
			h.mu.Unlock()
			metrics.WSConnections.Set(float64(total))
			log.Printf("[Hub] %s connected to %s (total: %d)", client.ConnID, client.Room, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.Room]; ok && room[client] {
				delete(room, client)
				if len(room) == 0 {
					delete(h.rooms, client.Room)
				}
				close(client.Send)
			}
			total := h.countLocked()
			h.mu.Unlock()
			metrics.WSConnections.Set(float64(total))
			log.Printf("[Hub] %s disconnected from %s (total: %d)", client.ConnID, client.Room, total)

		case msg := <-h.emit:
			h.mu.Lock()
			room := h.rooms[msg.room]
			for client := range room {
				select {
				case client.Send <- msg.data:
				default:
					// Slow client: drop it rather than stall the room.
					close(client.Send)
					delete(room, client)
				}
			}
			if len(room) == 0 {
				delete(h.rooms, msg.room)
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for _, room := range h.rooms {
				for client := range room {
					select {
					case client.Send <- data:
					default:
					}
				}
			}
			h.mu.Unlock()

		case <-h.done:
			return
		}
	}
}

func (h *Hub) Shutdown() {
	close(h.done)
}

func (h *Hub) Register(client *WSClient) {
	h.register <- client
}

func (h *Hub) Unregister(client *WSClient) {
	h.unregister <- client
}

// Deliver sends an event to every local connection in the room. Remote
// connections are reached through the fan-out adapter, which calls back
// into Deliver on each subscribed process.
func (h *Hub) Deliver(room string, event *model.Event) {
	if room == broadcastRoom {
		h.Broadcast(event)
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.emit <- roomMessage{room: room, data: data}:
	case <-h.done:
	}
}

// Broadcast sends an event to every connection in every room.
func (h *Hub) Broadcast(event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, room := range h.rooms {
		total += len(room)
	}
	return total
}

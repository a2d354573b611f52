package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	readTimeout  = 60 * time.Second
	eventTimeout = 5 * time.Second
)

type WSHandler struct {
	hub     *service.Hub
	authSvc *service.AuthService
	msgSvc  *service.MessageService
	limiter *service.RateLimiter
}

func NewWSHandler(hub *service.Hub, authSvc *service.AuthService, msgSvc *service.MessageService, limiter *service.RateLimiter) *WSHandler {
	return &WSHandler{hub: hub, authSvc: authSvc, msgSvc: msgSvc, limiter: limiter}
}

// Upgrade authenticates the handshake before any room join. The bearer
// credential travels in connection metadata (query param), never a
// cookie. Missing and invalid credentials are refused with distinct
// reasons, synchronously.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID, username, err := h.authSvc.ValidateAccessToken(c.Query("token"))
	if err != nil {
		if errors.Is(err, service.ErrMissingToken) {
			return c.Status(401).JSON(fiber.Map{"error": "unauthorized", "reason": "token required"})
		}
		return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals("user_id", userID)
	c.Locals("username", username)
	return websocket.New(h.handleConnection)(c)
}

func (h *WSHandler) handleConnection(c *websocket.Conn) {
	userID, _ := c.Locals("user_id").(string)

	client := &service.WSClient{
		Conn:   c,
		ConnID: uuid.NewString(),
		UserID: userID,
		Room:   service.RoomForUser(userID),
		Send:   make(chan []byte, 256),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	// Writer goroutine: the only writer on this connection
	go func() {
		defer c.Close()
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader loop. Each inbound event is handled to completion before the
	// next read, but on its own connection goroutine, so a slow client
	// only ever stalls itself.
	c.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}

		c.SetReadDeadline(time.Now().Add(readTimeout))

		var event model.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		h.handleEvent(client, &event)
	}
}

func (h *WSHandler) handleEvent(client *service.WSClient, event *model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	subject := "user:" + client.UserID

	switch event.Type {
	case model.EventPing:
		pong, _ := json.Marshal(model.Event{Type: model.EventPong})
		select {
		case client.Send <- pong:
		default:
		}

	case model.EventTyping:
		req, err := event.DecodeTyping()
		if err != nil {
			log.Printf("[WS] %s sent malformed typing event: %v", client.ConnID, err)
			return
		}
		// Typing is ephemeral UX: over-budget signals are dropped, not
		// errored.
		if d := h.limiter.Allow(ctx, subject, service.CategoryTyping); !d.Allowed {
			return
		}
		h.msgSvc.Typing(client.UserID, req.To)

	case model.EventMessageDelivered:
		ack, err := event.DecodeDeliveredAck()
		if err != nil {
			log.Printf("[WS] %s sent malformed delivered ack: %v", client.ConnID, err)
			return
		}
		if d := h.limiter.Allow(ctx, subject, service.CategoryAck); !d.Allowed {
			return
		}
		if err := h.msgSvc.Delivered(ctx, client.UserID, ack.MessageID); err != nil {
			log.Printf("[WS] delivery ack for %d failed: %v", ack.MessageID, err)
		}

	default:
		log.Printf("[WS] unknown event type %q from %s", event.Type, client.ConnID)
	}
}

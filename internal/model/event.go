package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is the envelope for every frame on the real-time channel.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Server-to-client event types.
const (
	EventMessageCreated   = "message.created"
	EventMessageDelivered = "message.delivered"
	EventMessagesRead     = "messages.read"
	EventTyping           = "typing"
	EventAnnounce         = "system.announce"
	EventPong             = "pong"
)

// Client-to-server event types. "message.delivered" and "typing" are
// shared names; direction disambiguates the payload shape.
const (
	EventPing = "ping"
)

var ErrMalformedEvent = errors.New("malformed event payload")

// MessageCreatedPayload carries the full persisted row so the receiver
// can render without a follow-up fetch.
type MessageCreatedPayload struct {
	Message
}

type MessageDeliveredPayload struct {
	ID          int64     `json:"id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type MessagesReadPayload struct {
	By       string    `json:"by"`
	ReadUpTo time.Time `json:"read_up_to"`
}

type TypingPayload struct {
	From string `json:"from"`
}

// TypingRequest is the client-side typing signal.
type TypingRequest struct {
	To string `json:"to"`
}

// DeliveredAck is the client's acknowledgement that a created event was
// processed.
type DeliveredAck struct {
	MessageID int64 `json:"messageId"`
}

type AnnouncePayload struct {
	Message string `json:"message"`
}

// NewEvent marshals a typed payload into an envelope. Marshalling a
// plain struct of json-tagged fields cannot fail in practice, so errors
// are returned only for exotic payloads.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return &Event{Type: eventType, Data: data}, nil
}

// DecodeTyping validates a client typing frame at the boundary.
func (e *Event) DecodeTyping() (*TypingRequest, error) {
	var req TypingRequest
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return nil, ErrMalformedEvent
	}
	if req.To == "" {
		return nil, fmt.Errorf("%w: typing requires a target user", ErrMalformedEvent)
	}
	return &req, nil
}

// DecodeDeliveredAck validates a client delivery acknowledgement.
func (e *Event) DecodeDeliveredAck() (*DeliveredAck, error) {
	var ack DeliveredAck
	if err := json.Unmarshal(e.Data, &ack); err != nil {
		return nil, ErrMalformedEvent
	}
	if ack.MessageID <= 0 {
		return nil, fmt.Errorf("%w: delivered ack requires a message id", ErrMalformedEvent)
	}
	return &ack, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/metrics"
	"github.com/khdrvss/co-found-sub000/internal/model"
)

var (
	ErrEmptyMessage    = errors.New("message body is empty")
	ErrMessageTooLong  = errors.New("message body exceeds 5000 characters")
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrMissingReceiver = errors.New("receiver is required")
)

const maxMessageLen = 5000

// MessageStore is what the lifecycle manager needs from persistence. The
// pgx repository satisfies it; tests substitute an in-memory fake.
type MessageStore interface {
	Insert(ctx context.Context, senderID, receiverID, body string) (*model.Message, error)
	MarkDelivered(ctx context.Context, id int64, receiverID string) (*model.Message, bool, error)
	MarkReadUpTo(ctx context.Context, readerID, partnerID string, upTo time.Time) (int64, error)
	ListBetween(ctx context.Context, userID, partnerID string, limit int) ([]model.Message, error)
	Conversations(ctx context.Context, userID string) ([]model.Conversation, error)
}

// Emitter routes an event to a room, across processes when the fan-out
// bridge is healthy. Emit never fails from the caller's point of view:
// delivery problems are logged and recovered through polling.
type Emitter interface {
	Emit(room string, event *model.Event)
}

// MessageService owns the per-message state machine Sent → Delivered →
// Read. It is the only writer of delivered/read state; the database row
// is the single source of truth across processes.
type MessageService struct {
	store   MessageStore
	emitter Emitter
}

func NewMessageService(store MessageStore, emitter Emitter) *MessageService {
	return &MessageService{store: store, emitter: emitter}
}

// ValidateSend checks a send request without touching storage, so
// callers can reject garbage before spending rate budget on it.
func ValidateSend(senderID, receiverID, body string) error {
	if receiverID == "" {
		return ErrMissingReceiver
	}
	if senderID == receiverID {
		return ErrSelfMessage
	}
	if body == "" {
		return ErrEmptyMessage
	}
	if len([]rune(body)) > maxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}

// Send validates and persists a new message, then fans the created event
// out to the receiver's room. The returned row acknowledges the write,
// not delivery.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID, body string) (*model.Message, error) {
	if err := ValidateSend(senderID, receiverID, body); err != nil {
		return nil, err
	}

	msg, err := s.store.Insert(ctx, senderID, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesSent.Inc()

	event, err := model.NewEvent(model.EventMessageCreated, model.MessageCreatedPayload{Message: *msg})
	if err != nil {
		log.Printf("[Message] encode created event for %d: %v", msg.ID, err)
		return msg, nil
	}
	// State is committed; a lost notification is recovered by polling.
	s.emitter.Emit(RoomForUser(receiverID), event)

	return msg, nil
}

// Delivered applies the receiver's acknowledgement for one message.
// Re-acknowledging an already-delivered message neither moves
// delivered_at nor re-notifies the sender. Only the message's receiver
// may acknowledge it.
func (s *MessageService) Delivered(ctx context.Context, receiverID string, messageID int64) error {
	msg, transitioned, err := s.store.MarkDelivered(ctx, messageID, receiverID)
	if err != nil {
		return fmt.Errorf("mark delivered %d: %w", messageID, err)
	}
	if !transitioned {
		if msg.ReceiverID != receiverID {
			log.Printf("[Message] ignoring delivery ack from %s for message %d owned by %s", receiverID, messageID, msg.ReceiverID)
		}
		return nil
	}
	metrics.MessagesDelivered.Inc()

	deliveredAt := time.Now()
	if msg.DeliveredAt != nil {
		deliveredAt = *msg.DeliveredAt
	}
	event, err := model.NewEvent(model.EventMessageDelivered, model.MessageDeliveredPayload{
		ID:          msg.ID,
		DeliveredAt: deliveredAt,
	})
	if err != nil {
		log.Printf("[Message] encode delivered event for %d: %v", msg.ID, err)
		return nil
	}
	s.emitter.Emit(RoomForUser(msg.SenderID), event)

	return nil
}

// ReadUpTo bulk-marks everything from partnerID to readerID as read up
// to now, and tells the partner. A range update rather than per-message,
// so it tolerates messages that were never explicitly acked as
// delivered. Returns the number of messages affected.
func (s *MessageService) ReadUpTo(ctx context.Context, readerID, partnerID string) (int64, time.Time, error) {
	upTo := time.Now()

	affected, err := s.store.MarkReadUpTo(ctx, readerID, partnerID, upTo)
	if err != nil {
		return 0, upTo, fmt.Errorf("mark read up to %s: %w", upTo.Format(time.RFC3339), err)
	}
	if affected == 0 {
		// Nothing transitioned: repeat invocation, or no unread messages.
		// Re-emitting here would duplicate notifications downstream.
		return 0, upTo, nil
	}
	metrics.MessagesRead.Add(float64(affected))

	event, err := model.NewEvent(model.EventMessagesRead, model.MessagesReadPayload{
		By:       readerID,
		ReadUpTo: upTo,
	})
	if err != nil {
		log.Printf("[Message] encode read event for %s: %v", readerID, err)
		return affected, upTo, nil
	}
	s.emitter.Emit(RoomForUser(partnerID), event)

	return affected, upTo, nil
}

// Typing relays an ephemeral typing signal to the target's room. Nothing
// is persisted.
func (s *MessageService) Typing(fromID, toID string) {
	if toID == "" || toID == fromID {
		return
	}
	event, err := model.NewEvent(model.EventTyping, model.TypingPayload{From: fromID})
	if err != nil {
		return
	}
	s.emitter.Emit(RoomForUser(toID), event)
}

// History returns the conversation between two users, oldest first.
func (s *MessageService) History(ctx context.Context, userID, partnerID string, limit int) ([]model.Message, error) {
	return s.store.ListBetween(ctx, userID, partnerID, limit)
}

// Conversations returns the caller's ranked conversation list.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.store.Conversations(ctx, userID)
}

package model

import "time"

// Message is a stored private message row. Delivery and read state is
// monotonic: once delivered or read is true it never reverts, and read
// implies delivered.
type Message struct {
	ID          int64      `json:"id"`
	SenderID    string     `json:"sender_id"`
	ReceiverID  string     `json:"receiver_id"`
	Body        string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Conversation is one row of a user's conversation list. It is derived
// from the messages table on demand and never stored.
type Conversation struct {
	PartnerID     string    `json:"partner_id"`
	PartnerName   string    `json:"partner_name,omitempty"`
	PartnerAvatar string    `json:"partner_avatar,omitempty"`
	LastMessage   Message   `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	LastSenderID  string    `json:"last_sender_id"`
	UnreadCount   int       `json:"unread_count"`
}

// SendMessageRequest is the payload for POST /messages/private.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Body       string `json:"message"`
}

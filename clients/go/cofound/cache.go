// Package cofound provides a Go client for the co-found backend:
// REST calls, the real-time event channel, and a local cache that
// reconciles push events with poll snapshots.
package cofound

import (
	"sort"
	"sync"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
)

// Cache is the client-side view model: per-partner ordered message
// lists plus one ranked conversation list. It is disposable — the server
// is always the source of truth — and every merge is idempotent and
// order-invariant, so duplicated or reordered push/poll updates cannot
// corrupt it. Flags only ever move forward; a stale poll can never unset
// delivered or read.
type Cache struct {
	mu     sync.Mutex
	userID string

	threads map[string][]model.Message       // partner id -> ordered by (created_at, id)
	index   map[int64]string                 // message id -> partner id
	convos  map[string]*model.Conversation   // partner id -> summary
}

func NewCache(localUserID string) *Cache {
	return &Cache{
		userID:  localUserID,
		threads: make(map[string][]model.Message),
		index:   make(map[int64]string),
		convos:  make(map[string]*model.Conversation),
	}
}

// partnerOf returns the other participant of a message involving the
// local user.
func (c *Cache) partnerOf(m *model.Message) string {
	if m.SenderID == c.userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// before orders messages by (created_at, id).
func before(a, b *model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ApplyCreated inserts a message into its partner thread, deduplicated
// by id. Returns true only the first time the id is seen; replayed
// events are no-ops. An inbound message bumps the partner's unread count
// and moves the conversation to the front.
func (c *Cache) ApplyCreated(msg model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.index[msg.ID]; seen {
		return false
	}

	partner := c.partnerOf(&msg)
	thread := c.threads[partner]
	pos := sort.Search(len(thread), func(i int) bool {
		return before(&msg, &thread[i])
	})
	thread = append(thread, model.Message{})
	copy(thread[pos+1:], thread[pos:])
	thread[pos] = msg
	c.threads[partner] = thread
	c.index[msg.ID] = partner

	c.touchConversation(partner, msg, msg.ReceiverID == c.userID)
	return true
}

// touchConversation updates the preview row for partner if msg is at
// least as recent as what it shows. Caller holds the lock.
func (c *Cache) touchConversation(partner string, msg model.Message, countUnread bool) {
	conv, ok := c.convos[partner]
	if !ok {
		conv = &model.Conversation{PartnerID: partner}
		c.convos[partner] = conv
	}

	if conv.LastMessage.ID == 0 || !before(&msg, &conv.LastMessage) {
		conv.LastMessage = msg
		conv.LastMessageAt = msg.CreatedAt
		conv.LastSenderID = msg.SenderID
	}
	if countUnread {
		conv.UnreadCount++
	}
}

// ApplyDelivered sets the delivered flag on the matching cached message,
// wherever it is. Nothing else is touched, and an already-set timestamp
// is kept.
func (c *Cache) ApplyDelivered(id int64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	partner, ok := c.index[id]
	if !ok {
		return
	}
	thread := c.threads[partner]
	for i := range thread {
		if thread[i].ID == id {
			markDelivered(&thread[i], at)
			break
		}
	}
	if conv, ok := c.convos[partner]; ok && conv.LastMessage.ID == id {
		markDelivered(&conv.LastMessage, at)
	}
}

func markDelivered(m *model.Message, at time.Time) {
	if m.Delivered {
		return
	}
	m.Delivered = true
	t := at
	m.DeliveredAt = &t
}

func markRead(m *model.Message, at time.Time) {
	// read implies delivered
	markDelivered(m, at)
	if m.Read {
		return
	}
	m.Read = true
	t := at
	m.ReadAt = &t
}

// ApplyRead handles a partner's read receipt: every locally-authored
// message in that partner's thread up to the watermark becomes read, and
// the partner's unread count resets.
func (c *Cache) ApplyRead(by string, upTo time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	thread := c.threads[by]
	for i := range thread {
		if thread[i].SenderID == c.userID && !thread[i].CreatedAt.After(upTo) {
			markRead(&thread[i], upTo)
		}
	}

	if conv, ok := c.convos[by]; ok {
		if conv.LastMessage.SenderID == c.userID && !conv.LastMessage.CreatedAt.After(upTo) {
			markRead(&conv.LastMessage, upTo)
		}
		conv.UnreadCount = 0
	}
}

// MarkThreadRead applies the local user's own read action on a thread:
// every partner-authored message up to the watermark becomes read and
// the partner's unread count drops to zero. The opposite direction, the
// partner reading our messages, arrives as a receipt through ApplyRead;
// our outbound messages are never touched here.
func (c *Cache) MarkThreadRead(partnerID string, upTo time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	thread := c.threads[partnerID]
	for i := range thread {
		if thread[i].SenderID == partnerID && !thread[i].CreatedAt.After(upTo) {
			markRead(&thread[i], upTo)
		}
	}

	if conv, ok := c.convos[partnerID]; ok {
		if conv.LastMessage.SenderID == partnerID && !conv.LastMessage.CreatedAt.After(upTo) {
			markRead(&conv.LastMessage, upTo)
		}
		conv.UnreadCount = 0
	}
}

// MergeConversations folds a poll snapshot into the local list without
// clobbering fresher push state: a snapshot row older than what we hold
// only contributes flags it has set, and flags never regress.
func (c *Cache) MergeConversations(snapshot []model.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, in := range snapshot {
		existing, ok := c.convos[in.PartnerID]
		if !ok {
			conv := in
			c.convos[in.PartnerID] = &conv
			c.insertLocked(in.LastMessage)
			continue
		}

		if in.PartnerName != "" {
			existing.PartnerName = in.PartnerName
		}
		if in.PartnerAvatar != "" {
			existing.PartnerAvatar = in.PartnerAvatar
		}

		switch {
		case before(&existing.LastMessage, &in.LastMessage):
			// Snapshot is ahead of local push state; adopt it, carrying
			// forward any flags the cached copy of the same id already has.
			merged := in.LastMessage
			c.liftFlagsLocked(&merged)
			existing.LastMessage = merged
			existing.LastMessageAt = merged.CreatedAt
			existing.LastSenderID = merged.SenderID
			existing.UnreadCount = in.UnreadCount
		case existing.LastMessage.ID == in.LastMessage.ID:
			// Same message: flags move forward only, never back.
			if in.LastMessage.Delivered && in.LastMessage.DeliveredAt != nil {
				markDelivered(&existing.LastMessage, *in.LastMessage.DeliveredAt)
			}
			if in.LastMessage.Read && in.LastMessage.ReadAt != nil {
				markRead(&existing.LastMessage, *in.LastMessage.ReadAt)
			}
			if in.UnreadCount < existing.UnreadCount {
				existing.UnreadCount = in.UnreadCount
			}
		default:
			// Stale row, a push update already superseded it. Keep ours.
		}

		// Either way the snapshot's last message belongs in the thread.
		c.insertLocked(in.LastMessage)
	}
}

// liftFlagsLocked copies forward-only flags from the cached copy of the
// same message onto m. Caller holds the lock.
func (c *Cache) liftFlagsLocked(m *model.Message) {
	partner, ok := c.index[m.ID]
	if !ok {
		return
	}
	for _, cached := range c.threads[partner] {
		if cached.ID == m.ID {
			if cached.Delivered && cached.DeliveredAt != nil {
				markDelivered(m, *cached.DeliveredAt)
			}
			if cached.Read && cached.ReadAt != nil {
				markRead(m, *cached.ReadAt)
			}
			return
		}
	}
}

// insertLocked is ApplyCreated without the conversation side effects,
// for backfilling threads from snapshots. Caller holds the lock.
func (c *Cache) insertLocked(msg model.Message) {
	if msg.ID == 0 {
		return
	}
	if _, seen := c.index[msg.ID]; seen {
		return
	}
	partner := c.partnerOf(&msg)
	thread := c.threads[partner]
	pos := sort.Search(len(thread), func(i int) bool {
		return before(&msg, &thread[i])
	})
	thread = append(thread, model.Message{})
	copy(thread[pos+1:], thread[pos:])
	thread[pos] = msg
	c.threads[partner] = thread
	c.index[msg.ID] = partner
}

// MergeHistory folds a history fetch into the partner's thread and
// lifts any fresher flags onto already-cached copies.
func (c *Cache) MergeHistory(msgs []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range msgs {
		if partner, seen := c.index[m.ID]; seen {
			thread := c.threads[partner]
			for i := range thread {
				if thread[i].ID == m.ID {
					if m.Delivered && m.DeliveredAt != nil {
						markDelivered(&thread[i], *m.DeliveredAt)
					}
					if m.Read && m.ReadAt != nil {
						markRead(&thread[i], *m.ReadAt)
					}
					break
				}
			}
			continue
		}
		c.insertLocked(m)
	}
}

// Messages returns a copy of the thread with partner, oldest first.
func (c *Cache) Messages(partnerID string) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	thread := c.threads[partnerID]
	out := make([]model.Message, len(thread))
	copy(out, thread)
	return out
}

// Conversations returns the ranked list, most recent first.
func (c *Cache) Conversations() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Conversation, 0, len(c.convos))
	for _, conv := range c.convos {
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(&out[j].LastMessage, &out[i].LastMessage)
	})
	return out
}

// Top returns the most recent conversation, if any.
func (c *Cache) Top() (model.Conversation, bool) {
	convos := c.Conversations()
	if len(convos) == 0 {
		return model.Conversation{}, false
	}
	return convos[0], true
}

// UnreadTotal sums unread counts across all conversations.
func (c *Cache) UnreadTotal() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, conv := range c.convos {
		total += conv.UnreadCount
	}
	return total
}

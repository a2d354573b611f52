package cofound

import (
	"testing"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id int64, sender, receiver string, at time.Time) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       "m",
		CreatedAt:  at,
	}
}

func TestApplyCreatedDeduplicates(t *testing.T) {
	c := NewCache("me")
	m := msg(1, "alice", "me", base)

	if !c.ApplyCreated(m) {
		t.Fatal("first apply should insert")
	}
	if c.ApplyCreated(m) {
		t.Fatal("replayed event must be a no-op")
	}

	if got := len(c.Messages("alice")); got != 1 {
		t.Fatalf("expected exactly 1 cached message, got %d", got)
	}

	convos := c.Conversations()
	if len(convos) != 1 || convos[0].UnreadCount != 1 {
		t.Fatalf("duplicate must not double-count unread: %+v", convos)
	}
}

func TestApplyCreatedKeepsThreadOrdered(t *testing.T) {
	c := NewCache("me")

	// Arrive out of order.
	c.ApplyCreated(msg(3, "alice", "me", base.Add(2*time.Minute)))
	c.ApplyCreated(msg(1, "alice", "me", base))
	c.ApplyCreated(msg(2, "me", "alice", base.Add(time.Minute)))

	thread := c.Messages("alice")
	if len(thread) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(thread))
	}
	for i, wantID := range []int64{1, 2, 3} {
		if thread[i].ID != wantID {
			t.Fatalf("position %d: expected id %d, got %d", i, wantID, thread[i].ID)
		}
	}
}

func TestOutboundMessageDoesNotCountUnread(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "me", "alice", base))

	convos := c.Conversations()
	if convos[0].UnreadCount != 0 {
		t.Fatal("own messages must not increment unread")
	}
}

func TestConversationRanking(t *testing.T) {
	c := NewCache("me")

	// Send to A, then B, then A again.
	c.ApplyCreated(msg(1, "me", "a", base))
	c.ApplyCreated(msg(2, "me", "b", base.Add(time.Minute)))
	c.ApplyCreated(msg(3, "me", "a", base.Add(2*time.Minute)))

	convos := c.Conversations()
	if len(convos) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convos))
	}
	if convos[0].PartnerID != "a" || convos[1].PartnerID != "b" {
		t.Fatalf("expected ranking [a b], got [%s %s]", convos[0].PartnerID, convos[1].PartnerID)
	}
	if convos[0].LastMessage.ID != 3 {
		t.Fatalf("a's preview should be the latest message, got %d", convos[0].LastMessage.ID)
	}
}

func TestApplyDeliveredTouchesOnlyMatch(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "me", "alice", base))
	c.ApplyCreated(msg(2, "me", "alice", base.Add(time.Minute)))

	at := base.Add(2 * time.Minute)
	c.ApplyDelivered(1, at)

	thread := c.Messages("alice")
	if !thread[0].Delivered || thread[0].DeliveredAt == nil {
		t.Fatal("message 1 should be delivered")
	}
	if thread[1].Delivered {
		t.Fatal("message 2 must be untouched")
	}

	// Unknown id is ignored.
	c.ApplyDelivered(99, at)
}

func TestApplyDeliveredNeverMovesTimestamp(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "me", "alice", base))

	first := base.Add(time.Minute)
	c.ApplyDelivered(1, first)
	c.ApplyDelivered(1, base.Add(5*time.Minute))

	if got := *c.Messages("alice")[0].DeliveredAt; !got.Equal(first) {
		t.Fatalf("delivered_at moved from %v to %v", first, got)
	}
}

func TestApplyReadRange(t *testing.T) {
	c := NewCache("me")

	t1, t2, t3 := base, base.Add(time.Minute), base.Add(2*time.Minute)
	c.ApplyCreated(msg(1, "me", "alice", t1))
	c.ApplyCreated(msg(2, "me", "alice", t2))
	c.ApplyCreated(msg(3, "me", "alice", t3))

	c.ApplyRead("alice", t2)

	thread := c.Messages("alice")
	if !thread[0].Read || !thread[1].Read {
		t.Fatal("messages at and before the watermark should be read")
	}
	if thread[2].Read {
		t.Fatal("message after the watermark must stay unread")
	}
	// read implies delivered
	if !thread[0].Delivered || !thread[1].Delivered {
		t.Fatal("read messages must also be delivered")
	}
}

func TestApplyReadResetsUnread(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "alice", "me", base))
	c.ApplyCreated(msg(2, "alice", "me", base.Add(time.Minute)))

	if c.UnreadTotal() != 2 {
		t.Fatalf("expected 2 unread, got %d", c.UnreadTotal())
	}

	c.ApplyRead("alice", base.Add(time.Hour))

	if c.UnreadTotal() != 0 {
		t.Fatalf("expected 0 unread, got %d", c.UnreadTotal())
	}
}

func TestApplyReadIgnoresPartnerAuthoredMessages(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "alice", "me", base))

	c.ApplyRead("alice", base.Add(time.Hour))

	// Alice reading cannot mark her own message as read by me.
	if c.Messages("alice")[0].Read {
		t.Fatal("partner-authored messages are outside the read receipt")
	}
}

func TestMarkThreadReadMarksInboundOnly(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(1, "alice", "me", base))
	c.ApplyCreated(msg(2, "me", "alice", base.Add(time.Minute)))
	c.ApplyCreated(msg(3, "alice", "me", base.Add(2*time.Hour)))

	c.MarkThreadRead("alice", base.Add(time.Hour))

	thread := c.Messages("alice")
	if !thread[0].Read || !thread[0].Delivered {
		t.Fatal("inbound message before the watermark should be read")
	}
	if thread[1].Read || thread[1].Delivered {
		t.Fatal("reading a thread must not fabricate receipts on outbound messages")
	}
	if thread[2].Read {
		t.Fatal("inbound message after the watermark must stay unread")
	}
	if c.UnreadTotal() != 0 {
		t.Fatalf("expected 0 unread, got %d", c.UnreadTotal())
	}
}

func TestMergeConversationsAdoptsNewRows(t *testing.T) {
	c := NewCache("me")

	c.MergeConversations([]model.Conversation{
		{
			PartnerID:     "alice",
			PartnerName:   "Alice",
			LastMessage:   msg(1, "alice", "me", base),
			LastMessageAt: base,
			LastSenderID:  "alice",
			UnreadCount:   1,
		},
	})

	convos := c.Conversations()
	if len(convos) != 1 || convos[0].PartnerName != "Alice" || convos[0].UnreadCount != 1 {
		t.Fatalf("snapshot row should be adopted: %+v", convos)
	}
}

func TestMergeConversationsNeverRegressesFlags(t *testing.T) {
	c := NewCache("me")

	m := msg(1, "me", "alice", base)
	c.ApplyCreated(m)
	c.ApplyDelivered(1, base.Add(time.Second))
	c.ApplyRead("alice", base.Add(time.Minute))

	// Stale poll: same last message, still undelivered/unread on the wire.
	c.MergeConversations([]model.Conversation{
		{
			PartnerID:     "alice",
			LastMessage:   m,
			LastMessageAt: base,
			LastSenderID:  "me",
			UnreadCount:   0,
		},
	})

	conv := c.Conversations()[0]
	if !conv.LastMessage.Delivered || !conv.LastMessage.Read {
		t.Fatal("stale poll must not clear flags set by push events")
	}
}

func TestMergeConversationsStaleRowKept(t *testing.T) {
	c := NewCache("me")

	c.ApplyCreated(msg(1, "alice", "me", base))
	c.ApplyCreated(msg(2, "alice", "me", base.Add(time.Minute)))

	// Poll snapshot taken before message 2 arrived.
	c.MergeConversations([]model.Conversation{
		{
			PartnerID:     "alice",
			LastMessage:   msg(1, "alice", "me", base),
			LastMessageAt: base,
			LastSenderID:  "alice",
			UnreadCount:   1,
		},
	})

	conv := c.Conversations()[0]
	if conv.LastMessage.ID != 2 {
		t.Fatalf("stale poll clobbered the preview: got id %d", conv.LastMessage.ID)
	}
}

func TestMergeConversationsIdempotent(t *testing.T) {
	c := NewCache("me")

	snapshot := []model.Conversation{
		{
			PartnerID:     "alice",
			LastMessage:   msg(1, "alice", "me", base),
			LastMessageAt: base,
			LastSenderID:  "alice",
			UnreadCount:   1,
		},
	}

	c.MergeConversations(snapshot)
	c.MergeConversations(snapshot)

	convos := c.Conversations()
	if len(convos) != 1 || convos[0].UnreadCount != 1 {
		t.Fatalf("re-applying the same snapshot must change nothing: %+v", convos)
	}
	if got := len(c.Messages("alice")); got != 1 {
		t.Fatalf("thread should hold 1 message, got %d", got)
	}
}

func TestMergeHistoryBackfillsThread(t *testing.T) {
	c := NewCache("me")
	c.ApplyCreated(msg(2, "alice", "me", base.Add(time.Minute)))

	served := msg(1, "me", "alice", base)
	at := base.Add(30 * time.Second)
	served.Delivered = true
	served.DeliveredAt = &at

	c.MergeHistory([]model.Message{served, msg(2, "alice", "me", base.Add(time.Minute))})

	thread := c.Messages("alice")
	if len(thread) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(thread))
	}
	if thread[0].ID != 1 || !thread[0].Delivered {
		t.Fatal("history rows should land with their server flags")
	}
}

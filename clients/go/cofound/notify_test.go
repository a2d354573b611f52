package cofound

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
)

type recordingSink struct {
	mu     sync.Mutex
	cues   int
	shown  []Alert
	hidden []string
}

func (s *recordingSink) PlayCue() {
	s.mu.Lock()
	s.cues++
	s.mu.Unlock()
}

func (s *recordingSink) Show(a Alert) {
	s.mu.Lock()
	s.shown = append(s.shown, a)
	s.mu.Unlock()
}

func (s *recordingSink) Dismiss(id string) {
	s.mu.Lock()
	s.hidden = append(s.hidden, id)
	s.mu.Unlock()
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cues, len(s.shown)
}

type memSnoozeStore struct {
	until time.Time
	saves int
}

func (s *memSnoozeStore) Load() (time.Time, error) { return s.until, nil }

func (s *memSnoozeStore) Save(until time.Time) error {
	s.until = until
	s.saves++
	return nil
}

func inbound(id int64, from string) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: "me",
		Body:       "hey",
		CreatedAt:  base,
	}
}

func TestNotifierAlertsOnInboundMessage(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier("me", sink, nil)

	if !n.HandleMessage(inbound(1, "alice")) {
		t.Fatal("inbound message from a closed conversation should alert")
	}

	cues, shown := sink.counts()
	if cues != 1 || shown != 1 {
		t.Fatalf("expected 1 cue and 1 alert, got %d/%d", cues, shown)
	}
	if sink.shown[0].PartnerID != "alice" {
		t.Fatalf("alert names wrong partner: %s", sink.shown[0].PartnerID)
	}
}

func TestNotifierSuppressesOwnMessages(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier("me", sink, nil)

	m := model.Message{ID: 1, SenderID: "me", ReceiverID: "alice", Body: "hi", CreatedAt: base}
	if n.HandleMessage(m) {
		t.Fatal("own messages must never alert")
	}
	if cues, shown := sink.counts(); cues != 0 || shown != 0 {
		t.Fatal("sink must stay silent")
	}
}

func TestNotifierSuppressesOpenConversation(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier("me", sink, nil)

	n.OpenConversation("alice")
	if n.HandleMessage(inbound(1, "alice")) {
		t.Fatal("on-screen conversation must not alert")
	}

	// A different partner still alerts.
	if !n.HandleMessage(inbound(2, "bob")) {
		t.Fatal("other conversations still alert while one is open")
	}

	n.CloseConversation()
	if !n.HandleMessage(inbound(3, "alice")) {
		t.Fatal("closing the conversation restores alerts")
	}
}

func TestNotifierSnoozeWindow(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier("me", sink, nil)

	clock := base
	n.now = func() time.Time { return clock }

	if err := n.Snooze(10 * time.Minute); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !n.Snoozed() {
		t.Fatal("snooze should be active")
	}
	if n.HandleMessage(inbound(1, "alice")) {
		t.Fatal("snoozed notifier must not alert")
	}

	clock = base.Add(11 * time.Minute)
	if n.Snoozed() {
		t.Fatal("snooze should have expired")
	}
	if !n.HandleMessage(inbound(2, "alice")) {
		t.Fatal("expired snooze must alert again")
	}
}

func TestNotifierSnoozePersists(t *testing.T) {
	store := &memSnoozeStore{}
	n := NewNotifier("me", &recordingSink{}, store)
	n.now = func() time.Time { return base }

	if err := n.Snooze(time.Hour); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if store.saves != 1 || !store.until.Equal(base.Add(time.Hour)) {
		t.Fatalf("expiry not persisted: saves=%d until=%v", store.saves, store.until)
	}

	// A fresh notifier picks the window back up from the store.
	sink := &recordingSink{}
	restarted := NewNotifier("me", sink, store)
	restarted.now = func() time.Time { return base.Add(30 * time.Minute) }

	if !restarted.Snoozed() {
		t.Fatal("restart must not cancel an active snooze")
	}
	if restarted.HandleMessage(inbound(1, "alice")) {
		t.Fatal("restored snooze must suppress alerts")
	}
	if cues, _ := sink.counts(); cues != 0 {
		t.Fatal("sink must stay silent under a restored snooze")
	}
}

func TestNotifierDismissesAfterTimeout(t *testing.T) {
	sink := &recordingSink{}
	n := NewNotifier("me", sink, nil)
	n.dismissAfter = 10 * time.Millisecond

	n.HandleMessage(inbound(1, "alice"))

	deadline := time.Now().Add(time.Second)
	for {
		sink.mu.Lock()
		done := len(sink.hidden) == 1
		sink.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("alert was never dismissed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if sink.hidden[0] != sink.shown[0].ID {
		t.Fatalf("dismissed wrong alert: %s vs %s", sink.hidden[0], sink.shown[0].ID)
	}
}

func TestPreviewTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := preview(long)
	if len([]rune(got)) != 81 {
		t.Fatalf("expected 80 runes plus ellipsis, got %d", len([]rune(got)))
	}
	if preview("short") != "short" {
		t.Fatal("short bodies pass through untouched")
	}
}

func TestFileSnoozeStoreRoundTrip(t *testing.T) {
	store := &FileSnoozeStore{Path: filepath.Join(t.TempDir(), "snooze.json")}

	if _, err := store.Load(); err == nil {
		t.Fatal("load before save should fail")
	}

	until := base.Add(time.Hour)
	if err := store.Save(until); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(until) {
		t.Fatalf("expected %v, got %v", until, got)
	}
}

package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"
)

func newTestClient(userID, connID string) *WSClient {
	return &WSClient{
		ConnID: connID,
		UserID: userID,
		Room:   RoomForUser(userID),
		Send:   make(chan []byte, 8),
	}
}

func recv(t *testing.T, ch chan []byte) *model.Event {
	t.Helper()
	select {
	case data := <-ch:
		var event model.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatal(err)
		}
		return &event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectSilence(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case data := <-ch:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	bob := newTestClient("bob", "c1")
	alice := newTestClient("alice", "c2")
	hub.Register(bob)
	hub.Register(alice)

	event, _ := model.NewEvent(model.EventTyping, model.TypingPayload{From: "alice"})
	hub.Deliver(RoomForUser("bob"), event)

	got := recv(t, bob.Send)
	if got.Type != model.EventTyping {
		t.Fatalf("expected typing event, got %q", got.Type)
	}
	expectSilence(t, alice.Send)
}

func TestHubSharedRoomReachesAllDevices(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	phone := newTestClient("bob", "phone")
	laptop := newTestClient("bob", "laptop")
	hub.Register(phone)
	hub.Register(laptop)

	event, _ := model.NewEvent(model.EventAnnounce, model.AnnouncePayload{Message: "hi"})
	hub.Deliver(RoomForUser("bob"), event)

	recv(t, phone.Send)
	recv(t, laptop.Send)
}

func TestHubUnregisterReleasesRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	bob := newTestClient("bob", "c1")
	hub.Register(bob)
	hub.Unregister(bob)

	// Send channel is closed on unregister.
	select {
	case _, ok := <-bob.Send:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}

	if hub.OnlineCount() != 0 {
		t.Fatalf("expected 0 online, got %d", hub.OnlineCount())
	}
}

func TestHubDropsSlowClientAndReleasesRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	// Zero-capacity Send with no reader: the first delivery attempt
	// classifies the client as slow.
	stuck := &WSClient{
		ConnID: "c1",
		UserID: "bob",
		Room:   RoomForUser("bob"),
		Send:   make(chan []byte),
	}
	hub.Register(stuck)

	event, _ := model.NewEvent(model.EventTyping, model.TypingPayload{From: "alice"})
	hub.Deliver(RoomForUser("bob"), event)

	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.RLock()
		_, exists := hub.rooms[RoomForUser("bob")]
		hub.mu.RUnlock()
		if !exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("empty room was not released after the slow client drop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if hub.OnlineCount() != 0 {
		t.Fatalf("expected 0 online, got %d", hub.OnlineCount())
	}
}

func TestHubBroadcastReachesEveryRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	bob := newTestClient("bob", "c1")
	alice := newTestClient("alice", "c2")
	hub.Register(bob)
	hub.Register(alice)

	event, _ := model.NewEvent(model.EventAnnounce, model.AnnouncePayload{Message: "maintenance"})
	hub.Broadcast(event)

	recv(t, bob.Send)
	recv(t, alice.Send)
}

func TestHubOnlineCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	hub.Register(newTestClient("bob", "c1"))
	hub.Register(newTestClient("bob", "c2"))
	hub.Register(newTestClient("alice", "c3"))

	deadline := time.Now().Add(time.Second)
	for hub.OnlineCount() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 online, got %d", hub.OnlineCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

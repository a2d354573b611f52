package cofound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMarkReadUpdatesLocalThread(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"read":1,"read_up_to":"2025-06-01T12:30:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-1", "me")
	c.Cache.ApplyCreated(msg(1, "alice", "me", base))
	c.Cache.ApplyCreated(msg(2, "me", "alice", base.Add(time.Minute)))

	if err := c.MarkRead(context.Background(), "alice"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	if gotMethod != http.MethodPut || gotPath != "/api/v1/messages/private/alice/read" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("missing bearer credential: %q", gotAuth)
	}

	thread := c.Cache.Messages("alice")
	if !thread[0].Read {
		t.Fatal("partner's message should be read locally after marking the thread")
	}
	if thread[1].Read || thread[1].Delivered {
		t.Fatal("own outbound message must wait for the partner's receipt")
	}
	if c.Cache.UnreadTotal() != 0 {
		t.Fatalf("expected 0 unread, got %d", c.Cache.UnreadTotal())
	}
}

func TestMarkReadSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to mark messages read"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token-1", "me")
	c.Cache.ApplyCreated(msg(1, "alice", "me", base))

	err := c.MarkRead(context.Background(), "alice")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "failed to mark messages read") {
		t.Fatalf("unexpected error: %v", err)
	}

	// A failed request must not claim the thread was read.
	if c.Cache.Messages("alice")[0].Read {
		t.Fatal("local state changed despite the server error")
	}
	if c.Cache.UnreadTotal() != 1 {
		t.Fatalf("expected 1 unread, got %d", c.Cache.UnreadTotal())
	}
}

package cofound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/model"

	"github.com/gorilla/websocket"
)

// Client talks to the co-found backend over REST and the real-time
// channel, keeping Cache reconciled from both paths. The two paths are
// deliberately redundant: push for latency, polling to bound staleness
// when fan-out degrades.
type Client struct {
	BaseURL    string
	Token      string
	UserID     string
	HTTPClient *http.Client

	Cache    *Cache
	Notifier *Notifier

	// OnTyping fires when a partner's typing signal arrives.
	OnTyping func(from string)

	mu   sync.Mutex
	conn *websocket.Conn
	send chan *model.Event
	done chan struct{}
}

func NewClient(baseURL, token, userID string) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		UserID:     userID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Cache:      NewCache(userID),
	}
	c.Notifier = NewNotifier(userID, nil, nil)
	return c
}

// Connect dials the real-time channel. The bearer credential travels in
// the connection metadata; the server refuses the handshake before any
// room join when it is missing or invalid.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", c.Token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("handshake refused: %w", err)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.send = make(chan *model.Event, 64)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()

	return nil
}

// Close tears the connection down. Room membership on the server is
// released immediately; reconnecting requires a fresh handshake.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	close(c.done)
	_ = c.conn.Close()
	c.conn = nil
}

func (c *Client) readPump() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		var event model.Event
		if err := conn.ReadJSON(&event); err != nil {
			return
		}
		c.handleEvent(&event)
	}
}

func (c *Client) writePump() {
	c.mu.Lock()
	conn, send, done := c.conn, c.send, c.done
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		select {
		case event := <-send:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) handleEvent(event *model.Event) {
	switch event.Type {
	case model.EventMessageCreated:
		var payload model.MessageCreatedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("cofound: malformed created event: %v", err)
			return
		}
		added := c.Cache.ApplyCreated(payload.Message)
		if added && payload.ReceiverID == c.UserID {
			// Processed: acknowledge delivery back to the sender.
			c.AckDelivered(payload.ID)
			c.Notifier.HandleMessage(payload.Message)
		}

	case model.EventMessageDelivered:
		var payload model.MessageDeliveredPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("cofound: malformed delivered event: %v", err)
			return
		}
		c.Cache.ApplyDelivered(payload.ID, payload.DeliveredAt)

	case model.EventMessagesRead:
		var payload model.MessagesReadPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			log.Printf("cofound: malformed read event: %v", err)
			return
		}
		c.Cache.ApplyRead(payload.By, payload.ReadUpTo)

	case model.EventTyping:
		var payload model.TypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return
		}
		if c.OnTyping != nil {
			c.OnTyping(payload.From)
		}
	}
}

func (c *Client) push(eventType string, payload interface{}) {
	event, err := model.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return
	}
	select {
	case send <- event:
	default:
		// Channel full; typing and acks are both safe to shed.
	}
}

// SendTyping emits a fire-and-forget typing signal.
func (c *Client) SendTyping(to string) {
	c.push(model.EventTyping, model.TypingRequest{To: to})
}

// AckDelivered tells the server a created event was processed.
func (c *Client) AckDelivered(messageID int64) {
	c.push(model.EventMessageDelivered, model.DeliveredAck{MessageID: messageID})
}

// SendMessage posts a private message and folds the persisted row into
// the cache. The response acknowledges the durable write, not delivery.
func (c *Client) SendMessage(ctx context.Context, receiverID, body string) (*model.Message, error) {
	var msg model.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/messages/private",
		model.SendMessageRequest{ReceiverID: receiverID, Body: body}, &msg)
	if err != nil {
		return nil, err
	}
	c.Cache.ApplyCreated(msg)
	return &msg, nil
}

// Conversations polls the ranked summary list and merges it into the
// cache without regressing push state.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var convos []model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/messages/conversations", nil, &convos); err != nil {
		return nil, err
	}
	c.Cache.MergeConversations(convos)
	return c.Cache.Conversations(), nil
}

// History fetches the thread with a partner, oldest first.
func (c *Client) History(ctx context.Context, partnerID string, limit int) ([]model.Message, error) {
	path := "/api/v1/messages/private/" + url.PathEscape(partnerID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var msgs []model.Message
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	c.Cache.MergeHistory(msgs)
	return c.Cache.Messages(partnerID), nil
}

// MarkRead executes the bulk read transition for a partner's messages
// and mirrors it locally: the partner's inbound messages become read and
// the unread count drops. Our own outbound messages stay untouched until
// the partner's receipt arrives.
func (c *Client) MarkRead(ctx context.Context, partnerID string) error {
	path := "/api/v1/messages/private/" + url.PathEscape(partnerID) + "/read"
	if err := c.doJSON(ctx, http.MethodPut, path, nil, nil); err != nil {
		return err
	}
	c.Cache.MarkThreadRead(partnerID, time.Now())
	return nil
}

// StartPolling refreshes the conversation list on an interval as the
// fallback path for missed fan-out. Returns a stop func.
func (c *Client) StartPolling(interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := c.Conversations(ctx); err != nil {
					log.Printf("cofound: poll failed: %v", err)
				}
				cancel()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error      string `json:"error"`
			RetryAfter int    `json:"retry_after"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Message = errBody.Error
			apiErr.RetryAfter = errBody.RetryAfter
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

func newSendTestApp(budget service.Budget) *fiber.App {
	limiter := service.NewRateLimiter(nil, map[service.Category]service.Budget{
		service.CategorySend: budget,
	})
	h := NewMessageHandler(service.NewMessageService(nil, nil), limiter, nil)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "u1")
		return c.Next()
	})
	app.Post("/messages/private", h.Send)
	return app
}

func postSend(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/messages/private", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestSendInvalidRequestsDoNotConsumeBudget(t *testing.T) {
	app := newSendTestApp(service.Budget{Limit: 1, Window: time.Minute})

	// Budget of one: if validation failures burned tokens, the second and
	// third of these would come back 429 instead of 400.
	for i, body := range []string{
		`{"receiverId":"u1","message":"hi"}`, // self message
		`{"receiverId":"","message":"hi"}`,   // missing receiver
		`{"receiverId":"u2","message":""}`,   // empty body
	} {
		if status := postSend(t, app, body); status != 400 {
			t.Fatalf("request %d: expected 400, got %d", i, status)
		}
	}
}

func TestSendMalformedBodyDoesNotConsumeBudget(t *testing.T) {
	app := newSendTestApp(service.Budget{Limit: 1, Window: time.Minute})

	for i := 0; i < 3; i++ {
		if status := postSend(t, app, `{not json`); status != 400 {
			t.Fatalf("request %d: expected 400, got %d", i, status)
		}
	}
}

package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/repository"
	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

type MessageHandler struct {
	msgSvc   *service.MessageService
	limiter  *service.RateLimiter
	userRepo *repository.UserRepository
}

func NewMessageHandler(msgSvc *service.MessageService, limiter *service.RateLimiter, userRepo *repository.UserRepository) *MessageHandler {
	return &MessageHandler{msgSvc: msgSvc, limiter: limiter, userRepo: userRepo}
}

// Send persists a private message and fans it out.
// POST /api/v1/messages/private
func (h *MessageHandler) Send(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req model.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Invalid requests are rejected before they consume send budget.
	if err := service.ValidateSend(userID, req.ReceiverID, req.Body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	if d := h.limiter.Allow(c.Context(), "user:"+userID, service.CategorySend); !d.Allowed {
		retryAfter := int(d.RetryAfter.Seconds()) + 1
		c.Set("Retry-After", strconv.Itoa(retryAfter))
		return c.Status(429).JSON(fiber.Map{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
	}

	exists, err := h.userRepo.Exists(c.Context(), req.ReceiverID)
	if err != nil {
		log.Printf("[Message] receiver lookup %s failed: %v", req.ReceiverID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to send message"})
	}
	if !exists {
		return c.Status(404).JSON(fiber.Map{"error": "receiver not found"})
	}

	msg, err := h.msgSvc.Send(c.Context(), userID, req.ReceiverID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyMessage),
			errors.Is(err, service.ErrMessageTooLong),
			errors.Is(err, service.ErrSelfMessage),
			errors.Is(err, service.ErrMissingReceiver):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		default:
			// A message must never look sent without a durable write.
			log.Printf("[Message] send from %s failed: %v", userID, err)
			return c.Status(500).JSON(fiber.Map{"error": "failed to send message"})
		}
	}

	return c.Status(201).JSON(msg)
}

// History returns the ordered message list with one partner, oldest
// first.
// GET /api/v1/messages/private/:partnerId
func (h *MessageHandler) History(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	partnerID := c.Params("partnerId")

	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	msgs, err := h.msgSvc.History(c.Context(), userID, partnerID, limit)
	if err != nil {
		log.Printf("[Message] history %s/%s failed: %v", userID, partnerID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load messages"})
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	return c.JSON(msgs)
}

// Conversations returns the caller's ranked conversation summaries.
// GET /api/v1/messages/conversations
func (h *MessageHandler) Conversations(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	convos, err := h.msgSvc.Conversations(c.Context(), userID)
	if err != nil {
		log.Printf("[Message] conversations for %s failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load conversations"})
	}

	return c.JSON(convos)
}

// MarkRead executes the bulk read transition for everything from
// partnerId up to now.
// PUT /api/v1/messages/private/:partnerId/read
func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	partnerID := c.Params("partnerId")

	affected, upTo, err := h.msgSvc.ReadUpTo(c.Context(), userID, partnerID)
	if err != nil {
		log.Printf("[Message] mark read %s<-%s failed: %v", userID, partnerID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to mark messages read"})
	}

	return c.JSON(fiber.Map{"read": affected, "read_up_to": upTo})
}

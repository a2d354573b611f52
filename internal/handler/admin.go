package handler

import (
	"log"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/repository"
	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	userRepo    *repository.UserRepository
	projectRepo *repository.ProjectRepository
	msgRepo     *repository.MessageRepository
	hub         *service.Hub
	fanout      *service.Fanout
	limiter     *service.RateLimiter
}

func NewAdminHandler(userRepo *repository.UserRepository, projectRepo *repository.ProjectRepository, msgRepo *repository.MessageRepository, hub *service.Hub, fanout *service.Fanout, limiter *service.RateLimiter) *AdminHandler {
	return &AdminHandler{
		userRepo:    userRepo,
		projectRepo: projectRepo,
		msgRepo:     msgRepo,
		hub:         hub,
		fanout:      fanout,
		limiter:     limiter,
	}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	totalUsers, _ := h.userRepo.CountTotal(c.Context())
	totalProjects, _ := h.projectRepo.CountTotal(c.Context())
	totalMessages, _ := h.msgRepo.CountTotal(c.Context())

	return c.JSON(fiber.Map{
		"users_total":      totalUsers,
		"projects_total":   totalProjects,
		"messages_total":   totalMessages,
		"users_online":     h.hub.OnlineCount(),
		"limiter_degraded": h.limiter.Degraded(),
	})
}

// Announce broadcasts an operator notice to every connected user, on
// every process when the fan-out bridge is up.
func (h *AdminHandler) Announce(c *fiber.Ctx) error {
	var req model.AnnouncePayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.Status(400).JSON(fiber.Map{"error": "message is required"})
	}

	event, err := model.NewEvent(model.EventAnnounce, req)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to encode announcement"})
	}
	h.fanout.Broadcast(event)

	return c.JSON(fiber.Map{"ok": true, "online": h.hub.OnlineCount()})
}

// Ban blocks a user from logging in. Live connections expire with their
// access token.
// POST /api/v1/admin/users/:id/ban
func (h *AdminHandler) Ban(c *fiber.Ctx) error {
	targetID := c.Params("id")

	if err := h.userRepo.SetBanned(c.Context(), targetID, true); err != nil {
		log.Printf("[Admin] ban %s failed: %v", targetID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to ban user"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *AdminHandler) Unban(c *fiber.Ctx) error {
	targetID := c.Params("id")

	if err := h.userRepo.SetBanned(c.Context(), targetID, false); err != nil {
		log.Printf("[Admin] unban %s failed: %v", targetID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to unban user"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

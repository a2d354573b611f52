package handler

import (
	"log"
	"strconv"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type ProfileHandler struct {
	profileRepo *repository.ProfileRepository
	userRepo    *repository.UserRepository
}

func NewProfileHandler(profileRepo *repository.ProfileRepository, userRepo *repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo, userRepo: userRepo}
}

// GetOwn returns the caller's listing.
// GET /api/v1/profile
func (h *ProfileHandler) GetOwn(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	profile, err := h.profileRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"error": "no profile yet"})
		}
		log.Printf("[Profile] get own for %s failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load profile"})
	}

	return c.JSON(profile)
}

// Upsert creates or updates the caller's listing.
// PUT /api/v1/profile
func (h *ProfileHandler) Upsert(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req model.ProfileUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Headline) > 160 {
		return c.Status(400).JSON(fiber.Map{"error": "headline too long"})
	}

	profile, err := h.profileRepo.Upsert(c.Context(), userID, &req)
	if err != nil {
		log.Printf("[Profile] upsert for %s failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to save profile"})
	}

	return c.JSON(profile)
}

// Get returns another user's listing plus directory fields.
// GET /api/v1/profiles/:userId
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	targetID := c.Params("userId")

	profile, err := h.profileRepo.GetByUserID(c.Context(), targetID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"error": "profile not found"})
		}
		log.Printf("[Profile] get %s failed: %v", targetID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load profile"})
	}
	if !profile.Visible {
		return c.Status(404).JSON(fiber.Map{"error": "profile not found"})
	}

	summary, err := h.userRepo.GetSummary(c.Context(), targetID)
	if err != nil {
		log.Printf("[Profile] summary %s failed: %v", targetID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load profile"})
	}

	return c.JSON(fiber.Map{"profile": profile, "user": summary})
}

// Search filters visible listings.
// GET /api/v1/profiles?skill=go&looking_for=cofounder&location=berlin
func (h *ProfileHandler) Search(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	q := &model.ProfileSearchQuery{
		Skill:      c.Query("skill"),
		LookingFor: c.Query("looking_for"),
		Location:   c.Query("location"),
		Limit:      limit,
		Offset:     offset,
	}

	profiles, err := h.profileRepo.Search(c.Context(), q)
	if err != nil {
		log.Printf("[Profile] search failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "search failed"})
	}

	return c.JSON(profiles)
}

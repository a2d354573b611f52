package handler

import (
	"log"
	"strconv"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/repository"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type ProjectHandler struct {
	projectRepo *repository.ProjectRepository
}

func NewProjectHandler(projectRepo *repository.ProjectRepository) *ProjectHandler {
	return &ProjectHandler{projectRepo: projectRepo}
}

// POST /api/v1/projects
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req model.ProjectUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	project, err := h.projectRepo.Create(c.Context(), userID, &req)
	if err != nil {
		log.Printf("[Project] create by %s failed: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create project"})
	}

	return c.Status(201).JSON(project)
}

// GET /api/v1/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.projectRepo.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"error": "project not found"})
		}
		log.Printf("[Project] get %s failed: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load project"})
	}

	return c.JSON(project)
}

// PUT /api/v1/projects/:id
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var req model.ProjectUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name is required"})
	}

	project, err := h.projectRepo.Update(c.Context(), c.Params("id"), userID, &req)
	if err != nil {
		if err == pgx.ErrNoRows {
			return c.Status(404).JSON(fiber.Map{"error": "project not found"})
		}
		log.Printf("[Project] update %s failed: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update project"})
	}

	return c.JSON(project)
}

// DELETE /api/v1/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	deleted, err := h.projectRepo.Delete(c.Context(), c.Params("id"), userID)
	if err != nil {
		log.Printf("[Project] delete %s failed: %v", c.Params("id"), err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete project"})
	}
	if !deleted {
		return c.Status(404).JSON(fiber.Map{"error": "project not found"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// GET /api/v1/projects?stage=prototype&role=cto
func (h *ProjectHandler) Search(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	projects, err := h.projectRepo.Search(c.Context(), c.Query("stage"), c.Query("role"), limit, offset)
	if err != nil {
		log.Printf("[Project] search failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "search failed"})
	}

	return c.JSON(projects)
}

package handler

import (
	"errors"
	"log"

	"github.com/khdrvss/co-found-sub000/internal/model"
	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authSvc *service.AuthService
}

func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req model.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, err := h.authSvc.Register(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword):
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrUserExists):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[Auth] register failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "registration failed"})
		}
	}

	return c.Status(201).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req model.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, err := h.authSvc.Login(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, service.ErrBanned):
			return c.Status(403).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("[Auth] login failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "login failed"})
		}
	}

	return c.JSON(resp)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req model.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(400).JSON(fiber.Map{"error": "refresh_token is required"})
	}

	tokens, err := h.authSvc.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrBanned) {
			return c.Status(401).JSON(fiber.Map{"error": "invalid refresh token"})
		}
		log.Printf("[Auth] refresh failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "refresh failed"})
	}

	return c.JSON(tokens)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req model.RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return c.Status(400).JSON(fiber.Map{"error": "refresh_token is required"})
	}

	_ = h.authSvc.Logout(c.Context(), req.RefreshToken)
	return c.JSON(fiber.Map{"ok": true})
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khdrvss/co-found-sub000/internal/config"
	"github.com/khdrvss/co-found-sub000/internal/database"
	"github.com/khdrvss/co-found-sub000/internal/handler"
	"github.com/khdrvss/co-found-sub000/internal/middleware"
	"github.com/khdrvss/co-found-sub000/internal/repository"
	"github.com/khdrvss/co-found-sub000/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(context.Background(), db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied successfully")

	// Redis is optional: without it the limiter and fan-out run degraded.
	rdb, err := database.NewRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Printf("Redis unavailable, starting in degraded mode: %v", err)
		rdb = nil
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	// Services
	authSvc := service.NewAuthService(userRepo, sessionRepo, cfg.JWTSecret)
	hub := service.NewHub()
	fanout := service.NewFanout(rdb, hub)
	msgSvc := service.NewMessageService(msgRepo, fanout)
	limiter := service.NewRateLimiter(rdb, map[service.Category]service.Budget{
		service.CategorySend:   {Limit: cfg.SendLimit, Window: cfg.SendWindow},
		service.CategoryTyping: {Limit: cfg.TypingLimit, Window: cfg.TypingWindow},
		service.CategoryAck:    {Limit: cfg.AckLimit, Window: cfg.AckWindow},
	})

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health + metrics
	healthH := handler.NewHealthHandler(db, rdb, limiter)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1
	v1 := app.Group("/api/v1")

	// Auth (public)
	authH := handler.NewAuthHandler(authSvc)
	auth := v1.Group("/auth")
	auth.Post("/register", middleware.RateLimit(5, time.Minute), authH.Register)
	auth.Post("/login", middleware.RateLimit(10, time.Minute), authH.Login)
	auth.Post("/refresh", middleware.RateLimit(20, time.Minute), authH.Refresh)
	auth.Post("/logout", authH.Logout)

	// Admin — registered BEFORE protected group
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey))
	adminH := handler.NewAdminHandler(userRepo, projectRepo, msgRepo, hub, fanout, limiter)
	admin.Get("/stats", adminH.Stats)
	admin.Post("/announce", adminH.Announce)
	admin.Post("/users/:id/ban", adminH.Ban)
	admin.Post("/users/:id/unban", adminH.Unban)

	// JWT-protected routes (catch-all — must be LAST)
	protected := v1.Group("", middleware.Auth(cfg.JWTSecret))

	// Profiles
	profileH := handler.NewProfileHandler(profileRepo, userRepo)
	protected.Get("/profile", profileH.GetOwn)
	protected.Put("/profile", profileH.Upsert)
	protected.Get("/profiles", profileH.Search)
	protected.Get("/profiles/:userId", profileH.Get)

	// Projects
	projectH := handler.NewProjectHandler(projectRepo)
	projects := protected.Group("/projects")
	projects.Post("/", projectH.Create)
	projects.Get("/", projectH.Search)
	projects.Get("/:id", projectH.Get)
	projects.Put("/:id", projectH.Update)
	projects.Delete("/:id", projectH.Delete)

	// Messaging
	msgH := handler.NewMessageHandler(msgSvc, limiter, userRepo)
	messages := protected.Group("/messages")
	messages.Post("/private", msgH.Send)
	messages.Get("/conversations", msgH.Conversations)
	messages.Get("/private/:partnerId", msgH.History)
	messages.Put("/private/:partnerId/read", msgH.MarkRead)

	// WebSocket
	wsH := handler.NewWSHandler(hub, authSvc, msgSvc, limiter)
	app.Get("/ws", wsH.Upgrade)

	// Background loops
	go hub.Run()
	fanout.Start()
	stopJanitor := limiter.StartJanitor(time.Minute)

	sessionDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sessionRepo.CleanupExpired(context.Background()); err != nil {
					log.Printf("Session cleanup failed: %v", err)
				}
			case <-sessionDone:
				return
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Printf("co-found backend running on :%s (%s)", cfg.Port, cfg.Env)

	<-quit
	log.Println("Shutting down...")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	close(sessionDone)
	stopJanitor()
	fanout.Stop()
	hub.Shutdown()
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Println("Server stopped")
}

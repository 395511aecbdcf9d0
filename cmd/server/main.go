package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-backend/internal/config"
	"attendance-backend/internal/database"
	"attendance-backend/internal/handlers"
	"attendance-backend/internal/middleware"
	"attendance-backend/internal/repository"
	"attendance-backend/internal/router"
	"attendance-backend/internal/services"
	"attendance-backend/internal/websocket"
	"attendance-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting attendance backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	classRepo := repository.NewClassRepo(pool)
	studentRepo := repository.NewStudentRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)
	attendanceRepo := repository.NewAttendanceRepo(pool)

	// ──── Step 5: Start Rotator ────
	publisher := services.NewRotationPublisher(redisClients.Cache)
	rotator := worker.NewRotator(sessionRepo, publisher, cfg.RotationInterval())

	resumeCtx, cancelResume := context.WithTimeout(context.Background(), 10*time.Second)
	resumed, err := rotator.Resume(resumeCtx)
	cancelResume()
	if err != nil {
		// Not fatal: the locator re-arms sessions lazily.
		log.Printf("✗ Rotator resume failed: %v", err)
	} else {
		log.Printf("✓ Rotator started (%d active sessions resumed, every %s)", resumed, cfg.RotationInterval())
	}

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	codec := services.NewCodeCodec(cfg.JWTSecret, cfg.AllowPlainTokens)
	if cfg.AllowPlainTokens {
		log.Println("! Plain JSON code tokens are accepted (ALLOW_PLAIN_TOKENS=true)")
	}
	cache := services.NewRedisSessionCache(redisClients.Cache)

	sessionService := services.NewSessionService(sessionRepo, classRepo, rotator, cache, cfg.SessionDuration())
	issuer := services.NewCodeIssuer(sessionRepo, codec, cfg.CodeTokenTTL())
	validator := services.NewSubmissionValidator(sessionRepo, studentRepo, attendanceRepo, codec, cfg.RotationInterval())
	keySync := services.NewKeySyncService(sessionRepo, publisher, cfg.RotationInterval())
	locator := services.NewSessionLocator(sessionRepo, rotator, cache)
	directory := services.NewDirectoryService(classRepo, studentRepo, sessionRepo, attendanceRepo, jwtAuth, cfg.InstructorTokenTTL())

	// ──── Initialize Handlers ────
	h := router.Handlers{
		Auth:       handlers.NewAuthHandler(directory),
		Class:      handlers.NewClassHandler(directory, locator),
		Session:    handlers.NewSessionHandler(sessionService, issuer, keySync),
		Attendance: handlers.NewAttendanceHandler(validator),
	}

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, sessionService, issuer)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, h, wsHub, cfg.FrontendURL, cfg.AdminAPIKey)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		rotator.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Attendance backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

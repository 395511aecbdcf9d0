package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"attendance-backend/internal/handlers"
	"attendance-backend/internal/middleware"
	"attendance-backend/internal/websocket"
)

type Handlers struct {
	Auth       *handlers.AuthHandler
	Class      *handlers.ClassHandler
	Session    *handlers.SessionHandler
	Attendance *handlers.AttendanceHandler
}

func New(
	jwtAuth *middleware.JWTAuth,
	h Handlers,
	wsHub *websocket.Hub,
	frontendURL string,
	adminAPIKey string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// A whole room often shares one campus NAT address.
	submitLimiter := middleware.NewRateLimiter(600, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoCache)

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/instructor/login", h.Auth.InstructorLogin)
			r.Post("/student/login", h.Auth.StudentLogin)
		})

		// ──── Class Routes ────
		r.Route("/classes", func(r chi.Router) {
			r.With(middleware.AdminKey(adminAPIKey)).Post("/", h.Class.Create)
			r.Get("/{classId}/active-session", h.Class.ActiveSession) // Public

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/{classId}/students", h.Class.UpsertStudent)
				r.Get("/{classId}/sessions/{sessionId}/attendance", h.Class.Attendance)
			})
		})

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/start", h.Session.Start)
			r.Post("/{id}/code", h.Session.Code)
			r.Post("/{id}/key-sync", h.Session.KeySync)
		})

		// ──── Attendance Routes (public) ────
		r.Route("/attendance", func(r chi.Router) {
			r.Use(submitLimiter.Middleware)
			r.Post("/", h.Attendance.Submit)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}

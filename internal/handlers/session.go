package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attendance-backend/internal/middleware"
	"attendance-backend/internal/models"
	"attendance-backend/internal/services"
)

type sessionService interface {
	Start(ctx context.Context, classID string) (*models.Session, error)
	GetForClass(ctx context.Context, sessionID uuid.UUID, classID string) (*models.Session, error)
}

type codeIssuer interface {
	Issue(ctx context.Context, sessionID uuid.UUID) (*services.IssuedCode, error)
}

type keySyncer interface {
	Sync(ctx context.Context, sessionID uuid.UUID, observedSecret string, observedAt time.Time) (*services.SyncResult, error)
}

type SessionHandler struct {
	sessions sessionService
	issuer   codeIssuer
	keySync  keySyncer
}

func NewSessionHandler(sessions sessionService, issuer codeIssuer, keySync keySyncer) *SessionHandler {
	return &SessionHandler{sessions: sessions, issuer: issuer, keySync: keySync}
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if req.ClassID != middleware.GetClassID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Not an instructor of this class", r))
		return
	}

	session, err := h.sessions.Start(r.Context(), req.ClassID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"class_id":   session.ClassID,
		"start":      session.StartAt.UnixMilli(),
		"end":        session.EndAt.UnixMilli(),
	})
}

func (h *SessionHandler) Code(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}

	code, err := h.issuer.Issue(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, code)
}

func (h *SessionHandler) KeySync(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorizedSession(w, r)
	if !ok {
		return
	}

	var req models.KeySyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	result, err := h.keySync.Sync(r.Context(), sessionID, req.CurrentKey, req.CurrentKeyTS.Time())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if !result.Applied {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "noop": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// authorizedSession parses {id} and checks it belongs to the caller's class.
func (h *SessionHandler) authorizedSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return uuid.Nil, false
	}

	if _, err := h.sessions.GetForClass(r.Context(), sessionID, middleware.GetClassID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return uuid.Nil, false
	}
	return sessionID, true
}

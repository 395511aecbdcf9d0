package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"attendance-backend/internal/middleware"
	"attendance-backend/internal/models"
	"attendance-backend/internal/services"
)

type classDirectory interface {
	CreateClass(ctx context.Context, req models.CreateClassRequest) (*models.Class, error)
	UpsertStudent(ctx context.Context, classID string, req models.UpsertStudentRequest) (*models.Student, error)
	ListAttendance(ctx context.Context, classID string, sessionID uuid.UUID) ([]*models.AttendanceRow, error)
}

type activeSessionLocator interface {
	FindActive(ctx context.Context, classID string) (*services.ActiveSession, error)
}

type ClassHandler struct {
	directory classDirectory
	locator   activeSessionLocator
}

func NewClassHandler(directory classDirectory, locator activeSessionLocator) *ClassHandler {
	return &ClassHandler{directory: directory, locator: locator}
}

func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	class, err := h.directory.CreateClass(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": class.ID, "name": class.Name})
}

func (h *ClassHandler) UpsertStudent(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if !h.authorizeClass(w, r, classID) {
		return
	}

	var req models.UpsertStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	student, err := h.directory.UpsertStudent(r.Context(), classID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, student)
}

// ActiveSession lets a client re-attach to a running session without
// knowing its id.
func (h *ClassHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	found, err := h.locator.FindActive(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if !found.Active {
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":     true,
		"session_id": found.SessionID,
		"start":      found.Start.UnixMilli(),
		"end":        found.End.UnixMilli(),
	})
}

func (h *ClassHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classId")
	if !h.authorizeClass(w, r, classID) {
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	rows, err := h.directory.ListAttendance(r.Context(), classID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"total":      len(rows),
		"attendance": rows,
	})
}

func (h *ClassHandler) authorizeClass(w http.ResponseWriter, r *http.Request, classID string) bool {
	if middleware.GetClassID(r.Context()) != classID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Not an instructor of this class", r))
		return false
	}
	return true
}

package handlers

import (
	"context"
	"net/http"

	"attendance-backend/internal/models"
)

type loginService interface {
	InstructorLogin(ctx context.Context, req models.InstructorLoginRequest) (*models.InstructorToken, error)
	StudentLogin(ctx context.Context, req models.StudentLoginRequest) (*models.Student, error)
}

type AuthHandler struct {
	directory loginService
}

func NewAuthHandler(directory loginService) *AuthHandler {
	return &AuthHandler{directory: directory}
}

func (h *AuthHandler) InstructorLogin(w http.ResponseWriter, r *http.Request) {
	var req models.InstructorLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	token, err := h.directory.InstructorLogin(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, token)
}

func (h *AuthHandler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	var req models.StudentLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	student, err := h.directory.StudentLogin(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"student_id": student.ID,
		"name":       student.Name,
		"class_id":   student.ClassID,
	})
}

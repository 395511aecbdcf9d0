package handlers

import (
	"context"
	"net/http"
	"time"

	"attendance-backend/internal/models"
	"attendance-backend/internal/services"
)

type submissionValidator interface {
	Submit(ctx context.Context, studentID, token string, scanAt time.Time) (*services.SubmitResult, error)
}

type AttendanceHandler struct {
	validator submissionValidator
}

func NewAttendanceHandler(validator submissionValidator) *AttendanceHandler {
	return &AttendanceHandler{validator: validator}
}

var rejectionStatus = map[services.RejectReason]int{
	services.ReasonInvalidToken:     http.StatusBadRequest,
	services.ReasonStudentNotFound:  http.StatusNotFound,
	services.ReasonSessionNotSynced: http.StatusConflict,
	services.ReasonStaleToken:       http.StatusBadRequest,
	services.ReasonOutsideWindow:    http.StatusBadRequest,
}

var rejectionMessage = map[services.RejectReason]string{
	services.ReasonInvalidToken:     "Invalid token",
	services.ReasonStudentNotFound:  "Student not found",
	services.ReasonSessionNotSynced: "Session not yet synced",
	services.ReasonStaleToken:       "Stale token",
	services.ReasonOutsideWindow:    "Outside session window",
}

// Submit accepts an (possibly offline-delayed) capture report. Resubmitting
// an accepted capture is always safe and answers duplicate.
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	result, err := h.validator.Submit(r.Context(), req.StudentID, req.Token, time.UnixMilli(req.ScanTS))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	switch result.Outcome {
	case services.OutcomeAccepted:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	case services.OutcomeDuplicate:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "duplicate": true})
	default:
		status, ok := rejectionStatus[result.Reason]
		if !ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResp(string(result.Reason), rejectionMessage[result.Reason], r))
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionService_Start(t *testing.T) {
	store := newMemSessions()
	armer := &recordingArmer{}
	cache := newMemCache()
	svc := NewSessionService(store, newMemClasses("cs101"), armer, cache, 90*time.Minute)
	now := time.UnixMilli(1_700_000_000_000).Add(123456 * time.Nanosecond)
	svc.now = fixedClock(&now)

	session, err := svc.Start(context.Background(), "cs101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if session.StartAt.UnixMilli() != now.UnixMilli() || session.StartAt.Nanosecond()%int(time.Millisecond) != 0 {
		t.Errorf("start should be now truncated to ms, got %v", session.StartAt)
	}
	if session.EndAt.Sub(session.StartAt) != 90*time.Minute {
		t.Errorf("expected 90 minute window, got %s", session.EndAt.Sub(session.StartAt))
	}
	if session.CurrentSecret == "" || !session.CurrentSecretAt.Equal(session.StartAt) {
		t.Errorf("expected an initial secret at start")
	}
	if session.PreviousSecret != nil || session.PreviousSecretAt != nil {
		t.Errorf("new session must not have a previous generation")
	}
	if _, err := store.GetByID(context.Background(), session.ID); err != nil {
		t.Errorf("session not persisted: %v", err)
	}
	if armer.count() != 1 || armer.armed[0] != session.ID {
		t.Errorf("expected rotation armed for new session")
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != "cs101" {
		t.Errorf("expected active-session cache invalidated, got %v", cache.deleted)
	}

	second, _ := svc.Start(context.Background(), "cs101")
	if second.CurrentSecret == session.CurrentSecret {
		t.Error("secrets must differ between sessions")
	}
}

func TestSessionService_StartErrors(t *testing.T) {
	svc := NewSessionService(newMemSessions(), newMemClasses("cs101"), &recordingArmer{}, nil, time.Hour)

	_, err := svc.Start(context.Background(), "  ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	_, err = svc.Start(context.Background(), "nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSessionService_GetForClass(t *testing.T) {
	session := newTestSession("cs101")
	svc := NewSessionService(newMemSessions(session), newMemClasses("cs101"), &recordingArmer{}, nil, time.Hour)

	if _, err := svc.GetForClass(context.Background(), session.ID, "cs101"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.GetForClass(context.Background(), session.ID, "other")
	var forbidden *ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
}

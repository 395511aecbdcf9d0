package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
)

type TickStatus int

const (
	TickSuccess TickStatus = iota
	TickDisarmed
	TickRetryableFault
)

func (s TickStatus) String() string {
	switch s {
	case TickSuccess:
		return "success"
	case TickDisarmed:
		return "disarmed"
	case TickRetryableFault:
		return "retryable_fault"
	default:
		return "unknown"
	}
}

// ErrShiftConflict means another writer changed the current secret between
// the tick's read and its conditional update.
var ErrShiftConflict = errors.New("current secret changed concurrently")

type TickResult struct {
	SessionID uuid.UUID
	Status    TickStatus
	RotatedAt time.Time
	Err       error
}

// TickObserver receives every tick outcome. It must not block for long.
type TickObserver interface {
	ObserveTick(ctx context.Context, result TickResult)
}

type sessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Session, error)
	ShiftSecret(ctx context.Context, shift models.SecretShift) (bool, error)
}

type armedSession struct {
	stop chan struct{}
}

// Rotator advances each armed session's secret once per interval until the
// session ends. The armed map is the only process-wide mutable state and is
// only touched under mu.
type Rotator struct {
	sessions sessionStore
	observer TickObserver
	interval time.Duration

	now       func() time.Time
	newSecret func() string

	mu       sync.Mutex
	armed    map[uuid.UUID]*armedSession
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRotator(sessions sessionStore, observer TickObserver, interval time.Duration) *Rotator {
	return &Rotator{
		sessions:  sessions,
		observer:  observer,
		interval:  interval,
		now:       time.Now,
		newSecret: func() string { return uuid.New().String() },
		armed:     make(map[uuid.UUID]*armedSession),
		stopChan:  make(chan struct{}),
	}
}

// Arm starts the periodic task for sessionID. It returns false when the
// session was already armed or the rotator is stopped.
func (r *Rotator) Arm(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return false
	}
	if _, ok := r.armed[sessionID]; ok {
		return false
	}

	entry := &armedSession{stop: make(chan struct{})}
	r.armed[sessionID] = entry
	r.wg.Add(1)
	go r.run(sessionID, entry)

	log.Printf("rotator: armed session %s (every %s)", sessionID, r.interval)
	return true
}

// disarm stops the task for sessionID if one is running.
func (r *Rotator) disarm(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.armed[sessionID]
	if !ok {
		return false
	}
	delete(r.armed, sessionID)
	close(entry.stop)
	return true
}

func (r *Rotator) isArmed(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.armed[sessionID]
	return ok
}

func (r *Rotator) armedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.armed)
}

// Resume re-arms every session whose window contains now. Timers live only
// in memory, so this runs once at boot; the locator re-arms lazily after that.
func (r *Rotator) Resume(ctx context.Context) (int, error) {
	sessions, err := r.sessions.ListActive(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	armed := 0
	for _, s := range sessions {
		if r.Arm(s.ID) {
			armed++
		}
	}
	return armed, nil
}

// Stop disarms everything and waits for in-flight ticks to finish.
func (r *Rotator) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopChan)
	r.armed = make(map[uuid.UUID]*armedSession)
	r.mu.Unlock()

	r.wg.Wait()
	log.Printf("rotator: stopped")
}

func (r *Rotator) run(sessionID uuid.UUID, entry *armedSession) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-entry.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			result := r.tick(ctx, sessionID)
			cancel()

			if result.Status == TickDisarmed {
				r.release(sessionID, entry)
				return
			}
		}
	}
}

// release removes entry from the registry unless it was already replaced.
func (r *Rotator) release(sessionID uuid.UUID, entry *armedSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.armed[sessionID]; ok && current == entry {
		delete(r.armed, sessionID)
	}
}

func (r *Rotator) tick(ctx context.Context, sessionID uuid.UUID) TickResult {
	result := r.rotate(ctx, sessionID)

	switch result.Status {
	case TickDisarmed:
		log.Printf("rotator: session %s disarmed", sessionID)
	case TickRetryableFault:
		log.Printf("rotator: tick for session %s failed, retrying next tick: %v", sessionID, result.Err)
	}

	if r.observer != nil {
		r.observer.ObserveTick(ctx, result)
	}
	return result
}

func (r *Rotator) rotate(ctx context.Context, sessionID uuid.UUID) TickResult {
	result := TickResult{SessionID: sessionID}

	session, err := r.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		result.Status = TickDisarmed
		return result
	}
	if err != nil {
		result.Status = TickRetryableFault
		result.Err = fmt.Errorf("failed to load session: %w", err)
		return result
	}

	now := models.TruncateMillis(r.now())
	if session.EndedAt(now) {
		result.Status = TickDisarmed
		return result
	}

	// Generation times must strictly increase even if the stored current
	// time is ahead of this instance's clock.
	stamp := now
	if !stamp.After(session.CurrentSecretAt) {
		stamp = session.CurrentSecretAt.Add(time.Millisecond)
	}

	applied, err := r.sessions.ShiftSecret(ctx, models.SecretShift{
		SessionID:         sessionID,
		ExpectedCurrentAt: session.CurrentSecretAt,
		NewSecret:         r.newSecret(),
		NewSecretAt:       stamp,
	})
	if err != nil {
		result.Status = TickRetryableFault
		result.Err = fmt.Errorf("failed to shift secret: %w", err)
		return result
	}
	if !applied {
		result.Status = TickRetryableFault
		result.Err = ErrShiftConflict
		return result
	}

	result.Status = TickSuccess
	result.RotatedAt = stamp
	return result
}

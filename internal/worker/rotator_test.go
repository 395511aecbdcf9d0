package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
)

type stubStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	getErr   error
	shiftErr error
	// conflict makes the next ShiftSecret miss its guard.
	conflict bool
}

func newStubStore(sessions ...*models.Session) *stubStore {
	s := &stubStore{sessions: make(map[uuid.UUID]*models.Session)}
	for _, sess := range sessions {
		s.sessions[sess.ID] = sess
	}
	return s
}

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *sess
	return &copied, nil
}

func (s *stubStore) ListActive(ctx context.Context, now time.Time) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*models.Session
	for _, sess := range s.sessions {
		if sess.ActiveAt(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

func (s *stubStore) ShiftSecret(ctx context.Context, shift models.SecretShift) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shiftErr != nil {
		return false, s.shiftErr
	}
	if s.conflict {
		s.conflict = false
		return false, nil
	}
	sess := s.sessions[shift.SessionID]
	if !sess.CurrentSecretAt.Equal(shift.ExpectedCurrentAt) {
		return false, nil
	}
	prev, prevAt := sess.CurrentSecret, sess.CurrentSecretAt
	sess.PreviousSecret, sess.PreviousSecretAt = &prev, &prevAt
	sess.CurrentSecret, sess.CurrentSecretAt = shift.NewSecret, shift.NewSecretAt
	return true, nil
}

type chanObserver struct {
	results chan TickResult
}

func (o *chanObserver) ObserveTick(ctx context.Context, result TickResult) {
	o.results <- result
}

var base = time.UnixMilli(1_700_000_000_000)

func testSession(start time.Time, d time.Duration) *models.Session {
	return &models.Session{
		ID:              uuid.New(),
		ClassID:         "cs101",
		StartAt:         start,
		EndAt:           start.Add(d),
		CurrentSecret:   "S0",
		CurrentSecretAt: start,
	}
}

func newTestRotator(store *stubStore, now time.Time) *Rotator {
	r := NewRotator(store, nil, 40*time.Second)
	r.now = func() time.Time { return now }
	n := 0
	r.newSecret = func() string {
		n++
		return "S" + string(rune('0'+n))
	}
	return r
}

func TestRotate_ShiftsGenerations(t *testing.T) {
	session := testSession(base, time.Hour)
	store := newStubStore(session)
	now := base.Add(40*time.Second + 500*time.Microsecond)
	r := newTestRotator(store, now)

	result := r.rotate(context.Background(), session.ID)
	if result.Status != TickSuccess {
		t.Fatalf("expected success, got %s: %v", result.Status, result.Err)
	}
	if !result.RotatedAt.Equal(models.TruncateMillis(now)) {
		t.Errorf("expected rotation time truncated to ms, got %v", result.RotatedAt)
	}

	stored, _ := store.GetByID(context.Background(), session.ID)
	if stored.CurrentSecret != "S1" || *stored.PreviousSecret != "S0" {
		t.Fatalf("expected S1 over S0, got %s over %s", stored.CurrentSecret, *stored.PreviousSecret)
	}
	if !stored.PreviousSecretAt.Equal(base) {
		t.Errorf("previous secret must keep its original time")
	}
}

func TestRotate_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(store *stubStore, session *models.Session) uuid.UUID
		now     time.Time
		want    TickStatus
		wantErr error
	}{
		{
			name:    "ended session",
			prepare: func(store *stubStore, s *models.Session) uuid.UUID { return s.ID },
			now:     base.Add(time.Hour + time.Millisecond),
			want:    TickDisarmed,
		},
		{
			name:    "missing session",
			prepare: func(store *stubStore, s *models.Session) uuid.UUID { return uuid.New() },
			now:     base.Add(time.Minute),
			want:    TickDisarmed,
		},
		{
			name: "load fault",
			prepare: func(store *stubStore, s *models.Session) uuid.UUID {
				store.getErr = errors.New("db down")
				return s.ID
			},
			now:  base.Add(time.Minute),
			want: TickRetryableFault,
		},
		{
			name: "write fault",
			prepare: func(store *stubStore, s *models.Session) uuid.UUID {
				store.shiftErr = errors.New("db down")
				return s.ID
			},
			now:  base.Add(time.Minute),
			want: TickRetryableFault,
		},
		{
			name: "concurrent writer",
			prepare: func(store *stubStore, s *models.Session) uuid.UUID {
				store.conflict = true
				return s.ID
			},
			now:     base.Add(time.Minute),
			want:    TickRetryableFault,
			wantErr: ErrShiftConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			session := testSession(base, time.Hour)
			store := newStubStore(session)
			id := tc.prepare(store, session)
			r := newTestRotator(store, tc.now)

			result := r.rotate(context.Background(), id)
			if result.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, result.Status)
			}
			if tc.wantErr != nil && !errors.Is(result.Err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, result.Err)
			}
			if stored, err := store.GetByID(context.Background(), session.ID); err == nil && tc.want != TickSuccess && stored.CurrentSecret != "S0" {
				t.Errorf("failed tick must not change the secret")
			}
		})
	}
}

func TestRotator_ArmIsIdempotent(t *testing.T) {
	r := newTestRotator(newStubStore(), base)
	defer r.Stop()
	id := uuid.New()

	if !r.Arm(id) {
		t.Fatal("first arm should start a task")
	}
	if r.Arm(id) {
		t.Fatal("second arm should be a no-op")
	}
	if r.armedCount() != 1 {
		t.Fatalf("expected one armed session, got %d", r.armedCount())
	}

	if !r.disarm(id) || r.isArmed(id) {
		t.Fatal("disarm should remove the task")
	}
	if r.disarm(id) {
		t.Fatal("disarming twice should report false")
	}
}

func TestRotator_StopRefusesArm(t *testing.T) {
	r := newTestRotator(newStubStore(), base)
	r.Arm(uuid.New())
	r.Stop()

	if r.armedCount() != 0 {
		t.Fatalf("stop should clear the registry")
	}
	if r.Arm(uuid.New()) {
		t.Fatal("arm after stop should fail")
	}
	r.Stop()
}

func TestRotator_ResumeArmsActiveSessions(t *testing.T) {
	active := testSession(base, time.Hour)
	ended := testSession(base.Add(-2*time.Hour), time.Hour)
	future := testSession(base.Add(time.Hour), time.Hour)
	r := newTestRotator(newStubStore(active, ended, future), base.Add(time.Minute))
	defer r.Stop()

	n, err := r.Resume(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || !r.isArmed(active.ID) {
		t.Fatalf("expected only the active session armed, got %d", n)
	}
}

func TestRotator_TaskDisarmsItselfAtEnd(t *testing.T) {
	session := testSession(base, time.Hour)
	observer := &chanObserver{results: make(chan TickResult, 4)}
	r := NewRotator(newStubStore(session), observer, 5*time.Millisecond)
	r.now = func() time.Time { return session.EndAt.Add(time.Second) }
	defer r.Stop()

	r.Arm(session.ID)

	select {
	case result := <-observer.results:
		if result.Status != TickDisarmed {
			t.Fatalf("expected disarmed tick, got %s", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.isArmed(session.ID) {
		if time.Now().After(deadline) {
			t.Fatal("task should release its registry entry")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRotator_TaskRotatesOnEachTick(t *testing.T) {
	session := testSession(base, time.Hour)
	store := newStubStore(session)
	observer := &chanObserver{results: make(chan TickResult, 16)}
	r := NewRotator(store, observer, 5*time.Millisecond)

	var mu sync.Mutex
	clock := base
	r.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	r.Arm(session.ID)

	for i := 0; i < 2; i++ {
		select {
		case result := <-observer.results:
			if result.Status != TickSuccess {
				t.Fatalf("tick %d: expected success, got %s: %v", i, result.Status, result.Err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tick %d", i)
		}
	}
	r.Stop()

	stored, _ := store.GetByID(context.Background(), session.ID)
	if stored.CurrentSecret == "S0" || stored.PreviousSecret == nil {
		t.Fatal("expected at least two generations after ticking")
	}
}

func TestRotate_StampsAfterFutureCurrentTime(t *testing.T) {
	session := testSession(base, time.Hour)
	session.CurrentSecretAt = base.Add(49 * time.Second)
	store := newStubStore(session)
	r := newTestRotator(store, base.Add(11*time.Second))

	result := r.rotate(context.Background(), session.ID)
	if result.Status != TickSuccess {
		t.Fatalf("expected success, got %s: %v", result.Status, result.Err)
	}

	stored, _ := store.GetByID(context.Background(), session.ID)
	if !stored.CurrentSecretAt.After(*stored.PreviousSecretAt) {
		t.Fatalf("expected increasing generation times, got previous %v current %v", *stored.PreviousSecretAt, stored.CurrentSecretAt)
	}
	if !result.RotatedAt.Equal(stored.CurrentSecretAt) {
		t.Errorf("reported rotation time %v differs from stored %v", result.RotatedAt, stored.CurrentSecretAt)
	}
}

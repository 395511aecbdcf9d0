package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

// memSessions emulates the sessions table including the conditional shift.
type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
	shifts   int
	err      error
	// beforeShift runs inside ShiftSecret before the guard is checked.
	beforeShift func()
}

func newMemSessions(sessions ...*models.Session) *memSessions {
	m := &memSessions{sessions: make(map[uuid.UUID]*models.Session)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memSessions) Create(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessions) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *memSessions) FindActiveByClass(ctx context.Context, classID string, now time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var best *models.Session
	for _, s := range m.sessions {
		if s.ClassID != classID || !s.ActiveAt(now) {
			continue
		}
		if best == nil || s.StartAt.After(best.StartAt) {
			best = s
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *best
	return &copied, nil
}

func (m *memSessions) ShiftSecret(ctx context.Context, shift models.SecretShift) (bool, error) {
	if m.beforeShift != nil {
		m.beforeShift()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	s, ok := m.sessions[shift.SessionID]
	if !ok || !s.CurrentSecretAt.Equal(shift.ExpectedCurrentAt) {
		return false, nil
	}
	prev, prevAt := s.CurrentSecret, s.CurrentSecretAt
	s.PreviousSecret, s.PreviousSecretAt = &prev, &prevAt
	s.CurrentSecret, s.CurrentSecretAt = shift.NewSecret, shift.NewSecretAt
	m.shifts++
	return true, nil
}

// rotate installs secret at t the way a rotation tick would.
func (m *memSessions) rotate(id uuid.UUID, secret string, t time.Time) {
	m.mu.Lock()
	current := m.sessions[id].CurrentSecretAt
	m.mu.Unlock()
	m.ShiftSecret(context.Background(), models.SecretShift{
		SessionID:         id,
		ExpectedCurrentAt: current,
		NewSecret:         secret,
		NewSecretAt:       t,
	})
}

type memStudents struct {
	students map[string]*models.Student
}

func newMemStudents(ids ...string) *memStudents {
	m := &memStudents{students: make(map[string]*models.Student)}
	for _, id := range ids {
		m.students[id] = &models.Student{ID: id, Name: "Student " + id}
	}
	return m
}

func (m *memStudents) GetByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memStudents) Upsert(ctx context.Context, s *models.Student) error {
	if existing, ok := m.students[s.ID]; ok && existing.ClassID != s.ClassID {
		return repository.ErrStudentInOtherClass
	}
	m.students[s.ID] = s
	return nil
}

type attendanceKey struct {
	session uuid.UUID
	student string
}

type memAttendance struct {
	mu      sync.Mutex
	records map[attendanceKey]*models.Attendance
}

func newMemAttendance() *memAttendance {
	return &memAttendance{records: make(map[attendanceKey]*models.Attendance)}
}

func (m *memAttendance) Record(ctx context.Context, a *models.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey{a.SessionID, a.StudentID}
	if _, ok := m.records[key]; ok {
		return repository.ErrDuplicateAttendance
	}
	copied := *a
	m.records[key] = &copied
	return nil
}

func (m *memAttendance) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AttendanceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*models.AttendanceRow
	for key, a := range m.records {
		if key.session == sessionID {
			rows = append(rows, &models.AttendanceRow{StudentID: a.StudentID, ScanAt: a.ScanAt, ScanTS: a.ScanAt.UnixMilli()})
		}
	}
	return rows, nil
}

type memClasses struct {
	classes map[string]*models.Class
	err     error
}

func newMemClasses(ids ...string) *memClasses {
	m := &memClasses{classes: make(map[string]*models.Class)}
	for _, id := range ids {
		m.classes[id] = &models.Class{ID: id, Name: "Class " + id}
	}
	return m
}

func (m *memClasses) Create(ctx context.Context, c *models.Class) error {
	if m.err != nil {
		return m.err
	}
	m.classes[c.ID] = c
	return nil
}

func (m *memClasses) GetByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := m.classes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type recordingArmer struct {
	mu    sync.Mutex
	armed []uuid.UUID
}

func (r *recordingArmer) Arm(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = append(r.armed, id)
	return true
}

func (r *recordingArmer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.armed)
}

type memCache struct {
	entries map[string]*ActiveSession
	ttls    map[string]time.Duration
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*ActiveSession), ttls: make(map[string]time.Duration)}
}

func (c *memCache) Get(ctx context.Context, classID string) (*ActiveSession, bool) {
	s, ok := c.entries[classID]
	return s, ok
}

func (c *memCache) Set(ctx context.Context, classID string, s *ActiveSession, ttl time.Duration) {
	c.entries[classID] = s
	c.ttls[classID] = ttl
}

func (c *memCache) Delete(ctx context.Context, classID string) {
	delete(c.entries, classID)
	c.deleted = append(c.deleted, classID)
}

type recordingNotifier struct {
	sources []string
}

func (n *recordingNotifier) PublishRotation(ctx context.Context, sessionID uuid.UUID, source string, rotatedAt time.Time) {
	n.sources = append(n.sources, source)
}

// fixedClock returns a func usable as a now field.
func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

var epoch = time.UnixMilli(1_700_000_000_000)

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func newTestSession(classID string) *models.Session {
	return &models.Session{
		ID:              uuid.New(),
		ClassID:         classID,
		StartAt:         at(0),
		EndAt:           at(0).Add(90 * time.Minute),
		CurrentSecret:   "S0",
		CurrentSecretAt: at(0),
	}
}

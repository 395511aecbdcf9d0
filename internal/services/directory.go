package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"attendance-backend/internal/database"
	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

type classStore interface {
	Create(ctx context.Context, c *models.Class) error
	GetByID(ctx context.Context, id string) (*models.Class, error)
}

type studentStore interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Upsert(ctx context.Context, s *models.Student) error
}

type attendanceLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.AttendanceRow, error)
}

type instructorTokenIssuer interface {
	GenerateInstructorToken(classID string, ttl time.Duration) (string, error)
}

// DirectoryService backs the narrow identity contracts the core consumes:
// class credentials, student resolution and the attendance listing.
type DirectoryService struct {
	classes    classStore
	students   studentStore
	sessions   sessionReader
	attendance attendanceLister
	tokens     instructorTokenIssuer
	tokenTTL   time.Duration
	bcryptCost int
}

func NewDirectoryService(classes classStore, students studentStore, sessions sessionReader, attendance attendanceLister, tokens instructorTokenIssuer, tokenTTL time.Duration) *DirectoryService {
	return &DirectoryService{
		classes:    classes,
		students:   students,
		sessions:   sessions,
		attendance: attendance,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		bcryptCost: 12,
	}
}

func (s *DirectoryService) CreateClass(ctx context.Context, req models.CreateClassRequest) (*models.Class, error) {
	fieldErrors := make(map[string]string)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fieldErrors["name"] = "Name is required"
	}
	if len(req.InstructorCode) < 4 {
		fieldErrors["instructor_code"] = "Instructor code must be at least 4 characters"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.InstructorCode), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash instructor code: %w", err)
	}

	classID := strings.TrimSpace(req.ID)
	if classID == "" {
		classID = uuid.New().String()
	}

	class := &models.Class{
		ID:                 classID,
		Name:               name,
		InstructorCodeHash: string(hash),
	}
	if err := s.classes.Create(ctx, class); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, &ConflictError{Message: "Class ID already in use"}
		}
		return nil, err
	}
	return class, nil
}

func (s *DirectoryService) UpsertStudent(ctx context.Context, classID string, req models.UpsertStudentRequest) (*models.Student, error) {
	fieldErrors := make(map[string]string)
	id := strings.TrimSpace(req.ID)
	name := strings.TrimSpace(req.Name)
	if id == "" {
		fieldErrors["id"] = "Student ID is required"
	}
	if name == "" {
		fieldErrors["name"] = "Name is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Class not found"}
		}
		return nil, err
	}

	student := &models.Student{ID: id, Name: name, ClassID: classID}
	if err := s.students.Upsert(ctx, student); err != nil {
		if errors.Is(err, repository.ErrStudentInOtherClass) {
			return nil, &ConflictError{Message: "Student ID is enrolled in another class"}
		}
		return nil, err
	}
	return student, nil
}

func (s *DirectoryService) InstructorLogin(ctx context.Context, req models.InstructorLoginRequest) (*models.InstructorToken, error) {
	class, err := s.classes.GetByID(ctx, strings.TrimSpace(req.ClassID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid credentials"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(class.InstructorCodeHash), []byte(req.InstructorCode)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid credentials"}
	}

	token, err := s.tokens.GenerateInstructorToken(class.ID, s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate instructor token: %w", err)
	}

	return &models.InstructorToken{Token: token, ExpiresIn: int(s.tokenTTL / time.Second)}, nil
}

func (s *DirectoryService) StudentLogin(ctx context.Context, req models.StudentLoginRequest) (*models.Student, error) {
	id := strings.TrimSpace(req.StudentID)
	if id == "" {
		return nil, &ValidationError{Fields: map[string]string{"student_id": "Student ID is required"}}
	}

	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Student not found"}
		}
		return nil, err
	}
	return student, nil
}

// ListAttendance returns the facts of a session that belongs to classID.
func (s *DirectoryService) ListAttendance(ctx context.Context, classID string, sessionID uuid.UUID) ([]*models.AttendanceRow, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Session not found"}
		}
		return nil, err
	}
	if session.ClassID != classID {
		return nil, &NotFoundError{Message: "Session not found"}
	}

	return s.attendance.ListBySession(ctx, sessionID)
}

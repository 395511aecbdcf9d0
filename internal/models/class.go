package models

import "time"

type Class struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	InstructorCodeHash string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ClassID   string    `json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateClassRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	InstructorCode string `json:"instructor_code"`
}

type UpsertStudentRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InstructorLoginRequest struct {
	ClassID        string `json:"class_id"`
	InstructorCode string `json:"instructor_code"`
}

type StudentLoginRequest struct {
	StudentID string `json:"student_id"`
}

type InstructorToken struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/itdsea/coursework/core"
)

// Course is a named subject. A Course has at most one Coursework.
type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Coursework is a running instance of a Course with an enrolled roster.
type Coursework struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	CourseName string    `json:"course_name"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// JoinRequest is a pending enrollment application awaiting a staff decision.
// A student has at most one outstanding request per coursework.
type JoinRequest struct {
	ID           string    `json:"id"`
	CourseworkID string    `json:"coursework_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Decision resolves a JoinRequest exactly once.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionDecline
}

// NewCoursework contains information needed to open a Coursework for a Course.
type NewCoursework struct {
	CourseName string `json:"course_name" validate:"required,max=60"`
}

func (nc *NewCoursework) Validate(validate *validator.Validate) error {
	nc.CourseName = core.CleanString(nc.CourseName)
	return validate.Struct(nc)
}

package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/itdsea/coursework/core"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleStudent   Role = "student"
	RoleAssistant Role = "assistant" // teaching assistant
	RoleTeacher   Role = "teacher"
)

var Roles = []Role{RoleStudent, RoleAssistant, RoleTeacher}

func (r Role) Valid() bool {
	for _, role := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role carries review duties.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAssistant
}

// Capability checks. All role branching funnels through these.

func CanCreateCoursework(r Role) bool { return r == RoleTeacher }
func CanCreateAssignment(r Role) bool { return r.IsStaff() }
func CanResolveRequests(r Role) bool  { return r.IsStaff() }
func CanBuildBundle(r Role) bool      { return r.IsStaff() }

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"` // institutional student id for students
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	IsActive     bool      `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) Name() string {
	return core.CleanString(u.LastName + u.FirstName)
}

func (u *User) IsStaff() bool   { return u.Role.IsStaff() }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

// NewUser contains information needed to register a new student account.
// The student id must be on the roster; name and email are derived from it.
type NewUser struct {
	StudentID       string `json:"student_id" validate:"required,number"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.StudentID = core.CleanString(nu.StudentID)
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Email           string `json:"email" validate:"omitempty,email"`
	IsActive        *bool  `json:"is_active"`
	Role            Role   `json:"role" validate:"omitempty,role"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	return validate.Struct(uu)
}

// GetFilter selects a single user; exactly one field should be set.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

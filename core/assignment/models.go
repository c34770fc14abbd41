package assignment

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/itdsea/coursework/core"
)

// Assignment belongs to exactly one Coursework. The deadline is immutable
// after creation; expiry is derived from it at read time, never stored.
type Assignment struct {
	ID           string    `json:"id"`
	CourseworkID string    `json:"coursework_id"`
	Title        string    `json:"title"`
	Deadline     time.Time `json:"deadline"`     // UTC
	ArchivePath  string    `json:"archive_path"` // results bundle; empty until built
	CreatedAt    time.Time `json:"created_at"`   // UTC
}

func (a Assignment) IsExpired(now time.Time) bool {
	return now.After(a.Deadline)
}

func (a Assignment) HasBundle() bool {
	return a.ArchivePath != ""
}

// Submission is a student's per-assignment record: at most one exists per
// (assignment, user) pair, created lazily on first access.
type Submission struct {
	ID           string         `json:"id"`
	AssignmentID string         `json:"assignment_id"`
	UserID       string         `json:"user_id"`
	Memo         string         `json:"memo"`
	CreatedAt    time.Time      `json:"created_at"` // UTC
	UpdatedAt    time.Time      `json:"updated_at"` // UTC
	Files        []UploadedFile `json:"files"`
}

// UploadedFile belongs to exactly one Submission; Path addresses the payload
// in blob storage.
type UploadedFile struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	Filename     string    `json:"filename"` // original upload name
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"` // UTC

	// joined, for bundle ordering and browsable archives
	StudentUsername string `json:"student_username,omitempty"`
}

// Result is what ViewResult returns: the submission, or an explicit
// no-submission sentinel.
type Result struct {
	Assignment   Assignment  `json:"assignment"`
	Submission   *Submission `json:"submission"` // nil: never started
	HasSubmitted bool        `json:"has_submitted"`
}

// NewAssignment contains information needed to create an Assignment.
type NewAssignment struct {
	Title    string    `json:"title" validate:"required,max=60"`
	Deadline time.Time `json:"deadline" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	if err := validate.Struct(na); err != nil {
		return err
	}
	if !na.Deadline.After(time.Now()) {
		return core.NewValidationError(nil, core.FieldError{Field: "deadline", Error: "deadline must be in the future"})
	}
	return nil
}

// StorageDir is the per-assignment payload directory:
// {course}_{assignment}_{deadlineYYYYMMDD}. Human-browsable and collision
// free for a given coursework.
func StorageDir(courseName string, a Assignment) string {
	return fmt.Sprintf("%s_%s_%s",
		cleanPathPart(courseName), cleanPathPart(a.Title), a.Deadline.UTC().Format("20060102"))
}

// FilePath is the deterministic per-student payload path inside StorageDir;
// a student re-uploading to the same assignment overwrites it.
func FilePath(courseName string, a Assignment, studentUsername, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(StorageDir(courseName, a), cleanPathPart(studentUsername)+ext)
}

// cleanPathPart keeps letters, digits, dash and underscore; everything else
// becomes a dash so names stay safe as path segments.
func cleanPathPart(s string) string {
	s = core.CleanString(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, s)
}

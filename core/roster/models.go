package roster

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a student id is not on the roster.
var ErrNotFound = errors.New("student id not found on roster")

// Entry is one line of the authoritative list of eligible student
// identifiers. Entries are reference data: loaded in bulk, never mutated.
type Entry struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (e Entry) FullName() string {
	return e.LastName + e.FirstName
}

type Repository interface {
	GetEntry(ctx context.Context, studentID string) (Entry, error)
	CreateEntries(ctx context.Context, entries []Entry) (int, error)
	QueryEntries(ctx context.Context) ([]Entry, error)
}

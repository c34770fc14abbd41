package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/roster"
	"github.com/itdsea/coursework/core/user"
)

// NewConfig returns a config suitable for tests; everything falls back to
// defaults and TestMode silences the server. Debug is off so error responses
// keep their production shape.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	conf.Debug = false
	return conf
}

// NopLogger drops everything; keeps services quiet in tests.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(msg string, args ...interface{}) {}
func (NopLogger) Info(msg string, args ...interface{})  {}
func (NopLogger) Warn(msg string, args ...interface{})  {}
func (NopLogger) Error(msg string, args ...interface{}) {}
func (NopLogger) Fatal(msg string, args ...interface{}) {}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	uname, firstName, lastName, pwd string,
	role user.Role,
	isVerified bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:   uname,
		FirstName:  firstName,
		LastName:   lastName,
		Email:      uname + "@test.tw",
		Role:       role,
		IsVerified: isVerified,
		IsActive:   true,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateRosterEntry(t *testing.T, repo roster.Repository, studentID, firstName, lastName string) roster.Entry {
	t.Helper()

	entry := roster.Entry{StudentID: studentID, FirstName: firstName, LastName: lastName}
	if _, err := repo.CreateEntries(context.Background(), []roster.Entry{entry}); err != nil {
		t.Fatalf("CreateRosterEntry() failed: %v", err)
	}
	return entry
}

func CreateCoursework(t *testing.T, repo course.Repository, courseName string, creator user.User) course.Coursework {
	t.Helper()

	cw, err := repo.CreateCoursework(
		context.Background(),
		course.Coursework{CourseName: courseName, CreatedAt: time.Now().UTC()},
		creator.ID,
	)
	if err != nil {
		t.Fatalf("CreateCoursework() failed: %v", err)
	}
	return cw
}

func CreateAssignment(t *testing.T, repo assignment.Repository, courseworkID, title string, deadline time.Time) assignment.Assignment {
	t.Helper()

	a, err := repo.CreateAssignment(context.Background(), assignment.Assignment{
		CourseworkID: courseworkID,
		Title:        title,
		Deadline:     deadline.UTC(),
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

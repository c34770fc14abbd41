// Package inmemdb provides mutex-guarded map implementations of the domain
// repositories, for tests and local hacking.
package inmemdb

import (
	"sync"

	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/roster"
	"github.com/itdsea/coursework/core/user"
)

type memberKey struct {
	CourseworkID string
	UserID       string
}

type DB struct {
	mutex sync.RWMutex

	users       map[string]*user.User
	roster      map[string]roster.Entry
	courses     map[string]*course.Course
	courseworks map[string]*course.Coursework
	members     map[memberKey]bool
	requests    map[string]*course.JoinRequest
	assignments map[string]*assignment.Assignment
	submissions map[string]*assignment.Submission
	files       map[string]*assignment.UploadedFile
}

// Reset drops all stored data; tests use it to start from a clean slate.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.users = make(map[string]*user.User)
	db.roster = make(map[string]roster.Entry)
	db.courses = make(map[string]*course.Course)
	db.courseworks = make(map[string]*course.Coursework)
	db.members = make(map[memberKey]bool)
	db.requests = make(map[string]*course.JoinRequest)
	db.assignments = make(map[string]*assignment.Assignment)
	db.submissions = make(map[string]*assignment.Submission)
	db.files = make(map[string]*assignment.UploadedFile)
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		roster:      make(map[string]roster.Entry),
		courses:     make(map[string]*course.Course),
		courseworks: make(map[string]*course.Coursework),
		members:     make(map[memberKey]bool),
		requests:    make(map[string]*course.JoinRequest),
		assignments: make(map[string]*assignment.Assignment),
		submissions: make(map[string]*assignment.Submission),
		files:       make(map[string]*assignment.UploadedFile),
	}
}

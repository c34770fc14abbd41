package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a.ID = uuid.New().String()
	repo.db.assignments[a.ID] = &a
	return a, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var as []assignment.Assignment
	for _, a := range repo.db.assignments {
		if a.CourseworkID == courseworkID {
			as = append(as, *a)
		}
	}
	sort.Slice(as, func(i, j int) bool { return as[i].Deadline.Before(as[j].Deadline) })
	return as, nil
}

func (repo *assignmentRepository) SetAssignmentArchive(ctx context.Context, assignmentID, archivePath string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	a, ok := repo.db.assignments[assignmentID]
	if !ok {
		return false, assignment.ErrNotFound
	}
	if a.ArchivePath != "" {
		return false, nil
	}
	a.ArchivePath = archivePath
	return true, nil
}

func (repo *assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, s := range repo.db.submissions {
		if s.AssignmentID == sub.AssignmentID && s.UserID == sub.UserID {
			return assignment.Submission{}, assignment.ErrSubmissionExists
		}
	}
	sub.ID = uuid.New().String()
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *assignmentRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return *s, nil
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) GetSubmissionForUser(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, s := range repo.db.submissions {
		if s.AssignmentID == assignmentID && s.UserID == userID {
			return *s, nil
		}
	}
	return assignment.Submission{}, assignment.ErrSubmissionNotFound
}

func (repo *assignmentRepository) UpdateSubmissionMemo(ctx context.Context, id, memo string, exec ...core.DBExecutor) (assignment.Submission, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s, ok := repo.db.submissions[id]
	if !ok {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	s.Memo = memo
	s.UpdatedAt = time.Now().UTC()
	return *s, nil
}

func (repo *assignmentRepository) UpsertFile(ctx context.Context, f assignment.UploadedFile, exec ...core.DBExecutor) (assignment.UploadedFile, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.files {
		if existing.SubmissionID == f.SubmissionID && existing.Path == f.Path {
			existing.Filename = f.Filename
			existing.Size = f.Size
			existing.CreatedAt = f.CreatedAt
			return *existing, nil
		}
	}
	f.ID = uuid.New().String()
	repo.db.files[f.ID] = &f
	return f, nil
}

func (repo *assignmentRepository) GetFile(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.UploadedFile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if f, ok := repo.db.files[id]; ok {
		return *f, nil
	}
	return assignment.UploadedFile{}, assignment.ErrFileNotFound
}

func (repo *assignmentRepository) QueryFiles(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]assignment.UploadedFile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var files []assignment.UploadedFile
	for _, f := range repo.db.files {
		if f.SubmissionID == submissionID {
			files = append(files, *f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (repo *assignmentRepository) QueryAssignmentFiles(ctx context.Context, assignmentID string, exec ...core.DBExecutor) ([]assignment.UploadedFile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var files []assignment.UploadedFile
	for _, f := range repo.db.files {
		s, ok := repo.db.submissions[f.SubmissionID]
		if !ok || s.AssignmentID != assignmentID {
			continue
		}
		file := *f
		if u, found := repo.db.users[s.UserID]; found {
			file.StudentUsername = u.Username
		}
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].StudentUsername != files[j].StudentUsername {
			return files[i].StudentUsername < files[j].StudentUsername
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func (repo *assignmentRepository) DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.files[id]; !ok {
		return assignment.ErrFileNotFound
	}
	delete(repo.db.files, id)
	return nil
}

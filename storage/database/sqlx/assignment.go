package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
)

type assignmentRow struct {
	ID           string    `db:"id"`
	CourseworkID string    `db:"coursework_id"`
	Title        string    `db:"title"`
	Deadline     time.Time `db:"deadline"`
	ArchivePath  string    `db:"archive_path"`
	CreatedAt    null.Time `db:"created_at"`
}

func (r assignmentRow) unpack() assignment.Assignment {
	return assignment.Assignment{
		ID:           r.ID,
		CourseworkID: r.CourseworkID,
		Title:        r.Title,
		Deadline:     r.Deadline,
		ArchivePath:  r.ArchivePath,
		CreatedAt:    r.CreatedAt.Time,
	}
}

type submissionRow struct {
	ID           string    `db:"id"`
	AssignmentID string    `db:"assignment_id"`
	UserID       string    `db:"user_id"`
	Memo         string    `db:"memo"`
	CreatedAt    null.Time `db:"created_at"`
	UpdatedAt    null.Time `db:"updated_at"`
}

func (r submissionRow) unpack() assignment.Submission {
	return assignment.Submission{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		UserID:       r.UserID,
		Memo:         r.Memo,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
	}
}

type uploadedFileRow struct {
	ID              string      `db:"id"`
	SubmissionID    string      `db:"submission_id"`
	Filename        string      `db:"filename"`
	Path            string      `db:"path"`
	Size            int64       `db:"size"`
	CreatedAt       null.Time   `db:"created_at"`
	StudentUsername null.String `db:"student_username"`
}

func (r uploadedFileRow) unpack() assignment.UploadedFile {
	return assignment.UploadedFile{
		ID:              r.ID,
		SubmissionID:    r.SubmissionID,
		Filename:        r.Filename,
		Path:            r.Path,
		Size:            r.Size,
		CreatedAt:       r.CreatedAt.Time,
		StudentUsername: r.StudentUsername.String,
	}
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	a.ID = uuid.New().String()
	const query = `
INSERT INTO assignment (id, coursework_id, title, deadline, archive_path, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		a.ID, a.CourseworkID, a.Title, a.Deadline.UTC(), a.ArchivePath, a.CreatedAt.UTC())
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM assignment WHERE id = $1`, id); err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "finding assignment")
	}
	return row.unpack(), nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	query := `SELECT * FROM assignment WHERE coursework_id = $1` +
		orderBy(core.DBOrdering{Field: "deadline", Ascending: true})
	if err := repo.db.SelectContext(ctx, &rows, query, courseworkID); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	as := make([]assignment.Assignment, 0, len(rows))
	for _, r := range rows {
		as = append(as, r.unpack())
	}
	return as, nil
}

func (repo assignmentRepository) SetAssignmentArchive(ctx context.Context, assignmentID, archivePath string, exec ...core.DBExecutor) (bool, error) {
	const query = `UPDATE assignment SET archive_path = $2 WHERE id = $1 AND archive_path = ''`
	res, err := getExec(repo.db, exec).ExecContext(ctx, query, assignmentID, archivePath)
	if err != nil {
		return false, errors.Wrap(err, "attaching archive")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "attaching archive")
	}
	return n > 0, nil
}

func (repo assignmentRepository) CreateSubmission(ctx context.Context, sub assignment.Submission, exec ...core.DBExecutor) (assignment.Submission, error) {
	sub.ID = uuid.New().String()
	const query = `
INSERT INTO submission (id, assignment_id, user_id, memo, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query,
		sub.ID, sub.AssignmentID, sub.UserID, sub.Memo, sub.CreatedAt.UTC(), sub.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return assignment.Submission{}, assignment.ErrSubmissionExists
		}
		return assignment.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Submission, error) {
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM submission WHERE id = $1`, id); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission")
	}
	return row.unpack(), nil
}

func (repo assignmentRepository) GetSubmissionForUser(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) (assignment.Submission, error) {
	var row submissionRow
	const query = `SELECT * FROM submission WHERE assignment_id = $1 AND user_id = $2`
	if err := repo.db.GetContext(ctx, &row, query, assignmentID, userID); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "finding submission")
	}
	return row.unpack(), nil
}

func (repo assignmentRepository) UpdateSubmissionMemo(ctx context.Context, id, memo string, exec ...core.DBExecutor) (assignment.Submission, error) {
	const query = `UPDATE submission SET memo = $2, updated_at = $3 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, query, id, memo, time.Now().UTC())
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "updating memo")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assignment.Submission{}, assignment.ErrSubmissionNotFound
	}
	return repo.GetSubmission(ctx, id, exec...)
}

func (repo assignmentRepository) UpsertFile(ctx context.Context, f assignment.UploadedFile, exec ...core.DBExecutor) (assignment.UploadedFile, error) {
	f.ID = uuid.New().String()
	const query = `
INSERT INTO uploaded_file (id, submission_id, filename, path, size, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (submission_id, path) DO UPDATE
SET filename = EXCLUDED.filename, size = EXCLUDED.size, created_at = EXCLUDED.created_at
RETURNING id`
	row := getExec(repo.db, exec).QueryRowContext(ctx, query,
		f.ID, f.SubmissionID, f.Filename, f.Path, f.Size, f.CreatedAt.UTC())
	if err := row.Scan(&f.ID); err != nil {
		return assignment.UploadedFile{}, errors.Wrap(err, "upserting file")
	}
	return f, nil
}

func (repo assignmentRepository) GetFile(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.UploadedFile, error) {
	var row uploadedFileRow
	const query = `SELECT *, NULL AS student_username FROM uploaded_file WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		return assignment.UploadedFile{}, trapNoRowsErr(err, assignment.ErrFileNotFound, "finding file")
	}
	return row.unpack(), nil
}

func (repo assignmentRepository) QueryFiles(ctx context.Context, submissionID string, exec ...core.DBExecutor) ([]assignment.UploadedFile, error) {
	var rows []uploadedFileRow
	const query = `SELECT *, NULL AS student_username FROM uploaded_file WHERE submission_id = $1 ORDER BY path`
	if err := repo.db.SelectContext(ctx, &rows, query, submissionID); err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	files := make([]assignment.UploadedFile, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.unpack())
	}
	return files, nil
}

func (repo assignmentRepository) QueryAssignmentFiles(ctx context.Context, assignmentID string, exec ...core.DBExecutor) ([]assignment.UploadedFile, error) {
	// bundle entries depend on this ordering
	query := `
SELECT f.*, u.username AS student_username
FROM uploaded_file f
JOIN submission s ON s.id = f.submission_id
JOIN "user" u ON u.id = s.user_id
WHERE s.assignment_id = $1` +
		orderBy(
			core.DBOrdering{Field: "u.username", Ascending: true},
			core.DBOrdering{Field: "f.path", Ascending: true},
		)
	var rows []uploadedFileRow
	if err := repo.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, errors.Wrap(err, "querying assignment files")
	}
	files := make([]assignment.UploadedFile, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.unpack())
	}
	return files, nil
}

func (repo assignmentRepository) DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM uploaded_file WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting file")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return assignment.ErrFileNotFound
	}
	return nil
}

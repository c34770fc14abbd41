package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
)

type courseworkRow struct {
	ID         string    `db:"id"`
	CourseID   string    `db:"course_id"`
	CourseName string    `db:"course_name"`
	CreatedAt  null.Time `db:"created_at"`
}

func (r courseworkRow) unpack() course.Coursework {
	return course.Coursework{
		ID:         r.ID,
		CourseID:   r.CourseID,
		CourseName: r.CourseName,
		CreatedAt:  r.CreatedAt.Time,
	}
}

type joinRequestRow struct {
	ID           string    `db:"id"`
	CourseworkID string    `db:"coursework_id"`
	UserID       string    `db:"user_id"`
	Username     string    `db:"username"`
	CreatedAt    null.Time `db:"created_at"`
}

func (r joinRequestRow) unpack() course.JoinRequest {
	return course.JoinRequest{
		ID:           r.ID,
		CourseworkID: r.CourseworkID,
		UserID:       r.UserID,
		Username:     r.Username,
		CreatedAt:    r.CreatedAt.Time,
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

const selectCourseworkQuery = `
SELECT cw.id, cw.course_id, c.name AS course_name, cw.created_at
FROM coursework cw
JOIN course c ON c.id = cw.course_id`

func (repo courseRepository) CreateCoursework(ctx context.Context, cw course.Coursework, creatorID string, exec ...core.DBExecutor) (course.Coursework, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return course.Coursework{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// reuse the course if a previous coursework cycle created it
	var courseID string
	err = tx.GetContext(ctx, &courseID, `SELECT id FROM course WHERE name = $1`, cw.CourseName)
	switch {
	case err == nil:
	case errors.Cause(err) == sql.ErrNoRows:
		courseID = uuid.New().String()
		_, err = tx.ExecContext(ctx, `INSERT INTO course (id, name, created_at) VALUES ($1, $2, $3)`,
			courseID, cw.CourseName, cw.CreatedAt.UTC())
		if err != nil {
			return course.Coursework{}, errors.Wrap(err, "inserting course")
		}
	default:
		return course.Coursework{}, errors.Wrap(err, "finding course")
	}

	cw.ID = uuid.New().String()
	cw.CourseID = courseID
	_, err = tx.ExecContext(ctx, `INSERT INTO coursework (id, course_id, created_at) VALUES ($1, $2, $3)`,
		cw.ID, cw.CourseID, cw.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return course.Coursework{}, course.ErrCourseworkExists
		}
		return course.Coursework{}, errors.Wrap(err, "inserting coursework")
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO coursework_member (coursework_id, user_id, created_at) VALUES ($1, $2, $3)`,
		cw.ID, creatorID, cw.CreatedAt.UTC())
	if err != nil {
		return course.Coursework{}, errors.Wrap(err, "enrolling creator")
	}

	if err = tx.Commit(); err != nil {
		return course.Coursework{}, errors.Wrap(err, "committing coursework")
	}
	return cw, nil
}

func (repo courseRepository) GetCoursework(ctx context.Context, id string, exec ...core.DBExecutor) (course.Coursework, error) {
	var row courseworkRow
	if err := repo.db.GetContext(ctx, &row, selectCourseworkQuery+` WHERE cw.id = $1`, id); err != nil {
		return course.Coursework{}, trapNoRowsErr(err, course.ErrNotFound, "finding coursework")
	}
	return row.unpack(), nil
}

func (repo courseRepository) QueryCourseworks(ctx context.Context, exec ...core.DBExecutor) ([]course.Coursework, error) {
	var rows []courseworkRow
	if err := repo.db.SelectContext(ctx, &rows, selectCourseworkQuery+` ORDER BY c.name`); err != nil {
		return nil, errors.Wrap(err, "querying courseworks")
	}
	cws := make([]course.Coursework, 0, len(rows))
	for _, r := range rows {
		cws = append(cws, r.unpack())
	}
	return cws, nil
}

func (repo courseRepository) AddMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error {
	const query = `
INSERT INTO coursework_member (coursework_id, user_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (coursework_id, user_id) DO NOTHING`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, query, courseworkID, userID); err != nil {
		return errors.Wrap(err, "adding member")
	}
	return nil
}

func (repo courseRepository) IsMember(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM coursework_member WHERE coursework_id = $1 AND user_id = $2)`
	if err := repo.db.GetContext(ctx, &exists, query, courseworkID, userID); err != nil {
		return false, errors.Wrap(err, "checking membership")
	}
	return exists, nil
}

func (repo courseRepository) QueryMembers(ctx context.Context, courseworkID string, exec ...core.DBExecutor) ([]user.User, error) {
	query := `
SELECT u.* FROM "user" u
JOIN coursework_member m ON m.user_id = u.id
WHERE m.coursework_id = $1` +
		orderBy(core.DBOrdering{Field: "u.username", Ascending: true})
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, courseworkID); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	members := make([]user.User, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.unpack())
	}
	return members, nil
}

const selectJoinRequestQuery = `
SELECT r.id, r.coursework_id, r.user_id, u.username, r.created_at
FROM join_request r
JOIN "user" u ON u.id = r.user_id`

func (repo courseRepository) CreateJoinRequest(ctx context.Context, req course.JoinRequest, exec ...core.DBExecutor) (course.JoinRequest, error) {
	req.ID = uuid.New().String()
	const query = `INSERT INTO join_request (id, coursework_id, user_id, created_at) VALUES ($1, $2, $3, $4)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, query, req.ID, req.CourseworkID, req.UserID, req.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return course.JoinRequest{}, course.ErrRequestExists
		}
		return course.JoinRequest{}, errors.Wrap(err, "inserting join request")
	}
	return req, nil
}

func (repo courseRepository) GetJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) (course.JoinRequest, error) {
	var row joinRequestRow
	if err := repo.db.GetContext(ctx, &row, selectJoinRequestQuery+` WHERE r.id = $1`, id); err != nil {
		return course.JoinRequest{}, trapNoRowsErr(err, course.ErrRequestNotFound, "finding join request")
	}
	return row.unpack(), nil
}

func (repo courseRepository) DeleteJoinRequest(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM join_request WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting join request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return course.ErrRequestNotFound
	}
	return nil
}

func (repo courseRepository) DeleteJoinRequestForUser(ctx context.Context, courseworkID, userID string, exec ...core.DBExecutor) error {
	const query = `DELETE FROM join_request WHERE coursework_id = $1 AND user_id = $2`
	if _, err := getExec(repo.db, exec).ExecContext(ctx, query, courseworkID, userID); err != nil {
		return errors.Wrap(err, "deleting join request")
	}
	return nil
}

func (repo courseRepository) QueryJoinRequests(ctx context.Context, exec ...core.DBExecutor) ([]course.JoinRequest, error) {
	var rows []joinRequestRow
	ordering := orderBy(core.DBOrdering{Field: "r.created_at", Ascending: true})
	if err := repo.db.SelectContext(ctx, &rows, selectJoinRequestQuery+ordering); err != nil {
		return nil, errors.Wrap(err, "querying join requests")
	}
	reqs := make([]course.JoinRequest, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.unpack())
	}
	return reqs, nil
}

func (repo courseRepository) CountJoinRequests(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var count int
	if err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM join_request`); err != nil {
		return 0, errors.Wrap(err, "counting join requests")
	}
	return count, nil
}

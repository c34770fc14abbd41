package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/itdsea/coursework/core/roster"
)

type rosterRow struct {
	StudentID string      `db:"student_id"`
	FirstName null.String `db:"first_name"`
	LastName  null.String `db:"last_name"`
}

func (r rosterRow) unpack() roster.Entry {
	return roster.Entry{
		StudentID: r.StudentID,
		FirstName: r.FirstName.String,
		LastName:  r.LastName.String,
	}
}

type rosterRepository struct {
	db *sqlx.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

func (repo rosterRepository) GetEntry(ctx context.Context, studentID string) (roster.Entry, error) {
	var row rosterRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM roster_entry WHERE student_id = $1`, studentID)
	if err != nil {
		return roster.Entry{}, trapNoRowsErr(err, roster.ErrNotFound, "finding roster entry")
	}
	return row.unpack(), nil
}

// CreateEntries inserts the entries, skipping student ids already present.
// Returns the number actually inserted.
func (repo rosterRepository) CreateEntries(ctx context.Context, entries []roster.Entry) (int, error) {
	const query = `
INSERT INTO roster_entry (student_id, first_name, last_name)
VALUES ($1, $2, $3)
ON CONFLICT (student_id) DO NOTHING`

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning transaction")
	}

	var count int
	for _, e := range entries {
		res, err := tx.ExecContext(ctx, query, e.StudentID,
			null.NewString(e.FirstName, e.FirstName != ""),
			null.NewString(e.LastName, e.LastName != ""),
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrap(err, "inserting roster entry")
		}
		if n, _ := res.RowsAffected(); n > 0 {
			count++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing roster entries")
	}
	return count, nil
}

func (repo rosterRepository) QueryEntries(ctx context.Context) ([]roster.Entry, error) {
	var rows []rosterRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM roster_entry ORDER BY student_id`); err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	entries := make([]roster.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.unpack())
	}
	return entries, nil
}

package roster

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Lookup(ctx context.Context, studentID string) (Entry, error) {
	return svc.repo.GetEntry(ctx, core.CleanString(studentID))
}

func (svc *Service) QueryAll(ctx context.Context) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx)
}

// LoadCSV reads `student_id,first_name,last_name` records and stores them.
// Existing entries are kept as-is; the roster is append-only reference data.
func (svc *Service) LoadCSV(ctx context.Context, r io.Reader) (int, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = 3
	rdr.TrimLeadingSpace = true

	var entries []Entry
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrap(err, "reading roster csv")
		}
		entries = append(entries, Entry{
			StudentID: core.CleanString(rec[0]),
			FirstName: core.CleanString(rec[1]),
			LastName:  core.CleanString(rec[2]),
		})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return svc.repo.CreateEntries(ctx, entries)
}

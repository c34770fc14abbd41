package inmemdb

import (
	"context"
	"sort"

	"github.com/itdsea/coursework/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) *rosterRepository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) GetEntry(ctx context.Context, studentID string) (roster.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.db.roster[studentID]; ok {
		return e, nil
	}
	return roster.Entry{}, roster.ErrNotFound
}

func (repo *rosterRepository) CreateEntries(ctx context.Context, entries []roster.Entry) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, e := range entries {
		if _, ok := repo.db.roster[e.StudentID]; ok {
			continue
		}
		repo.db.roster[e.StudentID] = e
		count++
	}
	return count, nil
}

func (repo *rosterRepository) QueryEntries(ctx context.Context) ([]roster.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]roster.Entry, 0, len(repo.db.roster))
	for _, e := range repo.db.roster {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].StudentID < entries[j].StudentID })
	return entries, nil
}

package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

type timetableRepository struct {
	db *timetableTable
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *DB) timetable.Repository {
	return &timetableRepository{db: db.timetable}
}

func copyEntry(e timetable.Entry) timetable.Entry {
	e.Equipment = copyStrings(e.Equipment)
	return e
}

// insert must be called with the write lock held.
func (repo *timetableRepository) insert(e timetable.Entry) timetable.Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	repo.db.rows = append(repo.db.rows, copyEntry(e))
	return e
}

func (repo *timetableRepository) CreateEntries(_ context.Context, entries ...timetable.Entry) ([]timetable.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	created := make([]timetable.Entry, 0, len(entries))
	for _, e := range entries {
		created = append(created, repo.insert(e))
	}
	return created, nil
}

func (repo *timetableRepository) BookSlot(_ context.Context, entry timetable.Entry) (timetable.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	slot := entry.Slot()
	for _, e := range repo.db.rows {
		if e.Slot() == slot {
			return timetable.Entry{}, timetable.ErrSlotTaken
		}
	}
	return repo.insert(entry), nil
}

func (repo *timetableRepository) QueryEntries(_ context.Context, filter timetable.QueryFilter) ([]timetable.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]timetable.Entry, 0)
	for _, e := range repo.db.rows {
		if filter.Match(e) {
			entries = append(entries, copyEntry(e))
		}
	}
	return entries, nil
}

func (repo *timetableRepository) UpdateEntriesTeacher(_ context.Context, ids []string, teacher string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int
	for i := range repo.db.rows {
		if core.StringInSlice(repo.db.rows[i].ID, ids) {
			repo.db.rows[i].Teacher = teacher
			count++
		}
	}
	return count, nil
}

func (repo *timetableRepository) DeleteEntriesByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	kept := repo.db.rows[:0]
	for _, e := range repo.db.rows {
		if !core.StringInSlice(e.ID, ids) {
			kept = append(kept, e)
		}
	}
	repo.db.rows = kept
	return nil
}

func (repo *timetableRepository) CountEntries(_ context.Context) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.rows), nil
}

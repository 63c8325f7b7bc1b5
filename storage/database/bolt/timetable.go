package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
)

type timetableRepository struct {
	db *bbolt.DB
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *DB) timetable.Repository {
	return &timetableRepository{db: db.db}
}

func insertEntry(b *bbolt.Bucket, e timetable.Entry) (timetable.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	key, err := nextKey(b)
	if err != nil {
		return timetable.Entry{}, err
	}
	return e, put(b, key, e)
}

func (repo *timetableRepository) CreateEntries(_ context.Context, entries ...timetable.Entry) ([]timetable.Entry, error) {
	created := make([]timetable.Entry, 0, len(entries))
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(timetableBucket)
		for _, e := range entries {
			e, err := insertEntry(b, e)
			if err != nil {
				return err
			}
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating entries")
	}
	return created, nil
}

// BookSlot checks and inserts in the same read-write transaction; bbolt runs one at a time.
func (repo *timetableRepository) BookSlot(_ context.Context, entry timetable.Entry) (timetable.Entry, error) {
	slot := entry.Slot()
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(timetableBucket)
		err := forEach(b, func(_ []byte, e timetable.Entry) error {
			if e.Slot() == slot {
				return timetable.ErrSlotTaken
			}
			return nil
		})
		if err != nil {
			return err
		}
		entry, err = insertEntry(b, entry)
		return err
	})
	if err != nil {
		return timetable.Entry{}, err
	}
	return entry, nil
}

func (repo *timetableRepository) QueryEntries(_ context.Context, filter timetable.QueryFilter) ([]timetable.Entry, error) {
	entries := make([]timetable.Entry, 0)
	err := repo.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(timetableBucket), func(_ []byte, e timetable.Entry) error {
			if filter.Match(e) {
				entries = append(entries, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}
	return entries, nil
}

func (repo *timetableRepository) UpdateEntriesTeacher(_ context.Context, ids []string, teacher string) (int, error) {
	var count int
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(timetableBucket)
		updates := make(map[string]timetable.Entry)
		err := forEach(b, func(k []byte, e timetable.Entry) error {
			if core.StringInSlice(e.ID, ids) {
				e.Teacher = teacher
				updates[string(k)] = e
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids mutating a bucket while iterating over it
		for k, e := range updates {
			if err := put(b, []byte(k), e); err != nil {
				return err
			}
		}
		count = len(updates)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "updating entries")
	}
	return count, nil
}

func (repo *timetableRepository) DeleteEntriesByID(_ context.Context, ids ...string) error {
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(timetableBucket)
		keys := make([][]byte, 0, len(ids))
		err := forEach(b, func(k []byte, e timetable.Entry) error {
			if core.StringInSlice(e.ID, ids) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "deleting entries")
}

func (repo *timetableRepository) CountEntries(_ context.Context) (int, error) {
	var count int
	err := repo.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(timetableBucket).Stats().KeyN
		return nil
	})
	return count, err
}

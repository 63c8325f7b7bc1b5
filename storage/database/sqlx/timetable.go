package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/timetable"
)

const (
	entryColumns = `id, day, period, subject, teacher, classroom, event_date, duration, description, equipment, booked_by, created_at`

	insertEntryQuery = `INSERT INTO timetable_entry (` + entryColumns + `) VALUES (
		:id, :day, :period, :subject, :teacher, :classroom, :event_date, :duration, :description,
		:equipment, :booked_by, :created_at)`
)

type entryRow struct {
	ID          string         `db:"id"`
	Day         string         `db:"day"`
	Period      string         `db:"period"`
	Subject     string         `db:"subject"`
	Teacher     string         `db:"teacher"`
	Classroom   string         `db:"classroom"`
	EventDate   null.String    `db:"event_date"`
	Duration    null.String    `db:"duration"`
	Description null.String    `db:"description"`
	Equipment   pq.StringArray `db:"equipment"`
	BookedBy    null.String    `db:"booked_by"`
	CreatedAt   time.Time      `db:"created_at"`
}

func newEntryRow(e timetable.Entry) entryRow {
	equipment := e.Equipment
	if equipment == nil {
		equipment = []string{}
	}
	return entryRow{
		ID:          e.ID,
		Day:         e.Day,
		Period:      e.Period,
		Subject:     e.Subject,
		Teacher:     e.Teacher,
		Classroom:   e.Classroom,
		EventDate:   null.NewString(e.EventDate, e.EventDate != ""),
		Duration:    null.NewString(e.Duration, e.Duration != ""),
		Description: null.NewString(e.Description, e.Description != ""),
		Equipment:   equipment,
		BookedBy:    null.NewString(e.BookedBy, e.BookedBy != ""),
		CreatedAt:   e.CreatedAt.UTC(),
	}
}

func (r entryRow) toEntry() timetable.Entry {
	e := timetable.Entry{
		ID:          r.ID,
		Day:         r.Day,
		Period:      r.Period,
		Subject:     r.Subject,
		Teacher:     r.Teacher,
		Classroom:   r.Classroom,
		EventDate:   r.EventDate.String,
		Duration:    r.Duration.String,
		Description: r.Description.String,
		BookedBy:    r.BookedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if len(r.Equipment) > 0 {
		e.Equipment = []string(r.Equipment)
	}
	return e
}

type timetableRepository struct {
	db *sqlx.DB
}

var _ timetable.Repository = (*timetableRepository)(nil)

func NewTimetableRepository(db *sqlx.DB) timetable.Repository {
	return &timetableRepository{db: db}
}

func (repo *timetableRepository) CreateEntries(ctx context.Context, entries ...timetable.Entry) ([]timetable.Entry, error) {
	if len(entries) == 0 {
		return []timetable.Entry{}, nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	created := make([]timetable.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, insertEntryQuery, newEntryRow(e)); err != nil {
			return nil, errors.Wrap(err, "inserting entry")
		}
		created = append(created, e)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing entries")
	}
	return created, nil
}

// BookSlot serialises bookings of the same slot with a transaction-scoped advisory lock,
// so that the existence check and the insert cannot interleave.
func (repo *timetableRepository) BookSlot(ctx context.Context, entry timetable.Entry) (timetable.Entry, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return timetable.Entry{}, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	slot := entry.Slot()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slot.Key()); err != nil {
		return timetable.Entry{}, errors.Wrap(err, "locking slot")
	}

	var taken bool
	err = tx.GetContext(
		ctx, &taken,
		`SELECT EXISTS (SELECT 1 FROM timetable_entry WHERE classroom = $1 AND day = $2 AND period = $3)`,
		slot.Classroom, slot.Day, slot.Period,
	)
	if err != nil {
		return timetable.Entry{}, errors.Wrap(err, "checking slot")
	}
	if taken {
		return timetable.Entry{}, timetable.ErrSlotTaken
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if _, err := tx.NamedExecContext(ctx, insertEntryQuery, newEntryRow(entry)); err != nil {
		return timetable.Entry{}, errors.Wrap(err, "inserting entry")
	}
	if err := tx.Commit(); err != nil {
		return timetable.Entry{}, errors.Wrap(err, "committing booking")
	}
	return entry, nil
}

func (repo *timetableRepository) QueryEntries(ctx context.Context, filter timetable.QueryFilter) ([]timetable.Entry, error) {
	var w where
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?::uuid[])", pq.Array(validUUIDs(filter.IDs)))
	}
	if filter.Day != "" {
		w.add("day = ?", filter.Day)
	}
	if filter.Period != "" {
		w.add("period = ?", filter.Period)
	}
	if filter.Classroom != "" {
		w.add("classroom = ?", filter.Classroom)
	}
	if filter.Teacher != "" {
		w.add("teacher = ?", filter.Teacher)
	}

	q := repo.db.Rebind(`SELECT ` + entryColumns + ` FROM timetable_entry` + w.String() + ` ORDER BY seq`)
	var rows []entryRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}

	entries := make([]timetable.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (repo *timetableRepository) UpdateEntriesTeacher(ctx context.Context, ids []string, teacher string) (int, error) {
	res, err := repo.db.ExecContext(
		ctx,
		`UPDATE timetable_entry SET teacher = $1 WHERE id = ANY($2::uuid[])`,
		teacher, pq.Array(validUUIDs(ids)),
	)
	if err != nil {
		return 0, errors.Wrap(err, "updating entries teacher")
	}
	return rowsAffected(res)
}

func (repo *timetableRepository) DeleteEntriesByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM timetable_entry WHERE id = ANY($1::uuid[])`, pq.Array(validUUIDs(ids))); err != nil {
		return errors.Wrap(err, "deleting entries")
	}
	return nil
}

func (repo *timetableRepository) CountEntries(ctx context.Context) (int, error) {
	var count int
	if err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM timetable_entry`); err != nil {
		return 0, errors.Wrap(err, "counting entries")
	}
	return count, nil
}

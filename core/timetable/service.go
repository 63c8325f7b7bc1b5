package timetable

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var (
	// errors
	ErrNotFound  = errors.New("timetable entry not found")
	ErrSlotTaken = errors.New("this classroom is already booked at this time")

	// demo timetable
	DemoDays       = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	DemoPeriods    = []string{"08:00", "10:00", "12:00", "14:00", "16:00"}
	DemoSubjects   = []string{"Mathematics", "Physics", "Chemistry", "Biology", "English", "History", "Geography", "Computer Science"}
	DemoClassrooms = []string{"Room 1", "Room 2", "Room 3", "Room 4", "Room 5", "Room 6", "Room 7", "Room 8", "Room 9", "Room 10"}
	demoSeed       int64 = 20210110
)

type (
	Repository interface {
		// CreateEntries stores entries as they are, double bookings included.
		CreateEntries(ctx context.Context, entries ...Entry) ([]Entry, error)
		// BookSlot atomically stores the entry unless its Slot is already taken,
		// in which case ErrSlotTaken is returned.
		BookSlot(ctx context.Context, entry Entry) (Entry, error)
		// QueryEntries returns the matching entries in the order they were stored.
		QueryEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
		UpdateEntriesTeacher(ctx context.Context, ids []string, teacher string) (int, error)
		DeleteEntriesByID(ctx context.Context, ids ...string) error
		CountEntries(ctx context.Context) (int, error)
	}

	Service struct {
		repo               Repository
		validate           *validator.Validate
		allowDoubleBooking bool
	}
)

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:               repo,
		validate:           validate,
		allowDoubleBooking: conf.Timetable.AllowDoubleBooking,
	}
}

// Availability returns the periods at which classroom is taken on the weekday of date.
// An unknown classroom or a malformed date yields no unavailable slots.
func (svc *Service) Availability(ctx context.Context, classroom, date string) (Availability, error) {
	avail := Availability{
		Classroom:        classroom,
		Date:             date,
		Day:              WeekdayOf(date),
		UnavailableSlots: []string{},
	}
	if classroom == "" || avail.Day == "" {
		return avail, nil
	}

	entries, err := svc.repo.QueryEntries(ctx, QueryFilter{Classroom: classroom, Day: avail.Day})
	if err != nil {
		return Availability{}, errors.Wrap(err, "querying entries")
	}
	for _, e := range entries {
		avail.UnavailableSlots = append(avail.UnavailableSlots, e.Period)
	}
	return avail, nil
}

// Book records a classroom booking. Nothing is written when a required field is blank.
func (svc *Service) Book(ctx context.Context, nb NewBooking, bookedBy string) (Entry, error) {
	if err := nb.Validate(svc.validate); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Day:         WeekdayOf(nb.EventDate),
		Period:      nb.TimeSlot,
		Subject:     nb.EventTitle,
		Teacher:     nb.Classroom.Type,
		Classroom:   nb.Classroom.Name,
		EventDate:   nb.EventDate,
		Duration:    string(nb.Duration),
		Description: nb.Description,
		Equipment:   nb.Equipment,
		BookedBy:    bookedBy,
		CreatedAt:   time.Now().UTC(),
	}

	if svc.allowDoubleBooking {
		entries, err := svc.repo.CreateEntries(ctx, entry)
		if err != nil {
			return Entry{}, errors.Wrap(err, "creating entry")
		}
		return entries[0], nil
	}
	return svc.repo.BookSlot(ctx, entry)
}

// Create adds a lesson to the timetable. Lessons are planned by admins and may share a slot.
func (svc *Service) Create(ctx context.Context, ne NewEntry) (Entry, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return Entry{}, err
	}
	entries, err := svc.repo.CreateEntries(ctx, Entry{
		Day:       ne.Day,
		Period:    ne.Period,
		Subject:   ne.Subject,
		Teacher:   ne.Teacher,
		Classroom: ne.Classroom,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Entry{}, errors.Wrap(err, "creating entry")
	}
	return entries[0], nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Entry, error) {
	entries, err := svc.repo.QueryEntries(ctx, QueryFilter{IDs: []string{id}})
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Schedule returns the lessons held on the weekday of date, by period.
func (svc *Service) Schedule(ctx context.Context, date string) ([]Entry, error) {
	day := WeekdayOf(date)
	if day == "" {
		return []Entry{}, nil
	}
	entries, err := svc.repo.QueryEntries(ctx, QueryFilter{Day: day})
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Period < entries[j].Period })
	return entries, nil
}

// TeacherLessons returns a teacher's lessons on a weekday, by period.
func (svc *Service) TeacherLessons(ctx context.Context, teacher, day string) ([]Entry, error) {
	if teacher == "" {
		return []Entry{}, nil
	}
	entries, err := svc.repo.QueryEntries(ctx, QueryFilter{Teacher: teacher, Day: day})
	if err != nil {
		return nil, errors.Wrap(err, "querying entries")
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Period < entries[j].Period })
	return entries, nil
}

// Reassign hands lessons over to a substitute teacher.
func (svc *Service) Reassign(ctx context.Context, ids []string, substitute string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return svc.repo.UpdateEntriesTeacher(ctx, ids, substitute)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteEntriesByID(ctx, ids...)
}

// SeedDemo fills an empty timetable with one lesson per day and period,
// with subjects, teachers and classrooms drawn from a fixed-seed generator.
func (svc *Service) SeedDemo(ctx context.Context, teachers []string) (int, error) {
	if len(teachers) == 0 {
		return 0, nil
	}
	count, err := svc.repo.CountEntries(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "counting entries")
	}
	if count > 0 {
		return 0, nil
	}

	rnd := rand.New(rand.NewSource(demoSeed))
	now := time.Now().UTC()
	entries := make([]Entry, 0, len(DemoDays)*len(DemoPeriods))
	for _, day := range DemoDays {
		for _, period := range DemoPeriods {
			entries = append(entries, Entry{
				Day:       day,
				Period:    period,
				Subject:   DemoSubjects[rnd.Intn(len(DemoSubjects))],
				Teacher:   teachers[rnd.Intn(len(teachers))],
				Classroom: DemoClassrooms[rnd.Intn(len(DemoClassrooms))],
				CreatedAt: now,
			})
		}
	}
	if _, err := svc.repo.CreateEntries(ctx, entries...); err != nil {
		return 0, errors.Wrap(err, "creating demo entries")
	}
	return len(entries), nil
}

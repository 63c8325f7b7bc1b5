package timetable

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
)

// dateLayout is the calendar date format accepted by bookings and availability queries.
const dateLayout = "2006-01-02"

// Entry is one lesson or booking: a classroom taken by a subject and a teacher
// on a weekday at a given period.
type Entry struct {
	ID          string    `json:"id"`
	Day         string    `json:"day"`
	Period      string    `json:"period"`
	Subject     string    `json:"subject"`
	Teacher     string    `json:"teacher"`
	Classroom   string    `json:"classroom"`
	EventDate   string    `json:"event_date,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Description string    `json:"description,omitempty"`
	Equipment   []string  `json:"equipment,omitempty"`
	BookedBy    string    `json:"booked_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e Entry) Slot() Slot {
	return Slot{Day: e.Day, Period: e.Period, Classroom: e.Classroom}
}

// Slot is a schedulable unit. Two entries in the same Slot are a double booking.
type Slot struct {
	Day       string
	Period    string
	Classroom string
}

// Key returns a stable string identifying the slot.
func (s Slot) Key() string {
	return s.Classroom + "|" + s.Day + "|" + s.Period
}

// WeekdayOf maps an ISO date (YYYY-MM-DD) to its weekday name, ie: "Monday".
// A date that cannot be parsed is returned as is.
func WeekdayOf(date string) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.Weekday().String()
}

// Availability lists the periods at which a classroom is taken on a date's weekday.
type Availability struct {
	Classroom        string   `json:"classroom"`
	Date             string   `json:"date"`
	Day              string   `json:"day"`
	UnavailableSlots []string `json:"unavailable_slots"`
}

// FlexString accepts a JSON string or number. A zero number counts as missing.
type FlexString string

func (fs *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*fs = FlexString(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*fs = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if f, err := n.Float64(); err == nil && f == 0 {
		*fs = ""
		return nil
	}
	*fs = FlexString(n.String())
	return nil
}

type BookingClassroom struct {
	Name string `json:"name" validate:"notblank"`
	Type string `json:"type"` // the teacher in charge
}

// NewBooking is a classroom booking request.
type NewBooking struct {
	EventTitle  string           `json:"eventTitle" validate:"notblank"`
	EventDate   string           `json:"eventDate" validate:"notblank"`
	TimeSlot    string           `json:"timeSlot" validate:"notblank"`
	Duration    FlexString       `json:"duration" validate:"notblank"`
	Classroom   BookingClassroom `json:"classroom"`
	Description string           `json:"description"`
	Equipment   []string         `json:"equipment"`
}

func (nb NewBooking) Validate(validate *validator.Validate) error { return validate.Struct(nb) }

// NewEntry contains information needed to add a lesson to the timetable.
type NewEntry struct {
	Day       string `json:"day" validate:"oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	Period    string `json:"period" validate:"notblank"`
	Subject   string `json:"subject" validate:"notblank"`
	Teacher   string `json:"teacher"`
	Classroom string `json:"classroom" validate:"notblank"`
}

func (ne *NewEntry) Validate(validate *validator.Validate) error {
	ne.Day = core.CleanString(ne.Day)
	ne.Period = core.CleanString(ne.Period)
	ne.Subject = core.CleanString(ne.Subject)
	ne.Teacher = core.CleanString(ne.Teacher)
	ne.Classroom = core.CleanString(ne.Classroom)
	return validate.Struct(ne)
}

// Substitution reassigns lessons to a substitute teacher.
type Substitution struct {
	EntryIDs   []string `json:"entry_ids" validate:"required,min=1"`
	Substitute string   `json:"substitute" validate:"notblank"`
}

func (s *Substitution) Validate(validate *validator.Validate) error {
	s.Substitute = core.CleanString(s.Substitute, true /* lower */)
	return validate.Struct(s)
}

// QueryFilter applies an AND operation on its non-empty fields.
type QueryFilter struct {
	IDs       []string `query:"id"`
	Day       string   `query:"day"`
	Period    string   `query:"period"`
	Classroom string   `query:"classroom"`
	Teacher   string   `query:"teacher"`
}

func (qf QueryFilter) Match(e Entry) bool {
	if len(qf.IDs) > 0 && !core.StringInSlice(e.ID, qf.IDs) {
		return false
	}
	if qf.Day != "" && e.Day != qf.Day {
		return false
	}
	if qf.Period != "" && e.Period != qf.Period {
		return false
	}
	if qf.Classroom != "" && e.Classroom != qf.Classroom {
		return false
	}
	if qf.Teacher != "" && e.Teacher != qf.Teacher {
		return false
	}
	return true
}

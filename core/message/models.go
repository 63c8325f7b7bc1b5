package message

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
)

// Message is a direct message between a student and a teacher.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"timestamp"`
}

type NewMessage struct {
	SenderID   string `json:"-" validate:"required"`
	ReceiverID string `json:"receiver_id" validate:"required"`
	Body       string `json:"message" validate:"notblank,max=4000"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

// QueryFilter applies an AND operation on its non-empty fields.
// Participants matches the messages exchanged, both ways, between two users.
type QueryFilter struct {
	IDs          []string
	SenderID     string
	ReceiverID   string
	Participants []string
	UnreadOnly   bool
}

func (qf QueryFilter) Match(msg Message) bool {
	if len(qf.IDs) > 0 && !core.StringInSlice(msg.ID, qf.IDs) {
		return false
	}
	if qf.SenderID != "" && msg.SenderID != qf.SenderID {
		return false
	}
	if qf.ReceiverID != "" && msg.ReceiverID != qf.ReceiverID {
		return false
	}
	if len(qf.Participants) == 2 {
		a, b := qf.Participants[0], qf.Participants[1]
		if !((msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a)) {
			return false
		}
	}
	if qf.UnreadOnly && msg.Read {
		return false
	}
	return true
}

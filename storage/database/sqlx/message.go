package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/message"
)

type messageRow struct {
	ID         string    `db:"id"`
	SenderID   string    `db:"sender_id"`
	ReceiverID string    `db:"receiver_id"`
	Body       string    `db:"body"`
	Read       bool      `db:"read"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r messageRow) toMessage() message.Message {
	return message.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		Read:       r.Read,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

type messageRepository struct {
	db *sqlx.DB
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *sqlx.DB) message.Repository {
	return &messageRepository{db: db}
}

func (repo *messageRepository) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	row := messageRow{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Body:       msg.Body,
		Read:       msg.Read,
		CreatedAt:  msg.CreatedAt.UTC(),
	}
	q := `INSERT INTO message (id, sender_id, receiver_id, body, read, created_at)
		VALUES (:id, :sender_id, :receiver_id, :body, :read, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

// filterWhere returns nil when the filter references an ID that cannot exist.
func filterWhere(filter message.QueryFilter) *where {
	isValid := func(id string) bool {
		_, err := uuid.Parse(id)
		return err == nil
	}

	w := new(where)
	if len(filter.IDs) > 0 {
		w.add("id = ANY(?::uuid[])", pq.Array(validUUIDs(filter.IDs)))
	}
	if filter.SenderID != "" {
		if !isValid(filter.SenderID) {
			return nil
		}
		w.add("sender_id = ?", filter.SenderID)
	}
	if filter.ReceiverID != "" {
		if !isValid(filter.ReceiverID) {
			return nil
		}
		w.add("receiver_id = ?", filter.ReceiverID)
	}
	if len(filter.Participants) == 2 {
		a, b := filter.Participants[0], filter.Participants[1]
		if !isValid(a) || !isValid(b) {
			return nil
		}
		w.add("((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))", a, b, b, a)
	}
	if filter.UnreadOnly {
		w.add("NOT read")
	}
	return w
}

func (repo *messageRepository) QueryMessages(ctx context.Context, filter message.QueryFilter) ([]message.Message, error) {
	w := filterWhere(filter)
	if w == nil {
		return []message.Message{}, nil
	}

	q := repo.db.Rebind(`SELECT id, sender_id, receiver_id, body, read, created_at FROM message` + w.String() + ` ORDER BY seq`)
	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}

	msgs := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

func (repo *messageRepository) MarkMessagesRead(ctx context.Context, filter message.QueryFilter) (int, error) {
	w := filterWhere(filter)
	if w == nil {
		return 0, nil
	}

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE message SET read = TRUE`+w.String()), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return rowsAffected(res)
}

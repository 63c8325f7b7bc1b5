package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core/message"
)

type messageRepository struct {
	db *messageTable
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.message}
}

func (repo *messageRepository) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	repo.db.rows = append(repo.db.rows, msg)
	return msg, nil
}

func (repo *messageRepository) QueryMessages(_ context.Context, filter message.QueryFilter) ([]message.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]message.Message, 0)
	for _, msg := range repo.db.rows {
		if filter.Match(msg) {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (repo *messageRepository) MarkMessagesRead(_ context.Context, filter message.QueryFilter) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int
	for i := range repo.db.rows {
		if filter.Match(repo.db.rows[i]) {
			repo.db.rows[i].Read = true
			count++
		}
	}
	return count, nil
}

package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/ratiba/core/message"
)

type messageRepository struct {
	db *bbolt.DB
}

var _ message.Repository = (*messageRepository)(nil)

func NewMessageRepository(db *DB) message.Repository {
	return &messageRepository{db: db.db}
}

func (repo *messageRepository) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		key, err := nextKey(b)
		if err != nil {
			return err
		}
		return put(b, key, msg)
	})
	if err != nil {
		return message.Message{}, errors.Wrap(err, "creating message")
	}
	return msg, nil
}

func (repo *messageRepository) QueryMessages(_ context.Context, filter message.QueryFilter) ([]message.Message, error) {
	msgs := make([]message.Message, 0)
	err := repo.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(messagesBucket), func(_ []byte, msg message.Message) error {
			if filter.Match(msg) {
				msgs = append(msgs, msg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	return msgs, nil
}

func (repo *messageRepository) MarkMessagesRead(_ context.Context, filter message.QueryFilter) (int, error) {
	var count int
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(messagesBucket)
		updates := make(map[string]message.Message)
		err := forEach(b, func(k []byte, msg message.Message) error {
			if filter.Match(msg) {
				msg.Read = true
				updates[string(k)] = msg
			}
			return nil
		})
		if err != nil {
			return err
		}
		for k, msg := range updates {
			if err := put(b, []byte(k), msg); err != nil {
				return err
			}
		}
		count = len(updates)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return count, nil
}

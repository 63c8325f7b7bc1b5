package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
)

type notificationRepository struct {
	db *bbolt.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, notifs ...notification.Notification) ([]notification.Notification, error) {
	created := make([]notification.Notification, 0, len(notifs))
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(notificationsBucket)
		for _, n := range notifs {
			if n.ID == "" {
				n.ID = uuid.NewString()
			}
			key, err := nextKey(b)
			if err != nil {
				return err
			}
			if err := put(b, key, n); err != nil {
				return err
			}
			created = append(created, n)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	notifs := make([]notification.Notification, 0)
	err := repo.db.View(func(tx *bbolt.Tx) error {
		return forEachReverse(tx.Bucket(notificationsBucket), func(_ []byte, n notification.Notification) error {
			if n.UserID == userID && !(unreadOnly && n.Read) {
				notifs = append(notifs, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifs, nil
}

func (repo *notificationRepository) MarkNotificationsRead(_ context.Context, userID string, ids ...string) (int, error) {
	var count int
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(notificationsBucket)
		updates := make(map[string]notification.Notification)
		err := forEach(b, func(k []byte, n notification.Notification) error {
			if n.UserID == userID && (len(ids) == 0 || core.StringInSlice(n.ID, ids)) {
				n.Read = true
				updates[string(k)] = n
			}
			return nil
		})
		if err != nil {
			return err
		}
		for k, n := range updates {
			if err := put(b, []byte(k), n); err != nil {
				return err
			}
		}
		count = len(updates)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return count, nil
}

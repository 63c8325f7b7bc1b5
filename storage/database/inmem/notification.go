package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, notifs ...notification.Notification) ([]notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	created := make([]notification.Notification, 0, len(notifs))
	for _, n := range notifs {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		repo.db.rows = append(repo.db.rows, n)
		created = append(created, n)
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifs := make([]notification.Notification, 0)
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		n := repo.db.rows[i]
		if n.UserID == userID && !(unreadOnly && n.Read) {
			notifs = append(notifs, n)
		}
	}
	return notifs, nil
}

func (repo *notificationRepository) MarkNotificationsRead(_ context.Context, userID string, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var count int
	for i := range repo.db.rows {
		n := &repo.db.rows[i]
		if n.UserID != userID || (len(ids) > 0 && !core.StringInSlice(n.ID, ids)) {
			continue
		}
		n.Read = true
		count++
	}
	return count, nil
}

package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/notification"
)

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Message   string    `db:"message"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, notifs ...notification.Notification) ([]notification.Notification, error) {
	if len(notifs) == 0 {
		return []notification.Notification{}, nil
	}

	rows := make([]notificationRow, 0, len(notifs))
	for i := range notifs {
		if notifs[i].ID == "" {
			notifs[i].ID = uuid.NewString()
		}
		n := notifs[i]
		rows = append(rows, notificationRow{ID: n.ID, UserID: n.UserID, Message: n.Message, Read: n.Read, CreatedAt: n.CreatedAt.UTC()})
	}

	// sqlx expands a slice argument into a multi-row insert
	q := `INSERT INTO notification (id, user_id, message, read, created_at)
		VALUES (:id, :user_id, :message, :read, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, rows); err != nil {
		return nil, errors.Wrap(err, "inserting notifications")
	}
	return notifs, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notification.Notification, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []notification.Notification{}, nil
	}

	q := `SELECT id, user_id, message, read, created_at FROM notification WHERE user_id = $1`
	if unreadOnly {
		q += ` AND NOT read`
	}
	q += ` ORDER BY seq DESC`

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}

	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, notification.Notification{
			ID:        r.ID,
			UserID:    r.UserID,
			Message:   r.Message,
			Read:      r.Read,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return notifs, nil
}

func (repo *notificationRepository) MarkNotificationsRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return 0, nil
	}

	var w where
	w.add("user_id = ?", userID)
	if len(ids) > 0 {
		w.add("id = ANY(?::uuid[])", pq.Array(validUUIDs(ids)))
	}

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE notification SET read = TRUE`+w.String()), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return rowsAffected(res)
}

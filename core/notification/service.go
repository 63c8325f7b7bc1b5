package notification

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/user"
)

var ErrNotFound = errors.New("notification not found")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, notifs ...Notification) ([]Notification, error)
		// QueryNotifications returns a user's notifications, newest first.
		QueryNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
		// MarkNotificationsRead marks the given notifications of a user as read (all of them if ids is empty)
		// and returns how many matched.
		MarkNotificationsRead(ctx context.Context, userID string, ids ...string) (int, error)
	}

	// Channel delivers a copy of a stored notification out of band (email, chat...).
	// Deliver must not block: slow deliveries belong in their own goroutine.
	Channel interface {
		Deliver(usr user.User, notif Notification)
	}

	Service struct {
		repo     Repository
		channels []Channel
	}
)

func NewService(repo Repository, channels ...Channel) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Service{repo: repo, channels: channels}
}

func (svc *Service) Notify(ctx context.Context, usr user.User, msg string) (Notification, error) {
	notifs, err := svc.NotifyUsers(ctx, []user.User{usr}, msg)
	if err != nil {
		return Notification{}, err
	}
	return notifs[0], nil
}

// NotifyUsers stores one notification per user, then hands them to the delivery channels.
func (svc *Service) NotifyUsers(ctx context.Context, users []user.User, msg string) ([]Notification, error) {
	if len(users) == 0 {
		return []Notification{}, nil
	}

	now := time.Now().UTC()
	notifs := make([]Notification, 0, len(users))
	for _, usr := range users {
		notifs = append(notifs, Notification{UserID: usr.ID, Message: msg, CreatedAt: now})
	}
	notifs, err := svc.repo.CreateNotifications(ctx, notifs...)
	if err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}

	for i, usr := range users {
		for _, ch := range svc.channels {
			ch.Deliver(usr, notifs[i])
		}
	}
	return notifs, nil
}

func (svc *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, userID, unreadOnly)
}

func (svc *Service) MarkRead(ctx context.Context, userID, id string) error {
	count, err := svc.repo.MarkNotificationsRead(ctx, userID, id)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkNotificationsRead(ctx, userID)
}

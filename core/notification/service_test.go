package notification_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/user"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
)

type delivery struct {
	userID  string
	message string
}

type recordingChannel struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (ch *recordingChannel) Deliver(usr user.User, notif notification.Notification) {
	ch.mu.Lock()
	ch.deliveries = append(ch.deliveries, delivery{userID: usr.ID, message: notif.Message})
	ch.mu.Unlock()
}

func TestService(t *testing.T) {
	ctx := context.Background()
	ch := new(recordingChannel)
	svc := notification.NewService(inmemdb.NewNotificationRepository(inmemdb.Open()), ch)

	carol := user.User{ID: "carol"}
	dan := user.User{ID: "dan"}

	notifs, err := svc.NotifyUsers(ctx, nil, "nobody")
	require.NoError(t, err)
	assert.Empty(t, notifs)

	notifs, err = svc.NotifyUsers(ctx, []user.User{carol, dan}, "School closes at noon.")
	require.NoError(t, err)
	require.Len(t, notifs, 2)
	assert.NotEmpty(t, notifs[0].ID)
	assert.NotEqual(t, notifs[0].ID, notifs[1].ID)
	assert.Equal(t, "carol", notifs[0].UserID)
	assert.False(t, notifs[0].Read)

	latest, err := svc.Notify(ctx, carol, "Exam moved to Friday.")
	require.NoError(t, err)

	assert.Equal(t, []delivery{
		{userID: "carol", message: "School closes at noon."},
		{userID: "dan", message: "School closes at noon."},
		{userID: "carol", message: "Exam moved to Friday."},
	}, ch.deliveries)

	list, err := svc.List(ctx, carol.ID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, latest.ID, list[0].ID)

	// someone else's notification
	assert.ErrorIs(t, svc.MarkRead(ctx, dan.ID, latest.ID), notification.ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, carol.ID, "unknown"), notification.ErrNotFound)

	require.NoError(t, svc.MarkRead(ctx, carol.ID, latest.ID))
	unread, err := svc.List(ctx, carol.ID, true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "School closes at noon.", unread[0].Message)

	count, err := svc.MarkAllRead(ctx, dan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	unread, err = svc.List(ctx, dan.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	unread, err = svc.List(ctx, carol.ID, true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
}

package database_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/storage/database"
	testutil "github.com/trezcool/ratiba/tests"
)

// postgresEnv enables the postgres engine in these tests; the DATABASE_* variables point at the server.
const postgresEnv = "RATIBA_TEST_POSTGRES"

type storeFactory func(t *testing.T) *database.Store

func engines() map[string]storeFactory {
	factories := map[string]storeFactory{
		core.EngineMemory: func(t *testing.T) *database.Store {
			return openStore(t, testutil.NewConfig())
		},
		core.EngineBolt: func(t *testing.T) *database.Store {
			conf := testutil.NewConfig()
			conf.Database.Engine = core.EngineBolt
			conf.Database.BoltPath = filepath.Join(t.TempDir(), "ratiba.db")
			return openStore(t, conf)
		},
	}
	if os.Getenv(postgresEnv) != "" {
		factories[core.EnginePostgres] = func(t *testing.T) *database.Store {
			conf := core.NewConfig()
			conf.Database.Engine = core.EnginePostgres
			store := openStore(t, conf)

			db, err := database.Open(conf)
			require.NoError(t, err)
			defer db.Close()
			_, err = db.Exec(`TRUNCATE "user", timetable_entry, notification, message`)
			require.NoError(t, err)
			return store
		}
	}
	return factories
}

func openStore(t *testing.T, conf *core.Config) *database.Store {
	t.Helper()
	store, err := database.OpenStore(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func forEachEngine(t *testing.T, test func(t *testing.T, store *database.Store)) {
	for name, open := range engines() {
		t.Run(name, func(t *testing.T) {
			test(t, open(t))
		})
	}
}

func TestOpenStore_unknownEngine(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Database.Engine = "mongo"
	_, err := database.OpenStore(conf)
	assert.EqualError(t, err, `unknown database engine "mongo"`)
}

func TestUserRepository(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *database.Store) {
		ctx := context.Background()
		repo := store.Users
		now := time.Now().UTC().Truncate(time.Millisecond)

		bob := testutil.CreateUser(t, repo, "Bob Teacher", "bob", "bob@school.test", "", []string{user.RoleTeacher}, true, now)
		carol := testutil.CreateUser(t, repo, "Carol Student", "carol", "carol@school.test", "", []string{user.RoleStudent}, true, now.Add(time.Minute))
		ada := testutil.CreateUser(t, repo, "Ada Admin", "ada", "ada@school.test", "", []string{user.RoleAdminPrincipal}, false, now.Add(2*time.Minute))
		require.NotEmpty(t, bob.ID)

		t.Run("uniqueness", func(t *testing.T) {
			assert.ErrorIs(t, repo.CheckUsernameUniqueness(ctx, "bob", "new@school.test"), user.ErrUsernameExists)
			assert.ErrorIs(t, repo.CheckUsernameUniqueness(ctx, "new", "carol@school.test"), user.ErrEmailExists)
			assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "bob", "bob@school.test", bob))
			assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "new", "new@school.test"))
		})

		t.Run("get", func(t *testing.T) {
			got, err := repo.GetUser(ctx, user.GetFilter{ID: carol.ID})
			require.NoError(t, err)
			assert.Equal(t, "carol", got.Username)
			assert.Equal(t, []string{user.RoleStudent}, got.Roles)

			got, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"bob@school.test"}})
			require.NoError(t, err)
			assert.Equal(t, bob.ID, got.ID)

			_, err = repo.GetUser(ctx, user.GetFilter{Username: "zed"})
			assert.ErrorIs(t, err, user.ErrNotFound)
			_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
			assert.ErrorIs(t, err, user.ErrNotFound)
		})

		t.Run("query", func(t *testing.T) {
			ids := func(users []user.User) []string {
				out := make([]string, 0, len(users))
				for _, u := range users {
					out = append(out, u.ID)
				}
				return out
			}
			active := true

			users, err := repo.QueryUsers(ctx, user.QueryFilter{})
			require.NoError(t, err)
			assert.Equal(t, []string{ada.ID, carol.ID, bob.ID}, ids(users))

			users, err = repo.QueryUsers(ctx, user.QueryFilter{IsActive: &active}, core.DBOrdering{Field: "name", Ascending: true})
			require.NoError(t, err)
			assert.Equal(t, []string{bob.ID, carol.ID}, ids(users))

			users, err = repo.QueryUsers(ctx, user.QueryFilter{Roles: []string{user.RoleAdmin}})
			require.NoError(t, err)
			assert.Equal(t, []string{ada.ID}, ids(users))

			users, err = repo.QueryUsers(ctx, user.QueryFilter{Search: "STUDENT"})
			require.NoError(t, err)
			assert.Equal(t, []string{carol.ID}, ids(users))
		})

		t.Run("update", func(t *testing.T) {
			bob.IsAbsent = true
			bob.TelegramChatID = 99
			_, err := repo.UpdateUser(ctx, bob)
			require.NoError(t, err)

			got, err := repo.GetUser(ctx, user.GetFilter{ID: bob.ID})
			require.NoError(t, err)
			assert.True(t, got.IsAbsent)
			assert.Equal(t, int64(99), got.TelegramChatID)

			_, err = repo.UpdateUser(ctx, user.User{ID: "0b0c6a5e-5f7e-4e0c-9d1e-000000000000", Roles: []string{}})
			assert.ErrorIs(t, err, user.ErrNotFound)
		})

		t.Run("delete", func(t *testing.T) {
			require.NoError(t, repo.DeleteUsersByID(ctx, ada.ID, carol.ID))
			users, err := repo.QueryUsers(ctx, user.QueryFilter{})
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, bob.ID, users[0].ID)
		})
	})
}

func TestTimetableRepository(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *database.Store) {
		ctx := context.Background()
		repo := store.Timetable

		count, err := repo.CountEntries(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		created, err := repo.CreateEntries(ctx,
			timetable.Entry{Day: "Monday", Period: "08:00", Subject: "Physics", Teacher: "bob", Classroom: "Room 1", CreatedAt: time.Now().UTC()},
			timetable.Entry{Day: "Monday", Period: "08:00", Subject: "History", Teacher: "sue", Classroom: "Room 1", CreatedAt: time.Now().UTC()},
			timetable.Entry{Day: "Friday", Period: "10:00", Subject: "English", Teacher: "bob", Classroom: "Room 2", CreatedAt: time.Now().UTC()},
		)
		require.NoError(t, err)
		require.Len(t, created, 3)

		entries, err := repo.QueryEntries(ctx, timetable.QueryFilter{Classroom: "Room 1", Day: "Monday"})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, created[0].ID, entries[0].ID)
		assert.Equal(t, created[1].ID, entries[1].ID)

		_, err = repo.BookSlot(ctx, timetable.Entry{Day: "Friday", Period: "10:00", Classroom: "Room 2", Subject: "Fair", CreatedAt: time.Now().UTC()})
		assert.ErrorIs(t, err, timetable.ErrSlotTaken)

		booked, err := repo.BookSlot(ctx, timetable.Entry{
			Day: "Friday", Period: "12:00", Classroom: "Room 2", Subject: "Fair", EventDate: "2021-01-15",
			Duration: "2", Equipment: []string{"projector", "speakers"}, CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		got, err := repo.QueryEntries(ctx, timetable.QueryFilter{IDs: []string{booked.ID}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "2021-01-15", got[0].EventDate)
		assert.Equal(t, []string{"projector", "speakers"}, got[0].Equipment)

		updated, err := repo.UpdateEntriesTeacher(ctx, []string{created[0].ID, created[2].ID}, "sue")
		require.NoError(t, err)
		assert.Equal(t, 2, updated)
		entries, err = repo.QueryEntries(ctx, timetable.QueryFilter{Teacher: "sue"})
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		require.NoError(t, repo.DeleteEntriesByID(ctx, created[1].ID))
		count, err = repo.CountEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}

func TestTimetableRepository_concurrentBookSlot(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *database.Store) {
		ctx := context.Background()
		const attempts = 10

		var wg sync.WaitGroup
		errs := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Timetable.BookSlot(ctx, timetable.Entry{
					Day: "Wednesday", Period: "16:00", Classroom: "Room 4", Subject: "Club", CreatedAt: time.Now().UTC(),
				})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var booked int
		for err := range errs {
			if err == nil {
				booked++
			} else {
				assert.ErrorIs(t, err, timetable.ErrSlotTaken)
			}
		}
		assert.Equal(t, 1, booked)
	})
}

func TestNotificationRepository(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *database.Store) {
		ctx := context.Background()
		repo := store.Notifications
		carol := testutil.CreateUser(t, store.Users, "Carol", "carol", "carol@school.test", "", []string{user.RoleStudent}, true)
		dan := testutil.CreateUser(t, store.Users, "Dan", "dan", "dan@school.test", "", []string{user.RoleStudent}, true)

		created, err := repo.CreateNotifications(ctx,
			notification.Notification{UserID: carol.ID, Message: "first", CreatedAt: time.Now().UTC()},
			notification.Notification{UserID: dan.ID, Message: "for dan", CreatedAt: time.Now().UTC()},
			notification.Notification{UserID: carol.ID, Message: "second", CreatedAt: time.Now().UTC()},
		)
		require.NoError(t, err)
		require.Len(t, created, 3)

		notifs, err := repo.QueryNotifications(ctx, carol.ID, false)
		require.NoError(t, err)
		require.Len(t, notifs, 2)
		assert.Equal(t, "second", notifs[0].Message)
		assert.Equal(t, "first", notifs[1].Message)

		count, err := repo.MarkNotificationsRead(ctx, carol.ID, created[1].ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		count, err = repo.MarkNotificationsRead(ctx, carol.ID, created[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		notifs, err = repo.QueryNotifications(ctx, carol.ID, true)
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, "second", notifs[0].Message)

		count, err = repo.MarkNotificationsRead(ctx, dan.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		notifs, err = repo.QueryNotifications(ctx, dan.ID, true)
		require.NoError(t, err)
		assert.Empty(t, notifs)
	})
}

func TestMessageRepository(t *testing.T) {
	forEachEngine(t, func(t *testing.T, store *database.Store) {
		ctx := context.Background()
		repo := store.Messages
		bob := testutil.CreateUser(t, store.Users, "Bob", "bob", "bob@school.test", "", []string{user.RoleTeacher}, true)
		carol := testutil.CreateUser(t, store.Users, "Carol", "carol", "carol@school.test", "", []string{user.RoleStudent}, true)
		dan := testutil.CreateUser(t, store.Users, "Dan", "dan", "dan@school.test", "", []string{user.RoleStudent}, true)

		var sent []message.Message
		for _, m := range []message.Message{
			{SenderID: carol.ID, ReceiverID: bob.ID, Body: "hi"},
			{SenderID: bob.ID, ReceiverID: carol.ID, Body: "hello"},
			{SenderID: dan.ID, ReceiverID: bob.ID, Body: "question"},
		} {
			m.CreatedAt = time.Now().UTC()
			msg, err := repo.CreateMessage(ctx, m)
			require.NoError(t, err)
			sent = append(sent, msg)
		}

		conv, err := repo.QueryMessages(ctx, message.QueryFilter{Participants: []string{bob.ID, carol.ID}})
		require.NoError(t, err)
		require.Len(t, conv, 2)
		assert.Equal(t, sent[0].ID, conv[0].ID)
		assert.Equal(t, sent[1].ID, conv[1].ID)

		received, err := repo.QueryMessages(ctx, message.QueryFilter{ReceiverID: bob.ID, UnreadOnly: true})
		require.NoError(t, err)
		assert.Len(t, received, 2)

		count, err := repo.MarkMessagesRead(ctx, message.QueryFilter{SenderID: dan.ID, ReceiverID: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = repo.MarkMessagesRead(ctx, message.QueryFilter{IDs: []string{sent[1].ID}, ReceiverID: bob.ID})
		require.NoError(t, err)
		assert.Zero(t, count)

		received, err = repo.QueryMessages(ctx, message.QueryFilter{ReceiverID: bob.ID, UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, received, 1)
		assert.Equal(t, "hi", received[0].Body)
	})
}

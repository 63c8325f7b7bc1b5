package inmemdb

import (
	"sync"

	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
)

type (
	// DB keeps every table in memory. Rows are kept in insertion order.
	DB struct {
		user         *userTable
		timetable    *timetableTable
		notification *notificationTable
		message      *messageTable
	}

	userTable struct {
		sync.RWMutex
		rows []user.User
	}

	timetableTable struct {
		sync.RWMutex
		rows []timetable.Entry
	}

	notificationTable struct {
		sync.RWMutex
		rows []notification.Notification
	}

	messageTable struct {
		sync.RWMutex
		rows []message.Message
	}
)

func Open() *DB {
	return &DB{
		user:         new(userTable),
		timetable:    new(timetableTable),
		notification: new(notificationTable),
		message:      new(messageTable),
	}
}

func (db *DB) Close() error { return nil }

// Reset empties every table.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.rows = nil
	db.user.Unlock()

	db.timetable.Lock()
	db.timetable.rows = nil
	db.timetable.Unlock()

	db.notification.Lock()
	db.notification.rows = nil
	db.notification.Unlock()

	db.message.Lock()
	db.message.rows = nil
	db.message.Unlock()
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

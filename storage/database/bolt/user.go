package boltdb

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// userRecord persists the fields user.User hides from JSON.
type userRecord struct {
	user.User
	PasswordHash   []byte `json:"password_hash"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

func newUserRecord(usr user.User) userRecord {
	return userRecord{User: usr, PasswordHash: usr.PasswordHash, TelegramChatID: usr.TelegramChatID}
}

func (r userRecord) toUser() user.User {
	usr := r.User
	usr.PasswordHash = r.PasswordHash
	usr.TelegramChatID = r.TelegramChatID
	return usr
}

type userRepository struct {
	db *bbolt.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}

	return repo.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(usersBucket), func(_ []byte, r userRecord) error {
			if excluded[r.ID] {
				return nil
			}
			if username != "" && r.Username == username {
				return user.ErrUsernameExists
			}
			if email != "" && r.Email == email {
				return user.ErrEmailExists
			}
			return nil
		})
	})
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(usersBucket), []byte(usr.ID), newUserRecord(usr))
	})
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	err := repo.db.View(func(tx *bbolt.Tx) error {
		return forEach(tx.Bucket(usersBucket), func(_ []byte, r userRecord) error {
			if usr := r.toUser(); filter.Match(usr) {
				users = append(users, usr)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	user.SortUsers(users, orderings...)
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	var (
		found bool
		usr   user.User
	)
	err := repo.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if filter.ID != "" {
			data := b.Get([]byte(filter.ID))
			if data == nil {
				return nil
			}
			var r userRecord
			if err := json.Unmarshal(data, &r); err != nil {
				return errors.Wrap(err, "decoding user")
			}
			usr, found = r.toUser(), filter.Match(r.toUser())
			return nil
		}
		return forEach(b, func(_ []byte, r userRecord) error {
			if !found && filter.Match(r.toUser()) {
				usr, found = r.toUser(), true
			}
			return nil
		})
	})
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		if b.Get([]byte(usr.ID)) == nil {
			return user.ErrNotFound
		}
		return put(b, []byte(usr.ID), newUserRecord(usr))
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	return repo.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(usersBucket)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return errors.Wrapf(err, "deleting user %s", id)
			}
		}
		return nil
	})
}

package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func copyUser(usr user.User) user.User {
	usr.Roles = copyStrings(usr.Roles)
	if usr.PasswordHash != nil {
		usr.PasswordHash = append(make([]byte, 0, len(usr.PasswordHash)), usr.PasswordHash...)
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded[usr.ID] = true
	}

	for _, usr := range repo.db.rows {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.db.rows = append(repo.db.rows, copyUser(usr))
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.rows))
	for _, usr := range repo.db.rows {
		if filter.Match(usr) {
			users = append(users, copyUser(usr))
		}
	}
	user.SortUsers(users, orderings...)
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.rows {
		if filter.Match(usr) {
			return copyUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range repo.db.rows {
		if repo.db.rows[i].ID == usr.ID {
			repo.db.rows[i] = copyUser(usr)
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	kept := repo.db.rows[:0]
	for _, usr := range repo.db.rows {
		if !core.StringInSlice(usr.ID, ids) {
			kept = append(kept, usr)
		}
	}
	repo.db.rows = kept
	return nil
}

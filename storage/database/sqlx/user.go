package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

const userColumns = `id, name, username, email, is_active, is_absent, roles, password_hash, telegram_chat_id, created_at, updated_at, last_login`

// orderable user columns
var userOrderings = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"is_absent":  "is_absent",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Username       null.String    `db:"username"`
	Email          null.String    `db:"email"`
	IsActive       bool           `db:"is_active"`
	IsAbsent       bool           `db:"is_absent"`
	Roles          pq.StringArray `db:"roles"`
	PasswordHash   []byte         `db:"password_hash"`
	TelegramChatID null.Int64     `db:"telegram_chat_id"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	LastLogin      null.Time      `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       null.NewString(usr.Username, usr.Username != ""),
		Email:          null.NewString(usr.Email, usr.Email != ""),
		IsActive:       usr.IsActive,
		IsAbsent:       usr.IsAbsent,
		Roles:          roles,
		PasswordHash:   usr.PasswordHash,
		TelegramChatID: null.NewInt64(usr.TelegramChatID, usr.TelegramChatID != 0),
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:             r.ID,
		Name:           r.Name,
		Username:       r.Username.String,
		Email:          r.Email.String,
		IsActive:       r.IsActive,
		IsAbsent:       r.IsAbsent,
		Roles:          []string(r.Roles),
		PasswordHash:   r.PasswordHash,
		TelegramChatID: r.TelegramChatID.Int64,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		LastLogin:      r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		ids = append(ids, usr.ID)
	}

	var row userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"
		WHERE (username = ? OR email = ?) AND NOT (id = ANY(?::uuid[])) LIMIT 1`)
	err := repo.db.GetContext(
		ctx, &row, q,
		null.NewString(username, username != ""),
		null.NewString(email, email != ""),
		pq.Array(validUUIDs(ids)),
	)
	if err != nil {
		if err = trapNoRowsErr(err, nil, "checking user uniqueness"); err != nil {
			return err
		}
		return nil
	}
	if username != "" && row.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	q := `INSERT INTO "user" (` + userColumns + `) VALUES (
		:id, :name, :username, :email, :is_active, :is_absent, :roles, :password_hash,
		:telegram_chat_id, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, newUserRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, orderings ...core.DBOrdering) ([]user.User, error) {
	var w where

	// users with Name, Username or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
	}
	// users with any role that starts with any of the provided roles
	if len(filter.Roles) > 0 {
		roleConds := make([]string, 0, len(filter.Roles))
		roleArgs := make([]interface{}, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			roleConds = append(roleConds, "EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)")
			roleArgs = append(roleArgs, role+"%")
		}
		w.add("("+strings.Join(roleConds, " OR ")+")", roleArgs...)
	}
	if filter.IsActive != nil {
		w.add("is_active = ?", *filter.IsActive)
	}
	if filter.IsAbsent != nil {
		w.add("is_absent = ?", *filter.IsAbsent)
	}
	if !filter.CreatedFrom.IsZero() {
		w.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		w.add("created_at <= ?", filter.CreatedTo.UTC())
	}

	orderList := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := userOrderings[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at DESC")
	}

	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String() + ` ORDER BY ` + strings.Join(orderList, ", "))
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	if filter.ID != "" {
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	}
	if filter.Username != "" {
		w.add("username = ?", filter.Username)
	}
	if filter.Email != "" {
		w.add("email = ?", filter.Email)
	}
	if vals := nonEmpty(filter.UsernameOrEmail); len(vals) > 0 {
		w.add("(username = ANY(?) OR email = ANY(?))", pq.Array(vals), pq.Array(vals))
	} else if len(filter.UsernameOrEmail) > 0 {
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String() + ` LIMIT 1`)
	if err := repo.db.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := uuid.Parse(usr.ID); err != nil {
		return user.User{}, user.ErrNotFound
	}
	q := `UPDATE "user" SET
		name = :name, username = :username, email = :email, is_active = :is_active, is_absent = :is_absent,
		roles = :roles, password_hash = :password_hash, telegram_chat_id = :telegram_chat_id,
		updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return user.User{}, err
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM "user" WHERE id = ANY($1::uuid[])`, pq.Array(validUUIDs(ids))); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func nonEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

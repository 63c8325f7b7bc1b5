package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
	appfs "github.com/trezcool/ratiba/fs"
	boltdb "github.com/trezcool/ratiba/storage/database/bolt"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"
)

const migrationsDir = "migrations"

// Store holds the repositories of the configured storage engine.
type Store struct {
	Engine        string
	Users         user.Repository
	Timetable     timetable.Repository
	Notifications notification.Repository
	Messages      message.Repository

	closeFn func() error
}

func (s *Store) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// OpenStore opens the storage engine selected by conf.Database.Engine.
// Postgres databases are created if needed and migrated to the latest version.
func OpenStore(conf *core.Config) (*Store, error) {
	switch conf.Database.Engine {
	case core.EnginePostgres:
		if err := CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := Open(conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		if err := ping(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{
			Engine:        core.EnginePostgres,
			Users:         sqlxrepos.NewUserRepository(db),
			Timetable:     sqlxrepos.NewTimetableRepository(db),
			Notifications: sqlxrepos.NewNotificationRepository(db),
			Messages:      sqlxrepos.NewMessageRepository(db),
			closeFn:       db.Close,
		}, nil

	case core.EngineBolt:
		db, err := boltdb.Open(conf.Database.BoltPath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Engine:        core.EngineBolt,
			Users:         boltdb.NewUserRepository(db),
			Timetable:     boltdb.NewTimetableRepository(db),
			Notifications: boltdb.NewNotificationRepository(db),
			Messages:      boltdb.NewMessageRepository(db),
			closeFn:       db.Close,
		}, nil

	case core.EngineMemory:
		return NewMemoryStore(inmemdb.Open()), nil
	}
	return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

// NewMemoryStore wraps an in-memory database, mostly for tests.
func NewMemoryStore(db *inmemdb.DB) *Store {
	return &Store{
		Engine:        core.EngineMemory,
		Users:         inmemdb.NewUserRepository(db),
		Timetable:     inmemdb.NewTimetableRepository(db),
		Notifications: inmemdb.NewNotificationRepository(db),
		Messages:      inmemdb.NewMessageRepository(db),
		closeFn:       db.Close,
	}
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	usr := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		usr = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     usr,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sqlx.Open("postgres", u.String())
}

// Open opens the application database. Use OpenStore to also migrate it.
func Open(conf *core.Config) (*sqlx.DB, error) {
	return open(conf.Database.Name, false, conf)
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createAppUser(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, conf.Database.User); err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !exists {
		q := "CREATE USER " + pq.QuoteIdentifier(conf.Database.User) +
			" CREATEDB ENCRYPTED PASSWORD " + pq.QuoteLiteral(conf.Database.Password)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(ctx context.Context, db *sqlx.DB, conf *core.Config) error {
	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, conf.Database.Name); err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !exists {
		if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the app user (as admin) then the app database (as the app user).
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()

	adminDB, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = adminDB.Close() }()

	if err = ping(adminDB); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(ctx, adminDB, conf); err != nil {
		return err
	}

	db, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	return createDB(ctx, db, conf)
}

func setupGoose() error {
	goose.SetBaseFS(appfs.FS)
	return goose.SetDialect("postgres")
}

// Migrate applies every pending embedded migration.
func Migrate(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return errors.Wrap(err, "setting up migrations")
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// RunMigrations runs a goose command (up, down, status, version, redo, reset...) against the embedded migrations.
func RunMigrations(db *sql.DB, command string, args ...string) error {
	if err := setupGoose(); err != nil {
		return errors.Wrap(err, "setting up migrations")
	}
	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrapf(err, "running migration command %q", command)
	}
	return nil
}

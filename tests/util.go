package testutil

import (
	"context"
	"net/mail"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// NewConfig returns a test configuration backed by the in-memory engine.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Ratiba",
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Ratiba", Address: "noreply@ratiba.test"},
		PasswordResetTimeoutDelta: 72 * time.Hour,
		Server: core.ServerConfig{
			Address:                   ":0",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			SessionName:               "ratiba_session",
			DisableReqLogs:            true,
		},
		Database: core.DatabaseConfig{Engine: core.EngineMemory},
	}
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator(t testing.TB) (*validator.Validate, ut.Translator) {
	t.Helper()
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	if err := user.LoadCommonPasswords(); err != nil {
		t.Fatalf("LoadCommonPasswords() failed: %v", err)
	}
	return validate, translator
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// Logger records what is logged, for assertions.
type Logger struct {
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(string, ...interface{}) {}
func (l *Logger) Info(string, ...interface{})  {}
func (l *Logger) Warn(string, ...interface{})  {}
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.Error(msg, args...)
}

func (l *Logger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	l.Errors = append(l.Errors, msg)
	l.mu.Unlock()
}

func (l *Logger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

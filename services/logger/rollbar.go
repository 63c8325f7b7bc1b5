package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

// RollbarLogger reports to Rollbar and prints to a zap logger.
type RollbarLogger struct {
	std *zap.SugaredLogger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewZapLogger returns a development logger in debug mode, a production one otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	if conf.Debug || conf.TestMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func NewRollbarLogger(std *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(!(conf.Debug || conf.TestMode) && conf.RollbarToken != "")
	return &RollbarLogger{std: std.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Sync flushes both sinks.
func (l RollbarLogger) Sync() error {
	rollbar.Wait()
	return l.std.Sync()
}

// expected fmt: msg | error, map[string]interface{}, user.User
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		// set logged in User
		if usr, ok := arg.(user.User); ok {
			if !usrSet { // only set one User
				rollbar.SetPerson(usr.ID, usr.Username, usr.Email)
				usrSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	return newArgs
}

// fields turns args into zap key-value pairs.
func (l RollbarLogger) fields(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(args)*2)
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			kvs = append(kvs, "error", a)
		case map[string]interface{}:
			for k, v := range a {
				kvs = append(kvs, k, v)
			}
		case user.User:
			kvs = append(kvs, "user", a.ID)
		default:
			kvs = append(kvs, "extra", a)
		}
	}
	return kvs
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.std.Debugw(msg, l.fields(args)...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.std.Infow(msg, l.fields(args)...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.std.Warnw(msg, l.fields(args)...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.std.Errorw(msg, l.fields(args)...)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.std.Fatalw(msg, l.fields(args)...)
}

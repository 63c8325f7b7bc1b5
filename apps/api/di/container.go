package di

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	logsvc "github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/services/notifier"
	"github.com/trezcool/ratiba/storage/database"
)

// Module provides every dependency of the API and starts its servers.
var Module = fx.Options(
	fx.Provide(
		core.NewConfig,
		logsvc.NewZapLogger,
		newLogger,
		newValidator,
		newStore,
		emailsvc.NewService,
		notifier.Channels,
		newUserService,
		newTimetableService,
		newNotificationService,
		newMessageService,
		newServer,
	),
	fx.Invoke(
		setUp,
		seedDemo,
		startDebugServer,
		startServer,
	),
)

func newLogger(std *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(std, conf)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newStore(lc fx.Lifecycle, conf *core.Config, logger core.Logger) (*database.Store, error) {
	store, err := database.OpenStore(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up database")
	}
	logger.Info(fmt.Sprintf("database ready : engine %q", store.Engine))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

func newUserService(store *database.Store, mailSvc core.EmailService, conf *core.Config) *user.Service {
	return user.NewService(store.Users, mailSvc, conf)
}

func newTimetableService(store *database.Store, validate *validator.Validate, conf *core.Config) *timetable.Service {
	return timetable.NewService(store.Timetable, validate, conf)
}

func newNotificationService(store *database.Store, channels []notification.Channel) *notification.Service {
	return notification.NewService(store.Notifications, channels...)
}

func newMessageService(store *database.Store, validate *validator.Validate) *message.Service {
	return message.NewService(store.Messages, validate)
}

type serverParams struct {
	fx.In

	Conf            *core.Config
	Shutdowner      fx.Shutdowner
	Logger          core.Logger
	Validate        *validator.Validate
	Translator      ut.Translator
	UserSvc         *user.Service
	TimetableSvc    *timetable.Service
	NotificationSvc *notification.Service
	MessageSvc      *message.Service
}

func newServer(lc fx.Lifecycle, p serverParams) echoapi.Server {
	// unrecoverable server errors stop the whole app
	shutdown := make(chan os.Signal, 1)
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				select {
				case sig := <-shutdown:
					p.Logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
					_ = p.Shutdowner.Shutdown()
				case <-done:
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(done)
			return nil
		},
	})

	return echoapi.NewServer(p.Conf, shutdown, &echoapi.Deps{
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		UserSvc:         p.UserSvc,
		TimetableSvc:    p.TimetableSvc,
		NotificationSvc: p.NotificationSvc,
		MessageSvc:      p.MessageSvc,
	})
}

func setUp(conf *core.Config, logger core.Logger) error {
	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

	if err := core.ParseEmailTemplates(conf); err != nil {
		return errors.Wrap(err, "parsing email templates")
	}
	if err := user.LoadCommonPasswords(); err != nil {
		return errors.Wrap(err, "loading common passwords")
	}
	return nil
}

// seedDemo fills an empty timetable with demo lessons taught by the active teachers.
func seedDemo(conf *core.Config, logger core.Logger, usrSvc *user.Service, ttSvc *timetable.Service) error {
	if !conf.Timetable.SeedDemo {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	teachers, err := usrSvc.Teachers(ctx)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	unames := make([]string, 0, len(teachers))
	for _, t := range teachers {
		unames = append(unames, t.Username)
	}

	count, err := ttSvc.SeedDemo(ctx, unames)
	if err != nil {
		return errors.Wrap(err, "seeding demo timetable")
	}
	if count > 0 {
		logger.Info(fmt.Sprintf("seeded %d demo lessons", count))
	}
	return nil
}

// startDebugServer serves:
// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
// /debug/vars - Added to the default mux by importing the expvar package.
func startDebugServer(lc fx.Lifecycle, conf *core.Config, logger core.Logger) {
	if conf.Server.DebugAddress == "" {
		return
	}

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	srv := &http.Server{Addr: conf.Server.DebugAddress, Handler: http.DefaultServeMux}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, sd fx.Shutdowner, conf *core.Config, logger core.Logger, server echoapi.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.Start(); err != nil {
					logger.Error(fmt.Sprintf("server error: %v", err), err)
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Stop(ctx); err != nil {
				return errors.Wrap(err, "could not stop server gracefully")
			}
			logger.Info("Application stopped")
			return nil
		},
	})
}

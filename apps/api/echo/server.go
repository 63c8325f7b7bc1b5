package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
)

type (
	Deps struct {
		Logger          core.Logger
		Validate        *validator.Validate
		Translator      ut.Translator
		UserSvc         *user.Service
		TimetableSvc    *timetable.Service
		NotificationSvc *notification.Service
		MessageSvc      *message.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		conf     *core.Config
		shutdown chan<- os.Signal
		deps     *Deps
		app      *echo.Echo
		auth     *authenticator
		web      *webApp
	}
)

var _ Server = (*server)(nil)

// NewServer builds the HTTP server. shutdown, when not nil, is signaled on unrecoverable errors.
func NewServer(conf *core.Config, shutdown chan<- os.Signal, deps *Deps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(deps, "deps"),
	).CheckAndPanic()
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.Validate, "deps.Validate"),
		vala.IsNotNil(deps.Translator, "deps.Translator"),
		vala.IsNotNil(deps.UserSvc, "deps.UserSvc"),
		vala.IsNotNil(deps.TimetableSvc, "deps.TimetableSvc"),
		vala.IsNotNil(deps.NotificationSvc, "deps.NotificationSvc"),
		vala.IsNotNil(deps.MessageSvc, "deps.MessageSvc"),
	).CheckAndPanic()

	s := &server{
		conf:     conf,
		shutdown: shutdown,
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(conf, deps.UserSvc),
	}
	s.setup()
	return s
}

// signalShutdown never blocks: a pending signal is enough.
func (s *server) signalShutdown() {
	if s.shutdown == nil {
		return
	}
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Server.ReadTimeout = s.conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = s.conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug && !s.conf.TestMode

	s.web = &webApp{
		store:       newSessionStore(s.conf),
		sessionName: s.conf.Server.SessionName,
		auth:        s.auth,
		validate:    s.deps.Validate,
		logger:      s.deps.Logger,
		usrSvc:      s.deps.UserSvc,
		ttSvc:       s.deps.TimetableSvc,
		notifSvc:    s.deps.NotificationSvc,
		msgSvc:      s.deps.MessageSvc,
		now:         time.Now,
	}
	registerWebApp(s.app, s.web)

	v1 := s.app.Group("/v1")
	registerUserAPI(v1, &userApi{
		svc:      s.deps.UserSvc,
		auth:     s.auth,
		validate: s.deps.Validate,
		logger:   s.deps.Logger,
	})
	registerTimetableAPI(v1, &timetableApi{svc: s.deps.TimetableSvc, auth: s.auth})
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *server) Start() error {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

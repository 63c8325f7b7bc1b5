package echoapi

import (
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

const (
	sessionUserIDKey = "user_id"
	sessionRoleKey   = "role"
)

func newSessionStore(conf *core.Config) sessions.Store {
	store := sessions.NewCookieStore([]byte(conf.SecretKey))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(conf.Server.JWTRefreshExpirationDelta.Seconds()),
		HttpOnly: true,
		Secure:   !(conf.Debug || conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// session wraps the gorilla session of the current request.
type session struct {
	*sessions.Session
	ctx echo.Context
}

func (w *webApp) session(ctx echo.Context) *session {
	// a cookie that fails to decode yields a fresh session
	sess, _ := w.store.Get(ctx.Request(), w.sessionName)
	return &session{Session: sess, ctx: ctx}
}

func (s *session) save() error {
	if err := s.Save(s.ctx.Request(), s.ctx.Response()); err != nil {
		return errors.Wrap(err, "saving session")
	}
	return nil
}

func (s *session) userID() string {
	id, _ := s.Values[sessionUserIDKey].(string)
	return id
}

func (s *session) login(usr user.User) {
	s.Values[sessionUserIDKey] = usr.ID
	s.Values[sessionRoleKey] = usr.RoleName()
}

func (s *session) logout() {
	delete(s.Values, sessionUserIDKey)
	delete(s.Values, sessionRoleKey)
}

// flash queues a message and saves the session.
func (s *session) flash(msg string) error {
	s.AddFlash(msg)
	return s.save()
}

// popFlashes returns and clears the pending flash messages.
func (s *session) popFlashes() ([]string, error) {
	flashes := s.Flashes()
	msgs := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if msg, ok := f.(string); ok {
			msgs = append(msgs, msg)
		}
	}
	if len(flashes) == 0 {
		return msgs, nil
	}
	return msgs, s.save()
}

// sessionUser loads the logged in user, if any, and caches it in ctx.
func (w *webApp) sessionUser(ctx echo.Context) (user.User, bool, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, true, nil
	}
	id := w.session(ctx).userID()
	if id == "" {
		return user.User{}, false, nil
	}
	usr, err := w.usrSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, false, nil
		}
		return user.User{}, false, errors.Wrap(err, "finding session user")
	}
	if !usr.IsActive {
		return user.User{}, false, nil
	}
	ctx.Set(contextUserKey, usr)
	return usr, true, nil
}

// requireLogin redirects anonymous visitors to the login page.
func (w *webApp) requireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		_, ok, err := w.sessionUser(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ctx.Redirect(http.StatusFound, "/login")
		}
		return next(ctx)
	}
}

// requirePageRole redirects users without the role name to the home page.
func (w *webApp) requirePageRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok, err := w.sessionUser(ctx)
			if err != nil {
				return err
			}
			if !ok || usr.RoleName() != role {
				return ctx.Redirect(http.StatusFound, "/")
			}
			return next(ctx)
		}
	}
}

// requireAPIRole rejects users without the role name with 403 {"error": "Unauthorized"}.
func (w *webApp) requireAPIRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok, err := w.sessionUser(ctx)
			if err != nil {
				return err
			}
			if !ok || (role != "" && usr.RoleName() != role) {
				return errRoleUnauthorized
			}
			return next(ctx)
		}
	}
}

func dashboardPath(usr user.User) string {
	switch usr.RoleName() {
	case user.RoleNameAdmin:
		return "/admin_dashboard"
	case user.RoleNameTeacher:
		return "/teacher_dashboard"
	case user.RoleNameStudent:
		return "/student_dashboard"
	}
	return "/"
}

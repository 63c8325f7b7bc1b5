package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
)

const homeClassesCount = 5

// webApp serves the session cookie surface used by the school web client.
type webApp struct {
	store       sessions.Store
	sessionName string
	auth        *authenticator
	validate    *validator.Validate
	logger      core.Logger
	usrSvc      *user.Service
	ttSvc       *timetable.Service
	notifSvc    *notification.Service
	msgSvc      *message.Service
	now         func() time.Time
}

func registerWebApp(e *echo.Echo, w *webApp) {
	e.GET("/", w.home)
	e.GET("/login", w.loginPage)
	e.POST("/login", w.login)
	e.GET("/signup", w.signupPage)
	e.POST("/signup", w.signup)
	e.GET("/logout", w.logout)

	e.GET("/student_dashboard", w.studentDashboard, w.requirePageRole(user.RoleNameStudent))
	e.GET("/teacher_dashboard", w.teacherDashboard, w.requirePageRole(user.RoleNameTeacher))
	e.GET("/admin_dashboard", w.adminDashboard, w.requirePageRole(user.RoleNameAdmin))
	e.GET("/admin_teachers", w.adminTeachers, w.requirePageRole(user.RoleNameAdmin))

	e.GET("/book", w.availability)
	e.POST("/book_classroom", w.bookClassroom, w.requireLogin)

	ag := e.Group("/admin", w.requirePageRole(user.RoleNameAdmin))
	ag.POST("/mark_absent", w.markAbsent)
	ag.POST("/mark_present", w.markPresent)
	ag.POST("/substitute", w.substitute)

	registerSessionAPI(e.Group("/api"), w)
}

func (w *webApp) today() string {
	return w.now().Weekday().String()
}

// Pages

func (w *webApp) home(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	resp := echo.Map{"notifications": []notification.Notification{}}

	usr, ok, err := w.sessionUser(ctx)
	if err != nil {
		return err
	}
	if ok {
		notifs, err := w.notifSvc.List(reqCtx, usr.ID, true /* unreadOnly */)
		if err != nil {
			return errors.Wrap(err, "listing notifications")
		}
		resp["user"] = usr
		resp["notifications"] = notifs
	}

	entries, err := w.ttSvc.Query(reqCtx, timetable.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying timetable")
	}
	if len(entries) > homeClassesCount {
		entries = entries[:homeClassesCount]
	}
	resp["classes"] = entries

	flashes, err := w.session(ctx).popFlashes()
	if err != nil {
		return err
	}
	resp["flashes"] = flashes
	return ctx.JSON(http.StatusOK, resp)
}

func (w *webApp) loginPage(ctx echo.Context) error {
	flashes, err := w.session(ctx).popFlashes()
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"flashes": flashes})
}

func (w *webApp) signupPage(ctx echo.Context) error {
	flashes, err := w.session(ctx).popFlashes()
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"flashes": flashes,
		"roles":   []string{user.RoleNameStudent, user.RoleNameTeacher},
	})
}

func (w *webApp) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	sess := w.session(ctx)

	if err := data.Validate(w.validate); err != nil {
		if err := sess.flash("Please enter your username and password."); err != nil {
			return err
		}
		return ctx.Redirect(http.StatusSeeOther, "/login")
	}

	usr, err := w.auth.authenticate(ctx.Request().Context(), data.Username, data.Password)
	switch errors.Cause(err) {
	case nil:
	case errAuthenticationFailed:
		if err := sess.flash("Invalid username or password."); err != nil {
			return err
		}
		return ctx.Redirect(http.StatusSeeOther, "/login")
	case errAccountDeactivated:
		if err := sess.flash("Your account has been deactivated."); err != nil {
			return err
		}
		return ctx.Redirect(http.StatusSeeOther, "/login")
	default:
		return errors.Wrap(err, "authenticating")
	}

	sess.login(usr)
	if err := sess.save(); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, dashboardPath(usr))
}

func (w *webApp) signup(ctx echo.Context) error {
	var data SignupRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if err := w.validate.Struct(data); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	nu := data.newUser()
	if err := nu.Validate(reqCtx, w.validate, w.usrSvc); err != nil {
		return err
	}
	if _, err := w.usrSvc.Create(reqCtx, nu); err != nil {
		return errors.Wrap(err, "creating user")
	}

	if err := w.session(ctx).flash("Account created. Please log in."); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, "/login")
}

func (w *webApp) logout(ctx echo.Context) error {
	sess := w.session(ctx)
	sess.logout()
	if err := sess.flash("You have been logged out."); err != nil {
		return err
	}
	return ctx.Redirect(http.StatusSeeOther, "/")
}

func (w *webApp) studentDashboard(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	notifs, err := w.notifSvc.List(ctx.Request().Context(), usr.ID, true /* unreadOnly */)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user": usr, "notifications": notifs})
}

func (w *webApp) teacherDashboard(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr := ctx.Get(contextUserKey).(user.User)

	notifs, err := w.notifSvc.List(reqCtx, usr.ID, true /* unreadOnly */)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	lessons, err := w.ttSvc.TeacherLessons(reqCtx, usr.Username, w.today())
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user": usr, "notifications": notifs, "lessons": lessons})
}

func (w *webApp) adminDashboard(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	entries, err := w.ttSvc.Query(reqCtx, timetable.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying timetable")
	}
	users, err := w.usrSvc.Query(reqCtx, user.QueryFilter{})
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	flashes, err := w.session(ctx).popFlashes()
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"timetable": entries, "users": users, "flashes": flashes})
}

func (w *webApp) adminTeachers(ctx echo.Context) error {
	teachers, err := w.usrSvc.Teachers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teachers": teachers})
}

// Booking

func (w *webApp) availability(ctx echo.Context) error {
	avail, err := w.ttSvc.Availability(ctx.Request().Context(), ctx.QueryParam("classroom"), ctx.QueryParam("date"))
	if err != nil {
		return errors.Wrap(err, "checking availability")
	}
	return ctx.JSON(http.StatusOK, avail)
}

func (w *webApp) bookClassroom(ctx echo.Context) error {
	var data timetable.NewBooking
	if err := ctx.Bind(&data); err != nil {
		if err := w.session(ctx).flash("Invalid request"); err != nil {
			return err
		}
		return errInvalidRequest
	}

	usr := ctx.Get(contextUserKey).(user.User)
	entry, err := w.ttSvc.Book(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		var msg string
		switch cause := errors.Cause(err); {
		case cause == timetable.ErrSlotTaken:
			msg = "This classroom is already booked at this time."
		case isValidationErr(cause):
			msg = "Missing required booking information"
		default:
			return errors.Wrap(err, "booking classroom")
		}
		if err := w.session(ctx).flash(msg); err != nil {
			return err
		}
		return err
	}

	msg := "Classroom booked successfully!"
	if err := w.session(ctx).flash(msg); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "entry": entry})
}

func isValidationErr(err error) bool {
	switch err.(type) {
	case validator.ValidationErrors, *core.ValidationError:
		return true
	}
	return false
}

// Absence & substitution

func (w *webApp) findTeacher(ctx echo.Context, uname string) (user.User, error) {
	usr, err := w.usrSvc.GetByUsername(ctx.Request().Context(), uname)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return user.User{}, errors.Wrap(err, "finding teacher")
		}
	} else if usr.IsTeacher() {
		return usr, nil
	}

	if err := w.session(ctx).flash("Teacher not found."); err != nil {
		return user.User{}, err
	}
	return user.User{}, echo.NewHTTPError(http.StatusNotFound, "Teacher not found.")
}

func (w *webApp) markAbsent(ctx echo.Context) error {
	var data AbsenceRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if err := data.Validate(w.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	teacher, err := w.findTeacher(ctx, data.TeacherUsername)
	if err != nil {
		return err
	}
	if teacher, err = w.usrSvc.SetAbsent(reqCtx, teacher, true); err != nil {
		return errors.Wrap(err, "marking teacher absent")
	}

	students, err := w.usrSvc.Students(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if _, err := w.notifSvc.NotifyUsers(reqCtx, students, "Your teacher "+teacher.Username+" is absent today."); err != nil {
		return errors.Wrap(err, "notifying students")
	}

	lessons, err := w.ttSvc.TeacherLessons(reqCtx, teacher.Username, w.today())
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}

	msg := teacher.Username + " marked as absent. Students notified."
	if err := w.session(ctx).flash(msg); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "teacher": teacher, "lessons": lessons})
}

func (w *webApp) markPresent(ctx echo.Context) error {
	var data AbsenceRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if err := data.Validate(w.validate); err != nil {
		return err
	}

	teacher, err := w.findTeacher(ctx, data.TeacherUsername)
	if err != nil {
		return err
	}
	if teacher, err = w.usrSvc.SetAbsent(ctx.Request().Context(), teacher, false); err != nil {
		return errors.Wrap(err, "marking teacher present")
	}

	msg := teacher.Username + " marked as present."
	if err := w.session(ctx).flash(msg); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": msg, "teacher": teacher})
}

func (w *webApp) substitute(ctx echo.Context) error {
	var data timetable.Substitution
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if err := data.Validate(w.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	invalidSubstitute := core.NewValidationError(nil, core.FieldError{
		Field: "substitute",
		Error: "substitute must be an active teacher who is not absent",
	})
	sub, err := w.usrSvc.GetByUsername(reqCtx, data.Substitute)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return invalidSubstitute
		}
		return errors.Wrap(err, "finding substitute")
	}
	if !sub.IsTeacher() || !sub.IsActive || sub.IsAbsent {
		return invalidSubstitute
	}

	count, err := w.ttSvc.Reassign(reqCtx, data.EntryIDs, sub.Username)
	if err != nil {
		return errors.Wrap(err, "reassigning lessons")
	}
	if count == 0 {
		return timetable.ErrNotFound
	}

	notice := "You have been assigned as a substitute for " + pluralize(count, "lesson") + "."
	if _, err := w.notifSvc.Notify(reqCtx, sub, notice); err != nil {
		return errors.Wrap(err, "notifying substitute")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "updated": count})
}

func pluralize(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}

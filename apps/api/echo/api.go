package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/user"
)

const dateLayout = "2006-01-02"

func registerSessionAPI(g *echo.Group, w *webApp) {
	g.GET("/auth/status", w.authStatus)

	sg := g.Group("/student", w.requireAPIRole(user.RoleNameStudent))
	sg.GET("/teachers", w.studentTeachers)
	sg.POST("/send_message", w.studentSendMessage)
	sg.GET("/schedule", w.studentSchedule)
	sg.GET("/announcements", w.studentAnnouncements)

	tg := g.Group("/teacher", w.requireAPIRole(user.RoleNameTeacher))
	tg.GET("/students", w.teacherStudents)
	tg.GET("/messages", w.teacherMessages)
	tg.POST("/send_message", w.teacherSendMessage)
	tg.POST("/mark_message_read", w.teacherMarkMessageRead)

	ng := g.Group("/notifications", w.requireAPIRole(""))
	ng.GET("", w.listNotifications)
	ng.POST("/read", w.markAllNotificationsRead)
	ng.POST("/:id/read", w.markNotificationRead)
}

type (
	authUser struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	contact struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email,omitempty"`
		IsAbsent bool   `json:"is_absent"`
	}

	studentContact struct {
		contact
		Unread int `json:"unread"`
	}

	inboxMessage struct {
		ID         string    `json:"id"`
		SenderName string    `json:"sender_name"`
		SenderID   string    `json:"sender_id"`
		Message    string    `json:"message"`
		Read       bool      `json:"read"`
		Timestamp  time.Time `json:"timestamp"`
	}

	conversationMessage struct {
		ID        string    `json:"id"`
		Sender    string    `json:"sender"` // teacher | student
		Content   string    `json:"content"`
		Read      bool      `json:"read"`
		Timestamp time.Time `json:"timestamp"`
	}
)

func newContact(usr user.User) contact {
	return contact{ID: usr.ID, Name: usr.DisplayName(), Username: usr.Username, Email: usr.Email, IsAbsent: usr.IsAbsent}
}

func (w *webApp) authStatus(ctx echo.Context) error {
	usr, ok, err := w.sessionUser(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, echo.Map{"authenticated": false})
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"authenticated": true,
		"user":          authUser{ID: usr.ID, Name: usr.DisplayName(), Email: usr.Email, Role: usr.RoleName()},
	})
}

// sendMessage delivers a message to a receiver holding role, then notifies them.
func (w *webApp) sendMessage(ctx echo.Context, receiverID, body, role, invalidMsg string) (message.Message, error) {
	reqCtx := ctx.Request().Context()
	sender := ctx.Get(contextUserKey).(user.User)

	receiver, err := w.usrSvc.GetByID(reqCtx, receiverID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return message.Message{}, echo.NewHTTPError(http.StatusBadRequest, invalidMsg)
		}
		return message.Message{}, errors.Wrap(err, "finding receiver")
	}
	if receiver.RoleName() != role || !receiver.IsActive {
		return message.Message{}, echo.NewHTTPError(http.StatusBadRequest, invalidMsg)
	}

	msg, err := w.msgSvc.Send(reqCtx, message.NewMessage{SenderID: sender.ID, ReceiverID: receiver.ID, Body: body})
	if err != nil {
		return message.Message{}, err
	}
	if _, err := w.notifSvc.Notify(reqCtx, receiver, "New message from "+sender.DisplayName()); err != nil {
		return message.Message{}, errors.Wrap(err, "notifying receiver")
	}
	return msg, nil
}

func messageSent(ctx echo.Context, msg message.Message) error {
	return ctx.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"message":    "Message sent successfully",
		"message_id": msg.ID,
	})
}

// Student

func (w *webApp) studentTeachers(ctx echo.Context) error {
	teachers, err := w.usrSvc.Teachers(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	contacts := make([]contact, 0, len(teachers))
	for _, t := range teachers {
		contacts = append(contacts, newContact(t))
	}
	return ctx.JSON(http.StatusOK, contacts)
}

func (w *webApp) studentSendMessage(ctx echo.Context) error {
	var data StudentMessageRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if data.ReceiverID == "" || data.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing receiver_id or message")
	}

	msg, err := w.sendMessage(ctx, data.ReceiverID, data.Message, user.RoleNameTeacher, "Invalid receiver")
	if err != nil {
		return err
	}
	return messageSent(ctx, msg)
}

// studentSchedule lists the lessons held on the weekday of ?date (default today).
func (w *webApp) studentSchedule(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	if date == "" {
		date = w.now().Format(dateLayout)
	}
	entries, err := w.ttSvc.Schedule(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "getting schedule")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (w *webApp) studentAnnouncements(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	notifs, err := w.notifSvc.List(ctx.Request().Context(), usr.ID, false)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

// Teacher

func (w *webApp) teacherStudents(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr := ctx.Get(contextUserKey).(user.User)

	students, err := w.usrSvc.Students(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	unread, err := w.msgSvc.UnreadCounts(reqCtx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}

	contacts := make([]studentContact, 0, len(students))
	for _, s := range students {
		contacts = append(contacts, studentContact{contact: newContact(s), Unread: unread[s.ID]})
	}
	return ctx.JSON(http.StatusOK, contacts)
}

// teacherMessages returns the teacher's inbox, or the conversation with ?student_id.
func (w *webApp) teacherMessages(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr := ctx.Get(contextUserKey).(user.User)

	if studentID := ctx.QueryParam("student_id"); studentID != "" {
		msgs, err := w.msgSvc.Conversation(reqCtx, usr.ID, studentID)
		if err != nil {
			return errors.Wrap(err, "getting conversation")
		}
		conv := make([]conversationMessage, 0, len(msgs))
		for _, m := range msgs {
			sender := user.RoleNameStudent
			if m.SenderID == usr.ID {
				sender = user.RoleNameTeacher
			}
			conv = append(conv, conversationMessage{ID: m.ID, Sender: sender, Content: m.Body, Read: m.Read, Timestamp: m.CreatedAt})
		}
		return ctx.JSON(http.StatusOK, conv)
	}

	msgs, err := w.msgSvc.Inbox(reqCtx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "getting inbox")
	}
	names := make(map[string]string)
	inbox := make([]inboxMessage, 0, len(msgs))
	for _, m := range msgs {
		name, ok := names[m.SenderID]
		if !ok {
			name = "Unknown"
			if sender, err := w.usrSvc.GetByID(reqCtx, m.SenderID); err == nil {
				name = sender.DisplayName()
			} else if errors.Cause(err) != user.ErrNotFound {
				return errors.Wrap(err, "finding sender")
			}
			names[m.SenderID] = name
		}
		inbox = append(inbox, inboxMessage{
			ID:         m.ID,
			SenderName: name,
			SenderID:   m.SenderID,
			Message:    m.Body,
			Read:       m.Read,
			Timestamp:  m.CreatedAt,
		})
	}
	return ctx.JSON(http.StatusOK, inbox)
}

func (w *webApp) teacherSendMessage(ctx echo.Context) error {
	var data TeacherMessageRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}
	if data.StudentID == "" || data.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing student_id or content")
	}

	msg, err := w.sendMessage(ctx, data.StudentID, data.Content, user.RoleNameStudent, "Invalid student")
	if err != nil {
		return err
	}
	return messageSent(ctx, msg)
}

// teacherMarkMessageRead marks one message (message_id) or a whole conversation (student_id) as read.
func (w *webApp) teacherMarkMessageRead(ctx echo.Context) error {
	var data MarkMessageReadRequest
	if err := ctx.Bind(&data); err != nil {
		return errInvalidRequest
	}

	reqCtx := ctx.Request().Context()
	usr := ctx.Get(contextUserKey).(user.User)

	switch {
	case data.MessageID != "":
		if err := w.msgSvc.MarkRead(reqCtx, usr.ID, data.MessageID); err != nil {
			if errors.Cause(err) == message.ErrNotFound {
				return echo.NewHTTPError(http.StatusNotFound, "Message not found")
			}
			return err
		}
		return ctx.JSON(http.StatusOK, echo.Map{"success": true, "message": "Message marked as read"})
	case data.StudentID != "":
		count, err := w.msgSvc.MarkConversationRead(reqCtx, data.StudentID, usr.ID)
		if err != nil {
			return errors.Wrap(err, "marking conversation read")
		}
		return ctx.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "Marked " + strconv.Itoa(count) + " messages as read",
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, "Missing message_id or student_id")
}

// Notifications

func (w *webApp) listNotifications(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))
	notifs, err := w.notifSvc.List(ctx.Request().Context(), usr.ID, unreadOnly)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (w *webApp) markNotificationRead(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	if err := w.notifSvc.MarkRead(ctx.Request().Context(), usr.ID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true})
}

func (w *webApp) markAllNotificationsRead(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	count, err := w.notifSvc.MarkAllRead(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true, "updated": count})
}


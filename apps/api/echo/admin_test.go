package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
)

type absenceFixture struct {
	*testApp
	admin    []*http.Cookie
	teacher  user.User
	sub      user.User
	students []user.User
	lessons  []timetable.Entry
}

func newAbsenceFixture(t *testing.T) absenceFixture {
	a := setup(t)
	a.srv.web.now = func() time.Time { return time.Date(2021, 1, 11, 9, 0, 0, 0, time.UTC) } // Monday

	f := absenceFixture{
		testApp: a,
		admin:   a.sessionCookies(t, a.createUser(t, "Ada Admin", "ada", user.RoleAdmin)),
		teacher: a.createUser(t, "Bob Teacher", "bob", user.RoleTeacher),
		sub:     a.createUser(t, "Sue Teacher", "sue", user.RoleTeacher),
		students: []user.User{
			a.createUser(t, "Carol Student", "carol", user.RoleStudent),
			a.createUser(t, "Dan Student", "dan", user.RoleStudent),
		},
	}
	for _, ne := range []timetable.NewEntry{
		{Day: "Monday", Period: "10:00", Subject: "Physics", Teacher: "bob", Classroom: "Room 2"},
		{Day: "Monday", Period: "08:00", Subject: "Chemistry", Teacher: "bob", Classroom: "Room 1"},
		{Day: "Tuesday", Period: "08:00", Subject: "Physics", Teacher: "bob", Classroom: "Room 1"},
		{Day: "Monday", Period: "08:00", Subject: "History", Teacher: "sue", Classroom: "Room 3"},
	} {
		entry, err := a.ttSvc.Create(context.Background(), ne)
		require.NoError(t, err)
		f.lessons = append(f.lessons, entry)
	}
	return f
}

func TestWeb_MarkAbsent(t *testing.T) {
	f := newAbsenceFixture(t)
	ctx := context.Background()

	t.Run("not an admin", func(t *testing.T) {
		cookies := f.sessionCookies(t, f.students[0])
		rec := f.serve(newRequest(http.MethodPost, "/admin/mark_absent", []byte(`{"teacher_username": "bob"}`), cookies...))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("unknown teacher", func(t *testing.T) {
		rec := f.serve(newRequest(http.MethodPost, "/admin/mark_absent", []byte(`{"teacher_username": "carol"}`), f.admin...))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error": "Teacher not found."}`, rec.Body.String())
	})

	t.Run("blank username", func(t *testing.T) {
		rec := f.serve(newRequest(http.MethodPost, "/admin/mark_absent", []byte(`{"teacher_username": "  "}`), f.admin...))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("absent", func(t *testing.T) {
		rec := f.serve(newRequest(http.MethodPost, "/admin/mark_absent", []byte(`{"teacher_username": "Bob"}`), f.admin...))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Message string            `json:"message"`
			Teacher user.User         `json:"teacher"`
			Lessons []timetable.Entry `json:"lessons"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "bob marked as absent. Students notified.", resp.Message)
		assert.True(t, resp.Teacher.IsAbsent)
		require.Len(t, resp.Lessons, 2)
		assert.Equal(t, "08:00", resp.Lessons[0].Period)
		assert.Equal(t, "10:00", resp.Lessons[1].Period)
		assert.Equal(t, []string{"bob marked as absent. Students notified."}, f.flashes(t, mergeCookies(f.admin, rec)))

		bob, err := f.usrSvc.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, bob.IsAbsent)

		for _, student := range f.students {
			notifs, err := f.notifSvc.List(ctx, student.ID, true /* unreadOnly */)
			require.NoError(t, err)
			require.Len(t, notifs, 1)
			assert.Equal(t, "Your teacher bob is absent today.", notifs[0].Message)
		}
		notifs, err := f.notifSvc.List(ctx, f.sub.ID, false)
		require.NoError(t, err)
		assert.Empty(t, notifs)

		sent := f.mailSvc.SentMessages()
		require.Len(t, sent, len(f.students))
		assert.Equal(t, "notification", sent[0].TemplateName)
	})

	t.Run("present", func(t *testing.T) {
		rec := f.serve(newRequest(http.MethodPost, "/admin/mark_present", []byte(`{"teacher_username": "bob"}`), f.admin...))
		require.Equal(t, http.StatusOK, rec.Code)

		bob, err := f.usrSvc.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, bob.IsAbsent)
	})
}

func TestWeb_Substitute(t *testing.T) {
	f := newAbsenceFixture(t)
	ctx := context.Background()
	mondayIDs := []string{f.lessons[0].ID, f.lessons[1].ID}

	absent := f.createUser(t, "Abe Teacher", "abe", user.RoleTeacher)
	_, err := f.usrSvc.SetAbsent(ctx, absent, true)
	require.NoError(t, err)

	invalidSub := []byte(`{"substitute": "substitute must be an active teacher who is not absent"}`)
	tests := []httpTest{
		{
			name:     "no lessons",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{Substitute: "sue"}),
			cookies:  f.admin,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown substitute",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{EntryIDs: mondayIDs, Substitute: "zed"}),
			cookies:  f.admin,
			wantCode: http.StatusBadRequest,
			wantData: invalidSub,
		},
		{
			name:     "student substitute",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{EntryIDs: mondayIDs, Substitute: "carol"}),
			cookies:  f.admin,
			wantCode: http.StatusBadRequest,
			wantData: invalidSub,
		},
		{
			name:     "absent substitute",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{EntryIDs: mondayIDs, Substitute: "abe"}),
			cookies:  f.admin,
			wantCode: http.StatusBadRequest,
			wantData: invalidSub,
		},
		{
			name:     "unknown lessons",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{EntryIDs: []string{"nope"}, Substitute: "sue"}),
			cookies:  f.admin,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"error": "timetable entry not found"}`),
		},
		{
			name:     "reassigned",
			method:   http.MethodPost,
			path:     "/admin/substitute",
			body:     marshalObj(t, timetable.Substitution{EntryIDs: mondayIDs, Substitute: "SUE"}),
			cookies:  f.admin,
			wantCode: http.StatusOK,
			wantData: []byte(`{"success": true, "updated": 2}`),
		},
	}
	runHTTPTests(t, f.testApp, tests)

	lessons, err := f.ttSvc.TeacherLessons(ctx, "sue", "Monday")
	require.NoError(t, err)
	assert.Len(t, lessons, 3)
	lessons, err = f.ttSvc.TeacherLessons(ctx, "bob", "")
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "Tuesday", lessons[0].Day)

	notifs, err := f.notifSvc.List(ctx, f.sub.ID, true /* unreadOnly */)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "You have been assigned as a substitute for 2 lessons.", notifs[0].Message)
}

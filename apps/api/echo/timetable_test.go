package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
)

func Test_timetableApi(t *testing.T) {
	a := setup(t)
	ctx := context.Background()
	teacher := a.createUser(t, "Tom Teacher", "tom", user.RoleTeacher)
	admin := a.createUser(t, "Ada Admin", "ada", user.RoleAdmin)
	teacherToken := a.token(t, teacher)

	physics, err := a.ttSvc.Create(ctx, timetable.NewEntry{Day: "Monday", Period: "08:00", Subject: "Physics", Teacher: "tom", Classroom: "Room 1"})
	require.NoError(t, err)
	history, err := a.ttSvc.Create(ctx, timetable.NewEntry{Day: "Tuesday", Period: "10:00", Subject: "History", Teacher: "sue", Classroom: "Room 2"})
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/timetable", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "all", path: "/v1/timetable", token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, []timetable.Entry{physics, history})},
		{name: "by teacher", path: "/v1/timetable?teacher=sue", token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, []timetable.Entry{history})},
		{name: "by day and classroom", path: "/v1/timetable?day=Monday&classroom=Room%202", token: teacherToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{
			name: "availability", path: "/v1/timetable/availability?classroom=Room%201&date=" + testMonday, token: teacherToken, wantCode: http.StatusOK,
			wantData: []byte(`{"classroom": "Room 1", "date": "2021-01-11", "day": "Monday", "unavailable_slots": ["08:00"]}`),
		},
		{
			name: "double booking", method: http.MethodPost, path: "/v1/timetable/bookings", token: teacherToken,
			body:     newBookingBody(t, "Room 1", testMonday, "08:00"),
			wantCode: http.StatusConflict, wantData: []byte(`{"error": "this classroom is already booked at this time"}`),
		},
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/timetable/bookings", token: teacherToken,
			body: []byte(`{"eventTitle": "Exam"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create requires admin", method: http.MethodPost, path: "/v1/timetable", token: teacherToken,
			body: []byte(`{"day": "Monday", "period": "12:00", "subject": "Biology", "classroom": "Room 3"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create unknown day", method: http.MethodPost, path: "/v1/timetable", token: a.token(t, admin),
			body: []byte(`{"day": "Funday", "period": "12:00", "subject": "Biology", "classroom": "Room 3"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "create blank fields", method: http.MethodPost, path: "/v1/timetable", token: a.token(t, admin),
			body: []byte(`{"day": "Monday", "period": " ", "subject": "", "classroom": "Room 3"}`), wantCode: http.StatusBadRequest,
		},
		{name: "delete requires admin", method: http.MethodDelete, path: "/v1/timetable/" + history.ID, token: teacherToken, wantCode: http.StatusForbidden},
		{name: "delete unknown", method: http.MethodDelete, path: "/v1/timetable/nope", token: a.token(t, admin), wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/v1/timetable/" + history.ID, token: a.token(t, admin), wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, a, tests)

	rec := a.serve(httpTest{
		method: http.MethodPost, path: "/v1/timetable/bookings", token: teacherToken,
		body: newBookingBody(t, "Room 1", testMonday, "10:00"),
	}.request())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry timetable.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, teacher.ID, entry.BookedBy)

	entries, err := a.ttSvc.Query(ctx, timetable.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	rec = a.serve(httpTest{
		method: http.MethodPost, path: "/v1/timetable", token: a.token(t, admin),
		body: []byte(`{"day": " Wednesday", "period": "12:00", "subject": "Biology", "teacher": "tom", "classroom": "Room 3"}`),
	}.request())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "Wednesday", entry.Day)
	assert.Equal(t, "tom", entry.Teacher)

	rec = a.serve(httpTest{
		method: http.MethodPost, path: "/v1/timetable", token: a.token(t, admin),
		body: []byte(`{"day": "Funday", "period": "12:00", "subject": "Biology", "classroom": "Room 3"}`),
	}.request())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fldErrs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fldErrs))
	assert.Contains(t, fldErrs, "day")
}

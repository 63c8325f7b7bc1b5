package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/user"
	testutil "github.com/trezcool/ratiba/tests"
)

func Test_userApi_query(t *testing.T) {
	a := setup(t)
	repo := a.store.Users

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now()
	student := testutil.CreateUser(t, repo, "Hero", "hero", "user3@school.test", "", []string{user.RoleStudent}, true, now.Add(1*time.Hour))
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@school.test", "", []string{user.RoleAdmin}, true, now.Add(2*time.Hour))
	principal := testutil.CreateUser(t, repo, "Principal", "princip", "princip@school.test", "", []string{user.RoleAdminPrincipal}, true, now.Add(3*time.Hour))
	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@school.test", "", []string{user.RoleTeacher}, true, now.Add(4*time.Hour))
	naughty := testutil.CreateUser(t, repo, "N Dog", "ndog", "ndog@school.test", "", []string{user.RoleStudent}, false, now.Add(5*time.Hour))

	adminToken := a.token(t, admin)
	empty := []byte(`[]`)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Admin required", path: "/v1/users", token: a.token(t, student), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Get all", path: "/v1/users", token: adminToken, wantData: marshalObj(t, []user.User{naughty, teacher, principal, admin, student})},
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=TEACH", path: path("TEACH", "", nil), token: adminToken, wantData: marshalObj(t, []user.User{teacher})},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantData: marshalObj(t, []user.User{principal, admin})},
		{
			name: "role=teacher:,student:", path: path("", "", nil, user.RoleTeacher, user.RoleStudent),
			token: adminToken, wantData: marshalObj(t, []user.User{naughty, teacher, student}),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marshalObj(t, []user.User{naughty})},
		{
			name: "order by created_at", path: path("", "created_at", nil), token: adminToken,
			wantData: marshalObj(t, []user.User{student, admin, principal, teacher, naughty}),
		},
		{
			name: "order by -is_active,name", path: path("", "-is_active,name", nil), token: adminToken,
			wantData: marshalObj(t, []user.User{admin, student, principal, teacher, naughty}),
		},
	}
	for i := range tests {
		if tests[i].wantCode == 0 {
			tests[i].wantCode = http.StatusOK
		}
	}
	runHTTPTests(t, a, tests)
}

func Test_userApi_login(t *testing.T) {
	a := setup(t)
	a.createUser(t, "Hero", "hero", user.RoleStudent)

	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, body: []byte(`{}`)},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, LoginRequest{Username: "hero", Password: "nope"}),
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{name: "logged in", wantCode: http.StatusOK, body: marshalObj(t, LoginRequest{Username: "HERO", Password: testPassword})},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.serve(tt.request())
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Token)

				usr, err := a.usrSvc.GetByUsername(context.Background(), "hero")
				require.NoError(t, err)
				assert.False(t, usr.LastLogin.IsZero())
			}
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	a := setup(t)
	naughty := testutil.CreateUser(t, a.store.Users, "N Dog", "ndog", "ndog@school.test", "", []string{user.RoleStudent}, false)
	student := a.createUser(t, "Hero", "hero", user.RoleStudent)

	old := time.Now().Add(-2 * a.conf.Server.JWTRefreshExpirationDelta).Unix()
	unrefreshableToken, err := a.srv.auth.generateToken(a.srv.auth.userClaims(student, old))
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Inactive user not allowed", token: a.token(t, naughty), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: a.token(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.serve(tt.request())
			checkCodeAndData(t, tt, rec)

			// cannot guess new token.. just check that it carries the original issue time
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				claims := new(Claims)
				_, _, err := new(jwt.Parser).ParseUnverified(resp.Token, claims)
				require.NoError(t, err)
				assert.Equal(t, student.ID, claims.Subject)
				assert.NotZero(t, claims.OrigIssuedAt)
			}
		})
	}
}

func Test_userApi_passwordReset(t *testing.T) {
	a := setup(t)
	student := a.createUser(t, "Hero", "hero", user.RoleStudent)
	successData := marshalObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, body: []byte(`{}`), wantData: []byte(`{"email": "this field is required"}`)},
		{name: "invalid email", wantCode: http.StatusBadRequest, body: []byte(`{"email": "lol"}`), wantData: []byte(`{"email": "email must be a valid email address"}`)},
		{name: "unknown email", wantCode: http.StatusOK, body: []byte(`{"email": "lol@school.test"}`), wantData: successData},
		{name: "known email", wantCode: http.StatusOK, body: marshalObj(t, PasswordResetRequest{Email: "HERO@school.test"}), wantData: successData},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset"
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.serve(tt.request()))
		})
	}

	sent := a.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, student.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, student.Name)
	assert.Contains(t, msg.HTMLContent, student.Name)

	match := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s"]+)`).FindStringSubmatch(msg.TextContent)
	require.Len(t, match, 3, "reset link not found in %q", msg.TextContent)
	uid, token := match[1], strings.TrimSpace(match[2])

	newPwd := "N3w-Ratiba#Pwd"
	confirm := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, body: []byte(`{}`)},
		{
			name: "too common", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "P@$$w0rd", PasswordConfirm: "P@$$w0rd"}),
			wantData: []byte(`{"password": "password is too common"}`),
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marshalObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: []byte(`{"error": "invalid token"}`),
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marshalObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marshalObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	}
	for _, tt := range confirm {
		tt.method = http.MethodPost
		tt.path = "/v1/users/password-reset-confirm"
		t.Run("confirm "+tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.serve(tt.request()))
		})
	}

	rec := a.serve(newRequest(http.MethodPost, "/v1/users/login", marshalObj(t, LoginRequest{Username: "hero", Password: newPwd})))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_detail(t *testing.T) {
	a := setup(t)
	admin := a.createUser(t, "Admin", "admin", user.RoleAdmin)
	student := a.createUser(t, "Hero", "hero", user.RoleStudent)
	other := a.createUser(t, "Other", "other", user.RoleStudent)
	studentToken := a.token(t, student)
	adminToken := a.token(t, admin)

	tests := []httpTest{
		{name: "own profile", path: "/v1/users/" + student.ID, token: studentToken, wantCode: http.StatusOK, wantData: marshalObj(t, student)},
		{name: "another profile", path: "/v1/users/" + other.ID, token: studentToken, wantCode: http.StatusNotFound, wantData: []byte(`{"error": "not found"}`)},
		{name: "admin", path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusOK, wantData: marshalObj(t, other)},
		{
			name: "student cannot change roles", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot grant owner", method: http.MethodPut, path: "/v1/users/" + student.ID, token: adminToken,
			body: []byte(`{"roles": ["admin:owner"]}`), wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
		{
			name: "telegram chat", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body: []byte(`{"name": "Hero Renamed", "telegram_chat_id": 4242}`), wantCode: http.StatusOK,
		},
		{name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	runHTTPTests(t, a, tests)

	usr, err := a.usrSvc.GetByID(context.Background(), student.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hero Renamed", usr.Name)
	assert.Equal(t, int64(4242), usr.TelegramChatID)

	_, err = a.usrSvc.GetByID(context.Background(), other.ID)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

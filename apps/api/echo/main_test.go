package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/message"
	"github.com/trezcool/ratiba/core/notification"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	"github.com/trezcool/ratiba/services/notifier"
	"github.com/trezcool/ratiba/storage/database"
	inmemdb "github.com/trezcool/ratiba/storage/database/inmem"
	testutil "github.com/trezcool/ratiba/tests"
)

const testPassword = "Sch00l-Ratiba!9"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	srv      *server
	conf     *core.Config
	store    *database.Store
	logger   *testutil.Logger
	mailSvc  *emailsvc.ConsoleServiceMock
	usrSvc   *user.Service
	ttSvc    *timetable.Service
	notifSvc *notification.Service
	msgSvc   *message.Service
}

func setup(t *testing.T, confOpts ...func(*core.Config)) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	for _, opt := range confOpts {
		opt(conf)
	}

	validate, translator := testutil.NewValidator(t)
	require.NoError(t, core.ParseEmailTemplates(conf))

	store := database.NewMemoryStore(inmemdb.Open())
	t.Cleanup(func() { _ = store.Close() })

	logger := new(testutil.Logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	a := &testApp{
		conf:     conf,
		store:    store,
		logger:   logger,
		mailSvc:  mailSvc,
		usrSvc:   user.NewService(store.Users, mailSvc, conf),
		ttSvc:    timetable.NewService(store.Timetable, validate, conf),
		notifSvc: notification.NewService(store.Notifications, notifier.NewEmailChannel(mailSvc)),
		msgSvc:   message.NewService(store.Messages, validate),
	}
	a.srv = NewServer(conf, nil, &Deps{
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		UserSvc:         a.usrSvc,
		TimetableSvc:    a.ttSvc,
		NotificationSvc: a.notifSvc,
		MessageSvc:      a.msgSvc,
	}).(*server)
	return a
}

func (a *testApp) createUser(t *testing.T, name, uname string, roles ...string) user.User {
	return testutil.CreateUser(t, a.store.Users, name, uname, uname+"@school.test", testPassword, roles, true)
}

// sessionCookies returns the cookies of a session logged in as usr.
func (a *testApp) sessionCookies(t *testing.T, usr user.User) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	sess, err := a.srv.web.store.New(req, a.srv.web.sessionName)
	require.NoError(t, err)
	sess.Values[sessionUserIDKey] = usr.ID
	sess.Values[sessionRoleKey] = usr.RoleName()
	require.NoError(t, sess.Save(req, rec))
	return rec.Result().Cookies()
}

func (a *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := a.srv.auth.generateToken(a.srv.auth.userClaims(usr))
	require.NoError(t, err)
	return token
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.srv.ServeHTTP(rec, req)
	return rec
}

// flashes reads the pending flash messages of the session carried by cookies.
func (a *testApp) flashes(t *testing.T, cookies []*http.Cookie) []string {
	t.Helper()
	rec := a.serve(newRequest(http.MethodGet, "/login", nil, cookies...))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Flashes []string `json:"flashes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Flashes
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	cookies  []*http.Cookie
	wantCode int
	wantData []byte
}

func (tt httpTest) request() *http.Request {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req := newRequest(method, tt.path, tt.body, tt.cookies...)
	if tt.token != "" {
		req.Header.Set("Authorization", "Bearer "+tt.token)
	}
	return req
}

func newRequest(method, path string, body []byte, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

// mergeCookies returns cookies updated with the ones set by rec.
func mergeCookies(cookies []*http.Cookie, rec *httptest.ResponseRecorder) []*http.Cookie {
	byName := make(map[string]*http.Cookie)
	order := make([]string, 0, len(cookies))
	for _, c := range append(cookies, rec.Result().Cookies()...) {
		if _, ok := byName[c.Name]; !ok {
			order = append(order, c.Name)
		}
		byName[c.Name] = c
	}
	merged := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, a *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.serve(tt.request()))
		})
	}
}

package echoapi

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	bolt "go.etcd.io/bbolt"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/timetable"
	testutil "github.com/trezcool/ratiba/tests"
)

func Test_newAppHTTPErrorHandler(t *testing.T) {
	_, translator := testutil.NewValidator(t)

	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantShutdown bool
	}{
		{name: "not found", err: errors.Wrap(timetable.ErrNotFound, "getting entry"), wantCode: http.StatusNotFound},
		{name: "slot taken", err: timetable.ErrSlotTaken, wantCode: http.StatusConflict},
		{name: "validation", err: core.NewValidationError(errors.New("invalid token")), wantCode: http.StatusBadRequest},
		{name: "server error", err: errors.New("boom"), wantCode: http.StatusInternalServerError},
		{name: "shutdown", err: core.NewShutdownError("bye"), wantCode: http.StatusInternalServerError, wantShutdown: true},
		{name: "sql conn done", err: errors.Wrap(sql.ErrConnDone, "querying"), wantCode: http.StatusInternalServerError, wantShutdown: true},
		{name: "bolt closed", err: errors.Wrap(bolt.ErrDatabaseNotOpen, "querying"), wantCode: http.StatusInternalServerError, wantShutdown: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var shutdown bool
			logger := &testutil.Logger{}
			handler := newAppHTTPErrorHandler(logger, translator, func() { shutdown = true })

			e := echo.New()
			rec := httptest.NewRecorder()
			handler(tt.err, e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantShutdown, shutdown)
			if tt.wantCode == http.StatusInternalServerError {
				assert.Equal(t, 1, logger.ErrorCount())
				assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
			}
		})
	}
}

func Test_server_signalShutdown(t *testing.T) {
	shutdown := make(chan os.Signal, 1)
	srv := &server{shutdown: shutdown}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			srv.signalShutdown()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("signalShutdown() blocked")
	}
	assert.Equal(t, syscall.SIGTERM, <-shutdown)
	assert.Len(t, shutdown, 0)

	// no listener at all
	(&server{}).signalShutdown()
}

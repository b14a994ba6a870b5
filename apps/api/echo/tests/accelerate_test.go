package tests

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/NickGuerrero/cti-sys/apps/api/echo"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
)

func Test_accelerateApi_processAttendance(t *testing.T) {
	path := "/api/students/accelerate/process-attendance"

	db, app := setup(t, newConfig("TEST"))
	runHTTPTests(t, app, []httpTest{
		{
			name: "all active students", method: http.MethodPost, path: path, token: adminKey, wantCode: http.StatusOK,
			wantData: []byte(`{"status": 200, "students_updated": 2}`),
		},
		{
			name: "trailing slash", method: http.MethodPost, path: path + "/", token: adminKey, wantCode: http.StatusOK,
			wantData: []byte(`{"status": 200, "students_updated": 2}`),
		},
	})

	var sessions int
	require.NoError(t, db.Get(&sessions, "SELECT sessions_attended FROM accelerate WHERE cti_id = 1"))
	assert.Equal(t, 1, sessions)

	_, app = setup(t, newConfig("TEST"), func(deps *ServerDeps) {
		deps.MetricsSvc = stubMetricsSvc{err: participation.ErrJobRunning}
	})
	runHTTPTests(t, app, []httpTest{
		{
			name: "already running", method: http.MethodPost, path: path, token: adminKey, wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: participation.ErrJobRunning.Error()}),
		},
	})

	_, app = setup(t, newConfig("TEST"), func(deps *ServerDeps) {
		deps.MetricsSvc = stubMetricsSvc{err: errors.New("connection refused")}
	})
	runHTTPTests(t, app, []httpTest{
		{
			name: "database error", method: http.MethodPost, path: path, token: adminKey, wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "Database error: connection refused"}),
		},
	})
}

func Test_accelerateApi_checkActivity(t *testing.T) {
	path := "/api/students/accelerate/check-activity"

	t.Run("details outside production", func(t *testing.T) {
		db, app := setup(t, newConfig("DEV"))
		req, rec := newAuthRequest(http.MethodPost, path, adminKey)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var rep activity.Report
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
		assert.Equal(t, 200, rep.Status)
		assert.Equal(t, 2, rep.StudentsProcessed)
		assert.Equal(t, 1, rep.StudentsMarkedActive)
		assert.Equal(t, 1, rep.StudentsMarkedInactive)
		assert.Empty(t, rep.Errors)
		require.Len(t, rep.Details, 2)
		assert.Equal(t, "Ada Lovelace", rep.Details[0].Name)
		assert.True(t, rep.Details[0].AttendanceActivity)
		assert.Equal(t, "alan@cti.org", rep.Details[1].Email.String)
		assert.False(t, rep.Details[1].Active)

		var active bool
		require.NoError(t, db.Get(&active, "SELECT active FROM accelerate WHERE cti_id = 2"))
		assert.False(t, active)
	})

	t.Run("no details in production", func(t *testing.T) {
		_, app := setup(t, newConfig("PROD"))
		runHTTPTests(t, app, []httpTest{
			{
				name: "report", method: http.MethodPost, path: path, token: adminKey, wantCode: http.StatusOK,
				wantData: []byte(`{
					"status": 200,
					"students_processed": 2,
					"students_marked_active": 1,
					"students_marked_inactive": 1,
					"errors": []
				}`),
			},
		})
	})
}

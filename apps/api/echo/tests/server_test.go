package tests

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_server_home(t *testing.T) {
	_, app := setup(t, newConfig("TEST"))

	runHTTPTests(t, app, []httpTest{
		{name: "home", method: http.MethodGet, path: "/", wantCode: http.StatusOK, wantData: []byte(`{"message": "cti-sys v1.0.0"}`)},
		{
			name: "test connection", method: http.MethodGet, path: "/test-connection", wantCode: http.StatusOK,
			wantData: []byte(`{"message": "Database connection succeeded"}`),
		},
	})
}

func Test_server_testConnectionFails(t *testing.T) {
	db, app := setup(t, newConfig("TEST"))
	_ = db.Close()

	runHTTPTests(t, app, []httpTest{
		{
			name: "database closed", method: http.MethodGet, path: "/test-connection", wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "Database Inaccessible"}),
		},
	})
}

func Test_server_metrics(t *testing.T) {
	_, app := setup(t, newConfig("TEST"))

	req, rec := newAuthRequest(http.MethodPost, "/api/students/accelerate/process-attendance", adminKey)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cti_accelerate_job_runs_total{job="accelerate_metrics",outcome="success"} 1`), body)
	assert.True(t, strings.Contains(body, `cti_accelerate_job_students_processed_total{job="accelerate_metrics"} 2`), body)
	assert.True(t, strings.Contains(body, `route="/api/students/accelerate/process-attendance"`), body)
}

func Test_server_apiKey(t *testing.T) {
	_, app := setup(t, newConfig("TEST"))
	path := "/api/students/accelerate/process-attendance"

	runHTTPTests(t, app, []httpTest{
		{name: "missing key", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingKey)},
		{name: "invalid key", method: http.MethodPost, path: path, token: "guess", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingKey)},
	})

	conf := newConfig("TEST")
	conf.AdminKey = ""
	_, app = setup(t, conf)
	runHTTPTests(t, app, []httpTest{
		{
			name: "no admin key configured", method: http.MethodPost, path: path, token: "anything", wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "server misconfigured: missing admin key"}),
		},
	})
}

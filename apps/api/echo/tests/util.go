package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	. "github.com/NickGuerrero/cti-sys/apps/api/echo"
	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
	"github.com/NickGuerrero/cti-sys/core/student"
	"github.com/NickGuerrero/cti-sys/fs"
	"github.com/NickGuerrero/cti-sys/services/email"
	"github.com/NickGuerrero/cti-sys/services/metrics"
	"github.com/NickGuerrero/cti-sys/storage/database/sqlx"
	"github.com/NickGuerrero/cti-sys/tests"
)

const adminKey = "s3cr3t"

var errMissingKey = httpErr{Error: "invalid or missing API key"}

type noLogins struct{}

func (noLogins) LastLogin(context.Context, int) (*time.Time, error) { return nil, nil }

// stubMetricsSvc replaces the metrics job in error scenarios.
type stubMetricsSvc struct {
	err error
}

func (s stubMetricsSvc) ProcessAccelerateMetrics(context.Context) (participation.Result, error) {
	return participation.Result{}, s.err
}

func newConfig(env string) *core.Config {
	conf := &core.Config{
		Env:      env,
		TestMode: true,
		AppName:  "CTI Accelerate",
		AdminKey: adminKey,
	}
	conf.Activity.AttendanceThresholdWeeks = 2
	conf.Activity.CanvasThresholdWeeks = 2
	return conf
}

// setup seeds two active Accelerate students and returns a server wired to an in-memory database.
// Ada attended a session two days ago; Alan never did.
func setup(t *testing.T, conf *core.Config, override ...func(*ServerDeps)) (*sqlx.DB, Server) {
	db := testutil.PrepareDB(t)
	testutil.CreateStudent(t, db, 1, "Ada", "Lovelace", "ada@cti.org", "ada@home.net")
	testutil.CreateStudent(t, db, 2, "Alan", "Turing", "alan@cti.org")
	testutil.EnrollAccelerate(t, db, 1, true)
	testutil.EnrollAccelerate(t, db, 2, true)
	testutil.CreateSession(t, db, 10, activity.Program, time.Now().UTC().Add(-48*time.Hour))
	testutil.RecordAttendance(t, db, 1, 10, 1)

	logger := testutil.NopLogger{}
	metrics := metricsvc.NewManager()

	core.ParseEmailTemplates(appfs.FS, true, logger)
	emailsvc.ResetSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	deps := ServerDeps{
		Conf:        conf,
		Logger:      logger,
		DB:          db,
		Metrics:     metrics,
		MetricsSvc:  participation.NewService(sqlxrepos.NewAccelerateRepository(db), nil, time.UTC, logger, metrics),
		ActivitySvc: activity.NewService(db, sqlxrepos.NewActivityRepository(db), noLogins{}, time.UTC, logger, metrics),
		StudentSvc:  student.NewService(db, sqlxrepos.NewStudentRepository(db), mailSvc),
		Validate:    validate,
		Translator:  translator,
	}
	for _, fn := range override {
		fn(&deps)
	}
	return db, NewServer(deps)
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
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
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

func runHTTPTests(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

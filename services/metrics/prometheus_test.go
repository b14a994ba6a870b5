package metricsvc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager_ObserveJob(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		m := NewManager(WithRegistry(prometheus.NewRegistry()))

		Convey("When a job succeeds", func() {
			m.ObserveJob("accelerate_metrics", 1.5, 12, nil)

			Convey("Then the run, the students and the success time are recorded", func() {
				So(promtest.ToFloat64(m.jobRuns.WithLabelValues("accelerate_metrics", outcomeSuccess)), ShouldEqual, 1)
				So(promtest.ToFloat64(m.jobRuns.WithLabelValues("accelerate_metrics", outcomeFailure)), ShouldEqual, 0)
				So(promtest.ToFloat64(m.jobProcessed.WithLabelValues("accelerate_metrics")), ShouldEqual, 12)
				So(promtest.ToFloat64(m.jobLastSuccess.WithLabelValues("accelerate_metrics")), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When a job fails", func() {
			m.ObserveJob("accelerate_activity", 0.2, 0, errors.New("boom"))

			Convey("Then only a failed run is recorded", func() {
				So(promtest.ToFloat64(m.jobRuns.WithLabelValues("accelerate_activity", outcomeFailure)), ShouldEqual, 1)
				So(promtest.ToFloat64(m.jobProcessed.WithLabelValues("accelerate_activity")), ShouldEqual, 0)
				So(promtest.ToFloat64(m.jobLastSuccess.WithLabelValues("accelerate_activity")), ShouldEqual, 0)
			})
		})
	})
}

func TestManager_Middleware(t *testing.T) {
	Convey("Given an echo app instrumented by the manager", t, func() {
		m := NewManager(WithNamespace("test"), WithSubsystem("api"), WithHistogramBuckets([]float64{0.1, 1}))
		app := echo.New()
		app.Use(m.Middleware())
		app.GET("/students/:id", func(ctx echo.Context) error {
			return ctx.NoContent(http.StatusOK)
		})
		app.POST("/jobs", func(ctx echo.Context) error {
			return echo.NewHTTPError(http.StatusConflict, "job already running")
		})

		serve := func(method, path string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			app.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
			return rec
		}

		Convey("When requests are served", func() {
			serve(http.MethodGet, "/students/1")
			serve(http.MethodGet, "/students/2")
			rec := serve(http.MethodPost, "/jobs")

			Convey("Then they are counted by route and final status", func() {
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(promtest.ToFloat64(m.httpRequests.WithLabelValues("/students/:id", http.MethodGet, "200")), ShouldEqual, 2)
				So(promtest.ToFloat64(m.httpRequests.WithLabelValues("/jobs", http.MethodPost, "409")), ShouldEqual, 1)
			})

			Convey("Then they are exposed by the handler", func() {
				rec := httptest.NewRecorder()
				m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `test_api_http_requests_total{method="POST",route="/jobs",status_code="409"} 1`)
			})
		})
	})
}

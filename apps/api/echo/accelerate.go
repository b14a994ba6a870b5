package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
)

type accelerateApi struct {
	metricsSvc  participation.ServiceInterface
	activitySvc activity.ServiceInterface
	conf        *core.Config
}

func registerAccelerateAPI(g *echo.Group, metricsSvc participation.ServiceInterface, activitySvc activity.ServiceInterface, conf *core.Config) {
	api := accelerateApi{
		metricsSvc:  metricsSvc,
		activitySvc: activitySvc,
		conf:        conf,
	}

	ag := g.Group("/students/accelerate")
	ag.POST("/process-attendance", api.processAttendance)
	ag.POST("/check-activity", api.checkActivity)
}

type processAttendanceResponse struct {
	Status          int `json:"status"`
	StudentsUpdated int `json:"students_updated"`
}

// activityReportResponse drops the per-student details.
type activityReportResponse struct {
	activity.Report
	Details []activity.StudentActivity `json:"details,omitempty"`
}

// Handlers

func (api *accelerateApi) processAttendance(ctx echo.Context) error {
	res, err := api.metricsSvc.ProcessAccelerateMetrics(ctx.Request().Context())
	if err != nil {
		if errors.Cause(err) == participation.ErrJobRunning {
			return err
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Database error: "+err.Error()).SetInternal(err)
	}
	return ctx.JSON(http.StatusOK, processAttendanceResponse{Status: http.StatusOK, StudentsUpdated: res.StudentsUpdated})
}

func (api *accelerateApi) checkActivity(ctx echo.Context) error {
	th := activity.Thresholds{
		AttendanceWeeks: api.conf.Activity.AttendanceThresholdWeeks,
		CanvasWeeks:     api.conf.Activity.CanvasThresholdWeeks,
	}
	rep, err := api.activitySvc.CheckAllStudents(ctx.Request().Context(), th)
	if err != nil {
		return errors.Wrap(err, "checking students activity")
	}

	if api.conf.IsProduction() {
		return ctx.JSON(http.StatusOK, activityReportResponse{Report: rep})
	}
	return ctx.JSON(http.StatusOK, rep)
}

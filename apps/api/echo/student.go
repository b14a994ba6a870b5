package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/student"
)

type studentApi struct {
	svc      student.ServiceInterface
	validate *validator.Validate
	conf     *core.Config
}

func registerStudentAPI(g *echo.Group, svc student.ServiceInterface, validate *validator.Validate, conf *core.Config) {
	api := studentApi{
		svc:      svc,
		validate: validate,
		conf:     conf,
	}

	sg := g.Group("/students")
	sg.GET("/alternate-emails", api.currentEmails)
	sg.POST("/alternate-emails", api.modifyEmails)
}

// emailsResponse carries the summary outside production only.
type emailsResponse struct {
	Status int `json:"status"`
	*student.EmailSummary
}

// Handlers

func (api *studentApi) modifyEmails(ctx echo.Context) error {
	var data student.AlternateEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AlternateEmailRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	summary, err := api.svc.ModifyEmails(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.emailsResponse(summary))
}

func (api *studentApi) currentEmails(ctx echo.Context) error {
	email := core.CleanString(ctx.QueryParam("email"))
	if email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
	}

	summary, err := api.svc.CurrentEmails(ctx.Request().Context(), email)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.emailsResponse(summary))
}

func (api *studentApi) emailsResponse(summary student.EmailSummary) emailsResponse {
	res := emailsResponse{Status: http.StatusOK}
	if !api.conf.IsProduction() {
		res.EmailSummary = &summary
	}
	return res
}

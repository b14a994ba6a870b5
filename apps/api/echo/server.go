package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
	"github.com/NickGuerrero/cti-sys/core/student"
	"github.com/NickGuerrero/cti-sys/services/metrics"
	"github.com/NickGuerrero/cti-sys/storage/database"
)

const version = "cti-sys v1.0.0"

type (
	ServerDeps struct {
		Conf        *core.Config
		Logger      core.Logger
		DB          core.DBExecutor
		Metrics     *metricsvc.Manager
		MetricsSvc  participation.ServiceInterface
		ActivitySvc activity.ServiceInterface
		StudentSvc  student.ServiceInterface
		Validate    *validator.Validate
		Translator  ut.Translator
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.Middleware())
		s.app.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	s.app.GET("/", home)
	s.app.GET("/test-connection", s.testConnection)

	api := s.app.Group("/api", apiKeyMiddleware(conf.AdminKey))
	registerAccelerateAPI(api, s.deps.MetricsSvc, s.deps.ActivitySvc, conf)
	registerStudentAPI(api, s.deps.StudentSvc, s.deps.Validate, conf)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"message": version})
}

func (s *server) testConnection(ctx echo.Context) error {
	if err := database.StatusCheck(ctx.Request().Context(), s.deps.DB); err != nil {
		s.deps.Logger.Error("database status check failed", err)
		return errDatabaseInaccessible
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Database connection succeeded"})
}

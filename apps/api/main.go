package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/NickGuerrero/cti-sys/apps/api/echo"
	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
	"github.com/NickGuerrero/cti-sys/core/student"
	"github.com/NickGuerrero/cti-sys/fs"
	"github.com/NickGuerrero/cti-sys/services/canvas"
	"github.com/NickGuerrero/cti-sys/services/email"
	"github.com/NickGuerrero/cti-sys/services/logger"
	"github.com/NickGuerrero/cti-sys/services/metrics"
	"github.com/NickGuerrero/cti-sys/services/scheduler"
	"github.com/NickGuerrero/cti-sys/storage/database"
	"github.com/NickGuerrero/cti-sys/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	jobLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "JOBS : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	jobLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	metrics := metricsvc.NewManager()
	loc := conf.Location()

	scoring := func() participation.ScoringOptions { return participation.ScoringOptionsFrom(conf.Scoring()) }
	metricsSvc := participation.NewService(sqlxrepos.NewAccelerateRepository(db), scoring, loc, jobLogger, metrics)
	activitySvc := activity.NewService(
		db, sqlxrepos.NewActivityRepository(db), canvas.NewClient(conf), loc, jobLogger, metrics,
	)
	studentSvc := student.NewService(db, sqlxrepos.NewStudentRepository(db), mailSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf.Debug, logger)

	conf.WatchScoring(func(sc core.ScoringConfig) {
		logger.Info(fmt.Sprintf("scoring options reloaded: %+v", sc))
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	if conf.Schedule.Enabled {
		sched, err := scheduler.New(
			scheduler.Options{
				Location:     loc,
				MetricsCron:  conf.Schedule.MetricsCron,
				ActivityCron: conf.Schedule.ActivityCron,
				Thresholds: func() activity.Thresholds {
					return activity.Thresholds{
						AttendanceWeeks: conf.Activity.AttendanceThresholdWeeks,
						CanvasWeeks:     conf.Activity.CanvasThresholdWeeks,
					}
				},
			},
			metricsSvc, activitySvc, jobLogger,
		)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			DB:          db,
			Metrics:     metrics,
			MetricsSvc:  metricsSvc,
			ActivitySvc: activitySvc,
			StudentSvc:  studentSvc,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

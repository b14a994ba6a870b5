package main

import (
	"log"
	"os"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
	"github.com/NickGuerrero/cti-sys/services/canvas"
	"github.com/NickGuerrero/cti-sys/services/logger"
	"github.com/NickGuerrero/cti-sys/services/metrics"
	"github.com/NickGuerrero/cti-sys/storage/database"
	"github.com/NickGuerrero/cti-sys/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	loc := conf.Location()
	recorder := metricsvc.NewManager()
	scoring := func() participation.ScoringOptions { return participation.ScoringOptionsFrom(conf.Scoring()) }

	// start CLI
	cli := commandLine{
		db:         db,
		metricsSvc: participation.NewService(sqlxrepos.NewAccelerateRepository(db), scoring, loc, svcLogger, recorder),
		activitySvc: activity.NewService(
			db, sqlxrepos.NewActivityRepository(db), canvas.NewClient(conf), loc, svcLogger, recorder,
		),
		thresholds: activity.Thresholds{
			AttendanceWeeks: conf.Activity.AttendanceThresholdWeeks,
			CanvasWeeks:     conf.Activity.CanvasThresholdWeeks,
		},
		out: os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

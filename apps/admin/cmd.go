package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db          *sqlx.DB
	metricsSvc  participation.ServiceInterface
	activitySvc activity.ServiceInterface
	thresholds  activity.Thresholds
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate up|up-by-one|up-to VERSION|down|down-to VERSION|redo - apply or revert database migrations")
	_, _ = fmt.Fprintln(cli.out, "  processmetrics - recompute the participation metrics of active Accelerate students")
	_, _ = fmt.Fprintln(cli.out, "  checkactivity [-attendance-weeks N] [-canvas-weeks N] [-details] - update the activity status of active Accelerate students")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	processMetricsCmd := flag.NewFlagSet("processmetrics", flag.ContinueOnError)
	processMetricsCmd.SetOutput(cli.out)

	checkActivityCmd := flag.NewFlagSet("checkactivity", flag.ContinueOnError)
	checkActivityCmd.SetOutput(cli.out)
	attendanceWeeks := checkActivityCmd.Int("attendance-weeks", cli.thresholds.AttendanceWeeks, "Weeks of attendance to look back on.")
	canvasWeeks := checkActivityCmd.Int("canvas-weeks", cli.thresholds.CanvasWeeks, "Weeks of Canvas logins to look back on.")
	details := checkActivityCmd.Bool("details", false, "Print the outcome of every student.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "processmetrics":
		if err := processMetricsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.processMetrics()
	case "checkactivity":
		if err := checkActivityCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *attendanceWeeks < 0 || *canvasWeeks < 0 {
			checkActivityCmd.Usage()
			return errHelp
		}
		return cli.checkActivity(activity.Thresholds{AttendanceWeeks: *attendanceWeeks, CanvasWeeks: *canvasWeeks}, *details)
	default:
		cli.printUsage()
		return errHelp
	}
}

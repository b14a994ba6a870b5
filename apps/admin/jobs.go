package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/NickGuerrero/cti-sys/core/activity"
)

func (cli *commandLine) processMetrics() error {
	res, err := cli.metricsSvc.ProcessAccelerateMetrics(context.Background())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "run %s: %d students updated\n", res.RunID, res.StudentsUpdated)
	return nil
}

func (cli *commandLine) checkActivity(th activity.Thresholds, details bool) error {
	rep, err := cli.activitySvc.CheckAllStudents(context.Background(), th)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cli.out, "%d processed, %d active, %d inactive, %d errors\n",
		rep.StudentsProcessed, rep.StudentsMarkedActive, rep.StudentsMarkedInactive, len(rep.Errors))

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	if details && len(rep.Details) > 0 {
		_, _ = fmt.Fprintln(w, "CTI ID\tNAME\tATTENDANCE\tCANVAS\tACTIVE")
		for _, d := range rep.Details {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%t\t%t\t%t\n", d.CtiID, d.Name, d.AttendanceActivity, d.CanvasActivity, d.Active)
		}
	}
	for _, e := range rep.Errors {
		_, _ = fmt.Fprintf(w, "error\t%d\t%s\n", e.CtiID, e.Error)
	}
	return w.Flush()
}

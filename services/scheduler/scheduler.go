// Package scheduler runs the Accelerate background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/participation"
)

const (
	tagMetrics  = "accelerate_metrics"
	tagActivity = "accelerate_activity"
)

var actor = core.Actor{ID: "scheduler", Name: "cron"}

type (
	Options struct {
		Location     *time.Location
		MetricsCron  string
		ActivityCron string
		Thresholds   func() activity.Thresholds
		// JobTimeout bounds a single run; zero means no limit.
		JobTimeout time.Duration
	}

	// Scheduler manages the scheduled jobs.
	Scheduler struct {
		cron        *gocron.Scheduler
		opts        Options
		metricsSvc  participation.ServiceInterface
		activitySvc activity.ServiceInterface
		logger      core.Logger
	}
)

// New registers the metrics and activity jobs. An empty cron spec leaves that job unscheduled.
func New(opts Options, metricsSvc participation.ServiceInterface, activitySvc activity.ServiceInterface, logger core.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Thresholds == nil {
		opts.Thresholds = activity.DefaultThresholds
	}

	s := &Scheduler{
		cron:        gocron.NewScheduler(opts.Location),
		opts:        opts,
		metricsSvc:  metricsSvc,
		activitySvc: activitySvc,
		logger:      logger,
	}
	// a run still going on when the next one is due is skipped
	s.cron.SingletonModeAll()

	if opts.MetricsCron != "" {
		if _, err := s.cron.Cron(opts.MetricsCron).Tag(tagMetrics).Do(s.runMetrics); err != nil {
			return nil, errors.Wrapf(err, "scheduling %s (%q)", tagMetrics, opts.MetricsCron)
		}
	}
	if opts.ActivityCron != "" {
		if _, err := s.cron.Cron(opts.ActivityCron).Tag(tagActivity).Do(s.runActivity); err != nil {
			return nil, errors.Wrapf(err, "scheduling %s (%q)", tagActivity, opts.ActivityCron)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	for _, job := range s.cron.Jobs() {
		s.logger.Info(fmt.Sprintf("scheduled %v, next run at %s", job.Tags(), job.NextRun().Format(time.RFC3339)))
	}
}

// Stop stops the scheduler. Runs in progress are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) Len() int {
	return s.cron.Len()
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.opts.JobTimeout > 0 {
		return context.WithTimeout(context.Background(), s.opts.JobTimeout)
	}
	return context.WithCancel(context.Background())
}

func (s *Scheduler) runMetrics() {
	ctx, cancel := s.jobContext()
	defer cancel()

	res, err := s.metricsSvc.ProcessAccelerateMetrics(ctx)
	switch {
	case errors.Is(err, participation.ErrJobRunning):
		s.logger.Info(fmt.Sprintf("%s skipped: %v", tagMetrics, err))
	case err != nil:
		s.logger.Error(fmt.Sprintf("%s failed: %v", tagMetrics, err), err, actor, core.JobRun{Job: tagMetrics, RunID: res.RunID})
	default:
		s.logger.Info(fmt.Sprintf("%s run %s done: %d students updated", tagMetrics, res.RunID, res.StudentsUpdated))
	}
}

func (s *Scheduler) runActivity() {
	ctx, cancel := s.jobContext()
	defer cancel()

	rep, err := s.activitySvc.CheckAllStudents(ctx, s.opts.Thresholds())
	switch {
	case errors.Is(err, activity.ErrJobRunning):
		s.logger.Info(fmt.Sprintf("%s skipped: %v", tagActivity, err))
	case err != nil:
		s.logger.Error(fmt.Sprintf("%s failed: %v", tagActivity, err), err, actor, core.JobRun{Job: tagActivity})
	default:
		s.logger.Info(fmt.Sprintf(
			"%s done: %d processed, %d active, %d inactive, %d errors",
			tagActivity, rep.StudentsProcessed, rep.StudentsMarkedActive, rep.StudentsMarkedInactive, len(rep.Errors),
		))
		if len(rep.Errors) > 0 {
			s.logger.Warn(fmt.Sprintf("%s: %d students could not be checked", tagActivity, len(rep.Errors)), actor)
		}
	}
}

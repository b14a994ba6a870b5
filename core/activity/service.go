package activity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/student"
)

const jobName = "accelerate_activity"

var (
	ErrJobRunning = errors.New("an activity check is already in progress")
	ErrNoRecord   = errors.New("no Accelerate record found for this student")
)

type (
	Repository interface {
		// QueryActiveStudents returns active students that have an accelerate record.
		QueryActiveStudents(ctx context.Context, exec ...core.DBExecutor) ([]student.Student, error)
		// HasAttendanceSince reports whether the student attended a session of program starting at or after since.
		HasAttendanceSince(ctx context.Context, ctiID int, program string, since time.Time, exec ...core.DBExecutor) (bool, error)
		GetCanvasID(ctx context.Context, ctiID int, exec ...core.DBExecutor) (null.Int, error)
		// UpdateActivityStatus sets accelerate.active and, when valid, records lastCanvasAccess.
		// It returns false when the student has no accelerate record.
		UpdateActivityStatus(ctx context.Context, ctiID int, active bool, lastCanvasAccess null.Time, exec ...core.DBExecutor) (bool, error)
		GetPrimaryEmail(ctx context.Context, ctiID int, exec ...core.DBExecutor) (null.String, error)
	}

	// LMSClient looks up when a user last logged into the LMS. A nil time means unknown.
	LMSClient interface {
		LastLogin(ctx context.Context, canvasID int) (*time.Time, error)
	}

	ServiceInterface interface {
		CheckAllStudents(ctx context.Context, th Thresholds) (Report, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		lms      LMSClient
		logger   core.Logger
		recorder core.JobRecorder
		loc      *time.Location
		nowFunc  func() time.Time

		running sync.Mutex
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, lms LMSClient, loc *time.Location, logger core.Logger, recorder core.JobRecorder) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:       db,
		repo:     repo,
		lms:      lms,
		logger:   logger,
		recorder: recorder,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

func (svc *Service) SetClock(now func() time.Time) {
	svc.nowFunc = now
}

// wallClock keeps the clock reading of t in UTC: timestamps are stored without zone, in program time.
func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// CheckAllStudents marks every active Accelerate student active or inactive.
// A student is active when they attended a session within th.AttendanceWeeks
// or logged into Canvas within th.CanvasWeeks. Each student is committed on its own;
// failures are reported per student and do not stop the run.
func (svc *Service) CheckAllStudents(ctx context.Context, th Thresholds) (rep Report, err error) {
	if !svc.running.TryLock() {
		return Report{}, ErrJobRunning
	}
	defer svc.running.Unlock()

	started := time.Now()
	defer func() {
		if svc.recorder != nil {
			svc.recorder.ObserveJob(jobName, time.Since(started).Seconds(), rep.StudentsMarkedActive+rep.StudentsMarkedInactive, err)
		}
	}()

	students, err := svc.repo.QueryActiveStudents(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying active students")
	}

	rep = Report{
		Status:            http.StatusOK,
		StudentsProcessed: len(students),
		Details:           make([]StudentActivity, 0, len(students)),
		Errors:            make([]StudentError, 0),
	}
	now := svc.nowFunc().In(svc.loc)

	for _, s := range students {
		if err = ctx.Err(); err != nil {
			return rep, err
		}
		res, sErr := svc.checkStudent(ctx, s, th, now)
		if sErr != nil {
			rep.Errors = append(rep.Errors, StudentError{CtiID: s.CtiID, Error: sErr.Error()})
			if errors.Cause(sErr) != ErrNoRecord {
				svc.logger.Warn(fmt.Sprintf("checking activity of student %d: %v", s.CtiID, sErr), sErr, core.JobRun{Job: jobName})
			}
			continue
		}
		if res.Active {
			rep.StudentsMarkedActive++
		} else {
			rep.StudentsMarkedInactive++
		}
		rep.Details = append(rep.Details, res)
	}

	svc.logger.Info(fmt.Sprintf("activity check: %d processed, %d active, %d inactive, %d errors",
		rep.StudentsProcessed, rep.StudentsMarkedActive, rep.StudentsMarkedInactive, len(rep.Errors)),
		core.JobRun{Job: jobName})
	return rep, nil
}

func (svc *Service) checkStudent(ctx context.Context, s student.Student, th Thresholds, now time.Time) (StudentActivity, error) {
	res := StudentActivity{CtiID: s.CtiID, Name: s.FullName()}

	attendanceSince := wallClock(now.AddDate(0, 0, -7*th.AttendanceWeeks))
	attended, err := svc.repo.HasAttendanceSince(ctx, s.CtiID, Program, attendanceSince)
	if err != nil {
		return res, errors.Wrap(err, "checking attendance")
	}
	res.AttendanceActivity = attended

	canvasID, err := svc.repo.GetCanvasID(ctx, s.CtiID)
	if err != nil {
		return res, errors.Wrap(err, "getting canvas id")
	}
	if canvasID.Valid {
		lastLogin, err := svc.lms.LastLogin(ctx, canvasID.Int)
		if err != nil {
			return res, errors.Wrap(err, "fetching canvas last login")
		}
		if lastLogin != nil {
			login := lastLogin.In(svc.loc)
			res.LastCanvasAccess = null.TimeFrom(login)
			res.CanvasActivity = !login.Before(now.AddDate(0, 0, -7*th.CanvasWeeks))
		}
	}
	res.Active = res.AttendanceActivity || res.CanvasActivity

	lastAccess := res.LastCanvasAccess
	if lastAccess.Valid {
		lastAccess = null.TimeFrom(wallClock(lastAccess.Time))
	}
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		found, err := svc.repo.UpdateActivityStatus(ctx, s.CtiID, res.Active, lastAccess, tx)
		if err != nil {
			return errors.Wrap(err, "updating activity status")
		}
		if !found {
			return ErrNoRecord
		}
		res.Email, err = svc.repo.GetPrimaryEmail(ctx, s.CtiID, tx)
		return errors.Wrap(err, "getting primary email")
	})
	return res, err
}

package participation

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
)

const jobName = "accelerate_metrics"

var ErrJobRunning = errors.New("a participation metrics run is already in progress")

type (
	// Source supplies active students and their attendance.
	Source interface {
		ActiveStudentIDs(ctx context.Context) ([]int, error)
		Attendance(ctx context.Context, studentIDs []int) ([]AttendanceRecord, error)
	}

	// Sink persists computed metrics transactionally.
	Sink interface {
		WriteMetrics(ctx context.Context, studentID int, m Metrics) error
		Commit() error
		Rollback() error
	}

	// Batch reads and writes within a single unit of work.
	Batch interface {
		Source
		Sink
	}

	Store interface {
		Begin(ctx context.Context) (Batch, error)
	}

	ServiceInterface interface {
		ProcessAccelerateMetrics(ctx context.Context) (Result, error)
	}

	// OptionsFunc returns the scoring options to use for a run.
	OptionsFunc func() ScoringOptions

	Service struct {
		store    Store
		options  OptionsFunc
		logger   core.Logger
		recorder core.JobRecorder
		loc      *time.Location
		nowFunc  func() time.Time

		running sync.Mutex
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(store Store, options OptionsFunc, loc *time.Location, logger core.Logger, recorder core.JobRecorder) *Service {
	if options == nil {
		options = DefaultScoringOptions
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		options:  options,
		logger:   logger,
		recorder: recorder,
		loc:      loc,
		nowFunc:  time.Now,
	}
}

// SetClock replaces the clock used to decide the current week.
func (svc *Service) SetClock(now func() time.Time) {
	svc.nowFunc = now
}

func (svc *Service) today() time.Time {
	return Date(svc.nowFunc().In(svc.loc))
}

// ProcessAccelerateMetrics recomputes the participation metrics of every active Accelerate student.
// The whole batch is committed at once; any failure rolls every write back.
func (svc *Service) ProcessAccelerateMetrics(ctx context.Context) (res Result, err error) {
	if !svc.running.TryLock() {
		return Result{}, ErrJobRunning
	}
	defer svc.running.Unlock()

	res.RunID = uuid.New().String()
	started := time.Now()
	defer func() {
		if svc.recorder != nil {
			svc.recorder.ObserveJob(jobName, time.Since(started).Seconds(), res.StudentsUpdated, err)
		}
	}()

	run := core.JobRun{Job: jobName, RunID: res.RunID}

	batch, err := svc.store.Begin(ctx)
	if err != nil {
		return res, errors.Wrap(err, "beginning metrics batch")
	}

	updated, err := ProcessMetrics(ctx, batch, batch, svc.options(), svc.today())
	if err != nil {
		// a failed commit has already ended the transaction
		if rbErr := batch.Rollback(); rbErr != nil && errors.Cause(rbErr) != sql.ErrTxDone {
			svc.logger.Error(fmt.Sprintf("rolling back metrics run %s: %v", res.RunID, rbErr), rbErr, run)
		}
		svc.logger.Error(fmt.Sprintf("metrics run %s failed: %v", res.RunID, err), err, run)
		return res, err
	}

	res.StudentsUpdated = updated
	svc.logger.Info(fmt.Sprintf("metrics run %s: %d students updated", res.RunID, updated), run)
	return res, nil
}

package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
	"github.com/NickGuerrero/cti-sys/core/student"
)

type activityRepository struct {
	repository
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{repository{exec: exec}}
}

func (repo activityRepository) QueryActiveStudents(ctx context.Context, exec ...core.DBExecutor) ([]student.Student, error) {
	var rows []studentRow
	err := selectAll(ctx, repo.getExec(exec), &rows, `
		SELECT s.cti_id, s.fname, s.pname, s.lname, s.active
		FROM students s
		JOIN accelerate acc ON acc.cti_id = s.cti_id
		WHERE s.active = ?
		ORDER BY s.cti_id`, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying active students")
	}
	return unboilStudents(rows), nil
}

func (repo activityRepository) HasAttendanceSince(ctx context.Context, ctiID int, program string, since time.Time, exec ...core.DBExecutor) (bool, error) {
	var found bool
	err := get(ctx, repo.getExec(exec), &found, `
		SELECT EXISTS (
			SELECT 1
			FROM student_attendance sa
			JOIN attendance a ON a.session_id = sa.session_id
			WHERE sa.cti_id = ? AND a.program = ? AND a.session_start >= ?
		)`, ctiID, program, since)
	return found, errors.Wrap(err, "checking recent attendance")
}

func (repo activityRepository) GetCanvasID(ctx context.Context, ctiID int, exec ...core.DBExecutor) (null.Int, error) {
	var canvasID null.Int
	err := get(ctx, repo.getExec(exec), &canvasID, "SELECT canvas_id FROM canvas_ids WHERE cti_id = ?", ctiID)
	if err != nil {
		return null.Int{}, trapNoRowsErr(err, nil, "getting canvas id")
	}
	return canvasID, nil
}

func (repo activityRepository) UpdateActivityStatus(ctx context.Context, ctiID int, active bool, lastCanvasAccess null.Time, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)

	res, err := execute(ctx, exe, "UPDATE accelerate SET active = ? WHERE cti_id = ?", active, ctiID)
	if err != nil {
		return false, errors.Wrap(err, "updating accelerate status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating accelerate status")
	}
	if n == 0 {
		return false, nil
	}

	if lastCanvasAccess.Valid {
		_, err = execute(ctx, exe, `
			INSERT INTO accelerate_course_progress (cti_id, last_canvas_access) VALUES (?, ?)
			ON CONFLICT (cti_id) DO UPDATE SET last_canvas_access = excluded.last_canvas_access`,
			ctiID, lastCanvasAccess)
		if err != nil {
			return false, errors.Wrap(err, "upserting course progress")
		}
	}
	return true, nil
}

// GetPrimaryEmail falls back to any address of the student when none is primary.
func (repo activityRepository) GetPrimaryEmail(ctx context.Context, ctiID int, exec ...core.DBExecutor) (null.String, error) {
	var email null.String
	err := get(ctx, repo.getExec(exec), &email, `
		SELECT email FROM student_emails
		WHERE cti_id = ?
		ORDER BY is_primary DESC, email
		LIMIT 1`, ctiID)
	if err != nil {
		return null.String{}, trapNoRowsErr(err, nil, "getting student email")
	}
	return email, nil
}

// GetLastCanvasAccess reads the recorded Canvas access of a student.
func (repo activityRepository) GetLastCanvasAccess(ctx context.Context, ctiID int, exec ...core.DBExecutor) (null.Time, error) {
	var last null.Time
	err := get(ctx, repo.getExec(exec), &last, "SELECT last_canvas_access FROM accelerate_course_progress WHERE cti_id = ?", ctiID)
	if err != nil {
		return null.Time{}, trapNoRowsErr(err, nil, "getting last canvas access")
	}
	return last, nil
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/participation"
)

type accelerateRepository struct {
	db *sqlx.DB
}

var _ participation.Store = (*accelerateRepository)(nil) // interface compliance check

func NewAccelerateRepository(db *sqlx.DB) *accelerateRepository {
	return &accelerateRepository{db: db}
}

// Begin opens the transaction a whole metrics run reads and writes through.
func (repo accelerateRepository) Begin(ctx context.Context) (participation.Batch, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &metricsBatch{tx: tx}, nil
}

type metricsBatch struct {
	tx core.DBTransactor
}

var _ participation.Batch = (*metricsBatch)(nil)

func (b *metricsBatch) ActiveStudentIDs(ctx context.Context) ([]int, error) {
	var ids []int
	if err := selectAll(ctx, b.tx, &ids, "SELECT cti_id FROM accelerate WHERE active = ? ORDER BY cti_id", true); err != nil {
		return nil, errors.Wrap(err, "querying active accelerate records")
	}
	return ids, nil
}

func (b *metricsBatch) Attendance(ctx context.Context, studentIDs []int) ([]participation.AttendanceRecord, error) {
	rows := make([]participation.AttendanceRecord, 0)
	for _, chunk := range chunkIDs(studentIDs, maxInArgs) {
		q, args, err := core.In(b.tx, `
			SELECT sa.cti_id, a.session_start AS session_date, sa.session_score
			FROM student_attendance sa
			JOIN attendance a ON a.session_id = sa.session_id
			WHERE sa.cti_id IN (?)`, chunk)
		if err != nil {
			return nil, errors.Wrap(err, "building attendance query")
		}
		var part []participation.AttendanceRecord
		if err = b.tx.SelectContext(ctx, &part, q, args...); err != nil {
			return nil, errors.Wrap(err, "querying attendance")
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

func (b *metricsBatch) WriteMetrics(ctx context.Context, studentID int, m participation.Metrics) error {
	_, err := execute(ctx, b.tx, `
		UPDATE accelerate
		SET participation_score = ?, sessions_attended = ?, participation_streak = ?, inactive_weeks = ?
		WHERE cti_id = ?`,
		m.ParticipationScore, m.SessionsAttended, m.ParticipationStreak, m.InactiveWeeks, studentID)
	return errors.Wrap(err, "updating accelerate metrics")
}

func (b *metricsBatch) Commit() error {
	return b.tx.Commit()
}

func (b *metricsBatch) Rollback() error {
	return b.tx.Rollback()
}

// GetMetrics reads back the stored metrics of a student.
func (repo accelerateRepository) GetMetrics(ctx context.Context, studentID int) (participation.Metrics, error) {
	var m participation.Metrics
	err := get(ctx, repo.db, &m, `
		SELECT participation_score, sessions_attended, participation_streak, inactive_weeks
		FROM accelerate WHERE cti_id = ?`, studentID)
	return m, errors.Wrap(err, "getting accelerate metrics")
}

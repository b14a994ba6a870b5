package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/student"
)

type (
	studentRow struct {
		CtiID  int         `db:"cti_id"`
		FName  string      `db:"fname"`
		PName  null.String `db:"pname"`
		LName  string      `db:"lname"`
		Active null.Bool   `db:"active"`
	}

	emailRow struct {
		Email     string `db:"email"`
		CtiID     int    `db:"cti_id"`
		IsPrimary bool   `db:"is_primary"`
	}
)

func unboilStudent(row studentRow) student.Student {
	return student.Student{
		CtiID:         row.CtiID,
		FirstName:     row.FName,
		PreferredName: row.PName.String,
		LastName:      row.LName,
		Active:        row.Active.Bool,
	}
}

func unboilStudents(rows []studentRow) []student.Student {
	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, unboilStudent(r))
	}
	return students
}

type studentRepository struct {
	repository
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repository{exec: exec}}
}

func (repo studentRepository) FindCtiIDByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (int, error) {
	var ctiID int
	err := get(ctx, repo.getExec(exec), &ctiID,
		"SELECT cti_id FROM student_emails WHERE LOWER(email) = ? LIMIT 1", strings.ToLower(email))
	if err != nil {
		return 0, trapNoRowsErr(err, student.ErrNotFound, "finding student by email")
	}
	return ctiID, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, ctiID int, exec ...core.DBExecutor) (student.Student, error) {
	var row studentRow
	err := get(ctx, repo.getExec(exec), &row,
		"SELECT cti_id, fname, pname, lname, active FROM students WHERE cti_id = ?", ctiID)
	if err != nil {
		return student.Student{}, trapNoRowsErr(err, student.ErrNotFound, "getting student")
	}
	return unboilStudent(row), nil
}

func (repo studentRepository) QueryEmails(ctx context.Context, ctiID int, exec ...core.DBExecutor) ([]student.StudentEmail, error) {
	var rows []emailRow
	err := selectAll(ctx, repo.getExec(exec), &rows,
		"SELECT email, cti_id, is_primary FROM student_emails WHERE cti_id = ? ORDER BY email", ctiID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student emails")
	}
	emails := make([]student.StudentEmail, 0, len(rows))
	for _, r := range rows {
		emails = append(emails, student.StudentEmail(r))
	}
	return emails, nil
}

func (repo studentRepository) AddEmail(ctx context.Context, email student.StudentEmail, exec ...core.DBExecutor) error {
	_, err := execute(ctx, repo.getExec(exec),
		"INSERT INTO student_emails (email, cti_id, is_primary) VALUES (?, ?, ?)",
		email.Email, email.CtiID, email.IsPrimary)
	return errors.Wrap(err, "inserting student email")
}

func (repo studentRepository) RemoveEmail(ctx context.Context, ctiID int, email string, exec ...core.DBExecutor) error {
	_, err := execute(ctx, repo.getExec(exec),
		"DELETE FROM student_emails WHERE cti_id = ? AND LOWER(email) = ?", ctiID, strings.ToLower(email))
	return errors.Wrap(err, "deleting student email")
}

func (repo studentRepository) SetPrimaryEmail(ctx context.Context, ctiID int, email string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	// clear first: at most one primary email per student
	if _, err := execute(ctx, exe, "UPDATE student_emails SET is_primary = ? WHERE cti_id = ?", false, ctiID); err != nil {
		return errors.Wrap(err, "clearing primary email")
	}
	_, err := execute(ctx, exe,
		"UPDATE student_emails SET is_primary = ? WHERE cti_id = ? AND LOWER(email) = ?", true, ctiID, strings.ToLower(email))
	return errors.Wrap(err, "setting primary email")
}

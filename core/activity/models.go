package activity

import (
	"github.com/volatiletech/null/v8"
)

// Program is the attendance program that counts towards activity.
const Program = "Accelerate"

// Thresholds are look-back windows, in weeks.
type Thresholds struct {
	AttendanceWeeks int
	CanvasWeeks     int
}

// DefaultThresholds looks back two weeks for both attendance and Canvas logins.
func DefaultThresholds() Thresholds {
	return Thresholds{AttendanceWeeks: 2, CanvasWeeks: 2}
}

// StudentActivity is the outcome of one student's check.
type StudentActivity struct {
	CtiID              int         `json:"cti_id"`
	Email              null.String `json:"email"`
	Name               string      `json:"name"`
	AttendanceActivity bool        `json:"attendance_activity"`
	CanvasActivity     bool        `json:"canvas_activity"`
	LastCanvasAccess   null.Time   `json:"last_canvas_access"`
	Active             bool        `json:"active"`
}

type StudentError struct {
	CtiID int    `json:"cti_id"`
	Error string `json:"error"`
}

type Report struct {
	Status                 int               `json:"status"`
	StudentsProcessed      int               `json:"students_processed"`
	StudentsMarkedActive   int               `json:"students_marked_active"`
	StudentsMarkedInactive int               `json:"students_marked_inactive"`
	Details                []StudentActivity `json:"details"`
	Errors                 []StudentError    `json:"errors"`
}

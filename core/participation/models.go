package participation

import (
	"time"

	"github.com/NickGuerrero/cti-sys/core"
)

// AttendanceRecord is one student's score for one session.
// SessionDate is a civil date stored as UTC midnight.
type AttendanceRecord struct {
	StudentID   int       `db:"cti_id"`
	SessionDate time.Time `db:"session_date"`
	Score       float64   `db:"session_score"`
}

// DatedScore is an AttendanceRecord stripped of its student.
type DatedScore struct {
	Date  time.Time
	Score float64
}

// WeeklyBuckets maps the Monday starting a week to the scores recorded that week.
type WeeklyBuckets map[time.Time][]float64

type WeekScore struct {
	WeekStart time.Time
	Score     float64
}

type WeekCount struct {
	WeekStart time.Time
	Sessions  int
}

// Metrics are the four participation fields stored on the accelerate record.
type Metrics struct {
	ParticipationScore  float64 `json:"participation_score" db:"participation_score"`
	SessionsAttended    int     `json:"sessions_attended" db:"sessions_attended"`
	ParticipationStreak int     `json:"participation_streak" db:"participation_streak"`
	InactiveWeeks       int     `json:"inactive_weeks" db:"inactive_weeks"`
}

type ScoringOptions struct {
	// Weighted enables exponential decay weighting of older weeks.
	Weighted bool
	// Decay is the weight multiplier per week of age, in (0,1].
	Decay float64
	// Cap bounds any single week's score (k).
	Cap float64
	// StreakSessions is the minimum sessions a week needs to count towards the streak.
	StreakSessions int
}

func DefaultScoringOptions() ScoringOptions {
	return ScoringOptions{
		Weighted:       false,
		Decay:          0.90,
		Cap:            1,
		StreakSessions: 1,
	}
}

// ScoringOptionsFrom converts the configured scoring settings, keeping defaults for unset values.
func ScoringOptionsFrom(sc core.ScoringConfig) ScoringOptions {
	opts := DefaultScoringOptions()
	opts.Weighted = sc.Weighted
	if sc.Decay > 0 && sc.Decay <= 1 {
		opts.Decay = sc.Decay
	}
	if sc.Cap > 0 {
		opts.Cap = sc.Cap
	}
	if sc.StreakSessions > 0 {
		opts.StreakSessions = sc.StreakSessions
	}
	return opts
}

// Result is returned by a metrics run.
type Result struct {
	RunID           string `json:"run_id"`
	StudentsUpdated int    `json:"students_updated"`
}

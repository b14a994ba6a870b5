package participation

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Date drops the time of day of t, as seen in t's location, and returns that date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns the Monday of the calendar week containing d.
func StartOfWeek(d time.Time) time.Time {
	d = Date(d)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// daysBetween returns the number of whole days from b to a. Both must be dates.
func daysBetween(a, b time.Time) int {
	return int(a.Sub(b) / day)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// round3 rounds the exact binary value of x to three decimals, ties to even.
func round3(x float64) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(x, 'f', 3, 64), 64)
	return v
}

// WeeklyAggregates buckets session scores by the Monday of their week.
func WeeklyAggregates(rows []DatedScore) WeeklyBuckets {
	bucket := make(WeeklyBuckets)
	for _, r := range rows {
		ws := StartOfWeek(r.Date)
		bucket[ws] = append(bucket[ws], r.Score)
	}
	return bucket
}

// ConsecutiveWeeksWithMinSessions returns the current streak of contiguous weeks that each have at least
// minSessions sessions. weeks must be sorted newest first.
// The streak is anchored on the newest week present, not on the current calendar week.
func ConsecutiveWeeksWithMinSessions(weeks []WeekCount, minSessions int) int {
	if len(weeks) == 0 {
		return 0
	}

	streak := 0
	expectedNext := weeks[0].WeekStart
	for _, w := range weeks {
		if w.Sessions < minSessions {
			break
		}
		if daysBetween(expectedNext, w.WeekStart) == 7 {
			streak++
			expectedNext = w.WeekStart
		} else if streak == 0 {
			streak = 1
			expectedNext = w.WeekStart
		} else {
			break
		}
	}
	return streak
}

// WeightedParticipationScore converts per-week average scores into a single 0-1 number.
//
// Without weighting (or with decay == 1) it is the plain mean of the weekly averages.
// With weighting, a week n weeks older than the newest one weighs decay^n and every score is capped at k.
// The result is rounded to three decimals; an empty input scores 0.
func WeightedParticipationScore(weeks []WeekScore, weighted bool, decay, k float64) float64 {
	if len(weeks) == 0 {
		return 0
	}
	pts := make([]WeekScore, len(weeks))
	copy(pts, weeks)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].WeekStart.Before(pts[j].WeekStart) })

	if !weighted || decay == 1.0 {
		var sum float64
		for _, p := range pts {
			sum += p.Score
		}
		return round3(sum / float64(len(pts)))
	}

	newest := pts[len(pts)-1].WeekStart
	var num, den float64
	for _, p := range pts {
		weeksOld := floorDiv(daysBetween(newest, p.WeekStart), 7)
		weight := math.Pow(decay, float64(weeksOld))
		num += math.Min(k, p.Score) * weight
		den += k * weight
	}
	if den == 0 {
		return 0
	}
	return round3(num / den)
}

// MetricsForStudent computes the four participation metrics of one student from their weekly buckets.
// today decides the current calendar week for InactiveWeeks.
func MetricsForStudent(weekly WeeklyBuckets, opts ScoringOptions, today time.Time) Metrics {
	var m Metrics
	if len(weekly) == 0 {
		return m
	}

	avgs := make([]WeekScore, 0, len(weekly))
	counts := make([]WeekCount, 0, len(weekly))
	var latest time.Time
	for ws, scores := range weekly {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		m.SessionsAttended += len(scores)
		if len(scores) > 0 {
			avgs = append(avgs, WeekScore{WeekStart: ws, Score: sum / float64(len(scores))})
		}
		counts = append(counts, WeekCount{WeekStart: ws, Sessions: len(scores)})
		if ws.After(latest) {
			latest = ws
		}
	}

	m.ParticipationScore = WeightedParticipationScore(avgs, opts.Weighted, opts.Decay, opts.Cap)

	sort.Slice(counts, func(i, j int) bool { return counts[i].WeekStart.After(counts[j].WeekStart) })
	m.ParticipationStreak = ConsecutiveWeeksWithMinSessions(counts, opts.StreakSessions)

	m.InactiveWeeks = floorDiv(daysBetween(StartOfWeek(today), latest), 7)
	if m.InactiveWeeks < 0 { // attendance dated in a future week
		m.InactiveWeeks = 0
	}
	return m
}

// GroupByStudent reorganizes attendance rows by student id.
func GroupByStudent(rows []AttendanceRecord) map[int][]DatedScore {
	grouped := make(map[int][]DatedScore)
	for _, r := range rows {
		grouped[r.StudentID] = append(grouped[r.StudentID], DatedScore{Date: Date(r.SessionDate), Score: r.Score})
	}
	return grouped
}

// ProcessMetrics computes fresh metrics for every active student and writes them to sink.
// Students without attendance get zero metrics. The sink is committed only when every write succeeded;
// on error the caller must roll the sink back.
func ProcessMetrics(ctx context.Context, src Source, sink Sink, opts ScoringOptions, today time.Time) (int, error) {
	ids, err := src.ActiveStudentIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "loading active students")
	}

	var rows []AttendanceRecord
	if len(ids) > 0 {
		if rows, err = src.Attendance(ctx, ids); err != nil {
			return 0, errors.Wrap(err, "loading attendance")
		}
	}
	perStudent := GroupByStudent(rows)

	updated := 0
	for _, id := range ids {
		if err = ctx.Err(); err != nil {
			return 0, err
		}
		m := MetricsForStudent(WeeklyAggregates(perStudent[id]), opts, today)
		if err = sink.WriteMetrics(ctx, id, m); err != nil {
			return 0, errors.Wrapf(err, "writing metrics for student %d", id)
		}
		updated++
	}

	if err = sink.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing metrics")
	}
	return updated, nil
}

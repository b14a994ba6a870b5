package participation_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/NickGuerrero/cti-sys/core/participation"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// 2024-05-13 is a Monday.
var (
	monday    = date(2024, 5, 13)
	wednesday = date(2024, 5, 15)
)

func weeksBefore(ws time.Time, n int) time.Time {
	return ws.AddDate(0, 0, -7*n)
}

func TestStartOfWeek(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}

	Convey("Given dates across a calendar week", t, func() {
		Convey("Then every day maps to the Monday that starts its week", func() {
			So(participation.StartOfWeek(monday), ShouldEqual, monday)
			So(participation.StartOfWeek(wednesday), ShouldEqual, monday)
			So(participation.StartOfWeek(date(2024, 5, 19)), ShouldEqual, monday)
			So(participation.StartOfWeek(date(2024, 5, 20)), ShouldEqual, date(2024, 5, 20))
		})

		Convey("Then the time of day is ignored in the date's own location", func() {
			lateSunday := time.Date(2024, 5, 19, 23, 30, 0, 0, la)
			So(participation.StartOfWeek(lateSunday), ShouldEqual, monday)
		})

		Convey("Then weeks may start in the previous year", func() {
			So(participation.StartOfWeek(date(2025, 1, 1)), ShouldEqual, date(2024, 12, 30))
		})
	})
}

func TestWeeklyAggregates(t *testing.T) {
	Convey("Given session scores", t, func() {
		Convey("When there are none", func() {
			So(participation.WeeklyAggregates(nil), ShouldBeEmpty)
		})

		Convey("When they span two weeks", func() {
			buckets := participation.WeeklyAggregates([]participation.DatedScore{
				{Date: date(2024, 5, 14), Score: 1},
				{Date: date(2024, 5, 8), Score: 0.5},
				{Date: date(2024, 5, 19), Score: 0.25},
			})

			So(buckets, ShouldHaveLength, 2)
			So(buckets[monday], ShouldResemble, []float64{1, 0.25})
			So(buckets[weeksBefore(monday, 1)], ShouldResemble, []float64{0.5})
		})
	})
}

func TestConsecutiveWeeksWithMinSessions(t *testing.T) {
	w0 := monday
	w1 := weeksBefore(monday, 1)
	w2 := weeksBefore(monday, 2)
	w3 := weeksBefore(monday, 3)

	Convey("Given weekly session counts sorted newest first", t, func() {
		Convey("An empty list has no streak", func() {
			So(participation.ConsecutiveWeeksWithMinSessions(nil, 1), ShouldEqual, 0)
		})

		Convey("Contiguous qualifying weeks are counted", func() {
			weeks := []participation.WeekCount{{w0, 2}, {w1, 1}, {w2, 3}}
			So(participation.ConsecutiveWeeksWithMinSessions(weeks, 1), ShouldEqual, 3)
		})

		Convey("A newest week below the threshold breaks the streak immediately", func() {
			weeks := []participation.WeekCount{{w0, 1}, {w1, 3}}
			So(participation.ConsecutiveWeeksWithMinSessions(weeks, 2), ShouldEqual, 0)
		})

		Convey("A week below the threshold ends the streak", func() {
			weeks := []participation.WeekCount{{w0, 2}, {w1, 0}, {w2, 2}}
			So(participation.ConsecutiveWeeksWithMinSessions(weeks, 1), ShouldEqual, 1)
		})

		Convey("A gap larger than 7 days ends the streak", func() {
			weeks := []participation.WeekCount{{w0, 1}, {w1, 1}, {w3, 1}}
			So(participation.ConsecutiveWeeksWithMinSessions(weeks, 1), ShouldEqual, 2)
		})

		Convey("Prepending a contiguous qualifying week adds exactly one", func() {
			weeks := []participation.WeekCount{{w1, 1}, {w2, 1}, {w3, 1}}
			before := participation.ConsecutiveWeeksWithMinSessions(weeks, 1)
			after := participation.ConsecutiveWeeksWithMinSessions(append([]participation.WeekCount{{w0, 1}}, weeks...), 1)
			So(after, ShouldEqual, before+1)
		})

		Convey("Prepending a week after an 8+ day gap resets the streak to one", func() {
			weeks := []participation.WeekCount{{w2, 1}, {w3, 1}}
			So(participation.ConsecutiveWeeksWithMinSessions(append([]participation.WeekCount{{w0, 1}}, weeks...), 1), ShouldEqual, 1)
		})

		Convey("The streak is anchored on the newest week with data, not the current week", func() {
			weeks := []participation.WeekCount{{w2, 1}, {w3, 1}}
			So(participation.ConsecutiveWeeksWithMinSessions(weeks, 1), ShouldEqual, 2)
		})
	})
}

func TestWeightedParticipationScore(t *testing.T) {
	w0 := monday
	w1 := weeksBefore(monday, 1)
	w2 := weeksBefore(monday, 2)
	w3 := weeksBefore(monday, 3)

	series := []participation.WeekScore{{w0, 1.0}, {w1, 1.0}, {w2, 0.5}, {w3, 0.25}}

	Convey("Given weekly average scores", t, func() {
		Convey("An empty input scores zero, weighted or not", func() {
			So(participation.WeightedParticipationScore(nil, true, 0.9, 1), ShouldEqual, 0.0)
			So(participation.WeightedParticipationScore(nil, false, 0.9, 1), ShouldEqual, 0.0)
		})

		Convey("Unweighted scoring is the mean rounded to three decimals", func() {
			So(participation.WeightedParticipationScore(series, false, 0.9, 1), ShouldEqual, 0.688)

			thirds := []participation.WeekScore{{w0, 0.1}, {w1, 0.2}, {w2, 0.4}}
			So(participation.WeightedParticipationScore(thirds, false, 0.9, 1), ShouldEqual, 0.233)
		})

		Convey("Rounding applies to the stored value, not to a scaled copy", func() {
			// 0.0025 is stored slightly above the tie, 0.0055 slightly below it
			So(participation.WeightedParticipationScore([]participation.WeekScore{{w0, 0.005}, {w1, 0}}, false, 0.9, 1), ShouldEqual, 0.003)
			So(participation.WeightedParticipationScore([]participation.WeekScore{{w0, 0.011}, {w1, 0}}, false, 0.9, 1), ShouldEqual, 0.005)
			// exact ties go to the even digit
			So(participation.WeightedParticipationScore([]participation.WeekScore{{w0, 0.375}, {w1, 1.0}}, false, 0.9, 1), ShouldEqual, 0.688)
			So(participation.WeightedParticipationScore([]participation.WeekScore{{w0, 0.125}, {w1, 0}}, false, 0.9, 1), ShouldEqual, 0.062)
		})

		Convey("A decay of 1 falls back to the plain mean", func() {
			So(participation.WeightedParticipationScore(series, true, 1.0, 1), ShouldEqual, 0.688)
		})

		Convey("Decay weighting emphasizes recent weeks", func() {
			So(participation.WeightedParticipationScore(series, true, 0.90, 1), ShouldEqual, 0.723)
			So(participation.WeightedParticipationScore(series, true, 0.75, 1), ShouldEqual, 0.781)
		})

		Convey("Stronger decay scores higher when recent weeks are better", func() {
			descending := []participation.WeekScore{{w0, 1.0}, {w1, 0.8}, {w2, 0.5}, {w3, 0.2}}
			strong := participation.WeightedParticipationScore(descending, true, 0.5, 1)
			weak := participation.WeightedParticipationScore(descending, true, 0.9, 1)
			So(strong, ShouldBeGreaterThanOrEqualTo, weak)
		})

		Convey("The input order does not matter", func() {
			shuffled := []participation.WeekScore{series[2], series[0], series[3], series[1]}
			So(participation.WeightedParticipationScore(shuffled, true, 0.9, 1), ShouldEqual, 0.723)
		})

		Convey("Missing weeks still age the older scores", func() {
			gapped := []participation.WeekScore{{w0, 1.0}, {w2, 0.0}}
			// weights 1 and 0.81: 1 / 1.81
			So(participation.WeightedParticipationScore(gapped, true, 0.9, 1), ShouldEqual, 0.552)
		})

		Convey("Scores above the cap are bounded", func() {
			So(participation.WeightedParticipationScore([]participation.WeekScore{{w0, 1.5}}, true, 0.9, 1), ShouldEqual, 1.0)
		})

		Convey("A zero cap never divides by zero", func() {
			So(participation.WeightedParticipationScore(series, true, 0.9, 0), ShouldEqual, 0.0)
		})
	})
}

func TestMetricsForStudent(t *testing.T) {
	opts := participation.DefaultScoringOptions()

	Convey("Given a student's weekly buckets", t, func() {
		Convey("When the student attended twice this week and once last week", func() {
			weekly := participation.WeeklyAggregates([]participation.DatedScore{
				{Date: date(2024, 5, 13), Score: 1.0},
				{Date: date(2024, 5, 14), Score: 1.0},
				{Date: date(2024, 5, 8), Score: 0.5},
			})
			m := participation.MetricsForStudent(weekly, opts, wednesday)

			So(m, ShouldResemble, participation.Metrics{
				ParticipationScore:  0.75,
				SessionsAttended:    3,
				ParticipationStreak: 2,
				InactiveWeeks:       0,
			})
		})

		Convey("When the student never attended", func() {
			m := participation.MetricsForStudent(participation.WeeklyBuckets{}, opts, wednesday)
			So(m, ShouldResemble, participation.Metrics{})
		})

		Convey("When the last attendance was weeks ago", func() {
			weekly := participation.WeeklyAggregates([]participation.DatedScore{
				{Date: date(2024, 4, 23), Score: 1.0},
				{Date: date(2024, 4, 16), Score: 0.5},
			})
			m := participation.MetricsForStudent(weekly, opts, wednesday)

			So(m.InactiveWeeks, ShouldEqual, 3)
			So(m.ParticipationStreak, ShouldEqual, 2)
			So(m.SessionsAttended, ShouldEqual, 2)
		})

		Convey("When attendance is dated in a future week", func() {
			weekly := participation.WeeklyAggregates([]participation.DatedScore{{Date: date(2024, 5, 28), Score: 1.0}})
			So(participation.MetricsForStudent(weekly, opts, wednesday).InactiveWeeks, ShouldEqual, 0)
		})

		Convey("When a streak needs two sessions per week", func() {
			weekly := participation.WeeklyAggregates([]participation.DatedScore{
				{Date: date(2024, 5, 13), Score: 1.0},
				{Date: date(2024, 5, 15), Score: 1.0},
				{Date: date(2024, 5, 7), Score: 1.0},
			})
			twoPerWeek := opts
			twoPerWeek.StreakSessions = 2
			So(participation.MetricsForStudent(weekly, twoPerWeek, wednesday).ParticipationStreak, ShouldEqual, 1)
		})

		Convey("When decay weighting is enabled", func() {
			weekly := participation.WeeklyAggregates([]participation.DatedScore{
				{Date: date(2024, 5, 13), Score: 1.0},
				{Date: date(2024, 5, 6), Score: 1.0},
				{Date: date(2024, 4, 29), Score: 0.5},
				{Date: date(2024, 4, 22), Score: 0.25},
			})
			weighted := opts
			weighted.Weighted = true
			So(participation.MetricsForStudent(weekly, weighted, wednesday).ParticipationScore, ShouldEqual, 0.723)
		})

		Convey("Sessions attended always matches the number of rows", func() {
			rows := []participation.DatedScore{
				{Date: date(2024, 1, 2), Score: 0.1},
				{Date: date(2024, 1, 3), Score: 0.2},
				{Date: date(2024, 3, 9), Score: 0.3},
				{Date: date(2024, 5, 13), Score: 0.4},
				{Date: date(2024, 5, 13), Score: 0.5},
			}
			So(participation.MetricsForStudent(participation.WeeklyAggregates(rows), opts, wednesday).SessionsAttended, ShouldEqual, len(rows))
		})
	})
}

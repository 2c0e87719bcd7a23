// Package series holds the shared time-series data model: validated
// observations, calendar augmentation, and engineered regressors. Every
// component downstream of the builder consumes the same Frame; nothing may
// resample or reorder it.
package series

import (
	"time"

	"github.com/edgargomero/analisis-resultados/internal/fcerr"
)

// HolidayCategory classifies a holiday for exogenous-regressor purposes.
type HolidayCategory string

const (
	CategoryNone      HolidayCategory = "none"
	CategoryReligious HolidayCategory = "religious"
	CategoryCivic     HolidayCategory = "civic"
	CategoryElectoral HolidayCategory = "electoral"
	CategoryCultural  HolidayCategory = "cultural"
)

// Observation is one raw input point from the ingestion collaborator.
// Gaps are flagged explicitly; the engine never fills them silently.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	IsGap bool      `json:"is_gap"`
}

// TimePoint is one calendar-augmented point of the shared dataset.
// Immutable once built.
type TimePoint struct {
	Date        time.Time       `json:"date"`
	Observed    float64         `json:"observed"`
	IsGap       bool            `json:"is_gap"`
	IsHoliday   bool            `json:"is_holiday"`
	Category    HolidayCategory `json:"holiday_category"`
	PreHoliday  bool            `json:"pre_holiday"`
	PostHoliday bool            `json:"post_holiday"`
	DayOfWeek   int             `json:"day_of_week"` // Monday=0 .. Sunday=6
	WeekOfYear  int             `json:"week_of_year"`
}

// Validate checks the raw observations: dates strictly increasing, values
// non-negative. Returns *fcerr.InvalidSeriesError on the first violation.
func Validate(obs []Observation) error {
	for i, o := range obs {
		if o.Value < 0 {
			return &fcerr.InvalidSeriesError{Reason: "negative observed value", Index: i, Date: o.Date}
		}
		if i == 0 {
			continue
		}
		prev := obs[i-1].Date
		if o.Date.Equal(prev) {
			return &fcerr.InvalidSeriesError{Reason: "duplicate date", Index: i, Date: o.Date}
		}
		if o.Date.Before(prev) {
			return &fcerr.InvalidSeriesError{Reason: "non-monotonic date", Index: i, Date: o.Date}
		}
	}
	return nil
}

// DayOfWeek maps a date to the Monday=0 convention used throughout.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Workweek marks which weekdays (Monday=0) carry call volume. The horizon
// enumerates only these days, matching the sampling of the input series.
type Workweek [7]bool

// DefaultWorkweek is Monday through Saturday, the operating week of the
// call center.
func DefaultWorkweek() Workweek {
	return Workweek{true, true, true, true, true, true, false}
}

// WorkweekFrom builds a Workweek from a list of Monday=0 day indices.
func WorkweekFrom(days []int) Workweek {
	var w Workweek
	for _, d := range days {
		if d >= 0 && d < 7 {
			w[d] = true
		}
	}
	return w
}

// Contains reports whether the date falls on a working day.
func (w Workweek) Contains(t time.Time) bool {
	return w[DayOfWeek(t)]
}

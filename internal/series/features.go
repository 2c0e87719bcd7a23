package series

import (
	"math"
	"time"

	"github.com/edgargomero/analisis-resultados/internal/fcerr"
)

// FeatureConfig selects the engineered regressors the builder produces.
type FeatureConfig struct {
	Lags           []int `json:"lags" mapstructure:"lags"`
	RollingWindows []int `json:"rolling_windows" mapstructure:"rolling_windows"`
}

// DefaultFeatureConfig mirrors the production regressor set: one- and
// two-week lags with weekly and four-week rolling means.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		Lags:           []int{7, 14},
		RollingWindows: []int{7, 28},
	}
}

// MaxLag returns the longest lookback any configured feature needs. Rows
// earlier than this have undefined features and are marked unusable.
func (fc FeatureConfig) MaxLag() int {
	max := 0
	for _, l := range fc.Lags {
		if l > max {
			max = l
		}
	}
	for _, w := range fc.RollingWindows {
		if w > max {
			max = w
		}
	}
	return max
}

// Frame is the shared, calendar-augmented dataset every adapter consumes.
// Feature columns are positionally aligned with Points; undefined entries
// hold NaN, never a zero fill. A Frame is immutable after Build.
type Frame struct {
	Points []TimePoint
	Lags   map[int][]float64 // lag length -> column
	Rolls  map[int][]float64 // window length -> trailing-mean column
	Usable []bool            // false while any feature is undefined
	Config FeatureConfig
}

// Build validates the observations, augments them with calendar fields, and
// computes lag and rolling-mean regressors. History must cover at least
// twice the longest lookback, otherwise *fcerr.InsufficientHistoryError.
func Build(obs []Observation, cal Calendar, fc FeatureConfig) (*Frame, error) {
	if err := Validate(obs); err != nil {
		return nil, err
	}
	maxLag := fc.MaxLag()
	if need := 2 * maxLag; len(obs) < need {
		return nil, &fcerr.InsufficientHistoryError{Have: len(obs), Need: need}
	}

	n := len(obs)
	f := &Frame{
		Points: make([]TimePoint, n),
		Lags:   make(map[int][]float64, len(fc.Lags)),
		Rolls:  make(map[int][]float64, len(fc.RollingWindows)),
		Usable: make([]bool, n),
		Config: fc,
	}

	for i, o := range obs {
		tp := TimePoint{
			Date:      o.Date,
			Observed:  o.Value,
			IsGap:     o.IsGap,
			Category:  CategoryNone,
			DayOfWeek: DayOfWeek(o.Date),
		}
		_, tp.WeekOfYear = o.Date.ISOWeek()
		if cal != nil {
			if h, ok := cal.Lookup(o.Date); ok {
				tp.IsHoliday = true
				tp.Category = h.Category
			}
			_, tp.PreHoliday = cal.Lookup(o.Date.AddDate(0, 0, 1))
			_, tp.PostHoliday = cal.Lookup(o.Date.AddDate(0, 0, -1))
		}
		f.Points[i] = tp
	}

	for _, lag := range fc.Lags {
		col := make([]float64, n)
		for i := range col {
			if i < lag || obs[i-lag].IsGap {
				col[i] = math.NaN()
			} else {
				col[i] = obs[i-lag].Value
			}
		}
		f.Lags[lag] = col
	}

	for _, w := range fc.RollingWindows {
		col := make([]float64, n)
		for i := range col {
			// Trailing mean over [i-w, i): the current observation is
			// excluded so the feature never leaks its own target.
			if i < w {
				col[i] = math.NaN()
				continue
			}
			sum, cnt := 0.0, 0
			for j := i - w; j < i; j++ {
				if obs[j].IsGap {
					continue
				}
				sum += obs[j].Value
				cnt++
			}
			if cnt == 0 {
				col[i] = math.NaN()
			} else {
				col[i] = sum / float64(cnt)
			}
		}
		f.Rolls[w] = col
	}

	for i := range f.Usable {
		f.Usable[i] = i >= maxLag
	}
	return f, nil
}

// Len returns the number of points in the frame.
func (f *Frame) Len() int { return len(f.Points) }

// Slice returns a window view [i, j) sharing the underlying columns. Lag
// features near the window start still reference true earlier history, so a
// training window keeps identical inputs to the full frame.
func (f *Frame) Slice(i, j int) *Frame {
	out := &Frame{
		Points: f.Points[i:j],
		Lags:   make(map[int][]float64, len(f.Lags)),
		Rolls:  make(map[int][]float64, len(f.Rolls)),
		Usable: f.Usable[i:j],
		Config: f.Config,
	}
	for lag, col := range f.Lags {
		out.Lags[lag] = col[i:j]
	}
	for w, col := range f.Rolls {
		out.Rolls[w] = col[i:j]
	}
	return out
}

// Values returns the observed values in order. Gap rows keep their stored
// value; callers that must exclude gaps check Points[i].IsGap.
func (f *Frame) Values() []float64 {
	out := make([]float64, len(f.Points))
	for i, p := range f.Points {
		out[i] = p.Observed
	}
	return out
}

// LastDate returns the date of the final point.
func (f *Frame) LastDate() time.Time {
	return f.Points[len(f.Points)-1].Date
}

// HorizonStep is one future period the composer forecasts: the calendar
// context of a working day beyond the end of history.
type HorizonStep struct {
	Date        time.Time       `json:"date"`
	IsHoliday   bool            `json:"is_holiday"`
	Category    HolidayCategory `json:"holiday_category"`
	PreHoliday  bool            `json:"pre_holiday"`
	PostHoliday bool            `json:"post_holiday"`
	DayOfWeek   int             `json:"day_of_week"`
	WeekOfYear  int             `json:"week_of_year"`
}

// HorizonSteps enumerates the next n working days strictly after last,
// skipping weekdays outside the workweek. Calendar context is attached the
// same way Build does for history.
func HorizonSteps(last time.Time, n int, week Workweek, cal Calendar) []HorizonStep {
	steps := make([]HorizonStep, 0, n)
	d := last
	for len(steps) < n {
		d = d.AddDate(0, 0, 1)
		if !week.Contains(d) {
			continue
		}
		hs := HorizonStep{Date: d, Category: CategoryNone, DayOfWeek: DayOfWeek(d)}
		_, hs.WeekOfYear = d.ISOWeek()
		if cal != nil {
			if h, ok := cal.Lookup(d); ok {
				hs.IsHoliday = true
				hs.Category = h.Category
			}
			_, hs.PreHoliday = cal.Lookup(d.AddDate(0, 0, 1))
			_, hs.PostHoliday = cal.Lookup(d.AddDate(0, 0, -1))
		}
		steps = append(steps, hs)
	}
	return steps
}

package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// Holiday is one calendar entry used for exogenous regressors.
type Holiday struct {
	Name     string          `json:"name"`
	Category HolidayCategory `json:"category"`
}

// Calendar resolves a date to its holiday entry. Dates the calendar cannot
// resolve are treated as non-holidays; the builder never fails on them.
type Calendar interface {
	Lookup(t time.Time) (Holiday, bool)
}

// MapCalendar is a Calendar backed by an in-memory date map. Keys are
// normalized to midnight UTC of the civil date.
type MapCalendar map[string]Holiday

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Lookup implements Calendar.
func (c MapCalendar) Lookup(t time.Time) (Holiday, bool) {
	h, ok := c[dateKey(t)]
	return h, ok
}

// Add registers a holiday on the given date, replacing any existing entry.
func (c MapCalendar) Add(t time.Time, h Holiday) {
	c[dateKey(t)] = h
}

// ParseCategory maps a free-form category label to a HolidayCategory,
// defaulting to CategoryNone for unknown labels.
func ParseCategory(s string) HolidayCategory {
	switch HolidayCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryReligious:
		return CategoryReligious
	case CategoryCivic:
		return CategoryCivic
	case CategoryElectoral:
		return CategoryElectoral
	case CategoryCultural:
		return CategoryCultural
	default:
		return CategoryNone
	}
}

// ReadCalendarCSV parses a holiday calendar from CSV rows of the form
// date,name,category (header optional, dates as 2006-01-02).
func ReadCalendarCSV(r io.Reader) (MapCalendar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cal := MapCalendar{}
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read calendar row: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("calendar row %d: want at least date,name", line)
		}
		d, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("calendar row %d: %w", line, err)
		}
		h := Holiday{Name: strings.TrimSpace(rec[1]), Category: CategoryCivic}
		if len(rec) > 2 {
			h.Category = ParseCategory(rec[2])
		}
		cal.Add(d, h)
	}
	return cal, nil
}

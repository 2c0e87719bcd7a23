package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ReadSeriesCSV parses observations from CSV rows of the form
// date,value[,is_gap] (header optional, dates as 2006-01-02). Validation
// of ordering and sign happens later in Build; this only parses.
func ReadSeriesCSV(r io.Reader) ([]Observation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []Observation
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read series row: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("series row %d: want at least date,value", line)
		}
		d, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("series row %d: %w", line, err)
		}
		o := Observation{Date: d}
		if o.Value, err = strconv.ParseFloat(strings.TrimSpace(rec[1]), 64); err != nil {
			return nil, fmt.Errorf("series row %d: %w", line, err)
		}
		if len(rec) > 2 {
			if o.IsGap, err = strconv.ParseBool(strings.TrimSpace(rec[2])); err != nil {
				return nil, fmt.Errorf("series row %d: %w", line, err)
			}
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty series")
	}
	return out, nil
}

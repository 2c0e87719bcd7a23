package compose

import (
	"math"
	"time"
)

// StaffingConfig converts forecast hours into headcount recommendations.
type StaffingConfig struct {
	HoursPerAgent float64 `json:"hours_per_agent" mapstructure:"hours_per_agent"`
	MinAgents     int     `json:"min_agents" mapstructure:"min_agents"`
}

// DefaultStaffingConfig assumes one full-time shift per agent per day.
func DefaultStaffingConfig() StaffingConfig {
	return StaffingConfig{HoursPerAgent: 8, MinAgents: 1}
}

// StaffingDay is one day's headcount recommendation: minimum from the
// lower bound, optimal from the point forecast, maximum from the upper
// bound.
type StaffingDay struct {
	Date          time.Time `json:"date"`
	DayType       string    `json:"day_type"`
	MinAgents     int       `json:"min_agents"`
	OptimalAgents int       `json:"optimal_agents"`
	MaxAgents     int       `json:"max_agents"`
}

// StaffingPlan derives per-day headcount from the composed forecast.
func StaffingPlan(f *Forecast, cfg StaffingConfig) []StaffingDay {
	plan := make([]StaffingDay, len(f.Entries))
	for i, e := range f.Entries {
		plan[i] = StaffingDay{
			Date:          e.Date,
			DayType:       dayType(e.Step.DayOfWeek, e.Step.IsHoliday),
			MinAgents:     agents(e.Lower, cfg),
			OptimalAgents: agents(e.Point, cfg),
			MaxAgents:     agents(e.Upper, cfg),
		}
	}
	return plan
}

func agents(hours float64, cfg StaffingConfig) int {
	n := int(math.Ceil(hours / cfg.HoursPerAgent))
	if n < cfg.MinAgents {
		n = cfg.MinAgents
	}
	return n
}

// dayType classifies expected traffic by weekday: Mondays carry the
// post-weekend backlog, Saturdays run reduced.
func dayType(dow int, holiday bool) string {
	switch {
	case holiday:
		return "holiday"
	case dow == 0:
		return "high_traffic"
	case dow == 5:
		return "reduced_traffic"
	default:
		return "medium_traffic"
	}
}

package keepalive

import (
	"math"
	"time"

	"github.com/robfig/cron"
)

const (
	ReasonBudget = "budget"
	ReasonManual = "manual"
)

// State is owned by the scheduler loop. All transitions return a new value.
type State struct {
	Enabled      bool      `json:"enabled"`
	PausedReason string    `json:"paused_reason,omitempty"`
	Pings        int       `json:"pings"`
	Failures     int       `json:"failures"`
	Budget       int       `json:"budget"`
	Limit        int       `json:"limit"`
	Period       string    `json:"period"`
	LastPingAt   time.Time `json:"last_ping_at"`
	LastError    string    `json:"last_error,omitempty"`
	NextResetAt  time.Time `json:"next_reset_at"`
}

func (s State) Remaining() int {
	if s.Pings >= s.Limit {
		return 0
	}
	return s.Limit - s.Pings
}

func newState(cfg Config, now time.Time) State {
	now = now.In(cfg.Location)
	return State{
		Enabled:     true,
		Budget:      cfg.MonthlyBudget,
		Limit:       budgetLimit(cfg.MonthlyBudget, cfg.PauseFraction),
		Period:      periodOf(now),
		NextResetAt: nextMonthStart(now),
	}
}

// budgetLimit is the number of pings after which the scheduler pauses. The
// epsilon absorbs float error (100*0.29 is 28.999...); the floor of one keeps
// tiny budgets from never pausing.
func budgetLimit(budget int, fraction float64) int {
	limit := int(math.Floor(float64(budget)*fraction + 1e-9))
	if limit < 1 {
		return 1
	}
	return limit
}

// tick rolls the period if the month changed and reports whether a ping is due.
func (s State) tick(now time.Time) (State, bool) {
	s = s.rollover(now)
	return s, s.Enabled
}

// recordPing counts a ping and pauses the scheduler when the count crosses
// the limit.
func (s State) recordPing(now time.Time, err error) State {
	before := s.Pings
	s.Pings++
	s.LastPingAt = now
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
	if before < s.Limit && s.Pings >= s.Limit {
		s.Enabled = false
		s.PausedReason = ReasonBudget
	}
	return s
}

// rollover starts a new monthly period. A budget pause is lifted; a manual
// pause is kept. It is a no-op while now is still inside the current period.
func (s State) rollover(now time.Time) State {
	if periodOf(now) == s.Period {
		return s
	}
	s.Pings = 0
	s.Failures = 0
	s.Period = periodOf(now)
	s.NextResetAt = nextMonthStart(now)
	if s.PausedReason == ReasonBudget {
		s.Enabled = true
		s.PausedReason = ""
	}
	return s
}

func (s State) pause() State {
	if !s.Enabled {
		return s
	}
	s.Enabled = false
	s.PausedReason = ReasonManual
	return s
}

func (s State) resume() State {
	s.Enabled = true
	s.PausedReason = ""
	return s
}

func periodOf(t time.Time) string {
	return t.Format("2006-01")
}

// monthlySpec fires at 00:00 on the first day of every month.
const monthlySpec = "@monthly"

var monthly = mustSchedule(monthlySpec)

func mustSchedule(spec string) cron.Schedule {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return sched
}

// nextMonthStart is the next firing of the monthly reset after t, in t's
// location.
func nextMonthStart(t time.Time) time.Time {
	return monthly.Next(t)
}

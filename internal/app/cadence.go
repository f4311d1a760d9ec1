package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Cadence decides when the next tick starts
type Cadence interface {
	Next(after time.Time) (time.Time, error)
	String() string
}

// IntervalCadence ticks a fixed duration after the previous tick
type IntervalCadence time.Duration

func (c IntervalCadence) Next(after time.Time) (time.Time, error) {
	if c <= 0 {
		return time.Time{}, fmt.Errorf("invalid poll interval %s", time.Duration(c))
	}
	return after.Add(time.Duration(c)), nil
}

func (c IntervalCadence) String() string {
	return "every " + time.Duration(c).String()
}

// CronCadence ticks on a 5-field cron expression
type CronCadence struct {
	Expr string
	Loc  *time.Location
}

// ValidateCron checks expr is a valid 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ValidateCron(expr string) error {
	if len(strings.Fields(expr)) != 5 || !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q, expected 5-field format (minute hour day-of-month month day-of-week)", expr)
	}
	return nil
}

func (c CronCadence) Next(after time.Time) (time.Time, error) {
	if c.Loc != nil {
		after = after.In(c.Loc)
	}
	next, err := gronx.NextTickAfter(c.Expr, after, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron %q: %w", c.Expr, err)
	}
	return next, nil
}

func (c CronCadence) String() string {
	return "cron " + c.Expr
}

// CadenceFor picks the cadence configured in cfg
func CadenceFor(cfg Config) Cadence {
	if cfg.Cron != "" {
		return CronCadence{Expr: cfg.Cron, Loc: cfg.Location}
	}
	return IntervalCadence(cfg.PollInterval)
}

package app

import (
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/state"
)

// DateLayout is the canonical calendar-day format used for comparison and persistence
const DateLayout = "2006-01-02"

// PickupEvent represents a single planned waste collection
type PickupEvent struct {
	Date  time.Time
	Types []string
}

// Schedule is the raw collection plan for one address, as returned by the remote API
type Schedule struct {
	Events []PickupEvent
}

// Content is the canonical, display-ready summary of the next pickup.
// A zero NextDate marks the "no upcoming pickup" sentinel.
type Content struct {
	NextDate   time.Time
	Types      []string
	RenderedAt time.Time
}

// IsEmpty reports whether c is the "no upcoming pickup" sentinel
func (c Content) IsEmpty() bool {
	return c.NextDate.IsZero()
}

// DateKey returns the pickup day as YYYY-MM-DD, or "" for the sentinel
func (c Content) DateKey() string {
	if c.IsEmpty() {
		return ""
	}
	return c.NextDate.Format(DateLayout)
}

// Equal compares the pickup day and the canonical type list. RenderedAt is ignored.
func (c Content) Equal(other Content) bool {
	if c.DateKey() != other.DateKey() || len(c.Types) != len(other.Types) {
		return false
	}
	for i := range c.Types {
		if c.Types[i] != other.Types[i] {
			return false
		}
	}
	return true
}

// Hash returns the fingerprint stored alongside the content in the state file
func (c Content) Hash() string {
	return state.Fingerprint(c.DateKey(), c.Types)
}

// TypesLabel joins the types for log lines
func (c Content) TypesLabel() string {
	if c.IsEmpty() {
		return NoPickupText
	}
	return strings.Join(c.Types, ", ")
}

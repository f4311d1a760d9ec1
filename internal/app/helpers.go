package app

import (
	"context"
	"sort"
	"strings"
	"time"
)

// SortEventsByDate sorts events by date in ascending order
func SortEventsByDate(events []PickupEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
}

// sleepCtx waits for d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var danishNames = strings.NewReplacer(
	"Monday", "Mandag", "Tuesday", "Tirsdag", "Wednesday", "Onsdag",
	"Thursday", "Torsdag", "Friday", "Fredag", "Saturday", "Lørdag", "Sunday", "Søndag",
	"Mon", "Man", "Tue", "Tir", "Wed", "Ons", "Thu", "Tor", "Fri", "Fre", "Sat", "Lør", "Sun", "Søn",
	"January", "januar", "February", "februar", "March", "marts", "April", "april",
	"May", "maj", "June", "juni", "July", "juli", "August", "august",
	"September", "september", "October", "oktober", "November", "november", "December", "december",
)

// FormatDate renders day with a Go layout, using Danish weekday and month names
func FormatDate(day time.Time, layout string) string {
	return danishNames.Replace(day.Format(layout))
}

package renosyd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klabast/wb-services/abfall-display/internal/app"
)

// pickupPoint is one entry of the calendar response
type pickupPoint struct {
	Standplads  standplads          `json:"standplads"`
	Collections []plannedCollection `json:"planlagtetømninger"`
}

type standplads struct {
	Nummer string `json:"nummer"`
	Navn   string `json:"navn"`
}

type plannedCollection struct {
	Dato       string   `json:"dato"`
	Fraktioner []string `json:"fraktioner"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	app.DateLayout,
}

// parseDato reads RFC 3339 timestamps as given and zone-less values in loc
func parseDato(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for i, layout := range dateLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// decodeCalendar flattens the collections of every pickup point into one schedule
func decodeCalendar(raw []byte, loc *time.Location) (app.Schedule, error) {
	var points []pickupPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return app.Schedule{}, fmt.Errorf("renosyd: decode calendar: %w", err)
	}

	var schedule app.Schedule
	for _, p := range points {
		for _, pc := range p.Collections {
			date, err := parseDato(pc.Dato, loc)
			if err != nil {
				return app.Schedule{}, fmt.Errorf("renosyd: pickup point %s: %w", p.Standplads.Nummer, err)
			}
			schedule.Events = append(schedule.Events, app.PickupEvent{
				Date:  date,
				Types: append([]string(nil), pc.Fraktioner...),
			})
		}
	}
	app.SortEventsByDate(schedule.Events)
	return schedule, nil
}

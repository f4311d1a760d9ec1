package app

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ICS constants
const (
	ICSProductID = "-//abfall-display//Tømmekalender//DA"
	ICSUIDDomain = "abfall-display.local"
)

// Reminder is a VALARM DaysBefore days ahead of a pickup at Clock ("HH:MM")
type Reminder struct {
	DaysBefore int
	Clock      string
}

// ParseReminder reads "<days>@HH:MM", e.g. "1@19:00"
func ParseReminder(s string) (Reminder, error) {
	days, clock, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return Reminder{}, fmt.Errorf("invalid reminder %q, expected <days>@HH:MM", s)
	}
	n, err := strconv.Atoi(days)
	if err != nil || n < 0 {
		return Reminder{}, fmt.Errorf("invalid reminder days in %q", s)
	}
	if _, _, err := parseClock(clock); err != nil {
		return Reminder{}, fmt.Errorf("invalid reminder %q: %w", s, err)
	}
	return Reminder{DaysBefore: n, Clock: clock}, nil
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return hour, minute, nil
}

// ExportEvents merges same-day events, canonicalizes their types and drops
// days before now in loc.
func ExportEvents(s Schedule, now time.Time, loc *time.Location) []PickupEvent {
	if loc == nil {
		loc = time.Local
	}
	today := civilDay(now, loc)
	byDay := make(map[string]int)
	var out []PickupEvent
	for _, ev := range s.Events {
		day := civilDay(ev.Date, loc)
		if day.Before(today) {
			continue
		}
		key := day.Format(DateLayout)
		if i, ok := byDay[key]; ok {
			out[i].Types = append(out[i].Types, ev.Types...)
			continue
		}
		byDay[key] = len(out)
		out = append(out, PickupEvent{Date: day, Types: append([]string(nil), ev.Types...)})
	}
	for i := range out {
		out[i].Types = CanonicalTypes(out[i].Types)
	}
	SortEventsByDate(out)
	return out
}

// WriteICS writes events as an iCalendar feed of all-day events
func WriteICS(w io.Writer, address string, events []PickupEvent, reminders []Reminder, now time.Time, tz string) error {
	bw := bufio.NewWriter(w)
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(bw, format+"\r\n", args...)
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:%s", ICSProductID)
	line("METHOD:PUBLISH")
	line("X-WR-CALNAME:Tømmekalender %s", address)
	if tz != "" {
		line("X-WR-TIMEZONE:%s", tz)
	}
	line("CALSCALE:GREGORIAN")

	stamp := now.UTC().Format("20060102T150405Z")
	for _, ev := range events {
		summary := strings.Join(ev.Types, ", ")
		if summary == "" {
			summary = CanonicalType("ukendt")
		}
		day := ev.Date.Format(DateLayout)

		line("BEGIN:VEVENT")
		line("UID:%s-%s@%s", day, address, ICSUIDDomain)
		line("DTSTAMP:%s", stamp)
		line("DTSTART;VALUE=DATE:%s", ev.Date.Format("20060102"))
		line("DTEND;VALUE=DATE:%s", ev.Date.AddDate(0, 0, 1).Format("20060102"))
		line("SUMMARY:%s", escapeICS(summary))
		line("DESCRIPTION:%s", escapeICS("Tømning af "+summary+" ved standplads "+address))
		for _, r := range reminders {
			trigger, err := alarmTrigger(r)
			if err != nil {
				return err
			}
			line("BEGIN:VALARM")
			line("ACTION:DISPLAY")
			line("DESCRIPTION:%s", escapeICS("Påmindelse: "+summary))
			line("TRIGGER:%s", trigger)
			line("END:VALARM")
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return bw.Flush()
}

// alarmTrigger returns the ISO 8601 duration from the all-day event start
// (midnight) to the reminder time.
func alarmTrigger(r Reminder) (string, error) {
	hour, minute, err := parseClock(r.Clock)
	if err != nil {
		return "", err
	}
	total := hour*60 + minute - r.DaysBefore*24*60
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	days := total / (24 * 60)
	rem := total % (24 * 60)
	return fmt.Sprintf("%sP%dDT%dH%dM", sign, days, rem/60, rem%60), nil
}

var icsEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func escapeICS(s string) string {
	return icsEscaper.Replace(s)
}

// WriteCSV writes one row per event: date and the joined type list
func WriteCSV(w io.Writer, events []PickupEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"dato", "fraktioner"}); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write([]string{ev.Date.Format(DateLayout), strings.Join(ev.Types, ", ")}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type exportedEvent struct {
	Date  string   `json:"date"`
	Types []string `json:"types"`
}

// WriteJSON writes the address and its events as an indented JSON document
func WriteJSON(w io.Writer, address string, events []PickupEvent) error {
	out := struct {
		Address string          `json:"address"`
		Events  []exportedEvent `json:"events"`
	}{Address: address, Events: make([]exportedEvent, 0, len(events))}
	for _, ev := range events {
		out.Events = append(out.Events, exportedEvent{Date: ev.Date.Format(DateLayout), Types: ev.Types})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

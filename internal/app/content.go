package app

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NoPickupText is shown when the schedule has no upcoming collection
const NoPickupText = "Ingen tømning planlagt"

// wastePriority orders waste types on the display. Keys are lower-cased
// canonical names; lower rank is shown first. Unknown types follow all known
// ones in lexical order.
var wastePriority = map[string]int{
	// RenoSyd fractions
	"restaffald":             10,
	"madaffald":              11,
	"rest/mad":               12,
	"papir":                  20,
	"pap":                    21,
	"papir/pap":              22,
	"glas":                   30,
	"metal":                  31,
	"glas/metal":             32,
	"plast":                  40,
	"mad- og drikkekartoner": 41,
	"plast/mdk":              42,
	"tekstiler":              50,
	"farligt affald":         60,
	"storskrald":             70,
	"haveaffald":             71,

	// German bins
	"restmüll":    10,
	"biotonne":    11,
	"papiertonne": 20,
	"gelber sack": 40,
	"altkleider":  50,
	"sondermüll":  60,

	// English names
	"residual": 10,
	"organic":  11,
	"paper":    20,
	"glass":    30,
	"plastic":  40,
	"textiles": 50,
}

var lowerCaser = cases.Lower(language.Und)

// CanonicalType normalizes a waste type name: NFC, trimmed, inner whitespace
// collapsed, lower-cased with an upper-case first letter.
func CanonicalType(name string) string {
	s := strings.Join(strings.Fields(norm.NFC.String(name)), " ")
	if s == "" {
		return ""
	}
	s = lowerCaser.String(s)
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// CanonicalTypes canonicalizes, de-duplicates and priority-orders names
func CanonicalTypes(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		c := CanonicalType(n)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := typeRank(out[i]), typeRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

func typeRank(canonical string) int {
	if r, ok := wastePriority[lowerCaser.String(canonical)]; ok {
		return r
	}
	return 1000
}

// FormatContent derives the display content from a schedule. The earliest
// event whose day has not ended yet in loc wins; events on the same day are
// merged. An empty or fully past schedule yields the sentinel content.
func FormatContent(s Schedule, now time.Time, loc *time.Location) Content {
	if loc == nil {
		loc = time.Local
	}
	today := civilDay(now, loc)

	var next time.Time
	var types []string
	for _, ev := range s.Events {
		day := civilDay(ev.Date, loc)
		if day.Before(today) {
			continue
		}
		switch {
		case next.IsZero() || day.Before(next):
			next = day
			types = append([]string(nil), ev.Types...)
		case day.Equal(next):
			types = append(types, ev.Types...)
		}
	}

	if next.IsZero() {
		return Content{RenderedAt: now}
	}
	canonical := CanonicalTypes(types)
	if len(canonical) == 0 {
		canonical = []string{CanonicalType("ukendt")}
	}
	return Content{NextDate: next, Types: canonical, RenderedAt: now}
}

// civilDay truncates t to midnight of its calendar day in loc
func civilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

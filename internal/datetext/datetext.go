// Package datetext converts the publication date strings shown on OLX.ro
// search cards into minutes elapsed since publication.
package datetext

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unknown is returned for empty or unrecognized date strings. Callers
// compare ages against finite thresholds, so +Inf naturally sorts such
// listings as "very old".
var Unknown = math.Inf(1)

var months = map[string]time.Month{
	"ianuarie":   time.January,
	"februarie":  time.February,
	"martie":     time.March,
	"aprilie":    time.April,
	"mai":        time.May,
	"iunie":      time.June,
	"iulie":      time.July,
	"august":     time.August,
	"septembrie": time.September,
	"octombrie":  time.October,
	"noiembrie":  time.November,
	"decembrie":  time.December,
}

var calendarExpr = regexp.MustCompile(`(\d+)\s+([a-z]+)(?:\s+(\d{4}))?`)

// MinutesSince parses a Romanian date string ("Azi la 10:30",
// "Ieri la 22:15", "14 februarie", "14 februarie 2025") and returns the
// minutes elapsed between the publication moment and now. Unrecognized
// input yields Unknown; the function never fails.
func MinutesSince(raw string, now time.Time) float64 {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return Unknown
	}

	var published time.Time
	switch {
	case strings.Contains(raw, "azi la"):
		h, m, ok := clockAfter(raw, "azi la")
		if !ok {
			return Unknown
		}
		published = time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		// A future "today" time means the clock rolled past midnight
		// since the card was rendered.
		if published.After(now) {
			published = published.AddDate(0, 0, -1)
		}

	case strings.Contains(raw, "ieri la"):
		h, m, ok := clockAfter(raw, "ieri la")
		if !ok {
			return Unknown
		}
		y := now.AddDate(0, 0, -1)
		published = time.Date(y.Year(), y.Month(), y.Day(), h, m, 0, 0, now.Location())

	case containsMonth(raw):
		match := calendarExpr.FindStringSubmatch(raw)
		if match == nil {
			return Unknown
		}
		day, err := strconv.Atoi(match[1])
		if err != nil {
			return Unknown
		}
		month, ok := months[match[2]]
		if !ok {
			return Unknown
		}
		year := now.Year()
		explicitYear := match[3] != ""
		if explicitYear {
			year, err = strconv.Atoi(match[3])
			if err != nil {
				return Unknown
			}
		}
		published = time.Date(year, month, day, 0, 0, 0, 0, now.Location())
		if published.After(now) && !explicitYear {
			published = published.AddDate(-1, 0, 0)
		}

	default:
		return Unknown
	}

	return now.Sub(published).Minutes()
}

func clockAfter(raw, marker string) (hour, minute int, ok bool) {
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return 0, 0, false
	}
	rest := strings.TrimSpace(raw[idx+len(marker):])
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	minuteField := strings.Fields(parts[1])
	if len(minuteField) == 0 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(minuteField[0])
	if err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func containsMonth(raw string) bool {
	for name := range months {
		if strings.Contains(raw, name) {
			return true
		}
	}
	return false
}

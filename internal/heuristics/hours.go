package heuristics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/communityforge/scout/internal/model"
)

var titleCaser = cases.Title(language.English)

// weekdayNames in ISO order, Monday=1 through Sunday=7.
var weekdayNames = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

var (
	timeTokenRe  = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}\b|\b\d{1,2}\s*(?:a\.?m\.?|p\.?m\.?)`)
	closedRe     = regexp.MustCompile(`(?i)\b(closed|by appointment)\b`)
	clockRe      = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)?$`)
	militaryRe   = regexp.MustCompile(`^\d{3,4}$`)
	timeRangeRe  = regexp.MustCompile(`(?i)(\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)?)\s*(?:-|–|—|to|until)\s*(\d{1,2}(?::\d{2})?\s*(?:a\.?m\.?|p\.?m\.?)?)`)
	dupSpacesRe  = regexp.MustCompile(`\s+`)
	meridiemOnly = regexp.MustCompile(`(?i)(a\.?m\.?|p\.?m\.?)`)
)

// scanLookahead is how many lines after a "hours" mention are examined for
// weekday/time patterns.
const scanLookahead = 8

// Weekday normalizes a day token (full name, abbreviation, or schema.org IRI)
// to its canonical name and ISO index, Monday=1. Tokens shorter than two
// characters are rejected as ambiguous.
func Weekday(token string) (string, int, bool) {
	tok := strings.ToLower(strings.TrimSpace(token))
	if i := strings.LastIndexAny(tok, "/#"); i >= 0 {
		tok = tok[i+1:] // https://schema.org/Monday and the like
	}
	tok = strings.Trim(tok, ".,:;()")
	if len(tok) < 2 {
		return "", 0, false
	}
	for i, name := range weekdayNames {
		if strings.HasPrefix(name, tok) || strings.HasPrefix(tok, name) {
			return titleCaser.String(name), i + 1, true
		}
	}
	return "", 0, false
}

// placesDay converts an ISO weekday index (Monday=1..Sunday=7) to the
// 0=Sunday..6=Saturday numbering used by Period.
func placesDay(iso int) int {
	return iso % 7
}

// NormalizeClock normalizes a time token to a 4-digit 24-hour string.
// Accepts "9:00 am", "0900", "900", "17:30", and bare hours like "9", which
// take the meridiem hint ("am" or "pm") when they carry none of their own.
func NormalizeClock(token, meridiem string) (string, bool) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return "", false
	}

	if militaryRe.MatchString(tok) {
		padded := tok
		if len(padded) == 3 {
			padded = "0" + padded
		}
		hour, _ := strconv.Atoi(padded[:2])
		minute, _ := strconv.Atoi(padded[2:])
		if hour > 23 || minute > 59 {
			return "", false
		}
		return fmt.Sprintf("%02d%02d", hour, minute), true
	}

	m := clockRe.FindStringSubmatch(tok)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	mer := strings.ToLower(strings.ReplaceAll(m[3], ".", ""))
	if mer == "" {
		mer = strings.ToLower(meridiem)
	}
	switch mer {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d%02d", hour, minute), true
}

// FormatClock renders a 4-digit 24-hour string as "9:00 AM" style text.
func FormatClock(hhmm string) string {
	if len(hhmm) != 4 {
		return hhmm
	}
	hour, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return hhmm
	}
	suffix := "AM"
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour == 12:
		suffix = "PM"
	case hour > 12:
		display = hour - 12
		suffix = "PM"
	}
	return fmt.Sprintf("%d:%s %s", display, hhmm[2:], suffix)
}

// parseTimeRange extracts an open/close pair of normalized clocks from text
// like "9:00 am - 5:00 pm" or "9-5pm". A bare opening hour inherits a
// meridiem from the closing token: "9-5pm" opens at 0900, "1-5pm" at 1300.
func parseTimeRange(text string) (string, string, bool) {
	m := timeRangeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	openTok, closeTok := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])

	closeMer := strings.ToLower(strings.ReplaceAll(meridiemOnly.FindString(closeTok), ".", ""))
	openHint := ""
	if closeMer != "" && meridiemOnly.FindString(openTok) == "" {
		openHint = closeMer
		if closeMer == "pm" {
			openHour := leadingNumber(openTok)
			closeHour := leadingNumber(closeTok)
			if openHour > closeHour {
				openHint = "am"
			}
		}
	}

	open, ok1 := NormalizeClock(openTok, openHint)
	close, ok2 := NormalizeClock(closeTok, closeMer)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return open, close, true
}

func leadingNumber(tok string) int {
	i := 0
	for i < len(tok) && tok[i] >= '0' && tok[i] <= '9' {
		i++
	}
	n, _ := strconv.Atoi(tok[:i])
	return n
}

// hoursBuilder accumulates periods and weekday text, de-duplicating entries
// by normalized text.
type hoursBuilder struct {
	hours model.Hours
	seen  map[string]bool
}

func newHoursBuilder() *hoursBuilder {
	return &hoursBuilder{
		hours: model.Hours{Periods: []model.Period{}, WeekdayText: []string{}},
		seen:  map[string]bool{},
	}
}

func (b *hoursBuilder) addText(entry string) {
	key := dupSpacesRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(entry)), " ")
	if key == "" || b.seen[key] {
		return
	}
	b.seen[key] = true
	b.hours.WeekdayText = append(b.hours.WeekdayText, strings.TrimSpace(entry))
}

func (b *hoursBuilder) addPeriod(iso int, open, close string) {
	day := placesDay(iso)
	for _, p := range b.hours.Periods {
		if p.Open.Day == day && p.Open.Time == open && p.Close.Time == close {
			return
		}
	}
	b.hours.Periods = append(b.hours.Periods, model.Period{
		Open:  model.TimeOfDay{Day: day, Time: open},
		Close: model.TimeOfDay{Day: day, Time: close},
	})
}

// ExtractHours derives a weekly schedule from a rendered page, preferring
// structured openingHoursSpecification, then openingHours free text, then a
// scan of the cleaned page text.
func ExtractHours(page *model.RenderedPage) model.Hours {
	if h := hoursFromSpecification(page.StructuredData); len(h.WeekdayText) > 0 {
		return h
	}
	if h := hoursFromOpeningHours(page.StructuredData); len(h.WeekdayText) > 0 {
		return h
	}
	return hoursFromText(CleanLines(page.Text))
}

// hoursFromSpecification reads openingHoursSpecification entries, each with a
// dayOfWeek (string, IRI, or list) plus opens/closes tokens.
func hoursFromSpecification(records []map[string]any) model.Hours {
	b := newHoursBuilder()
	for _, rec := range records {
		for _, entry := range asSlice(rec["openingHoursSpecification"]) {
			spec, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			opens, _ := NormalizeClock(asString(spec["opens"]), "")
			closes, _ := NormalizeClock(asString(spec["closes"]), "")
			for _, dayVal := range asSlice(spec["dayOfWeek"]) {
				name, iso, ok := Weekday(asString(dayVal))
				if !ok {
					continue
				}
				if opens == "" || closes == "" {
					b.addText(name + ": Closed")
					continue
				}
				b.addPeriod(iso, opens, closes)
				b.addText(fmt.Sprintf("%s: %s - %s", name, FormatClock(opens), FormatClock(closes)))
			}
		}
	}
	return b.hours
}

// hoursFromOpeningHours reads openingHours free-text strings such as
// "Mo-Fr 09:00-17:00" or "Monday 9am-5pm".
func hoursFromOpeningHours(records []map[string]any) model.Hours {
	b := newHoursBuilder()
	for _, rec := range records {
		for _, entry := range asSlice(rec["openingHours"]) {
			line := asString(entry)
			if line == "" {
				continue
			}
			days, rest := splitLeadingDays(line)
			if len(days) == 0 {
				continue
			}
			open, close, hasRange := parseTimeRange(rest)
			for _, iso := range days {
				name := titleCaser.String(weekdayNames[iso-1])
				if hasRange {
					b.addPeriod(iso, open, close)
					b.addText(fmt.Sprintf("%s: %s - %s", name, FormatClock(open), FormatClock(close)))
				} else if closedRe.MatchString(rest) {
					b.addText(name + ": " + strings.TrimSpace(rest))
				}
			}
		}
	}
	return b.hours
}

// splitLeadingDays consumes day tokens (including "Mo-Fr" ranges and comma
// lists) from the front of line, returning ISO indices and the remainder.
func splitLeadingDays(line string) ([]int, string) {
	var days []int
	rest := strings.TrimSpace(line)
	for {
		field, tail := nextField(rest)
		if field == "" {
			break
		}
		expanded, ok := expandDayField(field)
		if !ok {
			break
		}
		days = append(days, expanded...)
		rest = tail
	}
	return days, rest
}

func nextField(s string) (string, string) {
	s = strings.TrimLeft(s, " \t:")
	if s == "" {
		return "", ""
	}
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// expandDayField turns "Mo", "Monday", "Mo-Fr", or "Mo,We,Fr" into ISO
// weekday indices.
func expandDayField(field string) ([]int, bool) {
	field = strings.Trim(field, ",:")
	var out []int
	for _, part := range strings.Split(field, ",") {
		lo, hi, found := strings.Cut(part, "-")
		if found {
			_, from, ok1 := Weekday(lo)
			_, to, ok2 := Weekday(hi)
			if !ok1 || !ok2 || to < from {
				return nil, false
			}
			for d := from; d <= to; d++ {
				out = append(out, d)
			}
			continue
		}
		_, iso, ok := Weekday(part)
		if !ok {
			return nil, false
		}
		out = append(out, iso)
	}
	return out, len(out) > 0
}

// hoursFromText scans cleaned page lines. A line mentioning "hours" opens a
// short lookahead window; within it, weekday lines combined with a time token
// (or "closed"/"by appointment") are captured, and a day-only line is merged
// with a following time-only line.
func hoursFromText(lines []string) model.Hours {
	b := newHoursBuilder()
	for i, line := range lines {
		if !strings.Contains(strings.ToLower(line), "hours") {
			continue
		}
		end := i + 1 + scanLookahead
		if end > len(lines) {
			end = len(lines)
		}
		pending := ""      // remembered day-only line
		pendingISO := 0
		for j := i; j < end; j++ {
			l := lines[j]
			days, value := lineDays(l)
			hasValue := timeTokenRe.MatchString(l) || closedRe.MatchString(l)

			switch {
			case len(days) > 0 && hasValue:
				if strings.TrimSpace(value) == "" {
					value = l
				}
				for _, iso := range days {
					captureDayValue(b, iso, value)
				}
				pending, pendingISO = "", 0
			case len(days) == 1 && !hasValue:
				pending = titleCaser.String(weekdayNames[days[0]-1])
				pendingISO = days[0]
			case pending != "" && hasValue:
				captureDayValue(b, pendingISO, l)
				pending, pendingISO = "", 0
			}
		}
	}
	return b.hours
}

// captureDayValue records "<Day>: <value>" and, when the value parses as a
// time range, the corresponding period.
func captureDayValue(b *hoursBuilder, iso int, value string) {
	name := titleCaser.String(weekdayNames[iso-1])
	value = strings.Trim(strings.TrimSpace(value), ":-– ")
	if open, close, ok := parseTimeRange(value); ok {
		b.addPeriod(iso, open, close)
		b.addText(fmt.Sprintf("%s: %s - %s", name, FormatClock(open), FormatClock(close)))
		return
	}
	b.addText(name + ": " + value)
}

// lineDays finds weekday tokens in a line, returning their ISO indices and
// the text after the last day token. Handles "Mon-Fri" ranges.
func lineDays(line string) ([]int, string) {
	words := strings.Fields(line)
	for i, w := range words {
		if expanded, ok := expandDayField(w); ok {
			rest := strings.Join(words[i+1:], " ")
			return expanded, rest
		}
	}
	return nil, ""
}

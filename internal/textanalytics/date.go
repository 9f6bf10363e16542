// Package textanalytics provides the lightweight, heuristic text analysis
// used across the platform: date and entity extraction, Jaccard similarity,
// prefix summaries, script-based language detection, keyword frequency
// ranking, and filename/size formatting.
//
// Every function is pure and total. Pattern tables are package-level data
// that is never mutated after initialisation, so all functions are safe for
// concurrent use without coordination.
package textanalytics

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DatePattern is a single date matcher. Regexp locates a candidate and
// Parse converts its submatches into a calendar date.
type DatePattern struct {
	Name   string
	Regexp *regexp.Regexp
	Parse  func(submatches []string) (time.Time, bool)
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var defaultDatePatterns = []DatePattern{
	{
		Name:   "slash",
		Regexp: regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`),
		Parse: func(m []string) (time.Time, bool) {
			return calendarDate(m[3], m[1], m[2])
		},
	},
	{
		Name:   "iso",
		Regexp: regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`),
		Parse: func(m []string) (time.Time, bool) {
			return calendarDate(m[1], m[2], m[3])
		},
	},
	{
		Name: "month-name",
		Regexp: regexp.MustCompile(`(?i)(January|February|March|April|May|June|July|August|` +
			`September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})`),
		Parse: func(m []string) (time.Time, bool) {
			month, ok := monthNames[strings.ToLower(m[1])]
			if !ok {
				return time.Time{}, false
			}
			return calendarDate(m[3], strconv.Itoa(int(month)), m[2])
		},
	},
}

// DefaultDatePatterns returns a copy of the built-in date patterns in
// priority order.
func DefaultDatePatterns() []DatePattern {
	out := make([]DatePattern, len(defaultDatePatterns))
	copy(out, defaultDatePatterns)
	return out
}

// DateExtractor tries its patterns in order and parses the first match.
type DateExtractor struct {
	patterns []DatePattern
}

// NewDateExtractor builds an extractor over the given patterns. With no
// arguments it uses DefaultDatePatterns.
func NewDateExtractor(patterns ...DatePattern) *DateExtractor {
	if len(patterns) == 0 {
		patterns = defaultDatePatterns
	}
	p := make([]DatePattern, len(patterns))
	copy(p, patterns)
	return &DateExtractor{patterns: p}
}

// Extract returns the date parsed from the leftmost match of the first
// pattern that matches anywhere in text. Once a pattern matches, no other
// pattern is consulted: an invalid calendar date yields false.
func (e *DateExtractor) Extract(text string) (time.Time, bool) {
	for _, p := range e.patterns {
		if p.Regexp == nil || p.Parse == nil {
			continue
		}
		m := p.Regexp.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return p.Parse(m)
	}
	return time.Time{}, false
}

var defaultDateExtractor = NewDateExtractor()

// ExtractDate finds the first recognisable date in text using the default
// patterns. Dates are returned at midnight UTC.
func ExtractDate(text string) (time.Time, bool) {
	return defaultDateExtractor.Extract(text)
}

// calendarDate validates year/month/day strings and rejects dates that
// time.Date would silently normalise (e.g. February 30).
func calendarDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	mo, err := strconv.Atoi(month)
	if err != nil || mo < 1 || mo > 12 {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(mo) {
		return time.Time{}, false
	}
	return t, true
}

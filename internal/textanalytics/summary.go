package textanalytics

import "unicode"

const (
	// DefaultSummaryLength is the preview length used when callers have no
	// preference.
	DefaultSummaryLength = 200
	// SummaryMarker is appended to truncated summaries.
	SummaryMarker = "..."
)

// Summarize returns text unchanged when it fits in maxLength runes.
// Otherwise it keeps the first maxLength runes, backs up to the last
// whitespace inside that prefix, and appends SummaryMarker. This is a
// prefix preview, not a salience-based summary.
func Summarize(text string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	truncated := runes[:maxLength]
	lastSpace := -1
	for i := len(truncated) - 1; i >= 0; i-- {
		if unicode.IsSpace(truncated[i]) {
			lastSpace = i
			break
		}
	}
	// A leading space is not a useful cut point.
	if lastSpace > 0 {
		return string(truncated[:lastSpace]) + SummaryMarker
	}
	return string(truncated) + SummaryMarker
}

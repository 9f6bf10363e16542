package textanalytics

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with the largest fitting unit up to
// GB, rounded to two decimals without trailing zeros ("1.5 KB", "1 MB").
// Zero and negative sizes render as "0 Bytes".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	unit := 0
	scale := int64(1)
	for unit < len(sizeUnits)-1 && bytes/scale >= 1024 {
		scale *= 1024
		unit++
	}
	value := math.Round(float64(bytes)/float64(scale)*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[unit]
}

var underscoreRuns = regexp.MustCompile(`_{2,}`)

// SanitizeFilename replaces every rune outside [A-Za-z0-9._-] with an
// underscore, collapses underscore runs and lowercases the result.
func SanitizeFilename(name string) string {
	replaced := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return strings.ToLower(underscoreRuns.ReplaceAllString(replaced, "_"))
}

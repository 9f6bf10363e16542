// Package export renders analysis reports as downloadable JSON, CSV or
// Markdown documents.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

var csvHeader = []string{"ID", "Title", "Content Type", "Language", "Date", "Keywords", "Summary"}

// Result is a rendered export ready to be served as an attachment.
type Result struct {
	Body        []byte
	ContentType string
	Filename    string
}

// ParseFormat accepts the format names case-insensitively, with "md" as an
// alias for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", apperrors.Newf(apperrors.ErrUnsupportedFormat, "unknown export format %q", s)
	}
}

// Extension is the file extension used for f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// Filename is sentinel-export-<unix millis>.<ext>.
func Filename(f Format, now time.Time) string {
	return fmt.Sprintf("sentinel-export-%d.%s", now.UnixMilli(), f.Extension())
}

// Render produces the export for reports in the given format.
func Render(format Format, reports []*analysis.Report, now time.Time) (*Result, error) {
	if reports == nil {
		reports = []*analysis.Report{}
	}
	var (
		body        []byte
		contentType string
		err         error
	)
	switch format {
	case FormatJSON:
		body, err = renderJSON(reports)
		contentType = "application/json"
	case FormatCSV:
		body = renderCSV(reports)
		contentType = "text/csv"
	case FormatMarkdown:
		body = renderMarkdown(reports, now)
		contentType = "text/markdown"
	default:
		return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, "unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Body: body, ContentType: contentType, Filename: Filename(format, now)}, nil
}

func renderJSON(reports []*analysis.Report) ([]byte, error) {
	body, err := json.MarshalIndent(map[string]any{"documents": reports}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding json export: %w", err)
	}
	return body, nil
}

func renderCSV(reports []*analysis.Report) []byte {
	var buf bytes.Buffer
	writeCSVRow(&buf, csvHeader, false)
	for _, r := range reports {
		writeCSVRow(&buf, []string{
			r.DocumentID,
			r.Title,
			r.ContentType,
			string(r.Language),
			formatDate(r.Date),
			strings.Join(r.Keywords, "; "),
			r.Summary,
		}, true)
	}
	return buf.Bytes()
}

// writeCSVRow writes one line. Data cells are always quoted with embedded
// quotes doubled; the header is written bare.
func writeCSVRow(buf *bytes.Buffer, cells []string, quote bool) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		if quote {
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			buf.WriteByte('"')
		} else {
			buf.WriteString(cell)
		}
	}
	buf.WriteByte('\n')
}

func renderMarkdown(reports []*analysis.Report, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sentinel Export\n\nExported: %s\n\n", now.UTC().Format(time.RFC3339))
	for _, r := range reports {
		title := r.Title
		if title == "" {
			title = r.DocumentID
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		fmt.Fprintf(&b, "**Type:** %s\n", r.ContentType)
		fmt.Fprintf(&b, "**Language:** %s\n", r.LanguageName)
		if r.Date != nil {
			fmt.Fprintf(&b, "**Date:** %s\n", formatDate(r.Date))
		}
		if len(r.Keywords) > 0 {
			fmt.Fprintf(&b, "**Keywords:** %s\n", strings.Join(r.Keywords, ", "))
		}
		if names := entityNames(r); len(names) > 0 {
			fmt.Fprintf(&b, "**Entities:** %s\n", strings.Join(names, ", "))
		}
		fmt.Fprintf(&b, "\n%s\n\n---\n\n", r.Summary)
	}
	return []byte(b.String())
}

func entityNames(r *analysis.Report) []string {
	e := r.Entities
	names := make([]string, 0, len(e.People)+len(e.Organizations)+len(e.Locations))
	names = append(names, e.People...)
	names = append(names, e.Organizations...)
	return append(names, e.Locations...)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}

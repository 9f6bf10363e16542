// Package validator checks and normalises documents submitted for analysis.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
)

const (
	maxTitleLength = 1024
	maxTags        = 50
	maxTagLength   = 64
)

// ValidationError lists every rejected field with a reason. It matches
// apperrors.ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", name, e.Fields[name])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidInput }

// A rule inspects one field and returns a reason when it is unacceptable.
type rule struct {
	field string
	check func(req *ingestion.IngestRequest) string
}

var rules = []rule{
	{"title", func(req *ingestion.IngestRequest) string {
		switch {
		case req.Title == "":
			return "title is required"
		case utf8.RuneCountInString(req.Title) > maxTitleLength:
			return fmt.Sprintf("title must be at most %d characters", maxTitleLength)
		}
		return ""
	}},
	{"content", func(req *ingestion.IngestRequest) string {
		if strings.TrimSpace(req.Content) == "" {
			return "content is required and must not be empty"
		}
		return ""
	}},
	{"tags", func(req *ingestion.IngestRequest) string {
		if len(req.Tags) > maxTags {
			return fmt.Sprintf("at most %d tags are allowed", maxTags)
		}
		for _, tag := range req.Tags {
			if tag == "" || utf8.RuneCountInString(tag) > maxTagLength {
				return fmt.Sprintf("tags must be non-empty and at most %d characters", maxTagLength)
			}
		}
		return ""
	}},
	{"source_url", func(req *ingestion.IngestRequest) string {
		if req.SourceURL == "" {
			return ""
		}
		u, err := url.Parse(req.SourceURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return "source_url must be an absolute http or https URL"
		}
		return ""
	}},
}

// ValidateIngestRequest trims the title and tags, applies every rule, and
// on success finishes normalising req: content is cut to maxContentLength
// runes (no limit when it is not positive), duplicate tags are removed
// ignoring case, and a missing content type becomes text.
func ValidateIngestRequest(req *ingestion.IngestRequest, maxContentLength int) error {
	req.Title = strings.TrimSpace(req.Title)
	for i, tag := range req.Tags {
		req.Tags[i] = strings.TrimSpace(tag)
	}

	var fields map[string]string
	for _, r := range rules {
		if reason := r.check(req); reason != "" {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[r.field] = reason
		}
	}
	if fields != nil {
		return &ValidationError{Fields: fields}
	}

	req.Content = ingestion.Truncate(req.Content, maxContentLength)
	req.Tags = dedupeTags(req.Tags)
	if req.ContentType == "" {
		req.ContentType = ingestion.ContentTypeText
	}
	return nil
}

// dedupeTags keeps the first spelling of each tag.
func dedupeTags(tags []string) []string {
	if len(tags) < 2 {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, tag := range tags {
		k := strings.ToLower(tag)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, tag)
	}
	return out
}

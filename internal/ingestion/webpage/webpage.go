// Package webpage fetches a URL and reduces the page to plain text for
// analysis.
package webpage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
)

// UserAgent identifies the fetcher to the sites it reads.
const UserAgent = "Mozilla/5.0 (compatible; SentinelBot/1.0)"

// Page is a fetched document reduced to text.
type Page struct {
	URL         string    `json:"source_url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Content     string    `json:"-"`
	ContentType string    `json:"content_type"`
	Length      int       `json:"content_length"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fetcher downloads pages over HTTP. Transport failures and 5xx answers are
// retried; any other non-2xx answer fails at once.
type Fetcher struct {
	client  *http.Client
	maxSize int64
	policy  resilience.Policy
	now     func() time.Time
}

// NewFetcher returns a fetcher whose requests time out after timeout and
// which reads at most maxSize bytes of a body.
func NewFetcher(timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
		policy: resilience.Policy{
			Attempts:  3,
			BaseDelay: 200 * time.Millisecond,
			MaxDelay:  2 * time.Second,
			Retryable: isTransient,
		},
		now: time.Now,
	}
}

// statusError is a non-2xx answer from the remote site.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("remote answered %d", e.code) }

func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

// Fetch downloads rawURL and extracts its title and text. An unusable URL or
// a failed download is reported as invalid input.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "url must be an absolute http or https URL")
	}

	var body []byte
	if err := resilience.Retry(ctx, "fetch "+u.Host, f.policy, func(ctx context.Context) error {
		b, err := f.get(ctx, u.String())
		body = b
		return err
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "failed to fetch URL")
	}

	title, text, err := Extract(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "failed to parse page")
	}
	if title == "" {
		title = u.Hostname()
	}
	return &Page{
		URL:         u.String(),
		Domain:      u.Hostname(),
		Title:       title,
		Content:     text,
		ContentType: Classify(u.String()),
		Length:      len([]rune(text)),
		FetchedAt:   f.now().UTC(),
	}, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, f.maxSize))
}

// classifiers are tried in order against the page URL.
var classifiers = []struct {
	needles     []string
	contentType string
}{
	{[]string{"twitter.com", "x.com"}, ingestion.ContentTypeSocialMedia},
	{[]string{"youtube.com"}, ingestion.ContentTypeVideo},
	{[]string{"pdf"}, ingestion.ContentTypePDF},
}

// Classify returns the content type for a page URL. Matching is by plain
// substring anywhere in the URL; pages matching nothing are articles.
func Classify(rawURL string) string {
	for _, c := range classifiers {
		for _, n := range c.needles {
			if strings.Contains(rawURL, n) {
				return c.contentType
			}
		}
	}
	return ingestion.ContentTypeArticle
}

// Extract parses an HTML document and returns its trimmed <title> and the
// text of every other node, with script and style content removed and all
// whitespace runs collapsed to one space.
func Extract(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parsing HTML: %w", err)
	}

	var (
		words    []string
		titleSet bool
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Title:
				if !titleSet {
					title = strings.TrimSpace(textOf(n))
					titleSet = true
				}
			}
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, strings.Join(words, " "), nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

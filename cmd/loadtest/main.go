// Command loadtest drives POST /api/v1/analyze on a running analyzer with a
// fixed pool of workers and prints throughput, latency percentiles, cache
// hit rate and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-unique]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Documents   []string
	// Unique appends a per-request suffix so every body misses the cache.
	Unique bool
}

// recorder collects one sample per finished request.
type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int
	transport int
	cacheHits int
}

func newRecorder() *recorder {
	return &recorder{statuses: make(map[int]int)}
}

// Record counts one request. Transport failures have no status and no
// latency sample.
func (r *recorder) Record(latency time.Duration, status int, cacheHit bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.transport++
		return
	}
	r.statuses[status]++
	r.latencies = append(r.latencies, latency)
	if cacheHit && status/100 == 2 {
		r.cacheHits++
	}
}

// Summary is the digest printed at the end of a run.
type Summary struct {
	Total, Succeeded, Failed int
	CacheHits                int
	Elapsed                  time.Duration
	Statuses                 map[int]int
	Min, Mean, Max, StdDev   time.Duration
	P50, P90, P95, P99       time.Duration
}

func (r *recorder) Summary(elapsed time.Duration) Summary {
	r.mu.Lock()
	lat := slices.Clone(r.latencies)
	s := Summary{
		Failed:    r.transport,
		CacheHits: r.cacheHits,
		Elapsed:   elapsed,
		Statuses:  make(map[int]int, len(r.statuses)),
	}
	for code, n := range r.statuses {
		s.Statuses[code] = n
		if code/100 == 2 {
			s.Succeeded += n
		} else {
			s.Failed += n
		}
	}
	r.mu.Unlock()

	s.Total = s.Succeeded + s.Failed
	if len(lat) == 0 {
		return s
	}
	slices.Sort(lat)
	var sum time.Duration
	for _, l := range lat {
		sum += l
	}
	s.Min, s.Max = lat[0], lat[len(lat)-1]
	s.Mean = sum / time.Duration(len(lat))
	s.StdDev = stddev(lat, s.Mean)
	s.P50 = percentile(lat, 50)
	s.P90 = percentile(lat, 90)
	s.P95 = percentile(lat, 95)
	s.P99 = percentile(lat, 99)
	return s
}

var sampleDocuments = []string{
	"Jane Smith from Acme Corp met the board in London on March 14, 2024 to review quarterly revenue.",
	"Привет! Отчёт о продажах за квартал готов и отправлен команде.",
	"Le rapport annuel sera présenté le 12/05/2024 devant le conseil.",
	"新しい製品の発表会は来月に予定されています。",
	"The infrastructure migration finished on 2024-02-01 with no downtime and lower latency.",
	"Globex Company signed a supply agreement with Initech LLC covering logistics and support.",
	"Meeting notes: budget planning, hiring plan, roadmap review, budget approval.",
	"서울 사무소의 분기별 보고서가 업데이트되었습니다.",
}

func main() {
	cfg := Config{Documents: sampleDocuments}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the analyzer service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.BoolVar(&cfg.Unique, "unique", false, "make every document unique to bypass the cache")
	flag.Parse()

	fmt.Printf("Load testing %s with %d workers for %s (%d documents, unique=%t)\n\n",
		cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Documents), cfg.Unique)

	summary := run(context.Background(), cfg)
	fmt.Println(renderReport(summary))
	if summary.Total == 0 {
		fmt.Fprintln(os.Stderr, "no requests completed; is the analyzer running?")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) Summary {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.Concurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	rec := newRecorder()
	began := time.Now()
	var g errgroup.Group
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for seq := 0; ctx.Err() == nil; seq++ {
				content := cfg.Documents[(w+seq)%len(cfg.Documents)]
				if cfg.Unique {
					content += fmt.Sprintf(" [worker %d request %d]", w, seq)
				}
				start := time.Now()
				status, hit, err := analyzeOnce(ctx, client, cfg.BaseURL, content)
				if ctx.Err() != nil {
					return nil
				}
				rec.Record(time.Since(start), status, hit, err)
			}
			return nil
		})
	}
	g.Wait()
	return rec.Summary(time.Since(began))
}

func analyzeOnce(ctx context.Context, client *http.Client, baseURL, content string) (status int, cacheHit bool, err error) {
	body, err := json.Marshal(map[string]string{"title": "loadtest", "content": content})
	if err != nil {
		return 0, false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var decoded struct {
			CacheHit bool `json:"cache_hit"`
		}
		if json.NewDecoder(resp.Body).Decode(&decoded) == nil {
			cacheHit = decoded.CacheHit
		}
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, cacheHit, nil
}

func renderReport(s Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRow(table.Row{"Requests", s.Total})
	tw.AppendRow(table.Row{"Succeeded", s.Succeeded})
	tw.AppendRow(table.Row{"Failed", s.Failed})
	if s.Total > 0 {
		tw.AppendRow(table.Row{"Error rate", fmt.Sprintf("%.2f%%", pct(s.Failed, s.Total))})
	}
	if s.Elapsed > 0 {
		tw.AppendRow(table.Row{"Throughput", fmt.Sprintf("%.1f req/s", float64(s.Total)/s.Elapsed.Seconds())})
	}
	if s.Succeeded > 0 {
		tw.AppendRow(table.Row{"Cache hit rate", fmt.Sprintf("%.1f%%", pct(s.CacheHits, s.Succeeded))})
	}

	if s.Max > 0 {
		tw.AppendSeparator()
		for _, row := range []struct {
			label string
			d     time.Duration
		}{
			{"min", s.Min}, {"mean", s.Mean}, {"p50", s.P50}, {"p90", s.P90},
			{"p95", s.P95}, {"p99", s.P99}, {"max", s.Max}, {"stddev", s.StdDev},
		} {
			tw.AppendRow(table.Row{"Latency " + row.label, row.d.Round(time.Microsecond)})
		}
	}

	if len(s.Statuses) > 0 {
		tw.AppendSeparator()
		codes := make([]int, 0, len(s.Statuses))
		for code := range s.Statuses {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			tw.AppendRow(table.Row{"HTTP " + strconv.Itoa(code), s.Statuses[code]})
		}
	}
	return tw.Render()
}

func pct(n, of int) float64 {
	return float64(n) / float64(of) * 100
}

func stddev(samples []time.Duration, mean time.Duration) time.Duration {
	var sq float64
	for _, l := range samples {
		d := float64(l - mean)
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(len(samples))))
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

package textanalytics

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "John Smith met Acme Corp on 2024-03-15.",
	"medium": `Investigators reviewed the filings submitted by Northwind Trading Company
        on March 3, 2023. The documents describe shipments routed through several
        intermediaries and a series of payments approved by Maria Lopez. Analysts
        compared the filings against earlier reports to identify overlapping claims.`,
	"long": strings.Repeat(`Research platforms combine document ingestion, search, and entity
        tracking. Each uploaded report is tagged with keywords, a detected language,
        and a short preview so that analysts can triage large archives quickly.
        Connections between documents are suggested from token overlap. `, 20),
}

var oddInputs = []string{
	"",
	" ",
	"\x00\xff\xfe",
	"!!!???...",
	strings.Repeat("é", 1000),
	strings.Repeat("A", 5000),
	"日本語",
	"​  ",
}

// Every function must return a value for arbitrary input.
func TestTotalOverOddInputs(t *testing.T) {
	for _, in := range oddInputs {
		ExtractDate(in)
		ExtractEntities(in)
		Similarity(in, in)
		Summarize(in, 3)
		DetectLanguage(in)
		FindKeywords(in, 5)
		SanitizeFilename(in)
	}
}

func TestConcurrentUse(t *testing.T) {
	text := sampleTexts["medium"]
	wantKeywords := FindKeywords(text, DefaultKeywordCount)
	wantEntities := ExtractEntities(text)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := FindKeywords(text, DefaultKeywordCount); fmt.Sprint(got) != fmt.Sprint(wantKeywords) {
				errs <- fmt.Sprintf("keywords = %v", got)
			}
			if got := ExtractEntities(text); fmt.Sprint(got) != fmt.Sprint(wantEntities) {
				errs <- fmt.Sprintf("entities = %v", got)
			}
			if got := DetectLanguage(text); got != English {
				errs <- fmt.Sprintf("language = %v", got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func BenchmarkFindKeywords(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = FindKeywords(text, DefaultKeywordCount)
			}
		})
	}
}

func BenchmarkExtractEntities(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = ExtractEntities(text)
			}
		})
	}
}

func BenchmarkSimilarityParallel(b *testing.B) {
	a, c := sampleTexts["medium"], sampleTexts["long"]
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Similarity(a, c)
		}
	})
}

func BenchmarkDetectLanguageVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 1000, 10000}
	base := "distributed search analytics platform indexing "
	for _, size := range sizes {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = DetectLanguage(text)
			}
		})
	}
}

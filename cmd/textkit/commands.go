package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/textanalytics"
	"github.com/spf13/cobra"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newAnalyzeCommand(opts *options) *cobra.Command {
	var summaryLength, keywordCount int

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Run every analysis over a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			analyzer := analysis.New(analysis.Options{
				SummaryLength: summaryLength,
				KeywordCount:  keywordCount,
			}, nil)
			report := analyzer.Analyze(commandContext(cmd), analysis.Document{
				ID:          filepath.Base(name),
				Title:       filepath.Base(name),
				Content:     content,
				ContentType: ingestion.DetectContentType(name),
				Source:      analysis.SourceCLI,
			})
			if opts.json {
				return writeJSON(cmd, report)
			}
			date := "-"
			if report.Date != nil {
				date = report.Date.Format(time.DateOnly)
			}
			rows := [][]string{
				{"Document", report.DocumentID},
				{"Content type", report.ContentType},
				{"Language", fmt.Sprintf("%s (%s)", report.LanguageName, report.Language)},
				{"Date", date},
				{"Words", strconv.Itoa(report.WordCount)},
				{"People", joinOrDash(report.Entities.People)},
				{"Organizations", joinOrDash(report.Entities.Organizations)},
				{"Keywords", joinOrDash(report.Keywords)},
				{"Summary", report.Summary},
				{"SHA-256", report.ContentHash},
			}
			return writeTable(cmd, []string{"Field", "Value"}, rows)
		},
	}
	cmd.Flags().IntVar(&summaryLength, "summary-length", textanalytics.DefaultSummaryLength, "Maximum summary length in characters")
	cmd.Flags().IntVar(&keywordCount, "keywords", textanalytics.DefaultKeywordCount, "Number of keywords to report")
	return cmd
}

func newDateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "date [file]",
		Short: "Print the first date mentioned in the text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			d, ok := textanalytics.ExtractDate(content)
			if opts.json {
				var value *string
				if ok {
					s := d.Format(time.DateOnly)
					value = &s
				}
				return writeJSON(cmd, map[string]*string{"date": value})
			}
			if !ok {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No date found")
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), d.Format(time.DateOnly))
			return err
		},
	}
}

func newEntitiesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "entities [file]",
		Short: "List capitalised names classified as people or organizations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			bundle := textanalytics.ExtractEntities(content)
			if opts.json {
				return writeJSON(cmd, bundle)
			}
			var rows [][]string
			for _, name := range bundle.People {
				rows = append(rows, []string{string(textanalytics.KindPerson), name})
			}
			for _, name := range bundle.Organizations {
				rows = append(rows, []string{string(textanalytics.KindOrganization), name})
			}
			for _, name := range bundle.Locations {
				rows = append(rows, []string{string(textanalytics.KindLocation), name})
			}
			if len(rows) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No entities found")
				return err
			}
			return writeTable(cmd, []string{"Kind", "Entity"}, rows)
		},
	}
}

func newSimilarityCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <file-a> <file-b>",
		Short: "Jaccard similarity of the word sets of two documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := readInput(cmd, args[:1])
			if err != nil {
				return err
			}
			_, b, err := readInput(cmd, args[1:])
			if err != nil {
				return err
			}
			score := textanalytics.Similarity(a, b)
			if opts.json {
				return writeJSON(cmd, map[string]float64{"score": score})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", score)
			return err
		},
	}
}

func newSummarizeCommand(opts *options) *cobra.Command {
	var length int

	cmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Print a word-boundary preview of the text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			summary := textanalytics.Summarize(content, length)
			if opts.json {
				return writeJSON(cmd, map[string]string{"summary": summary})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().IntVarP(&length, "length", "n", textanalytics.DefaultSummaryLength, "Maximum summary length in characters")
	return cmd
}

func newLanguageCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "language [file]",
		Short: "Guess the language from the script of the opening text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			lang := textanalytics.DetectLanguage(content)
			if opts.json {
				return writeJSON(cmd, map[string]string{"code": string(lang), "name": lang.Name()})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", lang.Name(), lang)
			return err
		},
	}
}

func newKeywordsCommand(opts *options) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "keywords [file]",
		Short: "Rank the most frequent non-stop-words",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, content, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			keywords := textanalytics.FindKeywords(content, count)
			if opts.json {
				return writeJSON(cmd, map[string][]string{"keywords": keywords})
			}
			rows := make([][]string, 0, len(keywords))
			for i, kw := range keywords {
				rows = append(rows, []string{strconv.Itoa(i + 1), kw})
			}
			return writeTable(cmd, []string{"#", "Keyword"}, rows, alignRight, alignLeft)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", textanalytics.DefaultKeywordCount, "Number of keywords")
	return cmd
}

func newFileSizeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "filesize <bytes>...",
		Short: "Format byte counts as human-readable sizes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type sizeRow struct {
				Bytes int64  `json:"bytes"`
				Size  string `json:"size"`
			}
			sizes := make([]sizeRow, 0, len(args))
			for _, arg := range args {
				n, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid byte count %q", arg)
				}
				sizes = append(sizes, sizeRow{Bytes: n, Size: textanalytics.FormatFileSize(n)})
			}
			if opts.json {
				return writeJSON(cmd, sizes)
			}
			rows := make([][]string, 0, len(sizes))
			for _, s := range sizes {
				rows = append(rows, []string{strconv.FormatInt(s.Bytes, 10), s.Size})
			}
			return writeTable(cmd, []string{"Bytes", "Size"}, rows, alignRight, alignRight)
		},
	}
}

func newSanitizeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <filename>...",
		Short: "Make filenames safe for storage keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.json {
				out := make(map[string]string, len(args))
				for _, name := range args {
					out[name] = textanalytics.SanitizeFilename(name)
				}
				return writeJSON(cmd, out)
			}
			rows := make([][]string, 0, len(args))
			for _, name := range args {
				rows = append(rows, []string{name, textanalytics.SanitizeFilename(name)})
			}
			return writeTable(cmd, []string{"Original", "Sanitized"}, rows)
		},
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

package textanalytics

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a detected language code.
type Language string

const (
	English  Language = "en"
	Russian  Language = "ru"
	Chinese  Language = "zh"
	Japanese Language = "ja"
	Korean   Language = "ko"
	French   Language = "fr"
	German   Language = "de"
	Spanish  Language = "es"
)

// Tag returns the BCP 47 tag for l, or language.Und for unknown codes.
func (l Language) Tag() language.Tag {
	tag, err := language.Parse(string(l))
	if err != nil {
		return language.Und
	}
	return tag
}

// Name returns the English display name of l, e.g. "Russian".
func (l Language) Name() string {
	tag := l.Tag()
	if tag == language.Und {
		return string(l)
	}
	return display.English.Languages().Name(tag)
}

// ScriptRule maps a character class to the language it signals.
type ScriptRule struct {
	Language Language
	Pattern  *regexp.Regexp
}

// languageSampleSize is the number of leading runes inspected.
const languageSampleSize = 100

// The Latin ranges overlap: [à-ÿ] contains both [ä-ü] and [á-ú], so German
// and Spanish can never be reported. The order is kept as is.
var defaultScriptRules = []ScriptRule{
	{Language: Russian, Pattern: regexp.MustCompile(`[а-яё]`)},
	{Language: Chinese, Pattern: regexp.MustCompile(`[一-龯]`)},
	{Language: Japanese, Pattern: regexp.MustCompile(`[ぁ-んァ-ン]`)},
	{Language: Korean, Pattern: regexp.MustCompile(`[가-힣]`)},
	{Language: French, Pattern: regexp.MustCompile(`[à-ÿ]`)},
	{Language: German, Pattern: regexp.MustCompile(`[ä-ü]`)},
	{Language: Spanish, Pattern: regexp.MustCompile(`[á-ú]`)},
}

// LanguageDetector reports the language of the first matching rule.
type LanguageDetector struct {
	rules    []ScriptRule
	fallback Language
}

// NewLanguageDetector builds a detector over rules (or the default script
// table) that falls back to English.
func NewLanguageDetector(rules ...ScriptRule) *LanguageDetector {
	if len(rules) == 0 {
		rules = defaultScriptRules
	}
	r := make([]ScriptRule, len(rules))
	copy(r, rules)
	return &LanguageDetector{rules: r, fallback: English}
}

// Detect inspects the lowercased first 100 runes of text.
func (d *LanguageDetector) Detect(text string) Language {
	sample := strings.ToLower(prefixRunes(text, languageSampleSize))
	for _, rule := range d.rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(sample) {
			return rule.Language
		}
	}
	return d.fallback
}

var defaultLanguageDetector = NewLanguageDetector()

// DetectLanguage guesses the language of text from script and diacritic
// ranges, defaulting to English.
func DetectLanguage(text string) Language {
	return defaultLanguageDetector.Detect(text)
}

func prefixRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

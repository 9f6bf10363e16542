package textanalytics

import (
	"regexp"
	"strings"
)

// EntityKind labels the bucket an entity candidate is sorted into.
type EntityKind string

const (
	KindPerson       EntityKind = "person"
	KindOrganization EntityKind = "organization"
	KindLocation     EntityKind = "location"
)

// EntityBundle groups extracted surface forms by kind, in encounter order.
// The slices are never nil.
type EntityBundle struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

// EntityRule classifies a candidate. The first rule whose Match returns
// true decides the candidate's kind.
type EntityRule struct {
	Kind  EntityKind
	Match func(candidate string) bool
}

var capitalizedRun = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)

// Substring match, not token aware: "Corporate" counts as an organisation.
var orgSuffixes = []string{"Inc", "Corp", "LLC", "Ltd", "Company", "Organization"}

var defaultEntityRules = []EntityRule{
	{Kind: KindOrganization, Match: hasOrgSuffix},
	{Kind: KindPerson, Match: func(c string) bool { return len(strings.Fields(c)) >= 2 }},
}

func hasOrgSuffix(candidate string) bool {
	for _, s := range orgSuffixes {
		if strings.Contains(candidate, s) {
			return true
		}
	}
	return false
}

// EntityExtractor scans text for runs of capitalised words and sorts them
// with an ordered rule list. Candidates matching no rule are dropped.
type EntityExtractor struct {
	rules []EntityRule
}

// NewEntityExtractor builds an extractor over rules, or the default
// organisation/person rules when none are given.
func NewEntityExtractor(rules ...EntityRule) *EntityExtractor {
	if len(rules) == 0 {
		rules = defaultEntityRules
	}
	r := make([]EntityRule, len(rules))
	copy(r, rules)
	return &EntityExtractor{rules: r}
}

// Extract returns the entities found in text. Repeated mentions are kept.
func (e *EntityExtractor) Extract(text string) EntityBundle {
	bundle := EntityBundle{
		People:        []string{},
		Organizations: []string{},
		Locations:     []string{},
	}
	for _, candidate := range capitalizedRun.FindAllString(text, -1) {
		for _, rule := range e.rules {
			if rule.Match == nil || !rule.Match(candidate) {
				continue
			}
			switch rule.Kind {
			case KindOrganization:
				bundle.Organizations = append(bundle.Organizations, candidate)
			case KindPerson:
				bundle.People = append(bundle.People, candidate)
			case KindLocation:
				bundle.Locations = append(bundle.Locations, candidate)
			}
			break
		}
	}
	return bundle
}

var defaultEntityExtractor = NewEntityExtractor()

// ExtractEntities applies the default heuristic: candidates containing an
// organisational suffix are organisations, multi-word candidates are people,
// single words are discarded. Locations are never populated.
func ExtractEntities(text string) EntityBundle {
	return defaultEntityExtractor.Extract(text)
}

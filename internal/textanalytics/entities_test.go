package textanalytics

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name string
		text string
		want EntityBundle
	}{
		{
			name: "person and organisation",
			text: "John Smith works at Acme Corp in Paris",
			want: bundle([]string{"John Smith"}, []string{"Acme Corp"}),
		},
		{
			name: "empty",
			text: "",
			want: bundle(nil, nil),
		},
		{
			name: "no capitals",
			text: "all lowercase text, nothing here",
			want: bundle(nil, nil),
		},
		{
			name: "single words discarded",
			text: "Paris, London, Berlin",
			want: bundle(nil, nil),
		},
		{
			name: "adjacent capitalised words form one run",
			text: "Paris London Berlin",
			want: bundle([]string{"Paris London Berlin"}, nil),
		},
		{
			name: "repeated mentions kept",
			text: "Jane Doe met Jane Doe.",
			want: bundle([]string{"Jane Doe", "Jane Doe"}, nil),
		},
		{
			name: "substring suffix match",
			text: "the Corporate Office said",
			want: bundle(nil, []string{"Corporate Office"}),
		},
		{
			name: "organisation suffixes",
			text: "shares of Microsoft Inc rose; Globex Company too; Initech LLC",
			// "LLC" is all caps, so "Initech" stands alone and is dropped.
			want: bundle(nil, []string{"Microsoft Inc", "Globex Company"}),
		},
		{
			name: "acronyms are not capitalised words",
			text: "NASA and IBM",
			want: bundle(nil, nil),
		},
		{
			name: "encounter order",
			text: "Ada Lovelace wrote to Charles Babbage about Analytical Engine Ltd",
			want: bundle(
				[]string{"Ada Lovelace", "Charles Babbage"},
				[]string{"Analytical Engine Ltd"},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractEntities(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractEntities(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractEntitiesLocationsNeverPopulated(t *testing.T) {
	got := ExtractEntities("Paris is in France. Rome is in Italy.")
	if len(got.Locations) != 0 {
		t.Errorf("Locations = %v, want empty", got.Locations)
	}
	if got.Locations == nil || got.People == nil || got.Organizations == nil {
		t.Error("bundle slices must be non-nil")
	}
}

func TestNewEntityExtractorCustomRules(t *testing.T) {
	cities := map[string]bool{"Paris": true, "Rome": true}
	ex := NewEntityExtractor(
		EntityRule{Kind: KindLocation, Match: func(c string) bool { return cities[c] }},
		EntityRule{Kind: KindPerson, Match: func(c string) bool { return strings.Contains(c, " ") }},
	)
	got := ex.Extract("Marie Curie lived in Paris")
	want := EntityBundle{
		People:        []string{"Marie Curie"},
		Organizations: []string{},
		Locations:     []string{"Paris"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
}

func bundle(people, orgs []string) EntityBundle {
	if people == nil {
		people = []string{}
	}
	if orgs == nil {
		orgs = []string{}
	}
	return EntityBundle{People: people, Organizations: orgs, Locations: []string{}}
}

package brief

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	return NewSchema(reg, WithClock(func() time.Time { return fixedNow }))
}

func completeTranslation() *Brief {
	return &Brief{
		Title:       "Menu translation",
		Description: "Translate our restaurant menu",
		Category:    "translation",
		Deadline:    "2026-03-20",
		Attributes: map[string]string{
			"source_language": "Khmer",
			"target_language": "English",
			"word_count":      "1,200",
		},
	}
}

func TestSchema_Validate(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name        string
		brief       *Brief
		wantValid   bool
		wantMissing []string
	}{
		{
			name:        "nil brief",
			brief:       nil,
			wantMissing: []string{"description", "category", "deadline"},
		},
		{
			name:      "complete",
			brief:     completeTranslation(),
			wantValid: true,
		},
		{
			name: "unknown category skips attributes",
			brief: &Brief{
				Description: "something",
				Category:    "plumbing",
				Deadline:    "2026-04-01",
			},
			wantMissing: []string{"category"},
		},
		{
			name: "past deadline and bad urgency",
			brief: func() *Brief {
				b := completeTranslation()
				b.Deadline = "2026-03-01"
				b.Urgency = "asap"
				return b
			}(),
			wantMissing: []string{"deadline", "urgency"},
		},
		{
			name: "deadline equal to now is not in the future",
			brief: func() *Brief {
				b := completeTranslation()
				b.Deadline = fixedNow.Format(time.RFC3339)
				return b
			}(),
			wantMissing: []string{"deadline"},
		},
		{
			name: "missing and invalid attributes in declaration order",
			brief: func() *Brief {
				b := completeTranslation()
				delete(b.Attributes, "source_language")
				b.Attributes["word_count"] = "lots"
				return b
			}(),
			wantMissing: []string{"attributes.source_language", "attributes.word_count"},
		},
		{
			name: "whitespace description",
			brief: func() *Brief {
				b := completeTranslation()
				b.Description = "   "
				return b
			}(),
			wantMissing: []string{"description"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Validate(tt.brief)
			if got.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (missing %v)", got.Valid, tt.wantValid, got.MissingFields)
			}
			if !reflect.DeepEqual(got.MissingFields, tt.wantMissing) {
				t.Errorf("MissingFields = %v, want %v", got.MissingFields, tt.wantMissing)
			}
		})
	}
}

func TestSchema_RequiredFields(t *testing.T) {
	s := testSchema(t)

	got := s.RequiredFields("design")
	want := []string{"description", "category", "deadline", "attributes.deliverable", "attributes.format"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredFields(design) = %v, want %v", got, want)
	}

	if got := s.RequiredFields(""); !reflect.DeepEqual(got, BaseRequiredFields) {
		t.Errorf("RequiredFields(\"\") = %v, want base fields", got)
	}
}

func TestSchema_Normalize(t *testing.T) {
	s := testSchema(t)

	got := s.Normalize(&Brief{
		Description: "  Logo for a cafe ",
		Category:    " Design",
		Urgency:     "HIGH",
		Deadline:    "2026-04-01",
		Attributes:  map[string]string{"format": "SVG", "deliverable": "logo", "notes": "  "},
	})

	if got.Category != "design" || got.Urgency != "high" || got.Description != "Logo for a cafe" {
		t.Errorf("unexpected base fields: %+v", got)
	}
	if got.Attributes["format"] != "svg" {
		t.Errorf("format = %q, want canonical svg", got.Attributes["format"])
	}
	if _, ok := got.Attributes["notes"]; ok {
		t.Error("empty attribute should be dropped")
	}
	if !s.Validate(got).Valid {
		t.Errorf("normalized brief should be valid: %v", s.Validate(got).MissingFields)
	}
}

func TestParseDeadline(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-05-01", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"2026-05-01T17:00:00+07:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), false},
		{"next friday", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDeadline(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDeadline() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDeadline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSchema_Render_Deterministic(t *testing.T) {
	s := testSchema(t)
	b := completeTranslation()

	first := s.Render(b)
	if first != s.Render(b.Clone()) {
		t.Error("Render() should be deterministic")
	}
	for _, want := range []string{"Category: Translation", "Deadline: 2026-03-20", "Source language: Khmer"} {
		if !strings.Contains(first, want) {
			t.Errorf("Render() missing %q:\n%s", want, first)
		}
	}
}

func TestSchema_Render_EchoesOnlyWhatWasCaptured(t *testing.T) {
	s := testSchema(t)

	b := completeTranslation()
	if got := s.Render(b); strings.Contains(got, "Urgency") {
		t.Errorf("Render() invented an urgency line:\n%s", got)
	}

	b.Urgency = UrgencyHigh
	b.Attributes["glossary_file"] = "terms.xlsx"
	b.Attributes["audience"] = "tourists"
	got := s.Render(b)

	for _, want := range []string{"Urgency: high", "audience: tourists", "glossary file: terms.xlsx"} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Approximate word count") > strings.Index(got, "audience: tourists") {
		t.Errorf("declared attributes should precede extra ones:\n%s", got)
	}
	if strings.Index(got, "audience") > strings.Index(got, "glossary file") {
		t.Errorf("extra attributes should be sorted by key:\n%s", got)
	}
}

func TestSchema_Label(t *testing.T) {
	s := testSchema(t)
	if got := s.Label("translation", "attributes.word_count"); got != "Approximate word count" {
		t.Errorf("Label() = %q", got)
	}
	if got := s.Label("", "attributes.word_count"); got != "word count" {
		t.Errorf("Label() without category = %q", got)
	}
}

func TestJSONSchema(t *testing.T) {
	got, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	for _, want := range []string{`"description"`, `"deadline"`, `"attributes"`, `"urgent"`} {
		if !strings.Contains(got, want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

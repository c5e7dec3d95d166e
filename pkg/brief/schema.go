package brief

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

const dateLayout = "2006-01-02"

// Schema validates briefs against the base rules and the category registry.
type Schema struct {
	registry *Registry
	now      func() time.Time
}

// Option configures a Schema.
type Option func(*Schema)

// WithClock overrides the time source used for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(s *Schema) {
		s.now = now
	}
}

// NewSchema creates a schema backed by registry.
func NewSchema(registry *Registry, opts ...Option) *Schema {
	s := &Schema{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the category registry the schema validates against.
func (s *Schema) Registry() *Registry {
	return s.registry
}

// Now returns the schema's current time.
func (s *Schema) Now() time.Time {
	return s.now()
}

// Validate checks b and lists what is missing or invalid. A nil brief is
// missing every base required field.
func (s *Schema) Validate(b *Brief) Validation {
	if b == nil {
		return Validation{Valid: false, MissingFields: append([]string(nil), BaseRequiredFields...)}
	}

	var missing []string

	if strings.TrimSpace(b.Description) == "" {
		missing = append(missing, FieldDescription)
	}

	category, known := s.registry.Get(b.Category)
	if !known {
		missing = append(missing, FieldCategory)
	}

	if _, err := s.checkDeadline(b.Deadline); err != nil {
		missing = append(missing, FieldDeadline)
	}

	if b.Urgency != "" && !isUrgency(b.Urgency) {
		missing = append(missing, FieldUrgency)
	}

	if known {
		for _, spec := range category.Attributes() {
			if category.Validate(spec.Key, b.Attributes[spec.Key]) != nil {
				missing = append(missing, AttributeField(spec.Key))
			}
		}
	}

	return Validation{Valid: len(missing) == 0, MissingFields: missing}
}

// RequiredFields lists the fields a brief in category must have, in
// reporting order. Unknown categories yield only the base fields.
func (s *Schema) RequiredFields(category string) []string {
	fields := append([]string(nil), BaseRequiredFields...)
	if c, ok := s.registry.Get(category); ok {
		for _, spec := range c.Attributes() {
			fields = append(fields, AttributeField(spec.Key))
		}
	}
	return fields
}

// Label returns a human-readable name for a field identifier. For
// attributes the category's label is used when category is known.
func (s *Schema) Label(category, field string) string {
	switch field {
	case FieldTitle:
		return "Title"
	case FieldDescription:
		return "Description of the work"
	case FieldCategory:
		return "Type of job"
	case FieldUrgency:
		return "Urgency"
	case FieldDeadline:
		return "Deadline"
	}

	key, ok := strings.CutPrefix(field, "attributes.")
	if !ok {
		return field
	}
	if c, found := s.registry.Get(category); found {
		for _, spec := range c.Attributes() {
			if spec.Key == key {
				return spec.Label
			}
		}
	}
	return strings.ReplaceAll(key, "_", " ")
}

// Question returns the configured prompt for an attribute field, if any.
func (s *Schema) Question(category, field string) string {
	key, ok := strings.CutPrefix(field, "attributes.")
	if !ok {
		return ""
	}
	if c, found := s.registry.Get(category); found {
		for _, spec := range c.Attributes() {
			if spec.Key == key {
				return spec.Question
			}
		}
	}
	return ""
}

// Normalize trims values, lower-cases category and urgency, matches enum
// attribute values to their canonical option, and drops empty attributes.
// It returns a new brief; b is not modified.
func (s *Schema) Normalize(b *Brief) *Brief {
	if b == nil {
		return nil
	}
	out := &Brief{
		Title:       strings.TrimSpace(b.Title),
		Description: strings.TrimSpace(b.Description),
		Category:    strings.ToLower(strings.TrimSpace(b.Category)),
		Urgency:     strings.ToLower(strings.TrimSpace(b.Urgency)),
		Deadline:    strings.TrimSpace(b.Deadline),
	}

	category, known := s.registry.Get(out.Category)
	for k, v := range b.Attributes {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if known {
			v = canonicalOption(category, k, v)
		}
		if out.Attributes == nil {
			out.Attributes = make(map[string]string)
		}
		out.Attributes[k] = v
	}
	return out
}

// ParseDeadline parses an RFC 3339 date-time or a YYYY-MM-DD date. A bare
// date means the start of that day in UTC.
func ParseDeadline(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nimerrors.New("deadline is empty")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, nimerrors.Newf("deadline %q is not an RFC 3339 date or date-time", value)
	}
	return t, nil
}

func (s *Schema) checkDeadline(value string) (time.Time, error) {
	t, err := ParseDeadline(value)
	if err != nil {
		return time.Time{}, err
	}
	if !t.After(s.now()) {
		return time.Time{}, nimerrors.Newf("deadline %q is not in the future", value)
	}
	return t, nil
}

// JSONSchema returns the JSON Schema of Brief, used to instruct the model.
func JSONSchema() (string, error) {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
	}
	schema := r.Reflect(&Brief{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", nimerrors.Wrap(err, "failed to marshal brief schema")
	}
	return string(data), nil
}

func isUrgency(v string) bool {
	for _, u := range Urgencies {
		if v == u {
			return true
		}
	}
	return false
}

func canonicalOption(c Category, key, value string) string {
	for _, spec := range c.Attributes() {
		if spec.Key != key || spec.Kind != KindEnum {
			continue
		}
		for _, opt := range spec.Options {
			if strings.EqualFold(opt, value) {
				return opt
			}
		}
	}
	return value
}

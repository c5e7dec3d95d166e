package brief

import (
	_ "embed"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

//go:embed categories.yaml
var builtinCategories []byte

// AttributeKind determines how an attribute value is validated.
type AttributeKind string

// Supported attribute kinds.
const (
	KindText   AttributeKind = "text"
	KindNumber AttributeKind = "number"
	KindEnum   AttributeKind = "enum"
	KindURL    AttributeKind = "url"
)

// AttributeSpec describes one category-specific field.
type AttributeSpec struct {
	Key      string        `yaml:"key"`
	Label    string        `yaml:"label"`
	Kind     AttributeKind `yaml:"kind"`
	Options  []string      `yaml:"options,omitempty"`
	Question string        `yaml:"question,omitempty"` // how to ask the client for it
}

// Category is a kind of job with its own required attributes.
type Category interface {
	ID() string
	Name() string
	Description() string
	Attributes() []AttributeSpec
	// Validate reports why value is unacceptable for key, or nil.
	Validate(key, value string) error
}

type categoryDef struct {
	IDValue          string          `yaml:"id"`
	NameValue        string          `yaml:"name"`
	DescriptionValue string          `yaml:"description"`
	AttributeSpecs   []AttributeSpec `yaml:"attributes"`
}

type categoryFile struct {
	Categories []categoryDef `yaml:"categories"`
}

func (c *categoryDef) ID() string                  { return c.IDValue }
func (c *categoryDef) Name() string                { return c.NameValue }
func (c *categoryDef) Description() string         { return c.DescriptionValue }
func (c *categoryDef) Attributes() []AttributeSpec { return c.AttributeSpecs }

func (c *categoryDef) Validate(key, value string) error {
	for _, spec := range c.AttributeSpecs {
		if spec.Key == key {
			return validateAttribute(spec, value)
		}
	}
	return nimerrors.Newf("unknown attribute %q for category %q", key, c.IDValue)
}

func validateAttribute(spec AttributeSpec, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nimerrors.New("value is empty")
	}

	switch spec.Kind {
	case KindText:
		return nil
	case KindNumber:
		n, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		if err != nil {
			return nimerrors.Newf("%q is not a number", value)
		}
		if n <= 0 {
			return nimerrors.Newf("%q must be positive", value)
		}
		return nil
	case KindEnum:
		for _, opt := range spec.Options {
			if strings.EqualFold(opt, value) {
				return nil
			}
		}
		return nimerrors.Newf("%q is not one of %s", value, strings.Join(spec.Options, ", "))
	case KindURL:
		u, err := url.Parse(value)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nimerrors.Newf("%q is not an http(s) URL", value)
		}
		return nil
	}
	return nimerrors.Newf("unsupported attribute kind %q", spec.Kind)
}

// Registry holds the known categories keyed by id.
type Registry struct {
	categories map[string]Category
}

// NewRegistry creates a registry from the given categories.
// Later entries replace earlier ones with the same id.
func NewRegistry(categories ...Category) *Registry {
	r := &Registry{categories: make(map[string]Category, len(categories))}
	for _, c := range categories {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns a registry with the built-in categories.
func DefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadYAML(builtinCategories); err != nil {
		return nil, nimerrors.Wrap(err, "failed to load built-in categories")
	}
	return r, nil
}

// Register adds or replaces a category.
func (r *Registry) Register(c Category) {
	r.categories[strings.ToLower(c.ID())] = c
}

// LoadYAML parses category definitions and registers them, replacing any
// existing categories with the same id.
func (r *Registry) LoadYAML(data []byte) error {
	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nimerrors.Wrap(err, "failed to parse category definitions")
	}

	for i := range file.Categories {
		def := &file.Categories[i]
		if err := checkDefinition(def); err != nil {
			return err
		}
		r.Register(def)
	}
	return nil
}

// LoadFile reads category definitions from path. An empty path is a no-op.
func (r *Registry) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nimerrors.NewConfigErrorWithCause("briefing.categories_file", "cannot read "+path, err)
	}
	if err := r.LoadYAML(data); err != nil {
		return nimerrors.NewConfigErrorWithCause("briefing.categories_file", "invalid definitions in "+path, err)
	}
	return nil
}

func checkDefinition(def *categoryDef) error {
	def.IDValue = strings.ToLower(strings.TrimSpace(def.IDValue))
	if def.IDValue == "" {
		return nimerrors.New("category without id")
	}
	if def.NameValue == "" {
		def.NameValue = def.IDValue
	}

	seen := make(map[string]bool, len(def.AttributeSpecs))
	for i := range def.AttributeSpecs {
		spec := &def.AttributeSpecs[i]
		if spec.Key == "" {
			return nimerrors.Newf("category %q: attribute without key", def.IDValue)
		}
		if seen[spec.Key] {
			return nimerrors.Newf("category %q: duplicate attribute %q", def.IDValue, spec.Key)
		}
		seen[spec.Key] = true
		if spec.Kind == "" {
			spec.Kind = KindText
		}
		switch spec.Kind {
		case KindText, KindNumber, KindURL:
		case KindEnum:
			if len(spec.Options) == 0 {
				return nimerrors.Newf("category %q: enum attribute %q has no options", def.IDValue, spec.Key)
			}
		default:
			return nimerrors.Newf("category %q: attribute %q has unsupported kind %q", def.IDValue, spec.Key, spec.Kind)
		}
		if spec.Label == "" {
			spec.Label = spec.Key
		}
	}
	return nil
}

// Get returns the category with the given id (case-insensitive).
func (r *Registry) Get(id string) (Category, bool) {
	c, ok := r.categories[strings.ToLower(strings.TrimSpace(id))]
	return c, ok
}

// All returns the registered categories sorted by id.
func (r *Registry) All() []Category {
	out := make([]Category, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IDs returns the registered category ids sorted.
func (r *Registry) IDs() []string {
	all := r.All()
	ids := make([]string, len(all))
	for i, c := range all {
		ids[i] = c.ID()
	}
	return ids
}

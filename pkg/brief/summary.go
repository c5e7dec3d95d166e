package brief

import (
	"fmt"
	"sort"
	"strings"
)

// Render formats a complete brief as the plain-text confirmation shown to
// the client. Every stored field is echoed as captured and nothing else is
// added. Output depends only on b and the registry.
func (s *Schema) Render(b *Brief) string {
	if b == nil {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("Thanks, your brief is complete. Here is what I have:\n\n")

	if b.Title != "" {
		sb.WriteString(fmt.Sprintf("Title: %s\n", b.Title))
	}

	categoryName := b.Category
	category, known := s.registry.Get(b.Category)
	if known {
		categoryName = category.Name()
	}
	sb.WriteString(fmt.Sprintf("Category: %s\n", categoryName))
	sb.WriteString(fmt.Sprintf("Description: %s\n", b.Description))
	sb.WriteString(fmt.Sprintf("Deadline: %s\n", b.Deadline))

	if b.Urgency != "" {
		sb.WriteString(fmt.Sprintf("Urgency: %s\n", b.Urgency))
	}

	// Declared attributes first, in category order, then anything else
	// that was captured, by key.
	printed := make(map[string]bool, len(b.Attributes))
	if known {
		for _, spec := range category.Attributes() {
			if v, ok := b.Attributes[spec.Key]; ok {
				sb.WriteString(fmt.Sprintf("%s: %s\n", spec.Label, v))
				printed[spec.Key] = true
			}
		}
	}
	extra := make([]string, 0, len(b.Attributes))
	for k := range b.Attributes {
		if !printed[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		sb.WriteString(fmt.Sprintf("%s: %s\n", s.Label(b.Category, AttributeField(k)), b.Attributes[k]))
	}

	sb.WriteString("\nWe'll use this to match your job with a suitable worker.")
	return sb.String()
}

// Package brief defines the structured work order produced by a briefing
// conversation and the rules that decide when it is complete.
//
// A Brief has a fixed set of base fields plus category-specific attributes.
// Categories are data: they live in a Registry loaded from YAML, so adding a
// new kind of job never touches the extraction or session code.
package brief

import "time"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a briefing conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Urgency levels accepted on a brief.
const (
	UrgencyLow    = "low"
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
	UrgencyUrgent = "urgent"
)

// Urgencies lists the accepted urgency values in ascending order.
var Urgencies = []string{UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent}

// Brief is the structured description of a job, as understood so far.
type Brief struct {
	Title       string            `json:"title,omitempty" jsonschema:"description=Short title for the job"`
	Description string            `json:"description,omitempty" jsonschema:"description=What the client needs done in their own words"`
	Category    string            `json:"category,omitempty" jsonschema:"description=Category id from the list of supported categories"`
	Urgency     string            `json:"urgency,omitempty" jsonschema:"enum=low,enum=normal,enum=high,enum=urgent"`
	Deadline    string            `json:"deadline,omitempty" jsonschema:"description=RFC 3339 date (YYYY-MM-DD) or date-time by which the work is due"`
	Attributes  map[string]string `json:"attributes,omitempty" jsonschema:"description=Category-specific details keyed by attribute key"`
}

// Base field identifiers reported in missing-field lists.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldUrgency     = "urgency"
	FieldDeadline    = "deadline"
)

// AttributeField returns the missing-field identifier for a category attribute.
func AttributeField(key string) string {
	return "attributes." + key
}

// BaseRequiredFields are the fields every brief needs regardless of category,
// in reporting order.
var BaseRequiredFields = []string{FieldDescription, FieldCategory, FieldDeadline}

// Validation is the outcome of checking a brief against the schema.
type Validation struct {
	Valid         bool
	MissingFields []string
}

// Clone returns a deep copy of b.
func (b *Brief) Clone() *Brief {
	if b == nil {
		return nil
	}
	out := *b
	if b.Attributes != nil {
		out.Attributes = make(map[string]string, len(b.Attributes))
		for k, v := range b.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}

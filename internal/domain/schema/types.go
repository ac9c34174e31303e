// Package schema validates and normalizes per-domain policy config
// documents. Each domain registers a declarative table of field rules
// against the same checking machinery instead of duplicating validation
// logic per domain. Validation is pure: no I/O, no clock, deterministic
// output for identical input.
package schema

// Kind is the expected type of a config field.
type Kind int

const (
	// KindInt is a JSON number with an integral value, normalized to int64.
	KindInt Kind = iota
	// KindNumber is any JSON number, normalized to float64.
	KindNumber
	// KindBool is a JSON boolean.
	KindBool
	// KindString is a JSON string.
	KindString
	// KindStringList is a JSON array of strings, normalized to []string.
	KindStringList
)

// String returns the human-readable name of the kind for error messages.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindStringList:
		return "list of strings"
	}
	return "unknown"
}

// FieldRule declares the contract for one config field.
// Nested fields use dotted paths (e.g. "moderation.roles").
type FieldRule struct {
	// Path is the dotted location of the field in the document.
	Path string
	// Kind is the expected value type.
	Kind Kind
	// Positive requires a numeric value > 0.
	Positive bool
	// NonNegative requires a numeric value >= 0.
	NonNegative bool
	// NonEmpty requires a list to contain at least one element.
	NonEmpty bool
	// Enum restricts list elements (or a string value) to this set.
	Enum []string
	// RequiredIf makes the field required only when the named boolean
	// field is present and true. Empty means unconditionally required.
	RequiredIf string
}

package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// Validate checks a raw config document against the domain's field rules
// and returns a normalized config or the full list of field errors.
// A non-empty error list means the document is rejected in full; the
// returned config is nil in that case. Unknown fields are dropped during
// normalization rather than rejected.
func Validate(domain policy.Domain, raw map[string]any) (policy.Config, []policy.FieldError) {
	rules := RulesFor(domain)
	if rules == nil {
		return nil, []policy.FieldError{{Field: "domain", Reason: fmt.Sprintf("unknown policy domain %q", domain)}}
	}

	normalized := policy.Config{}
	var errs []policy.FieldError

	for _, rule := range rules {
		val, present := lookup(raw, rule.Path)

		if !present {
			if rule.RequiredIf != "" && !boolAt(raw, rule.RequiredIf) {
				continue
			}
			errs = append(errs, policy.FieldError{Field: rule.Path, Reason: "required field is missing"})
			continue
		}

		norm, ferr := checkField(rule, val)
		if ferr != nil {
			errs = append(errs, *ferr)
			continue
		}
		setPath(normalized, rule.Path, norm)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return normalized, nil
}

// ValidateJSON decodes a JSON config document and validates it.
// Numbers are decoded with json.Number so integral values survive intact.
func ValidateJSON(domain policy.Domain, data []byte) (policy.Config, []policy.FieldError) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []policy.FieldError{{Field: "config", Reason: "invalid JSON document"}}
	}
	return Validate(domain, raw)
}

// checkField validates a single value against its rule and returns the
// normalized value.
func checkField(rule FieldRule, val any) (any, *policy.FieldError) {
	switch rule.Kind {
	case KindInt:
		n, ok := asNumber(val)
		if !ok || n != math.Trunc(n) {
			return nil, fieldErr(rule.Path, "must be an integer")
		}
		if rule.Positive && n <= 0 {
			return nil, fieldErr(rule.Path, "must be greater than zero")
		}
		if rule.NonNegative && n < 0 {
			return nil, fieldErr(rule.Path, "must not be negative")
		}
		return int64(n), nil

	case KindNumber:
		n, ok := asNumber(val)
		if !ok {
			return nil, fieldErr(rule.Path, "must be a number")
		}
		if rule.Positive && n <= 0 {
			return nil, fieldErr(rule.Path, "must be greater than zero")
		}
		if rule.NonNegative && n < 0 {
			return nil, fieldErr(rule.Path, "must not be negative")
		}
		return n, nil

	case KindBool:
		b, ok := val.(bool)
		if !ok {
			return nil, fieldErr(rule.Path, "must be a boolean")
		}
		return b, nil

	case KindString:
		s, ok := val.(string)
		if !ok {
			return nil, fieldErr(rule.Path, "must be a string")
		}
		if len(rule.Enum) > 0 && !inEnum(s, rule.Enum) {
			return nil, fieldErr(rule.Path, enumReason(rule.Enum))
		}
		return s, nil

	case KindStringList:
		list, ok := asStringList(val)
		if !ok {
			return nil, fieldErr(rule.Path, "must be a list of strings")
		}
		if rule.NonEmpty && len(list) == 0 {
			return nil, fieldErr(rule.Path, "must not be empty")
		}
		if len(rule.Enum) > 0 {
			for _, s := range list {
				if !inEnum(s, rule.Enum) {
					return nil, fieldErr(rule.Path, fmt.Sprintf("%q is not allowed; %s", s, enumReason(rule.Enum)))
				}
			}
		}
		return list, nil
	}
	return nil, fieldErr(rule.Path, "unsupported field kind")
}

func fieldErr(path, reason string) *policy.FieldError {
	return &policy.FieldError{Field: path, Reason: reason}
}

func enumReason(enum []string) string {
	return "must be one of: " + strings.Join(enum, ", ")
}

func inEnum(s string, enum []string) bool {
	for _, e := range enum {
		if s == e {
			return true
		}
	}
	return false
}

// asNumber coerces the JSON decoder's numeric representations.
func asNumber(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// asStringList accepts []string directly or []any of strings.
func asStringList(val any) ([]string, bool) {
	switch l := val.(type) {
	case []string:
		out := make([]string, len(l))
		copy(out, l)
		return out, true
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// lookup walks a dotted path through nested maps.
func lookup(raw map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(raw)
	for i, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		cur = v
	}
	return nil, false
}

// boolAt reports whether the boolean at path is present and true.
func boolAt(raw map[string]any, path string) bool {
	v, ok := lookup(raw, path)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// setPath writes a value into the normalized document, creating nested
// maps as needed.
func setPath(cfg policy.Config, path string, val any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(cfg)
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = val
}

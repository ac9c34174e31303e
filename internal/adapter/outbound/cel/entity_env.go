package cel

import (
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

// newEntityEnvironment creates a CEL environment for filtering sampled
// entities. It exposes:
//   - Entity variables: entity_id, entity_kind, created_at, attrs
//   - Scope variables: scope_type, scope_value
//   - Custom functions: glob, attr, attr_string, attr_contains
func newEntityEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("entity_id", cel.StringType),
		cel.Variable("entity_kind", cel.StringType),
		cel.Variable("created_at", cel.TimestampType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),

		cel.Variable("scope_type", cel.StringType),
		cel.Variable("scope_value", cel.StringType),

		// glob: pattern matching on entity ids and kinds.
		// Usage: glob("chat-*", entity_id)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(globBinding),
			),
		),

		// attr: extract an attribute by key, null when absent.
		// Usage: attr(attrs, "priority")
		cel.Function("attr",
			cel.Overload("attr_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(attrBinding),
			),
		),

		// attr_string: extract an attribute as a string, "" when absent
		// or not string-valued. Avoids null checks in simple filters.
		// Usage: attr_string(attrs, "priority") == "urgent"
		cel.Function("attr_string",
			cel.Overload("attr_string_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.StringType,
				cel.BinaryBinding(attrStringBinding),
			),
		),

		// attr_contains: check if any string attribute value contains a
		// substring. Usage: attr_contains(attrs, "escalated")
		cel.Function("attr_contains",
			cel.Overload("attr_contains_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(attrContainsBinding),
			),
		),
	)
}

func globBinding(pattern, name ref.Val) ref.Val {
	p, _ := pattern.Value().(string)
	n, _ := name.Value().(string)
	return types.Bool(globMatch(p, n))
}

// globMatch supports '*' wildcards without treating '[' as a character
// class, since entity ids may contain brackets.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func attrBinding(mapVal, keyVal ref.Val) ref.Val {
	key, _ := keyVal.Value().(string)
	if m, ok := mapVal.Value().(map[ref.Val]ref.Val); ok {
		if v, found := m[types.String(key)]; found {
			return v
		}
		return types.NullValue
	}
	if goMap, ok := mapVal.Value().(map[string]any); ok {
		if v, found := goMap[key]; found {
			return types.DefaultTypeAdapter.NativeToValue(v)
		}
	}
	return types.NullValue
}

func attrStringBinding(mapVal, keyVal ref.Val) ref.Val {
	v := attrBinding(mapVal, keyVal)
	if s, ok := v.Value().(string); ok {
		return types.String(s)
	}
	return types.String("")
}

func attrContainsBinding(mapVal, substrVal ref.Val) ref.Val {
	substr, _ := substrVal.Value().(string)
	goVal := mapVal.Value()
	if goMap, ok := goVal.(map[string]any); ok {
		for _, v := range goMap {
			if s, ok := v.(string); ok && strings.Contains(s, substr) {
				return types.Bool(true)
			}
		}
	}
	if refMap, ok := goVal.(map[ref.Val]ref.Val); ok {
		for _, v := range refMap {
			if s, ok := v.Value().(string); ok && strings.Contains(s, substr) {
				return types.Bool(true)
			}
		}
	}
	return types.Bool(false)
}

// buildEntityActivation creates a CEL activation map for one entity.
func buildEntityActivation(entity *sample.Entity, scope sample.Scope) map[string]any {
	attrs := entity.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"entity_id":   entity.ID,
		"entity_kind": entity.Kind,
		"created_at":  entity.CreatedAt,
		"attrs":       attrs,

		"scope_type":  string(scope.ScopeType),
		"scope_value": scope.ScopeValue,
	}
}

package service

import (
	"strings"

	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

// Accessors for normalized config documents. The schema validator
// guarantees the shapes (int64, float64, bool, []string, nested
// map[string]any for dotted paths); a missing or mis-shaped value
// reads as the zero value.

func cfgLookup(cfg policy.Config, path string) (any, bool) {
	cur := map[string]any(cfg)
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := cur[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func cfgInt(cfg policy.Config, path string) int64 {
	v, ok := cfgLookup(cfg, path)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return 0
}

func cfgFloat(cfg policy.Config, path string) float64 {
	v, ok := cfgLookup(cfg, path)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func cfgBool(cfg policy.Config, path string) bool {
	v, ok := cfgLookup(cfg, path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func cfgStrings(cfg policy.Config, path string) []string {
	v, ok := cfgLookup(cfg, path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

package orchestrator

import (
	"regexp"
	"strconv"
	"strings"
)

// stepRef matches "$stepN" with an optional dotted path.
var stepRef = regexp.MustCompile(`^\$step(\d+)(?:\.(.+))?$`)

// resolveParams replaces $stepN / $stepN.path values with results of
// completed steps. Unresolvable references pass through unchanged.
func resolveParams(params map[string]any, results map[int]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = resolveValue(v, results)
	}
	return out
}

func resolveValue(v any, results map[int]any) any {
	str, ok := v.(string)
	if !ok {
		return v
	}
	m := stepRef.FindStringSubmatch(str)
	if m == nil {
		return v
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return v
	}
	result, ok := results[n]
	if !ok {
		return v
	}
	if m[2] == "" {
		return result
	}
	resolved, ok := lookupPath(result, strings.Split(m[2], "."))
	if !ok {
		return v
	}
	return resolved
}

// lookupPath walks a dotted path through nested maps.
func lookupPath(v any, path []string) (any, bool) {
	current := v
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

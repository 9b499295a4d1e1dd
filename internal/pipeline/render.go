package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " !") {
			return fmt.Sprintf("%q", t)
		}
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

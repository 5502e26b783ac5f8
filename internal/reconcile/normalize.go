package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Normalize renders a desired or parsed value in canonical string form so
// the two sides compare cleanly: booleans become "true"/"false" regardless
// of the device's yes/no spelling, numbers lose trailing zeros, and
// comma-separated lists are sorted element-wise.
func Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		return normalizeList(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = Normalize(e)
		}
		return normalizeList(parts)
	case string:
		return normalizeString(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func normalizeString(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "yes", "true":
		return "true"
	case "no", "false":
		return "false"
	}
	if strings.Contains(s, ",") {
		return normalizeList(strings.Split(s, ","))
	}
	return s
}

func normalizeList(parts []string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	sort.Strings(trimmed)
	return strings.Join(trimmed, ",")
}

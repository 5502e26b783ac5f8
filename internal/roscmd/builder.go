// Package roscmd builds device shell commands from structured parts with
// guaranteed quoting. Building commands by ad hoc string concatenation is an
// injection hazard when property values contain the device's own quoting
// characters; every command the reconciler and orchestrator issue goes
// through this package instead.
package roscmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// needsQuoting reports whether a value must be wrapped in double quotes to
// survive the device's word splitting
func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	return strings.ContainsAny(value, " \t\"\\=;$()[]{}")
}

// Quote renders a property value as a single shell word, quoting and
// escaping as needed
func Quote(value string) string {
	if !needsQuoting(value) {
		return value
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '"' || c == '\\' || c == '$' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}

// FormatValue renders any property value to its device wire form
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return `""`
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case string:
		return Quote(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return Quote(strings.Join(v, ","))
	default:
		return Quote(fmt.Sprintf("%v", v))
	}
}

// pairs renders a property map as sorted key=value words. Sorting keeps
// generated commands deterministic, which matters for caching and tests.
func pairs(properties map[string]any) string {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	words := make([]string, 0, len(keys))
	for _, k := range keys {
		words = append(words, k+"="+FormatValue(properties[k]))
	}
	return strings.Join(words, " ")
}

// Add builds a create command: "<path> add k=v ..."
func Add(path string, properties map[string]any) string {
	if len(properties) == 0 {
		return path + " add"
	}
	return path + " add " + pairs(properties)
}

// Set builds an update command targeting entries matched by the selectors:
// "<path> set [find k=v ...] k=v ..."
func Set(path string, selectors map[string]any, properties map[string]any) string {
	return fmt.Sprintf("%s set [find %s] %s", path, pairs(selectors), pairs(properties))
}

// Remove builds a delete command targeting entries matched by the selectors:
// "<path> remove [find k=v ...]"
func Remove(path string, selectors map[string]any) string {
	return fmt.Sprintf("%s remove [find %s]", path, pairs(selectors))
}

// Print builds a listing command, optionally filtered by selector words:
// "<path> print detail" or "<path> print detail where k=v ..."
func Print(path string, selectors map[string]any) string {
	if len(selectors) == 0 {
		return path + " print detail"
	}
	return fmt.Sprintf("%s print detail where %s", path, pairs(selectors))
}

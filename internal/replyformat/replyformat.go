// Package replyformat implements the Reply Formatter: a type-directed
// renderer that turns a step's structured JSON output (as decoded into Go's
// generic map[string]any/[]any/float64 representation) into readable text
// for display, without any LLM involvement.
package replyformat

import (
	"fmt"
	"sort"
	"strings"
)

// Render converts details (typically a []any of records, or a []any of
// scalars) into display text, dispatching on the underlying shape.
func Render(details any) string {
	items, ok := details.([]any)
	if !ok {
		return fmt.Sprintf("%v", details)
	}
	if len(items) == 0 {
		return ""
	}
	if isDuplicateGroupList(items) {
		return renderDuplicateGroups(items)
	}
	if isScalarList(items) {
		return renderScalarList(items)
	}
	return renderObjectList(items)
}

func isDuplicateGroupList(items []any) bool {
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := m["files"]; !ok {
			return false
		}
		if _, ok := m["size"]; !ok {
			return false
		}
		if _, ok := m["count"]; !ok {
			return false
		}
	}
	return true
}

func isScalarList(items []any) bool {
	for _, it := range items {
		switch it.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

// renderDuplicateGroups renders "Group N (count copies, human-size each):"
// followed by one "- name" line per file.
func renderDuplicateGroups(items []any) string {
	var b strings.Builder
	for i, it := range items {
		m := it.(map[string]any)
		count := asInt(m["count"])
		size := asFloat(m["size"])
		fmt.Fprintf(&b, "Group %d (%d copies, %s each):\n", i+1, count, HumanSize(size))
		files, _ := m["files"].([]any)
		for _, f := range files {
			name := fileName(f)
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func fileName(f any) string {
	switch v := f.(type) {
	case map[string]any:
		if n, ok := v["name"].(string); ok {
			return n
		}
		if p, ok := v["path"].(string); ok {
			return p
		}
	case string:
		return v
	}
	return fmt.Sprintf("%v", f)
}

// renderObjectList emits one line per record, keys sorted lexicographically,
// "k: v" comma-separated, truncated at 120 characters.
func renderObjectList(items []any) string {
	var lines []string
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			lines = append(lines, fmt.Sprintf("%v", it))
			continue
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
		}
		line := strings.Join(parts, ", ")
		if len(line) > 120 {
			line = line[:120]
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderScalarList(items []any) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("- %v", it))
	}
	return strings.Join(lines, "\n")
}

// HumanSize formats a byte count using binary prefixes: under 1024 bytes,
// "N bytes"; under 1024², "X.XX KB"; otherwise "X.XX MB".
func HumanSize(bytes float64) string {
	const kb = 1024.0
	const mb = kb * 1024.0
	switch {
	case bytes < kb:
		return fmt.Sprintf("%d bytes", int(bytes))
	case bytes < mb:
		return fmt.Sprintf("%.2f KB", bytes/kb)
	default:
		return fmt.Sprintf("%.2f MB", bytes/mb)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

package dtp

import (
	"strconv"
	"strings"
	"time"
)

// Accessors over decoded JSON. Every extraction declares its default;
// nothing here ever fails, content defects degrade to the default value.

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asList treats the value as a sequence; a bare scalar becomes a
// one-element sequence. nil stays empty.
func asList(v any) []any {
	if v == nil {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

func asStrings(v any) []string {
	items := asList(v)
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, coerceString(it))
	}
	return out
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func getString(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	if s := coerceString(v); s != "" {
		return s
	}
	return def
}

// joinMulti renders a scalar-or-list field as one display string.
func joinMulti(v any) string {
	if v == nil {
		return ""
	}
	if _, ok := v.([]any); ok {
		return strings.Join(asStrings(v), ", ")
	}
	return coerceString(v)
}

func parseInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func parseFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		// Source coordinates sometimes use a comma decimal separator.
		f, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(t), ",", ".", 1), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// parseDate reads day.month.year; anything unparsable yields nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("02.01.2006", s)
	if err != nil {
		return nil
	}
	return &t
}

// parseClock reads hour:minute; anything unparsable yields nil.
func parseClock(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil
	}
	return &t
}

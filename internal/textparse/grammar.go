// Package textparse turns free-text model responses into structured values.
//
// A response is parsed against a Grammar: an ordered list of fields, each
// matched by a case-insensitive line prefix and converted by a transform.
// Fields that never match, or whose transform rejects the value, resolve to
// their default. Parsing never fails.
package textparse

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Transform converts the text after a field's prefix into a value.
// It reports false when the text is unusable for the field.
type Transform func(raw string) (any, bool)

// Field describes one line-prefixed value in a model response.
type Field struct {
	Name      string
	Prefix    string
	Transform Transform
	Default   any
}

// Grammar is an ordered set of fields applied to every line of a response.
type Grammar []Field

// Values holds the parsed result of a Grammar, keyed by field name.
type Values map[string]any

// Parse applies the grammar to text. The first matching line for a field wins.
func (g Grammar) Parse(text string) Values {
	vals := make(Values, len(g))
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(stripMarker(strings.TrimSpace(line)), "*_# ")
		if line == "" {
			continue
		}
		for _, f := range g {
			if _, done := vals[f.Name]; done {
				continue
			}
			rest, ok := CutPrefixFold(line, f.Prefix)
			if !ok {
				continue
			}
			tf := f.Transform
			if tf == nil {
				tf = Trim
			}
			if v, ok := tf(rest); ok {
				vals[f.Name] = v
			}
			break
		}
	}

	for _, f := range g {
		if _, ok := vals[f.Name]; !ok {
			slog.Debug("response field missing, using default", "field", f.Name)
			vals[f.Name] = f.Default
		}
	}
	return vals
}

// String returns the named value as a string, or "" when it is not one.
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the named value as an int, or 0 when it is not one.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// Strings returns the named value as a string slice, never nil.
func (v Values) Strings(name string) []string {
	s, _ := v[name].([]string)
	if s == nil {
		return []string{}
	}
	return s
}

// CutPrefixFold reports whether line starts with prefix, ignoring case,
// and returns the remainder.
func CutPrefixFold(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return line[len(prefix):], true
}

// Trim keeps the value verbatim apart from surrounding whitespace and
// markdown emphasis.
func Trim(raw string) (any, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "*_ ")
	return s, s != ""
}

// Lower trims and lowercases the value.
func Lower(raw string) (any, bool) {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "*_ "))
	return s, s != ""
}

var firstInt = regexp.MustCompile(`\d+`)

// FirstInt extracts the first run of digits in the value.
func FirstInt(raw string) (any, bool) {
	m := firstInt.FindString(raw)
	if m == "" {
		return nil, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil, false
	}
	return n, true
}

// OneOf lowercases the value and accepts it only when it starts with one of
// the allowed words.
func OneOf(allowed ...string) Transform {
	return func(raw string) (any, bool) {
		s := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "*_ "))
		for _, a := range allowed {
			if strings.HasPrefix(s, a) {
				return a, true
			}
		}
		return nil, false
	}
}

// CommaList splits the value on commas, dropping empty items.
func CommaList(raw string) (any, bool) {
	items := SplitList(raw)
	return items, len(items) > 0
}

// SplitList splits s on commas and trims each item. Empty items are dropped.
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

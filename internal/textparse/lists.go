package textparse

import (
	"strings"
	"unicode"
)

// NumberedItems returns the items of a numbered or dashed list, in order.
// Only lines starting with a digit or a dash count. A leading "N." or "N)"
// token is stripped, as is a leading dash. Lines empty after stripping are
// dropped.
func NumberedItems(text string) []string {
	items := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r := rune(line[0])
		if !unicode.IsDigit(r) && r != '-' {
			continue
		}
		if item := stripMarker(line); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// BulletItems returns the items of a bulleted or numbered list, in order.
// Accepted markers are "-", "*", "•" and "N." or "N)".
func BulletItems(text string) []string {
	items := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !hasMarker(line) {
			continue
		}
		if item := stripMarker(line); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func hasMarker(line string) bool {
	if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "•") {
		return true
	}
	return numberPrefixLen(line) > 0
}

// stripMarker removes one leading bullet and one leading numbering token.
func stripMarker(line string) string {
	for _, b := range []string{"-", "*", "•"} {
		if rest, ok := strings.CutPrefix(line, b); ok {
			line = strings.TrimSpace(rest)
			break
		}
	}
	if n := numberPrefixLen(line); n > 0 {
		line = line[n:]
	}
	return strings.TrimSpace(line)
}

// numberPrefixLen returns the length of a leading "N." or "N)" token, or 0.
func numberPrefixLen(line string) int {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i == len(line) {
		return 0
	}
	if line[i] == '.' || line[i] == ')' {
		return i + 1
	}
	return 0
}

package pattern

import (
	"regexp"
	"strings"
)

const latinSuffix = `bis|ter|quater|quinquies|sexies|septies|octies|nonies|decies`

// idBody matches an article number: optional L/R/D/A prefix with an optional
// dot or star, dash-joined digit groups, an optional "er" and an optional
// latin suffix.
const idBody = `([LRDA])?\s*\.?\s*\*?\s*(\d+(?:\s*[-‐‑–—]\s*\d+)*)(?:\s*(er))?(?:\s*(?i:(` + latinSuffix + `)))?`

// markerTail accepts the end of line, a colon or parenthetical, a period
// ending the id, or a spaced dash before a caption. A bare dash or period
// glued to the digits would be part of a longer number.
const markerTail = `(?:\s*$|\s*[:(].*$|\s*\.(?:\s.*)?$|\s+[-–—]\s.*$)`

var (
	// A marker line is the id alone, optionally followed by a separator and a
	// caption or by a parenthetical such as "(abrogé)".
	articleLine  = regexp.MustCompile(`^(?i:article|art\.)\s*` + idBody + markerTail)
	articleNamed = regexp.MustCompile(`^(?i:article)\s+(?i:(pr[ée]liminaire|unique))` + markerTail)
	bareID       = regexp.MustCompile(`^` + idBody + `$`)
	dashes       = strings.NewReplacer("‐", "-", "‑", "-", "–", "-", "—", "-", " ", "")
)

func parseArticleLine(text string) (string, bool) {
	if sm := articleLine.FindStringSubmatch(text); sm != nil {
		return joinID(sm[1], sm[2], sm[4]), true
	}
	if sm := articleNamed.FindStringSubmatch(text); sm != nil {
		return strings.ToLower(sm[1]), true
	}
	return "", false
}

// NormalizeArticleID canonicalises an article reference so that spacing and
// dash variants collapse: "L. 311-1" -> "L311-1", "1er" -> "1",
// "L. 132-8 bis" -> "L132-8 bis". Input that is not an article number is
// returned trimmed.
func NormalizeArticleID(s string) string {
	s = cleanLine(s)
	if sm := bareID.FindStringSubmatch(s); sm != nil {
		return joinID(sm[1], sm[2], sm[4])
	}
	if id, ok := parseArticleLine(s); ok {
		return id
	}
	return s
}

func joinID(prefix, number, suffix string) string {
	id := prefix + dashes.Replace(number)
	if suffix != "" {
		id += " " + strings.ToLower(suffix)
	}
	return id
}

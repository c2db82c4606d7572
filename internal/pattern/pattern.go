// Package pattern recognises hierarchy headings and article markers in the
// page text of French legal codes.
package pattern

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/legichunk/internal/hierarchy"
)

// Kind tags a Match.
type Kind int

const (
	KindHierarchy Kind = iota + 1
	KindArticle
)

func (k Kind) String() string {
	switch k {
	case KindHierarchy:
		return "hierarchy"
	case KindArticle:
		return "article"
	}
	return "none"
}

// Match is one recognised marker line.
type Match struct {
	Kind      Kind
	Level     hierarchy.Level // set for KindHierarchy
	Label     string          // hierarchy label, "" when unreadable
	ArticleID string          // normalised id, set for KindArticle
	Raw       string          // trimmed marker line as it appeared
	Start     int             // byte offset of the marker line in the block
	End       int             // byte offset just past the marker (and any consumed title line)
}

const (
	titleLookahead = 3
	maxTitleRunes  = 200
)

// Value alternatives: roman or arabic numerals with an optional ordinal
// suffix, or one of the named divisions. Numerals are case sensitive so that
// ordinary words made of roman letters ("civil") are not read as numbers.
const numeral = `(?:[IVXLCDM]+|\d+)(?:er|ER|re|RE|e|E)?`

// ordinal matches spelled-out French ordinals ("premier", "deuxième",
// "vingt-et-unième"). It is always compiled case-insensitively.
const ordinal = `(?:premi(?:er|[eè]re)|seconde?|[a-zàâçéèêëîïôûù-]+i[eè]me)`

// sep is the gap between a heading value and its title. Only an explicit
// punctuation separator lets a lower-case title through.
const sep = `(\s*[:.\-–—]\s*|\s+|$)`

var levelKeywords = map[hierarchy.Level]struct {
	keyword string
	named   string
}{
	hierarchy.Part:       {`partie`, `l[ée]gislative|r[ée]glementaire|pr[ée]liminaire|arr[êe]t[ée]s|unique`},
	hierarchy.Book:       {`livre`, `pr[ée]liminaire|unique`},
	hierarchy.Title:      {`titre`, `pr[ée]liminaire|unique`},
	hierarchy.Chapter:    {`chapitre`, `pr[ée]liminaire|unique`},
	hierarchy.Section:    {`section`, `unique`},
	hierarchy.Subsection: {`sous-section`, `unique`},
}

// rulePriority is the fixed evaluation order. More specific keywords that
// share a prefix with another keyword come first; articles come last so a
// heading that mentions an article stays a heading.
var rulePriority = []hierarchy.Level{
	hierarchy.Part,
	hierarchy.Book,
	hierarchy.Title,
	hierarchy.Chapter,
	hierarchy.Subsection,
	hierarchy.Section,
}

type rule struct {
	kind    Kind
	level   hierarchy.Level
	keyword string
	valued  *regexp.Regexp // "Chapitre II : Titre", "Titre premier"
	ordinal *regexp.Regexp // "Première partie : Titre"
	bare    *regexp.Regexp // "CHAPITRE"
}

// Matcher holds the compiled rule list. It is immutable and safe for
// concurrent use.
type Matcher struct {
	rules []rule
}

// NewMatcher builds a matcher for the given levels (all six when empty).
func NewMatcher(levels ...hierarchy.Level) *Matcher {
	if len(levels) == 0 {
		levels = hierarchy.DefaultLevels()
	}
	enabled := make(map[hierarchy.Level]bool, len(levels))
	for _, l := range levels {
		enabled[l] = true
	}

	m := &Matcher{}
	for _, l := range rulePriority {
		if !enabled[l] {
			continue
		}
		kw := levelKeywords[l]
		m.rules = append(m.rules, rule{
			kind:    KindHierarchy,
			level:   l,
			keyword: kw.keyword,
			valued:  regexp.MustCompile(`^(?i:` + kw.keyword + `)\s+(` + numeral + `|(?i:` + kw.named + `|` + ordinal + `))` + sep + `(.*)$`),
			ordinal: regexp.MustCompile(`^(?i:(` + ordinal + `))\s+(?i:` + kw.keyword + `)` + sep + `(.*)$`),
			bare:    regexp.MustCompile(`^(?i:` + kw.keyword + `)\s*[:.\-–—]?\s*$`),
		})
	}
	return m
}

// Priority lists the rule order as it is evaluated: hierarchy levels, then
// articles.
func (m *Matcher) Priority() []Kind {
	out := make([]Kind, 0, len(m.rules)+1)
	for _, r := range m.rules {
		out = append(out, r.kind)
	}
	return append(out, KindArticle)
}

// Levels returns the hierarchy levels in evaluation order.
func (m *Matcher) Levels() []hierarchy.Level {
	out := make([]hierarchy.Level, len(m.rules))
	for i, r := range m.rules {
		out[i] = r.level
	}
	return out
}

type line struct {
	start, end int // end includes the trailing newline
	text       string
}

func splitLines(block string) []line {
	var lines []line
	start := 0
	for start < len(block) {
		i := strings.IndexByte(block[start:], '\n')
		end := len(block)
		text := block[start:]
		if i >= 0 {
			end = start + i + 1
			text = block[start : start+i]
		}
		lines = append(lines, line{start: start, end: end, text: text})
		start = end
	}
	return lines
}

// Match returns every marker in block ordered by start offset. It keeps no
// state between calls.
func (m *Matcher) Match(block string) []Match {
	lines := splitLines(block)
	var out []Match
	for i := 0; i < len(lines); i++ {
		text := cleanLine(lines[i].text)
		if text == "" {
			continue
		}
		match, ok := m.matchLine(text)
		if !ok {
			continue
		}
		match.Start = lines[i].start
		match.End = lines[i].end

		if match.Kind == KindHierarchy && !strings.Contains(match.Label, " - ") && match.Label != "" {
			if title, j, ok := m.lookaheadTitle(lines, i+1); ok {
				match.Label += " - " + title
				match.End = lines[j].end
				i = j
			}
		}
		out = append(out, match)
	}
	return out
}

// MatchLine classifies a single line.
func (m *Matcher) MatchLine(s string) (Match, bool) {
	text := cleanLine(s)
	if text == "" {
		return Match{}, false
	}
	return m.matchLine(text)
}

func (m *Matcher) matchLine(text string) (Match, bool) {
	for _, r := range m.rules {
		for _, re := range []*regexp.Regexp{r.valued, r.ordinal} {
			sm := re.FindStringSubmatch(text)
			if sm == nil {
				continue
			}
			title, ok := headingTitle(sm[2], sm[3])
			if !ok {
				continue
			}
			label := normalizeValue(sm[1])
			if title != "" {
				label += " - " + title
			}
			return Match{Kind: KindHierarchy, Level: r.level, Label: label, Raw: text}, true
		}
		if r.bare.MatchString(text) || r.shouted(text) {
			return Match{Kind: KindHierarchy, Level: r.level, Raw: text}, true
		}
	}
	if id, ok := parseArticleLine(text); ok {
		return Match{Kind: KindArticle, ArticleID: id, Raw: text}, true
	}
	return Match{}, false
}

// lookaheadTitle finds a heading title on the lines after a marker.
func (m *Matcher) lookaheadTitle(lines []line, from int) (string, int, bool) {
	for j := from; j < len(lines) && j < from+titleLookahead; j++ {
		text := cleanLine(lines[j].text)
		if text == "" {
			continue
		}
		if _, isMarker := m.matchLine(text); isMarker {
			return "", 0, false
		}
		if !titleShaped(text) {
			return "", 0, false
		}
		return text, j, true
	}
	return "", 0, false
}

// headingTitle vets the text after a heading value on the same line. Body
// sentences that merely start with a keyword ("Section 2 du chapitre III
// est applicable.") are rejected.
func headingTitle(separator, rest string) (string, bool) {
	title := cleanTitle(rest)
	if title == "" {
		return "", true
	}
	if !titleShaped(title) {
		return "", false
	}
	if strings.TrimSpace(separator) == "" {
		if r, _ := utf8.DecodeRuneInString(title); unicode.IsLower(r) {
			return "", false
		}
	}
	return title, true
}

// titleShaped reports whether s reads like a heading rather than a sentence.
func titleShaped(s string) bool {
	return utf8.RuneCountInString(s) < maxTitleRunes && !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, ";")
}

// shouted reports an all-capitals keyword line whose value could not be
// read, such as "TITRE QUATRE". It becomes a heading with an empty label.
func (r rule) shouted(text string) bool {
	if len(text) <= len(r.keyword) || !strings.EqualFold(text[:len(r.keyword)], r.keyword) {
		return false
	}
	rest := text[len(r.keyword):]
	if !unicode.IsSpace(rune(rest[0])) || !titleShaped(text) {
		return false
	}
	letters := false
	for _, c := range rest {
		if unicode.IsLower(c) {
			return false
		}
		letters = letters || unicode.IsLetter(c)
	}
	return letters
}

var spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ", "\t", " ")

func cleanLine(s string) string {
	return strings.TrimSpace(spaceReplacer.Replace(s))
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":.-–— ")
	return strings.TrimSpace(s)
}

// normalizeValue upper-cases roman numerals, lower-cases ordinal suffixes
// and named divisions: "IER" -> "Ier", "PRÉLIMINAIRE" -> "préliminaire".
func normalizeValue(v string) string {
	if sm := numeralParts.FindStringSubmatch(v); sm != nil {
		return strings.ToUpper(sm[1]) + strings.ToLower(sm[2])
	}
	return strings.ToLower(v)
}

var numeralParts = regexp.MustCompile(`^([IVXLCDM]+|\d+)(er|ER|re|RE|e|E)?$`)

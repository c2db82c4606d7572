// Package hierarchy models the structural levels of a French legal code and
// tracks which heading is active at each level while a document is walked.
package hierarchy

import (
	"errors"
	"fmt"
	"strings"
)

// Level is a rank in the code structure, from most to least general.
type Level int

const (
	Part Level = iota
	Book
	Title
	Chapter
	Section
	Subsection

	// NumLevels is the number of tracked levels.
	NumLevels = int(Subsection) + 1
)

// ErrUnknownLevel is returned when a caller passes a level outside the enum.
var ErrUnknownLevel = errors.New("unknown hierarchy level")

var levelNames = [NumLevels]string{"Partie", "Livre", "Titre", "Chapitre", "Section", "Sous-section"}

// String returns the French heading keyword for the level.
func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the six canonical levels.
func (l Level) Valid() bool {
	return l >= Part && l <= Subsection
}

// DefaultLevels returns every level in canonical order.
func DefaultLevels() []Level {
	return []Level{Part, Book, Title, Chapter, Section, Subsection}
}

var levelAliases = map[string]Level{
	"partie":       Part,
	"part":         Part,
	"livre":        Book,
	"book":         Book,
	"titre":        Title,
	"title":        Title,
	"chapitre":     Chapter,
	"chapter":      Chapter,
	"section":      Section,
	"sous-section": Subsection,
	"sous_section": Subsection,
	"soussection":  Subsection,
	"subsection":   Subsection,
}

// ParseLevel maps a configuration name (French or English) to a Level.
func ParseLevel(s string) (Level, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if l, ok := levelAliases[key]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// ParseLevels parses a comma-separated level list. An empty string yields
// DefaultLevels.
func ParseLevels(s string) ([]Level, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultLevels(), nil
	}
	var out []Level
	seen := make(map[Level]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, err := ParseLevel(part)
		if err != nil {
			return nil, err
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out, nil
}

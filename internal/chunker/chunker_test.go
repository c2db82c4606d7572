package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dgallion1/legichunk/internal/doctree"
)

func article(raw string) doctree.Chunk {
	c := doctree.Chunk{
		SourceBook:    "Code pénal",
		SourceURL:     "https://www.legifrance.gouv.fr/codes/texte_lc/LEGITEXT000006070719",
		ArticleID:     "311-1",
		HierarchyPath: []string{"III", "Ier"},
		Page:          42,
		RawContent:    raw,
		Offset:        10,
		Extra:         map[string]string{"filename": "Code_penal.pdf"},
	}
	c.Content = c.Render(raw)
	return c
}

func TestSplit_RawAtSizeIsUnchanged(t *testing.T) {
	c := article(strings.Repeat("a", 1000))
	got := Split(c, DefaultConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Content != c.Content || got[0].ChunkIndex != 0 || got[0].Overlap != 0 {
		t.Errorf("expected chunk unchanged, got %+v", got[0])
	}
}

func TestSplit_ContentUnderSizeIsUnchanged(t *testing.T) {
	c := article("Le vol est la soustraction frauduleuse de la chose d'autrui.")
	if got := Split(c, DefaultConfig()); len(got) != 1 || got[0].RawContent != c.RawContent {
		t.Errorf("expected one unchanged chunk, got %+v", got)
	}
}

func TestSplit_OneRuneOverGivesTwoWindows(t *testing.T) {
	raw := strings.Repeat("a", 1001)
	got := Split(article(raw), DefaultConfig())
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if n := utf8.RuneCountInString(got[0].RawContent); n != 1000 {
		t.Errorf("expected first window of 1000 runes, got %d", n)
	}
	if got[1].Overlap != 150 || got[1].ChunkIndex != 1 {
		t.Errorf("unexpected second window metadata %+v", got[1])
	}
	if got[1].Offset != 10+850 {
		t.Errorf("expected second window at offset 860, got %d", got[1].Offset)
	}
	if Join(got) != raw {
		t.Error("round trip failed")
	}
}

func TestSplit_CountsRunesNotBytes(t *testing.T) {
	raw := strings.Repeat("é", 1000)
	if got := Split(article(raw), DefaultConfig()); len(got) != 1 {
		t.Errorf("expected 1000 accented runes to fit, got %d chunks", len(got))
	}
}

func TestSplit_RoundTripAndBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	words := []string{"le", "vol", "est", "la", "soustraction", "frauduleuse", "de", "chose", "d'autrui", "pénal", "été"}
	seps := []string{" ", " ", " ", " ", ". ", "; ", "\n", "\n\n", ", "}

	for trial := 0; trial < 50; trial++ {
		var sb strings.Builder
		n := 200 + r.IntN(1500)
		for i := 0; i < n; i++ {
			sb.WriteString(words[r.IntN(len(words))])
			sb.WriteString(seps[r.IntN(len(seps))])
		}
		raw := sb.String()
		cfg := Config{ChunkSize: 100 + r.IntN(900), ChunkOverlap: r.IntN(100)}
		c := article(raw)
		parts := Split(c, cfg)

		if got := Join(parts); got != raw {
			t.Fatalf("trial %d (%+v): round trip mismatch", trial, cfg)
		}
		all := []rune(raw)
		for i, p := range parts {
			pr := []rune(p.RawContent)
			if len(pr) > cfg.ChunkSize {
				t.Fatalf("trial %d: window %d has %d runes, limit %d", trial, i, len(pr), cfg.ChunkSize)
			}
			start := p.Offset - c.Offset
			if string(all[start:start+len(pr)]) != p.RawContent {
				t.Fatalf("trial %d: window %d is not the substring at its offset", trial, i)
			}
			if p.ChunkIndex != i {
				t.Fatalf("trial %d: expected index %d, got %d", trial, i, p.ChunkIndex)
			}
			if i > 0 {
				prev := []rune(parts[i-1].RawContent)
				if string(prev[len(prev)-cfg.ChunkOverlap:]) != string(pr[:cfg.ChunkOverlap]) {
					t.Fatalf("trial %d: window %d overlap does not match previous tail", trial, i)
				}
			}
		}
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("x ", 350) // 700 runes
	raw := first + "\n\n" + strings.Repeat("y ", 300)
	got := Split(article(raw), Config{ChunkSize: 1000, ChunkOverlap: 0})
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if !strings.HasSuffix(got[0].RawContent, "\n\n") {
		t.Errorf("expected cut after paragraph break, got tail %q", got[0].RawContent[len(got[0].RawContent)-5:])
	}
	if !strings.HasPrefix(got[1].RawContent, "y ") {
		t.Errorf("expected second window to start the new paragraph, got %q", got[1].RawContent[:5])
	}
}

func TestSplit_PrefersSentenceOverSpace(t *testing.T) {
	raw := strings.Repeat("mot ", 150) + "Fin. " + strings.Repeat("mot ", 150)
	got := Split(article(raw), Config{ChunkSize: 800, ChunkOverlap: 0})
	if !strings.HasSuffix(got[0].RawContent, "Fin. ") {
		t.Errorf("expected cut after sentence end, got tail %q", got[0].RawContent[len(got[0].RawContent)-8:])
	}
}

func TestSplit_NoBreakBeforeHalfWindow(t *testing.T) {
	// The only paragraph break sits at 100 runes; cutting there would waste
	// most of the window.
	raw := strings.Repeat("a", 100) + "\n\n" + strings.Repeat("b", 1500)
	got := Split(article(raw), Config{ChunkSize: 1000, ChunkOverlap: 0})
	if n := utf8.RuneCountInString(got[0].RawContent); n != 1000 {
		t.Errorf("expected hard cut at 1000, got %d", n)
	}
}

func TestSplit_WindowsKeepMetadataAndPrefix(t *testing.T) {
	c := article(strings.Repeat("alinéa ", 400))
	parts := Split(c, DefaultConfig())
	if len(parts) < 2 {
		t.Fatalf("expected a split, got %d", len(parts))
	}
	ids := map[string]bool{}
	for _, p := range parts {
		if p.ArticleID != c.ArticleID || p.Page != c.Page || p.SourceBook != c.SourceBook {
			t.Errorf("metadata not copied: %+v", p)
		}
		if p.Content != c.Prefix()+p.RawContent {
			t.Errorf("expected re-rendered content for window %d", p.ChunkIndex)
		}
		ids[p.PointID()] = true
	}
	if len(ids) != len(parts) {
		t.Errorf("expected distinct point ids, got %d for %d windows", len(ids), len(parts))
	}
	// Windows must not share the path slice with the parent.
	parts[0].HierarchyPath[0] = "changed"
	if c.HierarchyPath[0] != "III" {
		t.Error("window shares hierarchy path with parent")
	}
}

func TestIter_RestartableAndStoppable(t *testing.T) {
	seq := Iter(article(strings.Repeat("b ", 2000)), DefaultConfig())
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	a, b := count(), count()
	if a < 2 || a != b {
		t.Errorf("expected repeatable sequence, got %d then %d", a, b)
	}
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected early stop, got %d", n)
	}
}

func TestSplitAll_PreservesOrder(t *testing.T) {
	short := article("court")
	long := article(strings.Repeat("c", 2500))
	long.ArticleID = "311-2"
	got := SplitAll([]doctree.Chunk{short, long}, DefaultConfig())
	if got[0].ArticleID != "311-1" {
		t.Errorf("expected short chunk first, got %q", got[0].ArticleID)
	}
	for _, c := range got[1:] {
		if c.ArticleID != "311-2" {
			t.Errorf("unexpected order: %q", c.ArticleID)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	bad := []Config{
		{ChunkSize: 0, ChunkOverlap: 0},
		{ChunkSize: 100, ChunkOverlap: -1},
		{ChunkSize: 100, ChunkOverlap: 100},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 || EstimateTokens("   ") != 0 {
		t.Error("expected zero for blank text")
	}
	if got := EstimateTokens("Le vol est puni"); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
	if got := EstimateTokens("Vol"); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

package hierarchy

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strconv"
	"testing"
)

func TestTracker_EmptySnapshot(t *testing.T) {
	tr := NewTracker()
	snap := tr.Snapshot()
	if snap == nil {
		t.Fatal("expected non-nil snapshot")
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %v", snap)
	}
}

func TestTracker_ChapterClearsSection(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Chapter, "Ier")
	mustUpdate(t, tr, Section, "1")
	mustUpdate(t, tr, Subsection, "2")
	mustUpdate(t, tr, Chapter, "II")

	want := []string{"II"}
	if got := tr.Snapshot(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if _, ok := tr.Get(Section); ok {
		t.Error("expected section to be cleared")
	}
}

func TestTracker_GapsDoNotTruncate(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Book, "I")
	mustUpdate(t, tr, Chapter, "III")
	mustUpdate(t, tr, Subsection, "2")

	want := []string{"I", "III", "2"}
	if got := tr.Snapshot(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTracker_SectionWithoutChapterIsAllowed(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Section, "1")
	if got := tr.Snapshot(); !slices.Equal(got, []string{"1"}) {
		t.Errorf("expected [1], got %v", got)
	}
}

func TestTracker_HigherLevelKeepsMoreGeneral(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Part, "législative")
	mustUpdate(t, tr, Book, "II")
	mustUpdate(t, tr, Title, "Ier")
	mustUpdate(t, tr, Title, "II")

	want := []string{"législative", "II", "II"}
	if got := tr.Snapshot(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTracker_EmptyLabelKeepsNesting(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Chapter, "Ier")
	mustUpdate(t, tr, Section, "1")
	// An unreadable chapter marker still resets the section below it.
	mustUpdate(t, tr, Chapter, "")

	label, ok := tr.Get(Chapter)
	if !ok || label != "" {
		t.Errorf("expected chapter set to empty label, got %q set=%v", label, ok)
	}
	if _, ok := tr.Get(Section); ok {
		t.Error("expected section cleared by empty chapter label")
	}
	if got := tr.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty labels to be omitted, got %v", got)
	}
}

func TestTracker_UnknownLevel(t *testing.T) {
	tr := NewTracker()
	if err := tr.Update(Level(42), "x"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
	if err := tr.Update(Level(-1), "x"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestTracker_SnapshotIdempotent(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Title, "IV")
	mustUpdate(t, tr, Section, "3")
	a := tr.Snapshot()
	b := tr.Snapshot()
	if !slices.Equal(a, b) {
		t.Errorf("expected identical snapshots, got %v and %v", a, b)
	}
	// Mutating a returned snapshot must not leak into the tracker.
	a[0] = "mutated"
	if c := tr.Snapshot(); c[0] != "IV" {
		t.Errorf("snapshot aliasing: got %v", c)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Book, "I")
	tr.Reset()
	if got := tr.Snapshot(); len(got) != 0 {
		t.Errorf("expected empty after reset, got %v", got)
	}
	if _, ok := tr.Deepest(); ok {
		t.Error("expected no deepest level after reset")
	}
}

func TestTracker_Deepest(t *testing.T) {
	tr := NewTracker()
	mustUpdate(t, tr, Book, "I")
	mustUpdate(t, tr, Section, "2")
	l, ok := tr.Deepest()
	if !ok || l != Section {
		t.Errorf("expected Section, got %v (%v)", l, ok)
	}
}

// After an update at level L, no label set before that update below L may
// survive. Each label is unique so its origin can be traced.
func TestTracker_RandomUpdatesNeverLeakStaleLabels(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	tr := NewTracker()
	setAt := map[string]int{} // label -> step
	lastReset := [NumLevels]int{}

	for step := 1; step <= 2000; step++ {
		l := Level(r.IntN(NumLevels))
		label := l.String() + "-" + strconv.Itoa(step)
		mustUpdate(t, tr, l, label)
		setAt[label] = step
		for lower := l + 1; lower <= Subsection; lower++ {
			lastReset[lower] = step
		}

		for level := Part; level <= Subsection; level++ {
			got, ok := tr.Get(level)
			if !ok {
				continue
			}
			if setAt[got] < lastReset[level] {
				t.Fatalf("step %d: level %v holds %q set at %d, reset at %d", step, level, got, setAt[got], lastReset[level])
			}
		}
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels("chapitre, Section ,sous-section")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Level{Chapter, Section, Subsection}
	if !slices.Equal(levels, want) {
		t.Errorf("expected %v, got %v", want, levels)
	}

	all, err := ParseLevels("")
	if err != nil || len(all) != NumLevels {
		t.Errorf("expected default levels, got %v (%v)", all, err)
	}

	if _, err := ParseLevels("chapitre,paragraphe"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestLevel_String(t *testing.T) {
	if Subsection.String() != "Sous-section" {
		t.Errorf("unexpected name %q", Subsection.String())
	}
	if Level(9).String() != "Level(9)" {
		t.Errorf("unexpected name %q", Level(9).String())
	}
}

func mustUpdate(t *testing.T, tr *Tracker, l Level, label string) {
	t.Helper()
	if err := tr.Update(l, label); err != nil {
		t.Fatalf("update %v: %v", l, err)
	}
}

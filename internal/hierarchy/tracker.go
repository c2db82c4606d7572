package hierarchy

// slot is one level of tracker state. A set slot may hold an empty label when
// the marker was seen but its value could not be read.
type slot struct {
	set   bool
	label string
}

// Tracker holds the active heading at every level for one document.
// It is not safe for concurrent use; each document owns its own Tracker.
type Tracker struct {
	slots [NumLevels]slot
}

// NewTracker returns a tracker with every level unset.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update records label at level and clears every less general level.
func (t *Tracker) Update(level Level, label string) error {
	if !level.Valid() {
		return ErrUnknownLevel
	}
	t.slots[level] = slot{set: true, label: label}
	for l := level + 1; l <= Subsection; l++ {
		t.slots[l] = slot{}
	}
	return nil
}

// Get returns the label at level and whether the level is set.
func (t *Tracker) Get(level Level) (string, bool) {
	if !level.Valid() {
		return "", false
	}
	s := t.slots[level]
	return s.label, s.set
}

// Snapshot returns the active labels from most to least general. Unset levels
// are skipped without truncating the levels below them, and empty labels are
// left out since they carry no text. The result is never nil.
func (t *Tracker) Snapshot() []string {
	out := make([]string, 0, NumLevels)
	for _, s := range t.slots {
		if s.set && s.label != "" {
			out = append(out, s.label)
		}
	}
	return out
}

// Deepest returns the least general level currently set.
func (t *Tracker) Deepest() (Level, bool) {
	for l := Subsection; l >= Part; l-- {
		if t.slots[l].set {
			return l, true
		}
	}
	return 0, false
}

// Reset clears every level.
func (t *Tracker) Reset() {
	t.slots = [NumLevels]slot{}
}

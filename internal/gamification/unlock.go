package gamification

import "sort"

// LessonRef is the ordering key of a lesson within its course.
type LessonRef struct {
	ID         string
	OrderIndex int
}

// Sequence is a course's lessons in their total order: orderIndex asc, then ID asc.
type Sequence struct {
	lessons  []LessonRef
	position map[string]int
}

// NewSequence orders refs without modifying the input slice.
func NewSequence(refs []LessonRef) Sequence {
	ordered := make([]LessonRef, len(refs))
	copy(ordered, refs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].OrderIndex != ordered[j].OrderIndex {
			return ordered[i].OrderIndex < ordered[j].OrderIndex
		}
		return ordered[i].ID < ordered[j].ID
	})
	position := make(map[string]int, len(ordered))
	for i, l := range ordered {
		position[l.ID] = i
	}
	return Sequence{lessons: ordered, position: position}
}

// Lessons returns the ordered refs.
func (s Sequence) Lessons() []LessonRef {
	out := make([]LessonRef, len(s.lessons))
	copy(out, s.lessons)
	return out
}

// Len returns the number of lessons.
func (s Sequence) Len() int {
	return len(s.lessons)
}

// Predecessor returns the lesson immediately before id, if any.
func (s Sequence) Predecessor(id string) (string, bool) {
	pos, ok := s.position[id]
	if !ok || pos == 0 {
		return "", false
	}
	return s.lessons[pos-1].ID, true
}

// IsUnlocked reports whether id is open to a student who completed the given lessons.
// The first lesson is always open; any other lesson opens once its immediate predecessor is completed.
// Unknown lessons are locked.
func (s Sequence) IsUnlocked(id string, completed map[string]bool) bool {
	pos, ok := s.position[id]
	if !ok {
		return false
	}
	if pos == 0 {
		return true
	}
	return completed[s.lessons[pos-1].ID]
}

// UnlockStates evaluates IsUnlocked for every lesson, in sequence order.
func (s Sequence) UnlockStates(completed map[string]bool) []bool {
	states := make([]bool, len(s.lessons))
	for i, l := range s.lessons {
		states[i] = s.IsUnlocked(l.ID, completed)
	}
	return states
}

package models

import "strings"

// SubjectEnrollment is one row of a student's enrollment snapshot: a subject
// the student is taking this semester plus its teacher of record. Snapshots
// are resolved from timetable data at read time and never persisted by the
// clearance subsystem.
type SubjectEnrollment struct {
	SubjectKey  string  `json:"subject_key"`
	SubjectCode string  `json:"subject_code"`
	SubjectName string  `json:"subject_name"`
	TeacherID   *string `json:"teacher_id,omitempty"`
	TeacherName string  `json:"teacher_name"`
}

// TeacherMatch grades how a staff actor was linked to a subject's teacher of
// record. Heuristic matches are inherently ambiguous (free-text timetable
// entries) and should be logged by callers.
type TeacherMatch int

const (
	TeacherMatchNone TeacherMatch = iota
	TeacherMatchExact
	TeacherMatchHeuristic
)

// String implements fmt.Stringer for log fields.
func (m TeacherMatch) String() string {
	switch m {
	case TeacherMatchExact:
		return "exact"
	case TeacherMatchHeuristic:
		return "heuristic"
	}
	return "none"
}

// MatchTeacher resolves whether the actor is the teacher of record for the
// subject. Stable profile-id equality is tried first; when the timetable
// carries only a free-text teacher name, it falls back to case-insensitive
// comparison with honorific prefixes stripped, then substring containment in
// either direction.
func MatchTeacher(actor Actor, subject SubjectEnrollment) TeacherMatch {
	if subject.TeacherID != nil && actor.ProfileID != "" && *subject.TeacherID == actor.ProfileID {
		return TeacherMatchExact
	}

	assigned := normalizeTeacherName(subject.TeacherName)
	own := normalizeTeacherName(actor.Name)
	if assigned == "" || own == "" {
		return TeacherMatchNone
	}
	if assigned == own {
		return TeacherMatchHeuristic
	}
	if strings.Contains(assigned, own) || strings.Contains(own, assigned) {
		return TeacherMatchHeuristic
	}
	return TeacherMatchNone
}

var honorifics = []string{"mr.", "mrs.", "ms.", "dr.", "prof.", "mr", "mrs", "ms", "dr", "prof"}

func normalizeTeacherName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for changed := true; changed; {
		changed = false
		for _, prefix := range honorifics {
			if strings.HasPrefix(name, prefix+" ") {
				name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
				changed = true
			} else if strings.HasPrefix(name, prefix) && strings.HasSuffix(prefix, ".") {
				name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
				changed = true
			}
		}
	}
	return strings.Join(strings.Fields(name), " ")
}

package core

// Grade is one of the supported school grades. The zero value means "not set".
type Grade string

const (
	Grade8  Grade = "8"
	Grade9  Grade = "9"
	Grade10 Grade = "10"
)

var Grades = []Grade{Grade8, Grade9, Grade10}

func (g Grade) IsValid() bool {
	switch g {
	case Grade8, Grade9, Grade10:
		return true
	}
	return false
}

func (g Grade) IsSet() bool { return g != "" }

// Difficulty tiers
const (
	DifficultyBasic        = "basic"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Difficulty maps a grade to its curriculum tier. Unknown grades fall back to basic.
func (g Grade) Difficulty() string {
	switch g {
	case Grade9:
		return DifficultyIntermediate
	case Grade10:
		return DifficultyAdvanced
	default:
		return DifficultyBasic
	}
}

// Subject is the unit of curriculum and progress tracking.
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectPhysics Subject = "physics"
	SubjectEnglish Subject = "english"
	SubjectBiology Subject = "biology"
	SubjectPunjabi Subject = "punjabi"
)

// AllSubjects lists every subject in catalog order.
var AllSubjects = []Subject{SubjectMath, SubjectPhysics, SubjectEnglish, SubjectBiology, SubjectPunjabi}

func (s Subject) IsValid() bool {
	for _, subj := range AllSubjects {
		if s == subj {
			return true
		}
	}
	return false
}

// ContainsSubject reports whether subj is in subjects.
func ContainsSubject(subjects []Subject, subj Subject) bool {
	for _, s := range subjects {
		if s == subj {
			return true
		}
	}
	return false
}

// CopySubjects returns a copy of subjects so callers never share the backing array.
func CopySubjects(subjects []Subject) []Subject {
	if subjects == nil {
		return nil
	}
	cp := make([]Subject, len(subjects))
	copy(cp, subjects)
	return cp
}

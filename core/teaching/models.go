package teaching

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/user"
)

// Link is an explicit teacher to student enrollment. (TeacherID, StudentID) is unique.
type Link struct {
	ID        string    `json:"id"`
	TeacherID string    `json:"teacher_id"`
	StudentID string    `json:"student_id"` // User.ID of the student, not User.StudentID
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Source tells which resolution tier produced a dashboard.
type Source string

const (
	SourceLinks    Source = "links"
	SourceGrade    Source = "grade"
	SourceSubjects Source = "subjects"
)

type Status string

const (
	StatusOK                Status = "ok"
	StatusIncompleteProfile Status = "incomplete_profile"
	StatusDegraded          Status = "degraded"
)

type StudentProgress struct {
	Student  user.User           `json:"student"`
	Progress []progress.Progress `json:"progress"`
}

// Dashboard is the teacher's view of their students. StudentProgress is never nil.
type Dashboard struct {
	Teacher         *user.User        `json:"teacher"`
	StudentProgress []StudentProgress `json:"student_progress"`
	Source          Source            `json:"source,omitempty"`
	Status          Status            `json:"status"`
}

// SubjectStudent is one row of a teacher's per-subject report.
type SubjectStudent struct {
	Student      user.User              `json:"student"`
	Progress     *progress.Progress     `json:"progress"`
	QuizAttempts []progress.QuizAttempt `json:"quiz_attempts"`
}

// TeacherProfile is what a user provides when onboarding as a teacher.
type TeacherProfile struct {
	Grade    core.Grade     `json:"grade" validate:"required,grade"`
	Subjects []core.Subject `json:"subjects" validate:"omitempty,unique,dive,subject"`
}

func (tp *TeacherProfile) Validate(validate *validator.Validate) error {
	tp.Grade = core.Grade(core.CleanString(string(tp.Grade)))
	return validate.Struct(tp)
}

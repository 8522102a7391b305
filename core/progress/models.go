package progress

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sikhya/portal/core"
)

// Progress is the rollup of one student's completion state for one subject.
type Progress struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	Subject              core.Subject `json:"subject"`
	VideosCompleted      int          `json:"videos_completed"`
	AssignmentsCompleted int          `json:"assignments_completed"`
	QuizScore            *int         `json:"quiz_score"` // nil until the first quiz
	QuizCompleted        bool         `json:"quiz_completed"`
	NotesViewed          bool         `json:"notes_viewed"`
	CreatedAt            time.Time    `json:"created_at"` // UTC
	UpdatedAt            time.Time    `json:"updated_at"` // UTC
}

// New returns the default record of a (user, subject) pair that has no progress yet.
func New(userID string, subject core.Subject) Progress {
	now := time.Now().UTC()
	return Progress{
		UserID:    userID,
		Subject:   subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Updates holds the fields of a general progress update. Nil fields are left untouched.
type Updates struct {
	VideosCompleted      *int  `json:"videos_completed" validate:"omitempty,min=0"`
	AssignmentsCompleted *int  `json:"assignments_completed" validate:"omitempty,min=0"`
	QuizScore            *int  `json:"quiz_score" validate:"omitempty,min=0"`
	QuizCompleted        *bool `json:"quiz_completed"`
	NotesViewed          *bool `json:"notes_viewed"`
}

func (u *Updates) Validate(validate *validator.Validate) error {
	return validate.Struct(u)
}

// Apply replaces every field of p that is set in u.
func (u Updates) Apply(p *Progress) {
	if u.VideosCompleted != nil {
		p.VideosCompleted = *u.VideosCompleted
	}
	if u.AssignmentsCompleted != nil {
		p.AssignmentsCompleted = *u.AssignmentsCompleted
	}
	if u.QuizScore != nil {
		score := *u.QuizScore
		p.QuizScore = &score
	}
	if u.QuizCompleted != nil {
		p.QuizCompleted = *u.QuizCompleted
	}
	if u.NotesViewed != nil {
		p.NotesViewed = *u.NotesViewed
	}
}

type QuizAnswer struct {
	QuestionID     int    `json:"question_id"`
	SelectedAnswer string `json:"selected_answer"`
	IsCorrect      bool   `json:"is_correct"`
}

// QuizAttempt is an immutable entry of the quiz log.
type QuizAttempt struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Subject        core.Subject `json:"subject"`
	Score          int          `json:"score"`
	TotalQuestions int          `json:"total_questions"`
	TimeSpent      int          `json:"time_spent"` // seconds
	Answers        []QuizAnswer `json:"answers"`
	CreatedAt      time.Time    `json:"created_at"` // UTC
}

type AssignmentAnswer struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

// AssignmentSubmission is an immutable entry of the assignment log.
type AssignmentSubmission struct {
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	Subject     core.Subject       `json:"subject"`
	Answers     []AssignmentAnswer `json:"answers"`
	SubmittedAt time.Time          `json:"submitted_at"` // UTC
}

type QuizResult struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"total_questions"`
}

// Score counts the correct answers.
func Score(answers []QuizAnswer) int {
	var score int
	for _, a := range answers {
		if a.IsCorrect {
			score++
		}
	}
	return score
}

// VideoUpdate is the payload of a video completion.
type VideoUpdate struct {
	VideoNumber int `json:"video_number" validate:"min=0"`
}

func (vu *VideoUpdate) Validate(validate *validator.Validate) error {
	return validate.Struct(vu)
}

type NewSubmission struct {
	Answers []AssignmentAnswer `json:"answers" validate:"required,dive"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	for i := range ns.Answers {
		ns.Answers[i].Answer = core.CleanString(ns.Answers[i].Answer)
	}
	return validate.Struct(ns)
}

type NewQuizAttempt struct {
	Answers   []QuizAnswer `json:"answers" validate:"required,dive"`
	TimeSpent int          `json:"time_spent" validate:"min=0"`
}

func (na *NewQuizAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

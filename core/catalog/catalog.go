// Package catalog serves the static lesson content: subjects, units and their notes, videos,
// assignment questions and quiz questions.
package catalog

import (
	_ "embed"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sikhya/portal/core"
)

//go:embed content.yaml
var contentYAML []byte

// QuizTimeLimit is the time a student is given to answer a unit quiz.
const QuizTimeLimit = 2 * time.Minute

// questionsPerUnit is how many assignment and quiz questions a lesson hands out.
const questionsPerUnit = 10

var (
	ErrUnknownSubject  = errors.New("unknown subject")
	ErrUnknownUnit     = errors.New("unknown unit")
	ErrUnknownQuestion = errors.New("unknown question")
)

type (
	Note struct {
		Title       string `yaml:"title" json:"title"`
		URL         string `yaml:"url" json:"url"`
		Description string `yaml:"description" json:"description"`
	}

	Video struct {
		Title       string `yaml:"title" json:"title"`
		URL         string `yaml:"url" json:"url"`
		Duration    string `yaml:"duration" json:"duration"`
		Description string `yaml:"description" json:"description"`
	}

	Assignment struct {
		ID       int    `yaml:"id" json:"id"`
		Question string `yaml:"question" json:"question"`
	}

	Question struct {
		ID       int      `yaml:"id" json:"id"`
		Question string   `yaml:"question" json:"question"`
		Options  []string `yaml:"options" json:"options"`
		Correct  string   `yaml:"correct" json:"correct"`
	}

	unit struct {
		Lesson      string       `yaml:"lesson"`
		Notes       []Note       `yaml:"notes"`
		Videos      []Video      `yaml:"videos"`
		Assignments []Assignment `yaml:"assignments"`
		Quiz        []Question   `yaml:"quiz"`
	}

	subjectContent struct {
		Subject core.Subject `yaml:"subject"`
		Title   string       `yaml:"title"`
		Icon    string       `yaml:"icon"`
		Units   []unit       `yaml:"units"`
	}

	// SubjectSummary describes a subject without its units.
	SubjectSummary struct {
		Subject core.Subject `json:"subject"`
		Title   string       `json:"title"`
		Icon    string       `json:"icon"`
		Units   int          `json:"units"`
	}

	// Lesson is one unit of a subject as seen by a student of a given grade.
	Lesson struct {
		Subject     core.Subject `json:"subject"`
		Title       string       `json:"title"`
		Icon        string       `json:"icon"`
		Grade       core.Grade   `json:"grade"`
		Difficulty  string       `json:"difficulty"`
		Unit        int          `json:"unit"`
		Lesson      string       `json:"lesson"`
		Notes       []Note       `json:"notes"`
		Videos      []Video      `json:"videos"`
		Assignments []Assignment `json:"assignments"`
		Quiz        []Question   `json:"quiz"`
	}

	Selection struct {
		QuestionID     int    `json:"question_id"`
		SelectedAnswer string `json:"selected_answer"`
	}

	GradedAnswer struct {
		QuestionID     int    `json:"question_id"`
		SelectedAnswer string `json:"selected_answer"`
		IsCorrect      bool   `json:"is_correct"`
	}
)

// Catalog is read-only once loaded and safe for concurrent use.
type Catalog struct {
	subjects []subjectContent
	index    map[core.Subject]int
}

// Load parses the content bundled into the binary.
func Load() (*Catalog, error) {
	return Parse(contentYAML)
}

// Parse builds a Catalog from a YAML document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Subjects []subjectContent `yaml:"subjects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing catalog")
	}

	c := &Catalog{subjects: doc.Subjects, index: make(map[core.Subject]int, len(doc.Subjects))}
	for i, s := range doc.Subjects {
		if !s.Subject.IsValid() {
			return nil, errors.Errorf("catalog: invalid subject %q", s.Subject)
		}
		if _, dup := c.index[s.Subject]; dup {
			return nil, errors.Errorf("catalog: duplicate subject %q", s.Subject)
		}
		c.index[s.Subject] = i
	}
	return c, nil
}

// Subjects lists every subject in catalog order.
func (c *Catalog) Subjects() []SubjectSummary {
	out := make([]SubjectSummary, 0, len(c.subjects))
	for _, s := range c.subjects {
		out = append(out, SubjectSummary{Subject: s.Subject, Title: s.Title, Icon: s.Icon, Units: len(s.Units)})
	}
	return out
}

func (c *Catalog) unit(subject core.Subject, unitIdx int) (*subjectContent, *unit, error) {
	i, ok := c.index[subject]
	if !ok {
		return nil, nil, ErrUnknownSubject
	}
	s := &c.subjects[i]
	if unitIdx < 0 || unitIdx >= len(s.Units) {
		return nil, nil, ErrUnknownUnit
	}
	return s, &s.Units[unitIdx], nil
}

// Lesson returns the unit at unitIdx (0-based) of subject, with its questions picked for grade.
func (c *Catalog) Lesson(subject core.Subject, grade core.Grade, unitIdx int) (*Lesson, error) {
	s, u, err := c.unit(subject, unitIdx)
	if err != nil {
		return nil, err
	}
	return &Lesson{
		Subject:     s.Subject,
		Title:       s.Title,
		Icon:        s.Icon,
		Grade:       grade,
		Difficulty:  grade.Difficulty(),
		Unit:        unitIdx,
		Lesson:      u.Lesson,
		Notes:       append([]Note(nil), u.Notes...),
		Videos:      append([]Video(nil), u.Videos...),
		Assignments: pickByGrade(u.Assignments, grade),
		Quiz:        pickByGrade(u.Quiz, grade),
	}, nil
}

// GradeQuiz checks selections against the quiz questions of a unit.
func (c *Catalog) GradeQuiz(subject core.Subject, grade core.Grade, unitIdx int, selections []Selection) ([]GradedAnswer, error) {
	_, u, err := c.unit(subject, unitIdx)
	if err != nil {
		return nil, err
	}
	questions := pickByGrade(u.Quiz, grade)
	correct := make(map[int]string, len(questions))
	for _, q := range questions {
		correct[q.ID] = q.Correct
	}

	graded := make([]GradedAnswer, 0, len(selections))
	for _, sel := range selections {
		want, ok := correct[sel.QuestionID]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownQuestion, "question %d", sel.QuestionID)
		}
		graded = append(graded, GradedAnswer{
			QuestionID:     sel.QuestionID,
			SelectedAnswer: sel.SelectedAnswer,
			IsCorrect:      sel.SelectedAnswer == want,
		})
	}
	return graded, nil
}

// pickByGrade selects questionsPerUnit items: the first ones for grade 8 (and unset grades),
// the middle ones for grade 9 and the last ones for grade 10.
func pickByGrade[T any](items []T, grade core.Grade) []T {
	n := questionsPerUnit
	if len(items) <= n {
		return append([]T(nil), items...)
	}
	var start int
	switch grade {
	case core.Grade9:
		start = len(items)/2 - n/2
		if start < 0 {
			start = 0
		}
	case core.Grade10:
		start = len(items) - n
	}
	return append([]T(nil), items[start:start+n]...)
}

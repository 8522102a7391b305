package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/catalog"
)

type catalogApi struct {
	cat      *catalog.Catalog
	validate *validator.Validate
}

func registerCatalogAPI(g *echo.Group, cat *catalog.Catalog, validate *validator.Validate) {
	api := catalogApi{cat: cat, validate: validate}

	cg := g.Group("/catalog")
	cg.GET("", api.subjects)
	cg.GET("/:subject/grades/:grade/units/:unit", api.lesson)
	cg.POST("/:subject/grades/:grade/units/:unit/quiz/grade", api.gradeQuiz)
}

type (
	SubjectsResponse struct {
		Subjects         []catalog.SubjectSummary `json:"subjects"`
		QuizTimeLimitSec int                      `json:"quiz_time_limit_sec"`
	}

	GradeQuizRequest struct {
		Answers []catalog.Selection `json:"answers" validate:"required"`
	}

	GradeQuizResponse struct {
		Answers        []catalog.GradedAnswer `json:"answers"`
		Score          int                    `json:"score"`
		TotalQuestions int                    `json:"total_questions"`
	}
)

func (r *GradeQuizRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// lessonParams reads the subject, grade and unit path params.
func lessonParams(ctx echo.Context) (core.Subject, core.Grade, int, error) {
	unit, err := strconv.Atoi(ctx.Param("unit"))
	if err != nil {
		return "", "", 0, errHttpNotFound
	}
	return core.Subject(ctx.Param("subject")), core.Grade(ctx.Param("grade")), unit, nil
}

func (api *catalogApi) subjects(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, SubjectsResponse{
		Subjects:         api.cat.Subjects(),
		QuizTimeLimitSec: int(catalog.QuizTimeLimit.Seconds()),
	})
}

func (api *catalogApi) lesson(ctx echo.Context) error {
	subject, grade, unit, err := lessonParams(ctx)
	if err != nil {
		return err
	}
	l, err := api.cat.Lesson(subject, grade, unit)
	if err != nil {
		return errors.Wrap(err, "getting lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *catalogApi) gradeQuiz(ctx echo.Context) error {
	subject, grade, unit, err := lessonParams(ctx)
	if err != nil {
		return err
	}
	var data GradeQuizRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeQuizRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	graded, err := api.cat.GradeQuiz(subject, grade, unit, data.Answers)
	if err != nil {
		return errors.Wrap(err, "grading quiz")
	}
	var score int
	for _, a := range graded {
		if a.IsCorrect {
			score++
		}
	}
	return ctx.JSON(http.StatusOK, GradeQuizResponse{Answers: graded, Score: score, TotalQuestions: len(graded)})
}

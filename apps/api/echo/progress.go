package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
)

type progressApi struct {
	svc      progress.Service
	validate *validator.Validate
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc progress.Service, validate *validator.Validate) {
	api := progressApi{svc: svc, validate: validate}

	pg := g.Group("/progress", jwt)
	pg.GET("", api.list)
	pg.GET("/dashboard", api.dashboard)
	pg.GET("/:subject", api.retrieve)
	pg.PATCH("/:subject", api.patch)
	pg.POST("/:subject/videos", api.updateVideo)
	pg.POST("/:subject/notes", api.updateNotesViewed)
	pg.POST("/:subject/assignments", api.submitAssignment)
	pg.POST("/:subject/quizzes", api.submitQuiz)
}

func subjectParam(ctx echo.Context) core.Subject {
	return core.Subject(core.CleanString(ctx.Param("subject"), true /* lower */))
}

// Handlers

func (api *progressApi) list(ctx echo.Context) error {
	progs, err := api.svc.MyProgress(ctx.Request().Context(), principal(ctx))
	if err != nil {
		return errors.Wrap(err, "listing progress")
	}
	return ctx.JSON(http.StatusOK, progs)
}

func (api *progressApi) dashboard(ctx echo.Context) error {
	dash, err := api.svc.Dashboard(ctx.Request().Context(), principal(ctx))
	if err != nil {
		return errors.Wrap(err, "getting student dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// retrieve responds with null when the subject has no progress yet.
func (api *progressApi) retrieve(ctx echo.Context) error {
	prog, err := api.svc.SubjectProgress(ctx.Request().Context(), principal(ctx), subjectParam(ctx))
	if err != nil {
		return errors.Wrap(err, "getting subject progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *progressApi) patch(ctx echo.Context) error {
	var data progress.Updates
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Updates")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.Patch(ctx.Request().Context(), principal(ctx), subjectParam(ctx), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *progressApi) updateVideo(ctx echo.Context) error {
	var data progress.VideoUpdate
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VideoUpdate")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.UpdateVideo(ctx.Request().Context(), principal(ctx), subjectParam(ctx), data.VideoNumber)
	if err != nil {
		return errors.Wrap(err, "updating video progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *progressApi) updateNotesViewed(ctx echo.Context) error {
	prog, err := api.svc.UpdateNotesViewed(ctx.Request().Context(), principal(ctx), subjectParam(ctx))
	if err != nil {
		return errors.Wrap(err, "updating notes progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *progressApi) submitAssignment(ctx echo.Context) error {
	var data progress.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prog, err := api.svc.SubmitAssignment(ctx.Request().Context(), principal(ctx), subjectParam(ctx), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *progressApi) submitQuiz(ctx echo.Context) error {
	var data progress.NewQuizAttempt
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewQuizAttempt")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.SubmitQuiz(ctx.Request().Context(), principal(ctx), subjectParam(ctx), data.Answers, data.TimeSpent)
	if err != nil {
		return errors.Wrap(err, "submitting quiz")
	}
	return ctx.JSON(http.StatusCreated, res)
}

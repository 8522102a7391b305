package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core/teaching"
)

type teacherApi struct {
	svc teaching.Service
}

func registerTeacherAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc teaching.Service) {
	api := teacherApi{svc: svc}

	tg := g.Group("/teacher", jwt)
	tg.GET("/dashboard", api.dashboard)
	tg.GET("/subjects/:subject", api.subjectProgress)
}

// dashboard always responds 200; problems are reported in the payload status.
func (api *teacherApi) dashboard(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Dashboard(ctx.Request().Context(), principal(ctx)))
}

func (api *teacherApi) subjectProgress(ctx echo.Context) error {
	rows, err := api.svc.SubjectProgress(ctx.Request().Context(), principal(ctx), subjectParam(ctx))
	if err != nil {
		return errors.Wrap(err, "getting subject progress")
	}
	return ctx.JSON(http.StatusOK, rows)
}

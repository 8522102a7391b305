package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

type accountApi struct {
	conf     *core.Config
	svc      user.Service
	teachSvc teaching.Service
	validate *validator.Validate
}

func registerAccountAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	conf *core.Config,
	svc user.Service,
	teachSvc teaching.Service,
	validate *validator.Validate,
) {
	api := accountApi{
		conf:     conf,
		svc:      svc,
		teachSvc: teachSvc,
		validate: validate,
	}

	// un-authed endpoints
	g.POST("/teachers/register", api.registerTeacher)
	g.POST("/students/login", api.loginStudent)

	// authed endpoints
	g.POST("/students/register", api.registerStudent, jwt, adminMiddleware())

	mg := g.Group("/me", jwt)
	mg.GET("", api.me)
	mg.PUT("/student-profile", api.setStudentProfile)
	mg.PUT("/teacher-profile", api.setTeacherProfile)
}

// AuthResponse is returned whenever the user's token changes.
type AuthResponse struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

func (api *accountApi) authResponse(ctx echo.Context, code int, usr user.User) error {
	token, err := NewUserToken(usr, api.conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(code, AuthResponse{User: usr, Token: token})
}

// Handlers

func (api *accountApi) registerTeacher(ctx echo.Context) error {
	var data user.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.RegisterTeacher(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering teacher")
	}
	return api.authResponse(ctx, http.StatusCreated, usr)
}

func (api *accountApi) registerStudent(ctx echo.Context) error {
	var data user.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.RegisterStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *accountApi) loginStudent(ctx echo.Context) error {
	var data user.StudentLogin
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentLogin")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.LoginStudent(ctx.Request().Context(), data.StudentID)
	if err != nil {
		return errors.Wrap(err, "logging in student")
	}
	return api.authResponse(ctx, http.StatusOK, usr)
}

func (api *accountApi) me(ctx echo.Context) error {
	usr, err := api.svc.Me(ctx.Request().Context(), principal(ctx))
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *accountApi) setStudentProfile(ctx echo.Context) error {
	var data user.StudentProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.SetStudentProfile(ctx.Request().Context(), principal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "setting student profile")
	}
	return api.authResponse(ctx, http.StatusOK, usr)
}

func (api *accountApi) setTeacherProfile(ctx echo.Context) error {
	var data teaching.TeacherProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TeacherProfile")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.teachSvc.SetTeacherProfile(ctx.Request().Context(), principal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "setting teacher profile")
	}
	return api.authResponse(ctx, http.StatusOK, usr)
}

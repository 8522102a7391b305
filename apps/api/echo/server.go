package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/catalog"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		DisableReqLogs bool
		// SignalShutdown is called when a handler fails with a core.NewShutdownError.
		SignalShutdown func()

		Logger      core.Logger
		Validate    *validator.Validate
		Translator  ut.Translator
		Catalog     *catalog.Catalog
		UserSvc     user.Service
		ProgressSvc progress.Service
		TeachingSvc teaching.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf.SecretKey))

	registerCatalogAPI(v1, s.opts.Catalog, s.opts.Validate)
	registerAccountAPI(v1, jwt, conf, s.opts.UserSvc, s.opts.TeachingSvc, s.opts.Validate)
	registerProgressAPI(v1, jwt, s.opts.ProgressSvc, s.opts.Validate)
	registerTeacherAPI(v1, jwt, s.opts.TeachingSvc)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Conf.Server.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Sikhya API!")
}

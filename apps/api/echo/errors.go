package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/catalog"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

var (
	errUnauthorized   = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden  = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound   = echo.NewHTTPError(http.StatusNotFound, "not found")
	errNotTeaching    = echo.NewHTTPError(http.StatusForbidden, teaching.ErrNotTeachingSubject.Error())
	errInvalidStudent = echo.NewHTTPError(http.StatusNotFound, user.ErrInvalidStudentID.Error())
)

// httpError translates the domain errors that map to a fixed response.
func httpError(err error) (*echo.HTTPError, bool) {
	switch err {
	case core.ErrUnauthorized:
		return errUnauthorized, true
	case teaching.ErrNotTeachingSubject:
		return errNotTeaching, true
	case user.ErrInvalidStudentID:
		return errInvalidStudent, true
	case user.ErrNotFound, catalog.ErrUnknownSubject, catalog.ErrUnknownUnit:
		return echo.NewHTTPError(http.StatusNotFound, err.Error()), true
	case catalog.ErrUnknownQuestion:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()), true
	}
	return nil, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr, ok := httpError(cause); ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.ConflictError:
			code = http.StatusConflict
			message = map[string]string{origErr.Field: origErr.Error()}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) && signalShutdown != nil {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

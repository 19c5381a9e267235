package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/rollbook/core"
	"github.com/trezcool/rollbook/core/attendance"
	"github.com/trezcool/rollbook/core/directory"
	"github.com/trezcool/rollbook/core/records"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, directory.ErrInvalidCredentials.Error())
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests    = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
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
		case *records.FetchError:
			code = http.StatusBadGateway
			message = "record store unavailable"
			logger.Error(origErr.Error(), err, contextIdentity(ctx))
		case *directory.RefreshError:
			code = http.StatusBadGateway
			message = "directory refresh failed"
			logger.Error(origErr.Error(), err, contextIdentity(ctx))
		default:
			switch {
			case origErr == directory.ErrInvalidCredentials:
				code = errInvalidCredentials.Code
				message = errInvalidCredentials.Message
			case origErr == attendance.ErrStudentNotFound,
				origErr == attendance.ErrCourseNotFound,
				origErr == records.ErrRecordNotFound:
				code = http.StatusNotFound
				message = origErr.Error()
			case origErr == attendance.ErrCourseNotWindowed:
				code = http.StatusUnprocessableEntity
				message = origErr.Error()
			case errors.Is(err, context.DeadlineExceeded):
				code = http.StatusGatewayTimeout
				message = http.StatusText(http.StatusGatewayTimeout)
				logger.Error(message.(string), err, contextIdentity(ctx))
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg
				logger.Error(msg, errors.Wrap(err, msg), contextIdentity(ctx))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
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

// contextIdentity is the authenticated caller, if any, for error reports.
func contextIdentity(ctx echo.Context) directory.Identity {
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Identity()
	}
	return directory.Identity{}
}

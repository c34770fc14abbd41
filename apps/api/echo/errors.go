package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/itdsea/coursework/core"
	"github.com/itdsea/coursework/core/assignment"
	"github.com/itdsea/coursework/core/course"
	"github.com/itdsea/coursework/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errNotVerified          = echo.NewHTTPError(http.StatusForbidden, "email is not verified, please check your mail box")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
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
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
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
		case *core.IOError:
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)
			logger.Error("storage failure", errors.Wrap(err, "storage failure"))
		default:
			code, message = matchDomainErr(errors.Cause(err))
			if code == 0 { // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if _, ok := message.(string); ok {
			if ctx.Echo().Debug {
				message = echo.Map{"error": err.Error()}
			} else {
				message = echo.Map{"error": message}
			}
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

// matchDomainErr maps domain sentinel errors to HTTP codes. Returns 0 for
// errors it does not know.
func matchDomainErr(err error) (int, interface{}) {
	switch err {
	case user.ErrNotFound,
		course.ErrNotFound,
		course.ErrRequestNotFound,
		assignment.ErrNotFound,
		assignment.ErrSubmissionNotFound,
		assignment.ErrFileNotFound,
		assignment.ErrBundleNotFound:
		return http.StatusNotFound, err.Error()

	case core.ErrPermissionDenied,
		course.ErrNotEnrolled,
		user.ErrAccountDeactivated,
		assignment.ErrExpired,
		assignment.ErrNotExpired:
		return http.StatusForbidden, err.Error()

	case user.ErrNotVerified:
		return http.StatusForbidden, errNotVerified.Message

	case course.ErrAlreadyEnrolled,
		course.ErrCourseworkExists,
		assignment.ErrNoFiles:
		return http.StatusConflict, err.Error()
	}
	return 0, nil
}

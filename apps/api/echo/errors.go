package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
)

var (
	errHttpUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	errHttpForbidden    = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// newAppHTTPErrorHandler maps the core error taxonomy to HTTP responses:
// validation -> 400, policy denial -> 403, not found -> 404, rejected
// transition or allocation conflict -> 409. Anything else is a server error
// and is never surfaced raw.
func newAppHTTPErrorHandler(translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var code int
		var message interface{}

		switch err := err.(type) {
		case *echo.HTTPError:
			if err.Internal != nil {
				if herr, ok := err.Internal.(*echo.HTTPError); ok {
					err = herr
				}
			}
			code = err.Code
			message = err.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string)
			for _, vErr := range err {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if err.Fields != nil {
				fldErrs := make(map[string]string)
				for _, fErr := range err.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = err.Error()
			}
			code = http.StatusBadRequest
		default:
			switch errors.Cause(err) {
			case profile.ErrDenied:
				code = http.StatusForbidden
				message = profile.ErrDenied.Error()
			case profile.ErrNotFound, identity.ErrNotFound:
				code = http.StatusNotFound
				message = "not found"
			case profile.ErrNotPending, profile.ErrAllocationConflict:
				code = http.StatusConflict
				message = errors.Cause(err).Error()
			case identity.ErrEmailTaken, identity.ErrWeakPassword, identity.ErrInvalidToken:
				code = http.StatusBadRequest
				message = errors.Cause(err).Error()
			default:
				code = http.StatusInternalServerError
				message = http.StatusText(http.StatusInternalServerError)
			}
		}

		if c.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, message)
			}
			if code >= http.StatusInternalServerError {
				c.Echo().Logger.Error(err)
			}
		}
	}
}

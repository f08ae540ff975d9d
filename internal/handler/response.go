// Package handler exposes the HTTP surface of the gate.  Handlers bind and
// validate the request, call one engine operation and return its error
// untouched; ErrorHandler turns errors into the JSON envelope.
package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

const codeOK = "OK"

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "code": codeOK, "data": data})
}

// ErrorHandler is installed as echo's HTTPErrorHandler.  Business errors
// keep their code and status; anything unclassified becomes a 500 without
// leaking the cause.
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var appErr *apperror.AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
		case errors.As(err, &httpErr):
			appErr = fromHTTPError(httpErr)
		default:
			appErr = apperror.AsAppError(err)
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"code", appErr.Code,
				"error", err,
			)
		}

		body := echo.Map{"success": false, "code": appErr.Code, "message": appErr.Message}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(appErr.HTTPStatus)
		} else {
			err = c.JSON(appErr.HTTPStatus, body)
		}
		if err != nil {
			log.Warn("writing error response failed", "error", err)
		}
	}
}

func fromHTTPError(he *echo.HTTPError) *apperror.AppError {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok {
		msg = s
	}
	switch he.Code {
	case http.StatusNotFound:
		return apperror.New(apperror.CodeNotFound, msg, he.Code)
	case http.StatusUnauthorized:
		return apperror.New(apperror.CodeUnauthorized, msg, he.Code)
	case http.StatusForbidden:
		return apperror.New(apperror.CodeForbidden, msg, he.Code)
	}
	if he.Code >= 400 && he.Code < 500 {
		return apperror.New(apperror.CodeInvalidRequest, msg, he.Code)
	}
	return apperror.Internal("internal server error", he)
}

// Validator adapts go-playground/validator to echo.  Field names in
// messages are the JSON names.
type Validator struct {
	v *validator.Validate
}

// NewValidator reports field errors under their JSON, query or path names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.InvalidRequest(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
		fields[fe.Field()] = fe.Tag()
	}
	return apperror.InvalidRequest(strings.Join(msgs, "; ")).WithDetails(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt", "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

// bind decodes the request into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.InvalidRequest("malformed request")
	}
	return c.Validate(dst)
}

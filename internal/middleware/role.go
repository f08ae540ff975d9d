package middleware // middleware provides shared request processing for handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/utils"
)

// RequireEventScope rejects a request whose eventId (path parameter or
// query string) differs from the event the credential was issued for.  A
// credential from one sale cannot be used to book another.  Routes without
// an eventId pass through; ownership there is checked against the visitor.
func RequireEventScope() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requested := c.Param("eventId")
			if requested == "" {
				requested = c.QueryParam("eventId")
			}
			if requested != "" && requested != EventID(c) {
				return fail(c, http.StatusForbidden, apperror.CodeForbidden, "access token is not valid for this event")
			}
			return next(c)
		}
	}
}

// RequireAdminKey checks the X-Admin-Key header against a bcrypt hash.  An
// empty hash disables the protected routes entirely.
func RequireAdminKey(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hash == "" {
				return fail(c, http.StatusForbidden, apperror.CodeForbidden, "admin routes are disabled")
			}
			if !utils.VerifyAdminKey(hash, c.Request().Header.Get("X-Admin-Key")) {
				return fail(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "invalid admin key")
			}
			return next(c)
		}
	}
}

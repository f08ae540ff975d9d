package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// credential issued by the waiting room and injects the visitor token and
// event id claims into the request context.  Handlers read them back with
// VisitorToken(c) and EventID(c).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return fail(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return fail(c, http.StatusUnauthorized, apperror.CodeUnauthorized, "invalid or expired access token")
			}

			c.Set(CtxVisitorToken, claims.VisitorToken)
			c.Set(CtxEventID, claims.EventID)
			return next(c)
		}
	}
}

package middleware

// identity.go holds the context keys set by JWTAuth and helpers that read
// the caller's identity back out, for handlers and for rate limit keys.

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	CtxVisitorToken = "visitor_token"
	CtxEventID      = "event_id"

	headerVisitorToken = "X-Visitor-Token"
	maxPeekBytes       = 64 << 10
)

// VisitorToken returns the authenticated visitor, or "" on public routes.
func VisitorToken(c echo.Context) string {
	s, _ := c.Get(CtxVisitorToken).(string)
	return s
}

// EventID returns the event the caller's credential is scoped to.
func EventID(c echo.Context) string {
	s, _ := c.Get(CtxEventID).(string)
	return s
}

// visitorFromRequest finds a visitor token on a public request: the
// authenticated one first, then the X-Visitor-Token header, the query, and
// finally a JSON body field.  The body is restored after peeking.  It
// returns "anon" when none is present.
func visitorFromRequest(c echo.Context) string {
	if v := VisitorToken(c); v != "" {
		return v
	}
	r := c.Request()
	if v := r.Header.Get(headerVisitorToken); v != "" {
		return v
	}
	if v := c.QueryParam("visitorToken"); v != "" {
		return v
	}
	if r.Body != nil && r.Method != http.MethodGet && r.ContentLength != 0 {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err == nil {
			var body struct {
				VisitorToken string `json:"visitorToken"`
			}
			if json.Unmarshal(raw, &body) == nil && body.VisitorToken != "" {
				return body.VisitorToken
			}
		}
	}
	return "anon"
}

// fail writes the standard error envelope.
func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, echo.Map{"success": false, "code": code, "message": message})
}

package utils // package utils provides helpers for access credentials and key hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access credential along with its
// expiry.  It is handed to a visitor when the waiting room lets them in and
// is sent as a Bearer token on every booking endpoint.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AccessClaims are the verified contents of an access credential.
type AccessClaims struct {
	VisitorToken string
	EventID      string
	ExpiresAt    time.Time
}

var ErrInvalidToken = errors.New("invalid access token")

// NewAccessToken builds and signs an HS256 JWT scoped to one visitor and one
// event.  The claims carry sub (the visitor), visitorToken, eventId, exp and
// iat.
func NewAccessToken(secret, visitorToken, eventID string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":          visitorToken,
		"visitorToken": visitorToken,
		"eventId":      eventID,
		"exp":          exp.Unix(),
		"iat":          now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies the signature and expiry of raw and returns its
// claims.  Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}

	visitor, _ := claims["visitorToken"].(string)
	if visitor == "" {
		visitor, _ = claims["sub"].(string)
	}
	eventID, _ := claims["eventId"].(string)
	if visitor == "" || eventID == "" {
		return AccessClaims{}, fmt.Errorf("%w: missing visitor or event claim", ErrInvalidToken)
	}
	out := AccessClaims{VisitorToken: visitor, EventID: eventID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// JWTIssuer mints access credentials with a fixed lifetime.  It is what the
// waiting room uses when it serves a visitor.
type JWTIssuer struct {
	secret string
	ttl    time.Duration
}

func NewJWTIssuer(secret string, ttl time.Duration) *JWTIssuer {
	return &JWTIssuer{secret: secret, ttl: ttl}
}

func (i *JWTIssuer) Issue(visitorToken, eventID string) (string, time.Time, error) {
	t, err := NewAccessToken(i.secret, visitorToken, eventID, i.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return t.Token, t.Exp, nil
}

package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const cookieIssuer = "reportmitra-admin"

// ErrInvalidCookie indicates the session cookie failed verification.
var ErrInvalidCookie = errors.New("session: invalid cookie")

// CookieCodec mints and verifies the signed session cookie. The cookie value
// is an HS256 JWT whose subject is the session id; no tokens ever leave the
// gateway.
type CookieCodec struct {
	secret []byte
	ttl    time.Duration
	name   string
	secure bool
}

func NewCookieCodec(secret string, ttl time.Duration, name string, secure bool) (*CookieCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session: cookie secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session: cookie ttl must be > 0")
	}
	if name == "" {
		name = "rm_session"
	}
	return &CookieCodec{secret: []byte(secret), ttl: ttl, name: name, secure: secure}, nil
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string { return c.name }

// Secure reports whether the cookie should be marked Secure.
func (c *CookieCodec) Secure() bool { return c.secure }

// TTL returns the session lifetime.
func (c *CookieCodec) TTL() time.Duration { return c.ttl }

// Mint signs a cookie value for the given session id.
func (c *CookieCodec) Mint(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("session: session id is required")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    cookieIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify validates a cookie value and returns the session id.
func (c *CookieCodec) Verify(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidCookie
	}
	parsed, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidCookie
		}
		return c.secret, nil
	})
	if err != nil {
		return "", ErrInvalidCookie
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidCookie
	}
	if claims.Issuer != cookieIssuer || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidCookie
	}
	return claims.Subject, nil
}

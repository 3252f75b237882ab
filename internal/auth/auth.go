package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Authenticator interface {
	Authenticate(r *http.Request) bool
}

// CookieName holds a credential first presented in the query string, so
// that pages can load their assets and post input without repeating it.
const CookieName = "pensine_auth"

func cookie(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// FromQuery returns the credential passed in the query string, if any.
func FromQuery(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("apikey"); v != "" {
		return v
	}
	return q.Get("token")
}

// NoAuth is an authenticator that allows all requests
type NoAuth struct{}

func (n *NoAuth) Authenticate(r *http.Request) bool {
	return true
}

// APIKeyAuth authenticates requests using a config-specified API key in the
// query parameter, the X-API-Key header or the auth cookie
type APIKeyAuth struct {
	APIKey string
}

func (a *APIKeyAuth) Authenticate(r *http.Request) bool {
	providedKey := r.URL.Query().Get("apikey")
	if providedKey == "" {
		providedKey = r.Header.Get("X-API-Key")
	}
	if providedKey == "" {
		providedKey = cookie(r)
	}
	return providedKey != "" && providedKey == a.APIKey
}

// Claims are the claims of a pensine access token.
type Claims struct {
	jwt.RegisteredClaims
}

const issuer = "pensine"

// JWTAuth accepts HS256 tokens signed with Secret, passed as a Bearer
// token, in the "token" query parameter or in the auth cookie
type JWTAuth struct {
	Secret []byte
	// Now defaults to time.Now.
	Now func() time.Time
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	return cookie(r)
}

func (a *JWTAuth) Authenticate(r *http.Request) bool {
	tok := bearer(r)
	if tok == "" {
		return false
	}
	_, err := a.Parse(tok)
	return err == nil
}

// Parse validates tok and returns its claims.
func (a *JWTAuth) Parse(tok string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}

	token, err := jwt.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// IssueToken signs a token for subject valid for ttl from now.
func IssueToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tk.SignedString(secret)
}

// NewAuthenticator creates an authenticator based on method and config
func NewAuthenticator(method, apiKey, jwtSecret string) Authenticator {
	switch method {
	case "apikey":
		return &APIKeyAuth{APIKey: apiKey}
	case "jwt":
		return &JWTAuth{Secret: []byte(jwtSecret)}
	default:
		return &NoAuth{}
	}
}

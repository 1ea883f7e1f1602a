package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const AdminScope = "admin"

var (
	ErrMissingToken = errors.New("missing authorization")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("token lacks admin scope")
)

// Authorizer decides whether a request may use admin capabilities.
type Authorizer interface {
	Authorize(r *http.Request) error
}

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTAuthorizer accepts HS256 bearer tokens carrying the admin scope.
type JWTAuthorizer struct {
	secret []byte
}

func NewJWTAuthorizer(secret string) *JWTAuthorizer {
	return &JWTAuthorizer{secret: []byte(secret)}
}

func (a *JWTAuthorizer) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Scope != AdminScope {
		return ErrForbidden
	}
	return nil
}

// IssueToken mints an admin token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("admin secret is empty")
	}
	now := time.Now()
	claims := Claims{
		Scope: AdminScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

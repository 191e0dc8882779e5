package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies the signed session credential shared by
// HTTP requests and realtime handshakes.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *TokenManager) TTL() time.Duration { return m.ttl }

func (m *TokenManager) Issue(userID string) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate resolves a bearer credential to a user id. A missing or
// structurally broken credential yields ErrUnauthenticated; a bad signature,
// wrong issuer or past expiry yields ErrInvalidOrExpired.
func (m *TokenManager) Validate(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" || strings.Count(tokenString, ".") != 2 {
		return "", ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidOrExpired, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidOrExpired
	}
	return claims.UserID, nil
}

// TokensFromRequest lists the credentials a request carries in the order
// they are tried: the session cookie, the Authorization bearer header, then
// the "token" query parameter used by websocket clients that cannot set
// headers. A non-bearer Authorization header contributes nothing and also
// disables the query parameter.
func TokensFromRequest(r *http.Request, cookieName string) []string {
	var tokens []string
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		tokens = append(tokens, c.Value)
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, found := strings.CutPrefix(h, "Bearer "); found && token != "" {
			tokens = append(tokens, token)
		}
		return tokens
	}
	if q := r.URL.Query().Get("token"); q != "" {
		tokens = append(tokens, q)
	}
	return tokens
}

// ValidateRequest returns the user of the first credential on r that
// validates, so a stale session cookie does not shadow a good bearer token.
// When none validates the error is the one from the first credential tried.
func (m *TokenManager) ValidateRequest(r *http.Request, cookieName string) (string, error) {
	var first error
	for _, token := range TokensFromRequest(r, cookieName) {
		userID, err := m.Validate(token)
		if err == nil {
			return userID, nil
		}
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return "", ErrUnauthenticated
	}
	return "", first
}

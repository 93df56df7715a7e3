package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// AuthManager issues and checks operator tokens. A request is authorized by
// the static API key or by a JWT minted in exchange for it.
type AuthManager struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(apiKey, jwtSecret string, ttl time.Duration) *AuthManager {
	return &AuthManager{apiKey: apiKey, secret: []byte(jwtSecret), ttl: ttl, now: time.Now}
}

type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Enabled is false when neither an API key nor a JWT secret is configured.
func (a *AuthManager) Enabled() bool {
	return a.apiKey != "" || len(a.secret) > 0
}

// CheckAPIKey compares in constant time; an unset key never matches.
func (a *AuthManager) CheckAPIKey(key string) bool {
	if a.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.apiKey), []byte(key)) == 1
}

// Mint signs a short lived operator token.
func (a *AuthManager) Mint(subject string) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := a.now()
	exp := now.Add(a.ttl)
	claims := OperatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Subject:   subject,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Authorize accepts "Authorization: Bearer <api key|jwt>".
func (a *AuthManager) Authorize(r *http.Request) error {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return errMissingToken
	}
	tok := strings.TrimSpace(hdr[7:])
	if a.CheckAPIKey(tok) {
		return nil
	}
	_, err := a.parse(tok)
	return err
}

func (a *AuthManager) parse(tok string) (*OperatorClaims, error) {
	if len(a.secret) == 0 {
		return nil, errInvalidToken
	}
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware rejects unauthenticated requests before they reach a handler.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, http.StatusForbidden, "admin api is not configured")
			return
		}
		if err := a.Authorize(r); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

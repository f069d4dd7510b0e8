// Package auth issues and checks admin API tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"igharvest/pkg/config"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const subjectContextKey contextKey = "subject"

// AdminSubject is the only principal the API knows about
const AdminSubject = "admin"

const issuer = "igharvest"

// Claims represents the JWT claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator checks the admin password and signs tokens
type Authenticator struct {
	secret        []byte
	password      string
	passwordHash  string
	tokenDuration time.Duration
	now           func() time.Time
}

// New creates an Authenticator. A password hash takes priority over a
// plain password when both are set.
func New(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret:        []byte(cfg.JWTSecret),
		password:      cfg.AdminPassword,
		passwordHash:  cfg.AdminPasswordHash,
		tokenDuration: cfg.TokenDuration,
		now:           time.Now,
	}
}

// CheckPassword reports whether password is the admin password
func (a *Authenticator) CheckPassword(password string) bool {
	if a.passwordHash != "" {
		return CheckPassword(password, a.passwordHash)
	}
	if a.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

// Login returns a signed token and its expiry when password matches
func (a *Authenticator) Login(password string) (string, time.Time, error) {
	if !a.CheckPassword(password) {
		return "", time.Time{}, fmt.Errorf("invalid credentials")
	}
	return a.GenerateToken(AdminSubject)
}

// GenerateToken creates a new JWT token
func (a *Authenticator) GenerateToken(subject string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.tokenDuration)

	claims := Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns its subject
func (a *Authenticator) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.Subject, nil
	}
	return "", fmt.Errorf("invalid token")
}

// Middleware rejects requests without a valid bearer token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeUnauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeUnauthorized(w, "Invalid authorization header format")
			return
		}

		subject, err := a.ValidateToken(parts[1])
		if err != nil {
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="igharvest"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, "{\"message\":%q}\n", msg)
}

// SubjectFromContext extracts the authenticated subject
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey).(string)
	return subject, ok
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

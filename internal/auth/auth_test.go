package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/config"
)

func testAuth() *Authenticator {
	return New(config.AuthConfig{
		JWTSecret:     "test-secret",
		AdminPassword: "hunter2",
		TokenDuration: time.Hour,
	})
}

func TestLogin(t *testing.T) {
	a := testAuth()
	fixed := time.Now().Truncate(time.Second)
	a.now = func() time.Time { return fixed }

	token, expiresAt, err := a.Login("hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, fixed.Add(time.Hour), expiresAt)

	subject, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, AdminSubject, subject)

	_, _, err = a.Login("wrong")
	assert.Error(t, err)
}

func TestPasswordHashTakesPriority(t *testing.T) {
	hash, err := HashPassword("from-hash")
	require.NoError(t, err)

	a := New(config.AuthConfig{
		JWTSecret:         "s",
		AdminPassword:     "plain",
		AdminPasswordHash: hash,
		TokenDuration:     time.Hour,
	})

	assert.True(t, a.CheckPassword("from-hash"))
	assert.False(t, a.CheckPassword("plain"))
}

func TestEmptyPasswordNeverMatches(t *testing.T) {
	a := New(config.AuthConfig{JWTSecret: "s", TokenDuration: time.Hour})
	assert.False(t, a.CheckPassword(""))
}

func TestValidateTokenRejects(t *testing.T) {
	a := testAuth()

	t.Run("expired", func(t *testing.T) {
		issued := time.Now().Add(-2 * time.Hour)
		a.now = func() time.Time { return issued }
		token, _, err := a.GenerateToken(AdminSubject)
		require.NoError(t, err)

		a.now = time.Now
		_, err = a.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("other secret", func(t *testing.T) {
		other := New(config.AuthConfig{JWTSecret: "other", TokenDuration: time.Hour})
		token, _, err := other.GenerateToken(AdminSubject)
		require.NoError(t, err)

		_, err = a.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: AdminSubject}})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = a.ValidateToken(signed)
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	a := testAuth()
	token, _, err := a.GenerateToken(AdminSubject)
	require.NoError(t, err)

	var gotSubject string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject, _ = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, AdminSubject, gotSubject)
}

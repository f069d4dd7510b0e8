package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"igharvest/internal/auth"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	auth    *auth.Authenticator
	limiter *ratelimit.KeyedLimiter
	logger  logger.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(a *auth.Authenticator, limiter *ratelimit.KeyedLimiter, log logger.Logger) *AuthHandler {
	return &AuthHandler{auth: a, limiter: limiter, logger: log}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if !h.limiter.Allow(ip) {
		wait := h.limiter.RetryAfter(ip)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		h.logger.WithField("ip", ip).Warn("login rate limit exceeded")
		writeMessage(w, http.StatusTooManyRequests, "Too many login attempts")
		return
	}

	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, expiresAt, err := h.auth.Login(req.Password)
	if err != nil {
		h.logger.WithField("ip", ip).Warn("failed login attempt")
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.limiter.Reset(ip)
	h.logger.WithField("ip", ip).Info("successful login")
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

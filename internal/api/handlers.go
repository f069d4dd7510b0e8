// Package api serves the admin JSON API and the harvest trigger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"igharvest/internal/harvest"
	"igharvest/internal/models"
	"igharvest/internal/store"
	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Store is what the API reads and writes
type Store interface {
	store.AdminStore
	CreateLog(ctx context.Context, accountID string, status models.LogStatus) (string, error)
}

// Harvester runs one harvest batch
type Harvester interface {
	Run(ctx context.Context) (*harvest.Summary, error)
}

// Handler holds the dependencies shared by every route
type Handler struct {
	store     Store
	harvester Harvester
	logger    logger.Logger
}

// NewHandler creates a Handler
func NewHandler(st Store, h Harvester, log logger.Logger) *Handler {
	return &Handler{store: st, harvester: h, logger: log}
}

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

// writeError maps typed errors onto HTTP statuses
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errs.TypeOf(err) {
	case errs.ErrorTypeValidation:
		status = http.StatusBadRequest
	case errs.ErrorTypeNotFound:
		status = http.StatusNotFound
	case errs.ErrorTypeAuth:
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		h.logger.WithError(err).ErrorWithFields("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		writeJSON(w, status, errorResponse{Message: "Internal server error", Error: err.Error()})
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return errs.Validation("request body is not valid JSON")
		}
		return errs.Validation("invalid request body: " + err.Error())
	}
	return nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

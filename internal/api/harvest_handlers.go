package api

import (
	"crypto/subtle"
	"net/http"
)

// TriggerSecretHeader carries the shared secret for /api/harvest
const TriggerSecretHeader = "x-harvest-secret"

// harvestFailedMessage is returned when a batch could not start
const harvestFailedMessage = "Error in Instagram scraper"

// requireTriggerSecret rejects requests without the shared secret. An
// empty secret disables the check.
func requireTriggerSecret(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(TriggerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeMessage(w, http.StatusUnauthorized, "invalid trigger secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// POST /api/harvest
func (h *Handler) runHarvest(w http.ResponseWriter, r *http.Request) {
	summary, err := h.harvester.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error(harvestFailedMessage)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Message: harvestFailedMessage,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

package api

import (
	"net/http"

	"igharvest/internal/models"
	errs "igharvest/pkg/errors"
)

// AccountRequest is the body of create and update calls
type AccountRequest struct {
	Username        string           `json:"username"`
	ProfileID       string           `json:"profile_id"`
	ScrapeFrequency models.Frequency `json:"scrape_frequency"`
	IsActive        *bool            `json:"is_active"`
	Notes           string           `json:"notes"`
}

// apply validates req and copies it onto a
func (req AccountRequest) apply(a *models.Account) error {
	username := models.SanitizeUsername(req.Username)
	if !models.IsValidUsername(username) {
		return errs.Validation("Invalid Instagram username format")
	}

	freq := req.ScrapeFrequency
	if freq == "" {
		freq = models.FrequencyDaily
	}
	if !freq.Valid() {
		return errs.Validation("scrape_frequency must be daily, weekly or monthly")
	}

	a.Username = username
	a.ProfileID = req.ProfileID
	a.ScrapeFrequency = freq
	a.Notes = req.Notes
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	return nil
}

// GET /api/accounts
func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []models.AccountWithLastLog{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// POST /api/accounts
func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account := &models.Account{IsActive: true}
	if err := req.apply(account); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.CreateAccount(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoWithFields("account added", map[string]interface{}{
		"account_id": account.ID,
		"username":   account.Username,
	})
	writeJSON(w, http.StatusCreated, account)
}

// GET /api/accounts/{id}
func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// PUT /api/accounts/{id}
func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.apply(account); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.UpdateAccount(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// PATCH /api/accounts/{id}/active
func (h *Handler) setAccountActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		h.writeError(w, r, errs.Validation("is_active is required"))
		return
	}

	id := r.PathValue("id")
	if err := h.store.SetAccountActive(r.Context(), id, *req.IsActive); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_active": *req.IsActive})
}

// DELETE /api/accounts/{id}
func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteAccount(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.WithField("account_id", id).Info("account deleted")
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/accounts/{id}/scrape records a queued log for the account.
// The next harvest run picks the account up according to its frequency.
func (h *Handler) queueScrape(w http.ResponseWriter, r *http.Request) {
	account, err := h.store.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	logID, err := h.store.CreateLog(r.Context(), account.ID, models.StatusQueued)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     logID,
		"status": models.StatusQueued,
	})
}

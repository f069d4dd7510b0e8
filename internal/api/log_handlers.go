package api

import (
	"net/http"
	"strconv"

	"igharvest/internal/models"
	errs "igharvest/pkg/errors"
)

// GET /api/logs?limit&offset&status&account_id
func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLogFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.store.ListLogs(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if page.Logs == nil {
		page.Logs = []models.ScrapingLog{}
	}
	writeJSON(w, http.StatusOK, page)
}

func parseLogFilter(r *http.Request) (models.LogFilter, error) {
	q := r.URL.Query()
	var f models.LogFilter

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errs.Validation("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errs.Validation("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	if v := q.Get("status"); v != "" && v != "all" {
		status := models.LogStatus(v)
		if !status.Valid() {
			return f, errs.Validation("unknown status " + strconv.Quote(v))
		}
		f.Status = status
	}
	f.AccountID = q.Get("account_id")

	return f.Normalize(), nil
}

// GET /api/dashboard
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.store.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if d.ActiveAccounts == nil {
		d.ActiveAccounts = []models.AccountWithLastLog{}
	}
	if d.RecentLogs == nil {
		d.RecentLogs = []models.ScrapingLog{}
	}
	writeJSON(w, http.StatusOK, d)
}

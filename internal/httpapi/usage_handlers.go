package httpapi

import (
	"net/http"
	"strings"

	"bookkeeper.org/internal/bookkeeper"
)

type recordUsageRequest struct {
	QuotaID    string  `json:"quota_id"`
	InstanceID string  `json:"instance_id"`
	Quantity   float64 `json:"quantity"`
	Status     string  `json:"status"`
}

type recordUsageResponse struct {
	Usage bookkeeper.Usage       `json:"usage"`
	Limit bookkeeper.LimitStatus `json:"limit"`
}

type retireUsageRequest struct {
	Status string `json:"status"`
}

func (a *API) handleUsagesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.recordUsage(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleUsageResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/usages/")

	if strings.HasSuffix(path, "/retire") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/retire"), "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.retireUsage(w, r, id)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) recordUsage(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req recordUsageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == "" {
		req.Status = bookkeeper.UsageStatusActive
	}

	usage, limit, err := a.svc.RecordUsage(r.Context(), c,
		strings.TrimSpace(req.QuotaID), strings.TrimSpace(req.InstanceID), req.Quantity, req.Status)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordUsageResponse{Usage: usage, Limit: limit})
}

func (a *API) retireUsage(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req retireUsageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	retired, err := a.svc.RetireUsage(r.Context(), c, id, strings.TrimSpace(req.Status))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retired)
}

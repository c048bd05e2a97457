package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"bookkeeper.org/internal/bookkeeper"
)

type quotaRequest struct {
	Name       string  `json:"name"`
	SoftLimit  float64 `json:"soft_limit"`
	HardLimit  float64 `json:"hard_limit"`
	Unit       string  `json:"unit"`
	CustomerID string  `json:"customer_id"`
	Subject    string  `json:"subject"`
}

func (q quotaRequest) toQuota(id string) bookkeeper.Quota {
	return bookkeeper.Quota{
		ID:         id,
		Name:       strings.TrimSpace(q.Name),
		SoftLimit:  q.SoftLimit,
		HardLimit:  q.HardLimit,
		Unit:       strings.TrimSpace(q.Unit),
		CustomerID: strings.TrimSpace(q.CustomerID),
		Subject:    strings.TrimSpace(q.Subject),
	}
}

type listQuotasResponse struct {
	Items []bookkeeper.QuotaUsage `json:"items"`
	Start int                     `json:"start"`
	Count int                     `json:"count"`
}

func (a *API) handleQuotasCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listQuotas(w, r)
	case http.MethodPost:
		a.createQuota(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleQuotaResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/quotas/")

	if strings.HasSuffix(id, "/status") {
		id = strings.TrimSuffix(strings.TrimSuffix(id, "/status"), "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.quotaStatus(w, r, id)
		return
	}

	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getQuota(w, r, id)
	case http.MethodPut:
		a.updateQuota(w, r, id)
	case http.MethodDelete:
		a.deleteQuota(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listQuotas(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var filter bookkeeper.QuotaFilter
	for _, s := range query["subject"] {
		s = strings.TrimSpace(s)
		if s != "" {
			filter.Subjects = append(filter.Subjects, s)
		}
	}
	filter.CustomerID = strings.TrimSpace(query.Get("customer_id"))

	page, err := parsePage(query.Get("start"), query.Get("count"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.svc.ListQuotasForCaller(r.Context(), c, filter, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	page = page.Clamp()
	writeJSON(w, http.StatusOK, listQuotasResponse{
		Items: items,
		Start: page.Start,
		Count: len(items),
	})
}

func (a *API) getQuota(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	q, err := a.svc.GetQuotaForCaller(r.Context(), c, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) quotaStatus(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	status, err := a.svc.Evaluate(r.Context(), c, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) createQuota(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req quotaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.svc.CreateQuota(r.Context(), c, req.toQuota(""))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/quotas/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) updateQuota(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req quotaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := a.svc.UpdateQuota(r.Context(), c, req.toQuota(id))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteQuota(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if err := a.svc.DeleteQuota(r.Context(), c, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func parsePage(startRaw, countRaw string) (bookkeeper.Page, error) {
	var page bookkeeper.Page
	if s := strings.TrimSpace(startRaw); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return page, errors.New("start must be a non-negative integer")
		}
		page.Start = v
	}
	if s := strings.TrimSpace(countRaw); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return page, errors.New("count must be a non-negative integer")
		}
		page.Count = v
	}
	return page, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bookkeeper.ErrInvalidQuota), errors.Is(err, bookkeeper.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, bookkeeper.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, bookkeeper.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, bookkeeper.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, bookkeeper.ErrTransient):
		writeError(w, r, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

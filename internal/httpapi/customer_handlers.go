package httpapi

import (
	"net/http"
	"strings"

	"bookkeeper.org/internal/bookkeeper"
)

type customerRequest struct {
	Subject   string `json:"subject"`
	Email     string `json:"email"`
	GivenName string `json:"given_name"`
	Surname   string `json:"surname"`
	Currency  string `json:"currency"`
}

type listCustomersResponse struct {
	Items []bookkeeper.CustomerAccount `json:"items"`
	Start int                          `json:"start"`
	Count int                          `json:"count"`
}

func (a *API) handleCustomersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listCustomers(w, r)
	case http.MethodPost:
		a.registerCustomer(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCustomerResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/customers/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getCustomer(w, r, id)
	case http.MethodDelete:
		a.removeCustomer(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) listCustomers(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r.URL.Query().Get("start"), r.URL.Query().Get("count"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.customers.List(r.Context(), c, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	page = page.Clamp()
	writeJSON(w, http.StatusOK, listCustomersResponse{
		Items: items,
		Start: page.Start,
		Count: len(items),
	})
}

func (a *API) registerCustomer(w http.ResponseWriter, r *http.Request) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	var req customerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.customers.Register(r.Context(), c, bookkeeper.Customer{
		Subject:   strings.TrimSpace(req.Subject),
		Email:     strings.TrimSpace(req.Email),
		GivenName: strings.TrimSpace(req.GivenName),
		Surname:   strings.TrimSpace(req.Surname),
		Currency:  strings.TrimSpace(req.Currency),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/customers/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	acct, err := a.customers.Get(r.Context(), c, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) removeCustomer(w http.ResponseWriter, r *http.Request, id string) {
	c, ok := caller(w, r)
	if !ok {
		return
	}
	if err := a.customers.Remove(r.Context(), c, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookkeeper.org/internal/auth"
	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/identity"
)

const adminSubject = "CN=urn:node:CN,DC=dataone,DC=org"

type testEnv struct {
	api    *API
	server *httptest.Server
	tokens *auth.Tokens
	store  *bookkeeper.InMemory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := bookkeeper.NewInMemory()
	resolver := identity.NewDirectory([]string{adminSubject}, identity.StaticMemberships{
		"S1": {"G1"},
	})
	coord := bookkeeper.NewCoordinator(
		bookkeeper.NewVisibilityEngine(store, resolver),
		bookkeeper.NewLifecycleManager(store, store, resolver),
		bookkeeper.NewUsageLedger(store, store),
	)
	registry := bookkeeper.NewCustomerRegistry(store, resolver)

	tokens, err := auth.NewTokens("test-secret", auth.WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	api := New(coord, registry, tokens, ReadyProbe{}, "test")
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &testEnv{api: api, server: server, tokens: tokens, store: store}
}

func (e *testEnv) request(t *testing.T, method, path, subject string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		token, _, err := e.tokens.Generate(subject)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestQuotasRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/v1/quotas", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestMintTokenAndCreateQuota(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/auth/token", "", map[string]string{"subject": adminSubject})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint token: %d", resp.StatusCode)
	}
	minted := decodeBody[map[string]any](t, resp)
	if minted["token"] == "" {
		t.Fatalf("expected token in response")
	}

	resp = env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 5000, "hard_limit": 10000, "unit": "megabyte",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create quota: %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc == "" {
		t.Fatalf("expected Location header")
	}
	created := decodeBody[bookkeeper.Quota](t, resp)
	if created.ID == "" || created.Name != "storage" {
		t.Fatalf("unexpected quota: %+v", created)
	}
}

func TestCreateQuotaForbiddenForNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPost, "/v1/quotas", "S1", map[string]any{
		"name": "storage", "soft_limit": 1, "hard_limit": 2, "unit": "gigabyte",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateQuotaValidationError(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 100, "hard_limit": 50, "unit": "gigabyte",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListQuotasSubjectIntersection(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []map[string]any{
		{"name": "storage", "soft_limit": 100, "hard_limit": 200, "unit": "gigabyte", "subject": "S1"},
		{"name": "storage", "soft_limit": 50, "hard_limit": 80, "unit": "gigabyte", "subject": "S2"},
	} {
		resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, q)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed quota: %d", resp.StatusCode)
		}
	}

	resp := env.request(t, http.MethodGet, "/v1/quotas?subject=S1&subject=S2", "S1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list quotas: %d", resp.StatusCode)
	}
	listed := decodeBody[listQuotasResponse](t, resp)
	if len(listed.Items) != 1 || listed.Items[0].Subject != "S1" {
		t.Fatalf("expected only the caller's quota, got %+v", listed.Items)
	}
}

func TestGetInvisibleQuotaReadsNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 1, "hard_limit": 2, "unit": "gigabyte", "subject": "S2",
	})
	created := decodeBody[bookkeeper.Quota](t, resp)

	resp = env.request(t, http.MethodGet, "/v1/quotas/"+created.ID, "S1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRecordUsageReturnsLimitStatus(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 5000, "hard_limit": 10000, "unit": "megabyte",
	})
	created := decodeBody[bookkeeper.Quota](t, resp)

	resp = env.request(t, http.MethodPost, "/v1/usages", adminSubject, map[string]any{
		"quota_id": created.ID, "instance_id": "x1", "quantity": 6000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record usage: %d", resp.StatusCode)
	}
	rec := decodeBody[recordUsageResponse](t, resp)
	if rec.Usage.Quantity != 6000 {
		t.Fatalf("unexpected usage: %+v", rec.Usage)
	}
	if rec.Limit.WithinSoftLimit || !rec.Limit.WithinHardLimit {
		t.Fatalf("expected soft breach with hard headroom: %+v", rec.Limit)
	}
}

func TestQuotaStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 5000, "hard_limit": 10000, "unit": "megabyte",
	})
	created := decodeBody[bookkeeper.Quota](t, resp)

	resp = env.request(t, http.MethodPost, "/v1/usages", adminSubject, map[string]any{
		"quota_id": created.ID, "instance_id": "x1", "quantity": 6000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record usage: %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, fmt.Sprintf("/v1/quotas/%s/status", created.ID), adminSubject, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("quota status: %d", resp.StatusCode)
	}
	status := decodeBody[bookkeeper.LimitStatus](t, resp)
	if status.Consumption != 6000 || status.WithinSoftLimit || !status.WithinHardLimit {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestRetireUsage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 10, "hard_limit": 20, "unit": "gigabyte",
	})
	created := decodeBody[bookkeeper.Quota](t, resp)

	resp = env.request(t, http.MethodPost, "/v1/usages", adminSubject, map[string]any{
		"quota_id": created.ID, "instance_id": "x1", "quantity": 5,
	})
	rec := decodeBody[recordUsageResponse](t, resp)

	resp = env.request(t, http.MethodPost, fmt.Sprintf("/v1/usages/%s/retire", rec.Usage.ID), adminSubject,
		map[string]string{"status": "inactive"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retire usage: %d", resp.StatusCode)
	}
	retired := decodeBody[bookkeeper.Usage](t, resp)
	if retired.Status != bookkeeper.UsageStatusInactive {
		t.Fatalf("unexpected status: %s", retired.Status)
	}
}

func TestCustomerLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/customers", adminSubject, map[string]string{
		"subject": "S1", "email": "jane@example.org",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register customer: %d", resp.StatusCode)
	}
	created := decodeBody[bookkeeper.Customer](t, resp)

	// Owner reads its own record.
	resp = env.request(t, http.MethodGet, "/v1/customers/"+created.ID, "S1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self read: %d", resp.StatusCode)
	}

	// Quota referencing the customer blocks deletion.
	resp = env.request(t, http.MethodPost, "/v1/quotas", adminSubject, map[string]any{
		"name": "storage", "soft_limit": 1, "hard_limit": 2, "unit": "gigabyte", "customer_id": created.ID,
	})
	quota := decodeBody[bookkeeper.Quota](t, resp)

	resp = env.request(t, http.MethodDelete, "/v1/customers/"+created.ID, adminSubject, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while quota remains, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodDelete, "/v1/quotas/"+quota.ID, adminSubject, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete quota: %d", resp.StatusCode)
	}
	resp = env.request(t, http.MethodDelete, "/v1/customers/"+created.ID, adminSubject, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete customer: %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodPut, "/v1/usages", adminSubject, map[string]string{})
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow == "" {
		t.Fatalf("expected Allow header")
	}
}

func TestRequestIDEchoedOnResponse(t *testing.T) {
	env := newTestEnv(t)
	resp := env.request(t, http.MethodGet, "/healthz", "", nil)
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
}

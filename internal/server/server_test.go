package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reliefmesh/reliefmesh-go/internal/cache"
	cachemem "github.com/reliefmesh/reliefmesh-go/internal/cache/memory"
	"github.com/reliefmesh/reliefmesh-go/internal/chat"
	"github.com/reliefmesh/reliefmesh-go/internal/config"
	"github.com/reliefmesh/reliefmesh-go/internal/fulfillment"
	"github.com/reliefmesh/reliefmesh-go/internal/identity"
	"github.com/reliefmesh/reliefmesh-go/internal/inventory"
	"github.com/reliefmesh/reliefmesh-go/internal/profile"
	"github.com/reliefmesh/reliefmesh-go/internal/realtime"
	"github.com/reliefmesh/reliefmesh-go/internal/request"
	storemem "github.com/reliefmesh/reliefmesh-go/internal/store/memory"
	"github.com/reliefmesh/reliefmesh-go/internal/supplier"
)

func newTestServer(t *testing.T, limiter cache.Counter) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Realtime.TicketSecret = "test-secret"

	backend := storemem.New()
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("init backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	auth := identity.NewUserAuth(4)
	sessions := identity.NewMemorySessionRepo()

	boot := identity.NewBootstrap(backend, auth, nil)
	if _, err := boot.Run(context.Background(), identity.SeededUser{
		Username: "overseer",
		Password: "overseer-pw",
	}, nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	requests := request.NewService(backend, nil)
	profiles := profile.NewService(backend, nil)
	ledger := inventory.NewService(backend, nil)
	matcher := supplier.NewMatcher(backend, nil, nil)
	coordinator := fulfillment.NewCoordinator(backend, ledger, requests, nil)
	threads := chat.NewService(backend, nil)

	hub := realtime.NewHub(nil)
	threads.SetNotifier(hub)
	tickets := realtime.NewTicketIssuer([]byte(cfg.Realtime.TicketSecret), cfg.Realtime.TicketTTL())
	channels := realtime.NewChannelServer(tickets, hub, threads, cfg.Realtime.ReplayLimit, nil)

	srv, err := New(Deps{
		Config:      cfg,
		Backend:     backend,
		Sessions:    sessions,
		Auth:        auth,
		Requests:    requests,
		Profiles:    profiles,
		Ledger:      ledger,
		Matcher:     matcher,
		Coordinator: coordinator,
		Threads:     threads,
		Hub:         hub,
		Tickets:     tickets,
		Channels:    channels,
		Limiter:     limiter,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		out = nil
	}
	return resp.StatusCode, out
}

func registerAndLogin(t *testing.T, base, username, role string) string {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, base+"/api/auth/register", "", map[string]any{
		"username": username,
		"password": "secret-pw",
		"role":     role,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", username, status, body)
	}

	status, body = doJSON(t, http.MethodPost, base+"/api/auth/login", "", map[string]any{
		"username": username,
		"password": "secret-pw",
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", username, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: no token in %v", username, body)
	}
	return token
}

func TestPublicAndProtectedPaths(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := doJSON(t, http.MethodGet, ts.URL+"/api/healthz", "", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz: status %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("healthz: body %v", body)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/site/pages/about", "", nil)
	if status != http.StatusOK {
		t.Fatalf("public page: status %d", status)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/requests", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("protected path without session: status %d, want 401", status)
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerAndLogin(t, ts.URL, "alice", identity.RoleRequester)

	status, body := doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d body %v", status, body)
	}
	if body["username"] != "alice" {
		t.Fatalf("me: body %v", body)
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout", token, nil)
	if status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/auth/me", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d, want 401", status)
	}
}

func TestRoleGates(t *testing.T) {
	ts := newTestServer(t, nil)
	requester := registerAndLogin(t, ts.URL, "alice", identity.RoleRequester)
	org := registerAndLogin(t, ts.URL, "relief-org", identity.RoleOrganization)

	// Organizations cannot open aid requests.
	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/requests", org, map[string]any{
		"category":    "Water",
		"urgency":     "high",
		"description": "drinking water for 40 people",
	})
	if status != http.StatusForbidden {
		t.Fatalf("org creating request: status %d, want 403", status)
	}

	status, body := doJSON(t, http.MethodPost, ts.URL+"/api/requests", requester, map[string]any{
		"category":    "Water",
		"urgency":     "high",
		"description": "drinking water for 40 people",
	})
	if status != http.StatusCreated {
		t.Fatalf("requester creating request: status %d body %v", status, body)
	}
	requestID, _ := body["id"].(string)
	if requestID == "" {
		t.Fatalf("create request: no id in %v", body)
	}

	// Requesters cannot attach as responders.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/responders", requester, nil)
	if status != http.StatusForbidden {
		t.Fatalf("requester attaching: status %d, want 403", status)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/responders", org, nil)
	if status != http.StatusOK {
		t.Fatalf("org attaching: status %d body %v", status, body)
	}
	if body["status"] != "ongoing" {
		t.Fatalf("request after attach: %v", body)
	}
}

func TestEndToEndSourcing(t *testing.T) {
	ts := newTestServer(t, nil)
	requester := registerAndLogin(t, ts.URL, "alice", identity.RoleRequester)
	org := registerAndLogin(t, ts.URL, "relief-org", identity.RoleOrganization)
	sup := registerAndLogin(t, ts.URL, "acme-water", identity.RoleSupplier)

	status, body := doJSON(t, http.MethodPost, ts.URL+"/api/requests", requester, map[string]any{
		"category":    "Water",
		"urgency":     "high",
		"description": "drinking water for 40 people",
	})
	if status != http.StatusCreated {
		t.Fatalf("create request: status %d body %v", status, body)
	}
	requestID := body["id"].(string)

	if status, body = doJSON(t, http.MethodPost, ts.URL+"/api/orgs", org, map[string]any{
		"name": "Relief Org",
	}); status != http.StatusCreated {
		t.Fatalf("create org profile: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/suppliers", sup, map[string]any{
		"name":                  "Acme Water",
		"deliveryEstimateHours": 12,
	})
	if status != http.StatusCreated {
		t.Fatalf("create supplier profile: status %d body %v", status, body)
	}
	supplierID := body["id"].(string)

	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/suppliers/"+supplierID+"/items", sup, map[string]any{
		"category": "Water",
		"name":     "Bottled water 1L",
		"quantity": 200,
	})
	if status != http.StatusCreated {
		t.Fatalf("create item: status %d body %v", status, body)
	}
	itemID := body["id"].(string)

	if status, body = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/responders", org, nil); status != http.StatusOK {
		t.Fatalf("attach org: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/api/suppliers/match?category=Water", org, nil)
	if status != http.StatusOK {
		t.Fatalf("match: status %d body %v", status, body)
	}
	if matches, ok := body["matches"].([]any); !ok || len(matches) != 1 {
		t.Fatalf("match: body %v", body)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/fulfillments", org, map[string]any{
		"supplierId":   supplierID,
		"itemId":       itemID,
		"requestedQty": 40,
	})
	if status != http.StatusCreated {
		t.Fatalf("create fulfillment: status %d body %v", status, body)
	}
	if body["warning"] != nil {
		t.Fatalf("unexpected stock warning: %v", body["warning"])
	}
	frID := body["fulfillment"].(map[string]any)["id"].(string)

	if status, body = doJSON(t, http.MethodPost, ts.URL+"/api/fulfillments/"+frID+"/accept", sup, map[string]any{}); status != http.StatusOK {
		t.Fatalf("accept: status %d body %v", status, body)
	}
	if status, body = doJSON(t, http.MethodPost, ts.URL+"/api/fulfillments/"+frID+"/dispatch", sup, map[string]any{}); status != http.StatusOK {
		t.Fatalf("dispatch: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/api/items/"+itemID, sup, nil)
	if status != http.StatusOK {
		t.Fatalf("get item: status %d", status)
	}
	if qty := body["quantity"].(float64); qty != 160 {
		t.Fatalf("quantity after dispatch = %v, want 160", qty)
	}

	if status, body = doJSON(t, http.MethodPost, ts.URL+"/api/fulfillments/"+frID+"/deliver", requester, map[string]any{}); status != http.StatusOK {
		t.Fatalf("deliver: status %d body %v", status, body)
	}

	status, body = doJSON(t, http.MethodGet, ts.URL+"/api/requests/"+requestID, requester, nil)
	if status != http.StatusOK {
		t.Fatalf("get request: status %d", status)
	}
	if body["status"] != "delivered" {
		t.Fatalf("request status after delivery = %v, want delivered", body["status"])
	}

	// Channel access follows participation.
	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/channel/messages", org, map[string]any{
		"body": "truck is on its way",
	})
	if status != http.StatusCreated {
		t.Fatalf("append message: status %d body %v", status, body)
	}

	outsider := registerAndLogin(t, ts.URL, "mallory", identity.RoleVolunteer)
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/channel/messages", outsider, map[string]any{
		"body": "hello",
	})
	if status != http.StatusForbidden {
		t.Fatalf("outsider append: status %d, want 403", status)
	}

	status, body = doJSON(t, http.MethodPost, ts.URL+"/api/requests/"+requestID+"/channel/ticket", org, nil)
	if status != http.StatusOK {
		t.Fatalf("ticket: status %d body %v", status, body)
	}
	if body["ticket"] == "" {
		t.Fatalf("ticket: body %v", body)
	}
}

func TestLoginRateLimit(t *testing.T) {
	limiter := cachemem.New(time.Minute, time.Minute)
	defer limiter.Close()

	ts := newTestServer(t, limiter)

	var last int
	for i := 0; i < 6; i++ {
		last, _ = doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]any{
			"username": "nobody",
			"password": fmt.Sprintf("guess-%d", i),
		})
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("6th login attempt: status %d, want 429", last)
	}
}

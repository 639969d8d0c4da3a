package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride/api/internal/ai"
	"stride/api/internal/config"
	"stride/api/internal/rbac"
	"stride/api/internal/store"
)

type fakeAI struct {
	out  json.RawMessage
	err  error
	last ai.Request
}

func (f *fakeAI) Complete(_ context.Context, req ai.Request) (json.RawMessage, error) {
	f.last = req
	return f.out, f.err
}

func newTestServer(t *testing.T, ms *memStore) (*HTTPServer, *Service) {
	t.Helper()
	svc := newTestService(t, ms)
	return NewHTTPServer(svc, &config.Config{}), svc
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, newMemStore())

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/health", "", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadyEndpoint(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decodeJSON(t, rr)["status"])

	ms.pingErr = errors.New("connection refused")
	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	payload := decodeJSON(t, rr)
	assert.Equal(t, "not_ready", payload["status"])
	checks := payload["checks"].(map[string]any)
	assert.Equal(t, "error", checks["database"].(map[string]any)["status"])
	assert.Equal(t, "ok", checks["sessions"].(map[string]any)["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	server, _ := newTestServer(t, newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestPreflightIsAnswered(t *testing.T) {
	server, _ := newTestServer(t, newMemStore())

	rr := doRequest(t, server.Handler(), http.MethodOptions, "/api/departments", "", "")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIsJSONNotFound(t *testing.T) {
	server, _ := newTestServer(t, newMemStore())

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/nope", "", "")

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decodeJSON(t, rr)["code"])
}

func TestRequestsWithoutValidSessionAreUnauthorized(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	inactive := ms.addUser("gone", rbac.RoleAdmin)
	inactive.Status = store.UserInactive
	ms.users["gone"] = inactive

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token"},
		{name: "garbage token", token: "not-a-jwt"},
		{name: "deactivated user", token: tokenFor(t, inactive)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server.Handler(), http.MethodPost, "/api/departments", tc.token, `{"name":"Ops"}`)
			require.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())
			assert.Equal(t, "UNAUTHORIZED", decodeJSON(t, rr)["code"])
		})
	}
	assert.Empty(t, ms.departments)
}

func TestEmployeeWriteEndpointsAreForbidden(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	token := tokenFor(t, ms.addUser("emp", rbac.RoleEmployee))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "create department", method: http.MethodPost, path: "/api/departments", body: `{"name":"Ops"}`},
		{name: "delete department", method: http.MethodDelete, path: "/api/departments/dep-1"},
		{name: "change role", method: http.MethodPut, path: "/api/users/other/role", body: `{"role":"ADMIN"}`},
		{name: "approve timesheet", method: http.MethodPost, path: "/api/timesheets/ts-1/approve", body: `{}`},
		{name: "approve pto", method: http.MethodPost, path: "/api/pto/pto-1/approve"},
		{name: "remove integration", method: http.MethodDelete, path: "/api/integrations/GIT"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server.Handler(), tc.method, tc.path, token, tc.body)
			require.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
			payload := decodeJSON(t, rr)
			assert.Equal(t, false, payload["success"])
			assert.Equal(t, "Unauthorized", payload["error"])
		})
	}
	assert.Empty(t, ms.auditActions())
}

func TestEmployeeAdminViewsAreForbidden(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	token := tokenFor(t, ms.addUser("emp", rbac.RoleEmployee))

	for _, path := range []string{"/api/departments", "/api/audit", "/api/users", "/api/audit/export.csv", "/api/dashboard/admin"} {
		t.Run(path, func(t *testing.T) {
			rr := doRequest(t, server.Handler(), http.MethodGet, path, token, "")
			require.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
			payload := decodeJSON(t, rr)
			assert.Equal(t, "FORBIDDEN", payload["code"])
			assert.Equal(t, "Unauthorized", payload["error"])
		})
	}
}

func TestCreateDepartmentOverHTTP(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	token := tokenFor(t, ms.addUser("admin", rbac.RoleAdmin))

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/departments", token, `{"name":"Ops"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeJSON(t, rr)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "Department created successfully", payload["message"])

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/departments", token, `{"name":"ops"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/departments", token, `{"name":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_BODY", decodeJSON(t, rr)["code"])

	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/departments", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decodeJSON(t, rr)["total"])
}

func TestDashboardPagesRedirect(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	employee := tokenFor(t, ms.addUser("emp", rbac.RoleEmployee))
	lead := tokenFor(t, ms.addUser("lead", rbac.RoleLead))

	tests := []struct {
		name     string
		path     string
		token    string
		location string
	}{
		{name: "anonymous goes to login", path: "/dashboard/admin", location: "/login?next=%2Fdashboard%2Fadmin"},
		{name: "employee sent home from admin", path: "/dashboard/admin", token: employee, location: "/dashboard/employee"},
		{name: "lead sent home from manager", path: "/dashboard/manager", token: lead, location: "/dashboard/lead"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, server.Handler(), http.MethodGet, tc.path, tc.token, "")
			require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
			assert.Equal(t, tc.location, rr.Header().Get("Location"))
		})
	}
}

func TestDashboardAPI(t *testing.T) {
	ms := newMemStore()
	server, _ := newTestServer(t, ms)
	employee := tokenFor(t, ms.addUser("emp", rbac.RoleEmployee))

	rr := doRequest(t, server.Handler(), http.MethodGet, "/api/dashboard/employee", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/dashboard/owner", employee, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/dashboard/employee", employee, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeJSON(t, rr)
	pto := payload["pto"].(map[string]any)
	assert.Equal(t, float64(20), pto["allowance"])
}

func TestAIHandlerOrder(t *testing.T) {
	ms := newMemStore()
	server, svc := newTestServer(t, ms)
	admin := tokenFor(t, ms.addUser("admin", rbac.RoleAdmin))
	employee := tokenFor(t, ms.addUser("emp", rbac.RoleEmployee))
	provider := &fakeAI{out: json.RawMessage(`{"summary":"ok","subtasks":[]}`)}
	path := "/api/ai/" + ai.FeatureTaskBreakdown
	valid := `{"taskTitle":"Ship billing"}`

	// Field validation comes before the session check.
	rr := doRequest(t, server.Handler(), http.MethodPost, path, "", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	payload := decodeJSON(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
	assert.Equal(t, "taskTitle is required", payload["error"])

	rr = doRequest(t, server.Handler(), http.MethodPost, path, "", valid)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodPost, path, employee, valid)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodPost, path, admin, valid)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "AI_UNAVAILABLE", decodeJSON(t, rr)["code"])

	ms.mu.Lock()
	ms.settings.AI.Enabled = true
	ms.settings.AI.Model = "gpt-test"
	ms.mu.Unlock()
	svc.ai = provider

	rr = doRequest(t, server.Handler(), http.MethodPost, path, admin, valid)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"summary":"ok","subtasks":[]}`, rr.Body.String())
	assert.Equal(t, "gpt-test", provider.last.Model)
	assert.Contains(t, provider.last.User, "Ship billing")

	provider.err = errors.New("upstream 502")
	rr = doRequest(t, server.Handler(), http.MethodPost, path, admin, valid)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	payload = decodeJSON(t, rr)
	assert.Equal(t, "AI_PROVIDER_ERROR", payload["code"])
	assert.Equal(t, "Failed to generate task breakdown", payload["error"])
}

func TestSignInSessionAndLogout(t *testing.T) {
	ms := newMemStore()
	server, svc := newTestServer(t, ms)
	hash, err := svc.passwords.HashPassword("correct-horse")
	require.NoError(t, err)
	user := ms.addUser("ana", rbac.RoleManager)
	user.PasswordHash = hash
	ms.users["ana"] = user

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", `{"email":"ana@example.com","password":"wrong-pass"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decodeJSON(t, rr)["code"])

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", `{"email":"ANA@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tokens))
	assert.Equal(t, "MANAGER", tokens.User.Role)

	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/auth/session", tokens.AccessToken, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["authenticated"])

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/auth/logout", tokens.AccessToken, `{"refreshToken":"`+tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/auth/me", tokens.AccessToken, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"`+tokens.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignInRejectsDeactivatedAccount(t *testing.T) {
	ms := newMemStore()
	server, svc := newTestServer(t, ms)
	hash, err := svc.passwords.HashPassword("correct-horse")
	require.NoError(t, err)
	user := ms.addUser("ana", rbac.RoleEmployee)
	user.PasswordHash = hash
	user.Status = store.UserInactive
	ms.users["ana"] = user

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", `{"email":"ana@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Account is deactivated", decodeJSON(t, rr)["error"])
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	svc := newTestService(t, newMemStore())
	server := NewHTTPServer(svc, &config.Config{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rr := doRequest(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, server.Handler(), http.MethodPost, "/api/auth/signin", "", `{}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", decodeJSON(t, rr)["code"])
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Health is outside the limited subrouters.
	rr = doRequest(t, server.Handler(), http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	svc := newTestService(t, newMemStore())
	server := NewHTTPServer(svc, &config.Config{RateLimitRPS: 0.001, RateLimitBurst: 1})
	h := server.Handler()

	limited := 0
	for i := range 20 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", bytes.NewBufferString(`{}`))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited)
}

func TestRateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	svc := newTestService(t, newMemStore())
	// httptest requests come from 192.0.2.1.
	server := NewHTTPServer(svc, &config.Config{RateLimitRPS: 0.001, RateLimitBurst: 1, TrustedProxies: "192.0.2.0/24"})
	h := server.Handler()

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", bytes.NewBufferString(`{}`))
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("198.51.100.1, 192.0.2.1"))
	assert.Equal(t, http.StatusBadRequest, send("198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
}

func TestClientIP(t *testing.T) {
	_, proxyNet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	proxies := trustedProxies{proxyNet}

	tests := []struct {
		name         string
		remote       string
		forwardedFor string
		want         string
	}{
		{name: "direct peer", remote: "198.51.100.9:4000", want: "198.51.100.9"},
		{name: "untrusted peer cannot forward", remote: "198.51.100.9:4000", forwardedFor: "203.0.113.5", want: "198.51.100.9"},
		{name: "trusted proxy forwards", remote: "10.1.1.1:4000", forwardedFor: "203.0.113.5, 10.1.1.1", want: "203.0.113.5"},
		{name: "trusted proxy with garbage header", remote: "10.1.1.1:4000", forwardedFor: "not-an-ip", want: "10.1.1.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tc.forwardedFor)
			}
			assert.Equal(t, tc.want, proxies.clientIP(req))
		})
	}
}

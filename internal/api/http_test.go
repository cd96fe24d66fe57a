package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_LoginAndCommand(t *testing.T) {
	f := newFixture(t)
	h := NewServer(f.svc).Routes()

	rec := doJSON(t, h, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "alicepass"})
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "standard", session.Role)
	require.NotEmpty(t, session.Token)

	rec = doJSON(t, h, http.MethodPost, "/command", session.Token, map[string][]string{"args": {"sadd", "tags", "a", "b"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result": 2}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/command", session.Token, map[string][]string{"args": {"set", "name", "opus"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result": {"status": "OK"}}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/keys/name", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key": "name", "kind": "string", "value": "opus"}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/keys/missing", session.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_Errors(t *testing.T) {
	f := newFixture(t)
	h := NewServer(f.svc).Routes()

	tests := []struct {
		name   string
		token  string
		args   []string
		status int
		code   string
	}{
		{"no token", "", []string{"get", "k"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown command", f.standard, []string{"hget", "k"}, http.StatusNotImplemented, "NOT_IMPLEMENTED"},
		{"bad arity", f.standard, []string{"get"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"admin only", f.standard, []string{"flush"}, http.StatusForbidden, "FORBIDDEN"},
		{"no backend", f.admin, []string{"flush"}, http.StatusPreconditionFailed, "INVALID_CONFIGURATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/command", tt.token, map[string][]string{"args": tt.args})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
		})
	}

	doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"set", "k", "x"}})
	rec := doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"lpush", "k", "y"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "longenough"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = doJSON(t, h, http.MethodGet, "/command", f.standard, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTP_LeaderRedirect(t *testing.T) {
	f := newFixture(t, WithCluster(&fakeCluster{leader: false, addr: "10.0.0.1:7000"}))
	h := NewServer(f.svc, WithHTTPPort("8081")).Routes()

	rec := doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"set", "k", "v"}})
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "http://10.0.0.1:8081/command", rec.Header().Get("Location"))

	rec = doJSON(t, h, http.MethodPost, "/join", f.admin, map[string]string{"id": "n3", "addr": "10.0.0.3:7000"})
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	// Reads are served by followers.
	rec = doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"exists", "k"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	noLeader := newFixture(t, WithCluster(&fakeCluster{}))
	rec = doJSON(t, NewServer(noLeader.svc).Routes(), http.MethodPost, "/command", noLeader.standard,
		map[string][]string{"args": {"set", "k", "v"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTP_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	for _, c := range f.store.Collectors() {
		require.NoError(t, reg.Register(c))
	}
	h := NewServer(f.svc, WithMetrics(f.store), WithRegistry(reg)).Routes()

	doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"set", "k", "v"}})

	rec := doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Keys       int               `json:"keys"`
		Operations map[string]uint64 `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Keys)
	assert.Equal(t, uint64(1), body.Operations["set"])

	rec = doJSON(t, h, http.MethodGet, "/metrics/prometheus", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `opus_operations_total{op="set"} 1`)
	assert.Contains(t, rec.Body.String(), "opus_keys 1")
}

func TestHTTP_Status(t *testing.T) {
	f := newFixture(t, WithCluster(&fakeCluster{leader: true, addr: "10.0.0.1:7000"}))
	h := NewServer(f.svc).Routes()

	rec := doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"rpush", "q", "a"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/command", f.standard, map[string][]string{"args": {"set", "k", "v"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"leader": "10.0.0.1:7000", "is_leader": true, "keys": 2}`, rec.Body.String())
}

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antigcast/antigcast/automod/engine"
	"github.com/antigcast/antigcast/automod/rulestore"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "sekrit"

func testServer(t *testing.T) (*Server, *rulestore.CountingRuleStore) {
	eng, store := engine.EngineTestFixture()
	srv := &Server{Engine: eng, logger: slog.Default()}
	srv.setupAPI(":0", testToken, prometheus.NewRegistry())
	return srv, store
}

func doRequest(srv *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/_health", "", false)
	assert.Equal(http.StatusOK, rec.Code)
	var status GenericStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(GenericStatus{Daemon: "antigcast", Status: "ok"}, status)
}

func TestAdminAuth(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/admin/chats/-1001", "", false)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	var status GenericStatus
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal("error", status.Status)

	req := httptest.NewRequest(http.MethodGet, "/admin/chats/-1001", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/admin/chats/-1001", "", true)
	assert.Equal(http.StatusOK, rec.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	eng, _ := engine.EngineTestFixture()
	srv := &Server{Engine: eng, logger: slog.Default()}
	srv.setupAPI(":0", "", prometheus.NewRegistry())

	rec := doRequest(srv, http.MethodGet, "/admin/chats/-1001", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminEditChat(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/admin/chats/-1001", "", true)
	require.Equal(http.StatusOK, rec.Code)
	var view ChatView
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(int64(-1001), view.ChatID)
	assert.False(view.Enabled)
	assert.Empty(view.Denylist)

	rec = doRequest(srv, http.MethodPut, "/admin/chats/-1001/enabled", `{"enabled": true}`, true)
	require.Equal(http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodPost, "/admin/chats/-1001/terms/deny", `{"term": " VCS "}`, true)
	require.Equal(http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodPost, "/admin/chats/-1001/terms/allow", `{"term": "spamfree"}`, true)
	require.Equal(http.StatusOK, rec.Code)

	view = ChatView{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(view.Enabled)
	assert.Equal([]string{"vcs"}, view.Denylist)
	assert.Equal([]string{"spamfree"}, view.Allowlist)

	rec = doRequest(srv, http.MethodDelete, "/admin/chats/-1001/terms/allow", `{"term": "spamfree"}`, true)
	require.Equal(http.StatusOK, rec.Code)
	view = ChatView{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(view.Allowlist)

	// changes are visible to classification right away
	rec = doRequest(srv, http.MethodPost, "/admin/chats/-1001/classify", `{"text": "join our vcs now"}`, true)
	require.Equal(http.StatusOK, rec.Code)
	var d engine.Decision
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(engine.Decision{Suppress: true, Reason: engine.ReasonDenylisted}, d)
}

func TestAdminBadRequests(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	assert.Equal(http.StatusBadRequest, doRequest(srv, http.MethodGet, "/admin/chats/abc", "", true).Code)
	assert.Equal(http.StatusBadRequest, doRequest(srv, http.MethodPut, "/admin/chats/1/enabled", `{}`, true).Code)
	assert.Equal(http.StatusBadRequest, doRequest(srv, http.MethodPost, "/admin/chats/1/terms/block", `{"term": "x"}`, true).Code)
	assert.Equal(http.StatusBadRequest, doRequest(srv, http.MethodPost, "/admin/chats/1/terms/deny", `{"term": "   "}`, true).Code)
}

func TestAdminStaleWrite(t *testing.T) {
	assert := assert.New(t)
	srv, store := testServer(t)

	store.SetWriteErr(errors.New("connection refused"))
	rec := doRequest(srv, http.MethodPost, "/admin/chats/1/terms/deny", `{"term": "vcs"}`, true)
	assert.Equal(http.StatusServiceUnavailable, rec.Code)

	store.SetWriteErr(nil)
	rec = doRequest(srv, http.MethodGet, "/admin/chats/1", "", true)
	var view ChatView
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(view.Denylist)
}

func TestAdminClassifyDuplicate(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	assert.Equal(http.StatusOK, doRequest(srv, http.MethodPut, "/admin/chats/7/enabled", `{"enabled": true}`, true).Code)

	var first, second engine.Decision
	assert.NoError(json.Unmarshal(doRequest(srv, http.MethodPost, "/admin/chats/7/classify", `{"text": "hello"}`, true).Body.Bytes(), &first))
	assert.NoError(json.Unmarshal(doRequest(srv, http.MethodPost, "/admin/chats/7/classify", `{"text": "hello"}`, true).Body.Bytes(), &second))
	assert.False(first.Suppress)
	assert.Equal(engine.Decision{Suppress: true, Reason: engine.ReasonDuplicate}, second)
}

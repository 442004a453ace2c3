package server_test

import (
	"bufio"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/stratgate/sessions"
	"github.com/stretchr/testify/require"
)

func TestGateway_ForwardsWithUserCredential(t *testing.T) {
	f := setupTestFixture(t, nil)
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs?status=open&page=2", nil), snapshot(time.Hour))
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("X-Admin-Token", "forged")
	req.Header.Set("X-Chat-User-Id", "someone-else")
	req.Header.Set("Authorization", "Bearer forged")

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, readBody(t, resp))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Empty(t, resp.Cookies(), "a valid session is not rewritten")

	got := f.lastOriginRequest(t)
	require.Equal(t, http.MethodGet, got.method)
	require.Equal(t, "/api/jobs?status=open&page=2", got.uri)
	require.Equal(t, "Bearer access-1", got.header.Get("Authorization"))
	require.Equal(t, "user-1", got.header.Get("X-Chat-User-Id"))
	require.Empty(t, got.header.Get("X-Admin-Token"))
	require.Equal(t, "kept", got.header.Get("X-Custom"))
	require.NotEqual(t, "example.com", got.host)
	require.Equal(t, "theme=dark", got.header.Get("Cookie"))
}

func TestGateway_NoSessionIsUnauthorizedWithoutContactingOrigin(t *testing.T) {
	f := setupTestFixture(t, nil)

	resp := f.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.JSONEq(t, `{"error":"unauthorized"}`, readBody(t, resp))
	f.requireCleared(t, resp)
	require.Empty(t, f.originRequests())
}

func TestGateway_PartialSessionIsNoSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.AddCookie(&http.Cookie{Name: f.names.AccessToken, Value: "access-1"})

	resp := f.do(req)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	f.requireCleared(t, resp)
	require.Empty(t, f.originRequests())
}

func TestGateway_RefreshIsWrittenBack(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.provider.RefreshResult = &sessions.Snapshot{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    fixedNow.Add(time.Hour).Unix(),
		UserID:       "user-1",
		Email:        "trader@example.com",
	}
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(10*time.Second))

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, f.provider.RefreshCalls())
	require.Equal(t, []string{"refresh-1"}, f.provider.RefreshTokens())
	require.Equal(t, "Bearer access-2", f.lastOriginRequest(t).header.Get("Authorization"))

	cookies := cookiesByName(resp)
	require.Equal(t, "access-2", cookies[f.names.AccessToken].Value)
	require.Equal(t, 3600, cookies[f.names.AccessToken].MaxAge)
	require.Equal(t, "refresh-2", cookies[f.names.RefreshToken].Value)
	require.True(t, cookies[f.names.RefreshToken].HttpOnly)
}

func TestGateway_OriginCannotOverwriteSessionCookies(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.provider.RefreshResult = &sessions.Snapshot{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    fixedNow.Add(time.Hour).Unix(),
		UserID:       "user-1",
		Email:        "trader@example.com",
	}
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sg_refresh_token", Value: "origin-planted", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "sg_sid", Value: "origin-sid", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "theme", Value: "dark", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(10*time.Second))

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshLines int
	for _, c := range resp.Cookies() {
		if c.Name == f.names.RefreshToken {
			refreshLines++
		}
	}
	require.Equal(t, 1, refreshLines)
	cookies := cookiesByName(resp)
	require.Equal(t, "refresh-2", cookies[f.names.RefreshToken].Value)
	require.Equal(t, "access-2", cookies[f.names.AccessToken].Value)
	require.NotContains(t, cookies, "sg_sid")
	require.Equal(t, "dark", cookies["theme"].Value)
}

func TestGateway_RefreshIsKeptWhenOriginFails(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.provider.RefreshResult = &sessions.Snapshot{
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		ExpiresAt:    fixedNow.Add(time.Hour).Unix(),
		UserID:       "user-1",
	}
	f.origin.Close()
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(0))

	resp := f.do(req)

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "refresh-2", cookiesByName(resp)[f.names.RefreshToken].Value)
}

func TestGateway_RefreshRejectedClearsSession(t *testing.T) {
	f := setupTestFixture(t, nil)
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(10*time.Second))

	resp := f.do(req)

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	f.requireCleared(t, resp)
	require.Empty(t, f.originRequests())
}

func TestGateway_RefreshFailureIsInternalError(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.provider.RefreshErr = errors.New("dial tcp: connection refused")
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(10*time.Second))

	resp := f.do(req)

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"error":"internal error"}`, readBody(t, resp))
	require.Empty(t, resp.Cookies(), "a crashed refresh must not wipe the session")
	require.Empty(t, f.originRequests())
}

func TestGateway_AuthDisabledUsesServiceToken(t *testing.T) {
	f := setupTestFixture(t, map[string]string{"AUTH_ENABLED": "false", "ADMIN_TOKEN": "svc-token"})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer user-supplied")
	req.Header.Set("X-Chat-User-Id", "user-supplied")

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := f.lastOriginRequest(t)
	require.Equal(t, "svc-token", got.header.Get("X-Admin-Token"))
	require.Empty(t, got.header.Get("Authorization"))
	require.Empty(t, got.header.Get("X-Chat-User-Id"))
	require.Zero(t, f.provider.RefreshCalls())
}

func TestGateway_AuthDisabledIgnoresSessionCookies(t *testing.T) {
	f := setupTestFixture(t, map[string]string{"AUTH_ENABLED": "false", "ADMIN_TOKEN": "svc-token"})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour))

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := f.lastOriginRequest(t)
	require.Equal(t, "svc-token", got.header.Get("X-Admin-Token"))
	require.Empty(t, got.header.Get("Authorization"))
}

func TestGateway_Misconfigured(t *testing.T) {
	t.Run("auth disabled without service token", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{"AUTH_ENABLED": "false"})

		resp := f.do(httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.JSONEq(t, `{"error":"gateway misconfigured"}`, readBody(t, resp))
		require.Empty(t, f.originRequests())
	})

	t.Run("no origin", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{"API_ORIGIN": ""})
		req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour))

		resp := f.do(req)

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.JSONEq(t, `{"error":"gateway misconfigured"}`, readBody(t, resp))
	})
}

func TestGateway_ForwardsBody(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"job-9"}`)
	})
	req := f.withSession(httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"prompt":"x"}`)), snapshot(time.Hour))
	req.Header.Set("Content-Type", "application/json")

	resp := f.do(req)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"id":"job-9"}`, readBody(t, resp))
	got := f.lastOriginRequest(t)
	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, `{"prompt":"x"}`, got.body)
	require.Equal(t, "application/json", got.header.Get("Content-Type"))
}

func TestGateway_OriginStatusIsRelayed(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=600")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"no such job"}`)
	})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil), snapshot(time.Hour))

	resp := f.do(req)

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.JSONEq(t, `{"detail":"no such job"}`, readBody(t, resp))
}

func TestGateway_DecodesCompressedResponses(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, "plain text body")
		_ = gz.Close()
	})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/report", nil), snapshot(time.Hour))
	req.Header.Set("Accept-Encoding", "br")

	resp := f.do(req)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Content-Encoding"))
	require.Empty(t, resp.Header.Get("Content-Length"))
	require.Equal(t, "plain text body", readBody(t, resp))
	require.Equal(t, "gzip", f.lastOriginRequest(t).header.Get("Accept-Encoding"))
}

func TestGateway_DoesNotFollowRedirects(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/old" {
			http.Redirect(w, r, "/api/new", http.StatusFound)
			return
		}
		_, _ = io.WriteString(w, "followed")
	})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/old", nil), snapshot(time.Hour))

	resp := f.do(req)

	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/api/new", resp.Header.Get("Location"))
	require.Len(t, f.originRequests(), 1)
}

func TestGateway_HopByHopHeadersDropped(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "X-Origin-Hop")
		w.Header().Set("X-Origin-Hop", "1")
		w.Header().Set("X-Origin-End", "1")
		_, _ = io.WriteString(w, "ok")
	})
	req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour))
	req.Header.Set("Connection", "X-Client-Hop")
	req.Header.Set("X-Client-Hop", "1")
	req.Header.Set("Proxy-Authorization", "Basic xyz")

	resp := f.do(req)

	got := f.lastOriginRequest(t)
	require.Empty(t, got.header.Get("X-Client-Hop"))
	require.Empty(t, got.header.Get("Proxy-Authorization"))
	require.Empty(t, resp.Header.Get("X-Origin-Hop"))
	require.Equal(t, "1", resp.Header.Get("X-Origin-End"))
}

func TestGateway_RequestIDIsForwardedAndEchoed(t *testing.T) {
	f := setupTestFixture(t, nil)

	t.Run("generated", func(t *testing.T) {
		resp := f.do(f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour)))

		id := resp.Header.Get("X-Request-ID")
		require.NotEmpty(t, id)
		require.Equal(t, id, f.lastOriginRequest(t).header.Get("X-Request-ID"))
	})

	t.Run("inbound kept", func(t *testing.T) {
		req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour))
		req.Header.Set("X-Request-ID", "req-42")

		resp := f.do(req)

		require.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
		require.Equal(t, "req-42", f.lastOriginRequest(t).header.Get("X-Request-ID"))
	})

	t.Run("origin echo is not duplicated", func(t *testing.T) {
		f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
			w.WriteHeader(http.StatusOK)
		})
		req := f.withSession(httptest.NewRequest(http.MethodGet, "/api/jobs", nil), snapshot(time.Hour))
		req.Header.Set("X-Request-ID", "req-43")

		resp := f.do(req)

		require.Equal(t, []string{"req-43"}, resp.Header.Values("X-Request-ID"))
	})
}

func TestGateway_StreamsEventStreamLive(t *testing.T) {
	f := setupTestFixture(t, nil)
	release := make(chan struct{})
	f.setOriginHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"token\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
			_, _ = io.WriteString(w, "data: {\"token\":\"second\"}\n\n")
		case <-time.After(3 * time.Second):
			_, _ = io.WriteString(w, "data: {\"token\":\"buffered\"}\n\n")
		}
	})
	gateway := httptest.NewServer(f.server)
	defer gateway.Close()

	req, err := http.NewRequest(http.MethodGet, gateway.URL+"/api/generate", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(f.withSession(req, snapshot(time.Hour)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "data: {\"token\":\"first\"}\n", line)

	close(release)
	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "\ndata: {\"token\":\"second\"}\n\n", string(rest))
}

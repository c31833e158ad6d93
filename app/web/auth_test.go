package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bcrypt hash for "testpass"
const testPasswordHash = "$2y$10$qOIpGITktzktHpcnWXiow.penxJmMcapV3G2ZRQaK0QRW7BSmAuJG" //nolint:gosec // test password hash

func TestServer_Authentication(t *testing.T) {
	server := newTestServer(t, Config{PasswordHash: testPasswordHash})
	handler := server.routes()

	t.Run("admin routes without auth return 401", func(t *testing.T) {
		for _, tc := range []struct{ method, path string }{
			{"GET", "/api/applications"},
			{"GET", "/api/applications/1"},
			{"DELETE", "/api/applications/1"},
			{"DELETE", "/api/applications"},
			{"GET", "/api/stats"},
			{"GET", "/metrics"},
		} {
			rec := doRequest(t, handler, tc.method, tc.path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
		}
	})

	t.Run("public routes stay open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, doRequest(t, handler, "GET", "/api/health", "").Code)
		assert.Equal(t, http.StatusOK, doRequest(t, handler, "GET", "/api/schema", "").Code)
		assert.Equal(t, http.StatusCreated, doRequest(t, handler, "POST", "/api/applications", validBody).Code)
	})

	t.Run("with wrong basic auth returns 401", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/applications", http.NoBody)
		req.SetBasicAuth("admin", "wrongpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("with wrong basic auth user returns 401", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/applications", http.NoBody)
		req.SetBasicAuth("root", "testpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("with correct basic auth returns 200", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/applications", http.NoBody)
		req.SetBasicAuth("admin", "testpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Jane Doe")
	})

	t.Run("with valid cookie returns 200", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stats", http.NoBody)
		req.AddCookie(&http.Cookie{Name: authCookieName, Value: server.generateAuthToken()})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("with invalid cookie returns 401", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stats", http.NoBody)
		req.AddCookie(&http.Cookie{Name: authCookieName, Value: "forged"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestServer_NoPasswordLeavesAdminOpen(t *testing.T) {
	server := newTestServer(t, Config{})
	handler := server.routes()

	assert.Equal(t, http.StatusOK, doRequest(t, handler, "GET", "/api/applications", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, handler, "GET", "/metrics", "").Code)
	// login endpoints are not registered without password
	assert.NotEqual(t, http.StatusOK, doRequest(t, handler, "POST", "/api/login", `{"password":"x"}`).Code)
}

func TestServer_handleLogin(t *testing.T) {
	server := newTestServer(t, Config{PasswordHash: testPasswordHash})
	handler := server.routes()

	login := func(body, contentType, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("json login sets cookie", func(t *testing.T) {
		rec := login(`{"password":"testpass"}`, "application/json", "10.0.1.1:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Logged in"}`, rec.Body.String())

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, authCookieName, cookies[0].Name)
		assert.Equal(t, server.generateAuthToken(), cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 7*24*60*60, cookies[0].MaxAge)

		// cookie opens admin api
		req := httptest.NewRequest("GET", "/api/applications", http.NoBody)
		req.AddCookie(cookies[0])
		listRec := httptest.NewRecorder()
		handler.ServeHTTP(listRec, req)
		assert.Equal(t, http.StatusOK, listRec.Code)
	})

	t.Run("form login", func(t *testing.T) {
		rec := login("password=testpass", "application/x-www-form-urlencoded", "10.0.1.2:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, rec.Result().Cookies(), 1)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := login(`{"password":"RAJDEEP07"}`, "application/json", "10.0.1.3:1234")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid password"}`, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("empty password", func(t *testing.T) {
		rec := login(`{"password":""}`, "application/json", "10.0.1.4:1234")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Password is required"}`, rec.Body.String())
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := login(`{"password":`, "application/json", "10.0.1.5:1234")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cross-site login blocked", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"testpass"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		req.RemoteAddr = "10.0.1.6:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestServer_handleLogout(t *testing.T) {
	server := newTestServer(t, Config{PasswordHash: testPasswordHash})
	rec := doRequest(t, server.routes(), "POST", "/api/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, authCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestServer_CSRFProtection(t *testing.T) {
	server := newTestServer(t, Config{PasswordHash: testPasswordHash})
	handler := server.routes()

	t.Run("cross-site delete blocked", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/applications", http.NoBody)
		req.Header.Set("Sec-Fetch-Site", "cross-site")
		req.SetBasicAuth("admin", "testpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("same-origin delete allowed", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/api/applications", http.NoBody)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		req.SetBasicAuth("admin", "testpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("cross-site GET allowed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stats", http.NoBody)
		req.Header.Set("Origin", "https://evil.com")
		req.SetBasicAuth("admin", "testpass")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_LoginRateLimiting(t *testing.T) {
	server := newTestServer(t, Config{PasswordHash: testPasswordHash})
	handler := server.routes()

	var limited bool
	for attempts := 0; attempts < 10; attempts++ {
		req := httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"wrongpass"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			assert.Contains(t, rec.Body.String(), "Too many requests")
			limited = true
			break
		}
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.True(t, limited, "login attempts should be rate limited")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/cookieauth"
	"github.com/panyam/cookieauth/config"
	"github.com/panyam/cookieauth/stores"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Listen:      "127.0.0.1:0",
		BaseURL:     "http://demo.test",
		AuthPath:    "/api/auth",
		TokenSecret: "serve-test-secret-0123456789",
		Storage:     config.StorageConfig{Kind: config.StorageMemory},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func noRedirects(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

func TestApp(t *testing.T) {
	cfg := testConfig(t)
	driver, closeDriver, err := openDriver(context.Background(), cfg)
	require.NoError(t, err)
	defer closeDriver()
	driver.HashCost = bcrypt.MinCost
	driver.AutoConfirm = true
	_, err = driver.CreateEmailUser(context.Background(), "demo@example.com", "secret")
	require.NoError(t, err)

	a, err := newApp(cfg, driver)
	require.NoError(t, err)
	srv := httptest.NewServer(a.router)
	defer srv.Close()
	httpClient := &http.Client{CheckRedirect: noRedirects}

	t.Run("home page signed out", func(t *testing.T) {
		resp, err := httpClient.Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "Signed out.")
		assert.Contains(t, string(body), `action="/api/auth/login"`)
	})

	t.Run("protected page redirects", func(t *testing.T) {
		resp, err := httpClient.Get(srv.URL + "/me")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "http://demo.test/?callbackURL=%2Fme", resp.Header.Get("Location"))
	})

	t.Run("unknown auth route", func(t *testing.T) {
		resp, err := httpClient.Get(srv.URL + "/api/auth/nope")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Empty(t, body)
	})

	t.Run("sign in", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]any{"email": "demo@example.com", "password": "secret"})
		resp, err := httpClient.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		var envelope cookieauth.Envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		resp.Body.Close()
		require.Nil(t, envelope.Error)

		var session *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == cookieauth.DefaultSessionCookieName {
				session = c
			}
		}
		require.NotNil(t, session)

		for _, path := range []string{"/me", "/"} {
			req, _ := http.NewRequest(http.MethodGet, srv.URL+path, nil)
			req.AddCookie(session)
			resp, err := httpClient.Do(req)
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
			assert.Contains(t, strings.ToLower(string(body)), "signed in as", path)
		}
	})
}

func TestIdentityProviders(t *testing.T) {
	cfg := testConfig(t)
	driver := stores.NewDriver(stores.NewMemoryBackend())
	assert.Empty(t, identityProviders(cfg, driver))

	cfg.Google = config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}
	idps := identityProviders(cfg, driver)
	require.Contains(t, idps, "google")
	assert.Equal(t, "id", idps["google"].Config.ClientID)
	assert.Equal(t, []string{"google"}, enabledProviders(cfg))
}

func TestRunServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runServe(ctx, cfg))
}

package sfrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/forcekit/forcekit/pkg/config"
	"github.com/forcekit/forcekit/pkg/credentials"
	httpclient "github.com/forcekit/forcekit/pkg/http"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testCredentials() *credentials.Credentials {
	return &credentials.Credentials{
		Username:      "user@example.com",
		Password:      "hunter2",
		SecurityToken: "SECTOK",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
	}
}

func testClient(t *testing.T, loginURL string, creds *credentials.Credentials) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.LoginURL = loginURL
	return NewWithLogger(cfg, creds, zap.NewNop())
}

func TestAuthenticateSuccess(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/services/oauth2/token", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-1","instance_url":%q,"token_type":"Bearer"}`, "https://example.my.salesforce.com")
	}))
	defer server.Close()

	creds := testCredentials()
	client := testClient(t, server.URL, creds)

	require.NoError(t, client.Authenticate(context.Background()))

	assert.Equal(t, "password", form["grant_type"])
	assert.Equal(t, "user@example.com", form["username"])
	assert.Equal(t, "hunter2SECTOK", form["password"], "the security token is appended to the password")
	assert.Equal(t, "client-id", form["client_id"])
	assert.Equal(t, "client-secret", form["client_secret"])

	assert.Equal(t, "tok-1", creds.AccessToken)
	assert.Equal(t, "https://example.my.salesforce.com", creds.InstanceURL)
	assert.Equal(t, "tok-1", client.session.token())
}

func TestAuthenticateMissingFieldFailsFast(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
	}))
	defer server.Close()

	creds := testCredentials()
	creds.SecurityToken = ""
	client := testClient(t, server.URL, creds)

	err := client.Authenticate(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, credentials.ErrMissingCredential))
	assert.Contains(t, err.Error(), "security_token")
	assert.Equal(t, int32(0), callCount.Load(), "no request is made with incomplete credentials")
}

func TestAuthenticateRejectedGrant(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"authentication failure"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, testCredentials())

	err := client.Authenticate(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
	var apiErr *httpclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int32(1), callCount.Load(), "a rejected grant is not retried")
	assert.Empty(t, client.session.token())
}

func TestAuthenticate401IsFatal(t *testing.T) {
	// Even a session-expiry error code on the token endpoint must not
	// trigger a nested authentication.
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`[{"errorCode":"INVALID_SESSION_ID"}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, testCredentials())

	err := client.Authenticate(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
	assert.Equal(t, int32(1), callCount.Load())
}

func TestAuthenticatePersistsTokenToStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-9","instance_url":"https://example.my.salesforce.com"}`))
	}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	record := `{
  "username": "user@example.com",
  "password": "hunter2",
  "security_token": "SECTOK",
  "client_id": "client-id",
  "client_secret": "client-secret",
  "note": "keep me"
}`
	require.NoError(t, afero.WriteFile(fs, "/creds.json", []byte(record), 0o600))
	store := credentials.NewFileStoreFS(fs, "/creds.json")

	client := testClient(t, server.URL, nil)
	require.NoError(t, client.LoadCredentials(context.Background(), store))
	require.NoError(t, client.Authenticate(context.Background()))

	raw, err := afero.ReadFile(fs, "/creds.json")
	require.NoError(t, err)
	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "tok-9", saved["access_token"])
	assert.Equal(t, "https://example.my.salesforce.com", saved["instance_url"])
	assert.Equal(t, "keep me", saved["note"], "unrelated fields survive the merge")
	assert.Equal(t, "hunter2", saved["password"])
}

func TestHeadersBuiltLazilyAndCached(t *testing.T) {
	var authCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","instance_url":"https://example.my.salesforce.com"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, testCredentials())

	first, err := client.headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", first["Authorization"])
	assert.Equal(t, "application/json", first["Content-Type"])
	assert.Equal(t, "application/json", first["Accept"])
	assert.Equal(t, "gzip", first["Accept-Encoding"])

	second, err := client.headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), authCalls.Load(), "cached headers must not re-authenticate")
}

func TestSessionTokenChangeInvalidatesHeaders(t *testing.T) {
	s := &session{}
	s.setToken("tok-1", "https://example.my.salesforce.com")
	s.cacheHeaders(map[string]string{"Authorization": "Bearer tok-1"})
	require.NotNil(t, s.cachedHeaders())

	s.setToken("tok-2", "https://example.my.salesforce.com")

	assert.Nil(t, s.cachedHeaders(), "a token change must clear the cached headers")
	assert.Equal(t, "tok-2", s.token())
}

func TestSessionRefusesHeadersWithoutToken(t *testing.T) {
	s := &session{}
	s.cacheHeaders(map[string]string{"Authorization": "Bearer ghost"})

	assert.Nil(t, s.cachedHeaders(), "headers are never cached without an access token")
}

func TestSessionCachedHeadersAreCopies(t *testing.T) {
	s := &session{}
	s.setToken("tok-1", "https://example.my.salesforce.com")
	s.cacheHeaders(map[string]string{"Authorization": "Bearer tok-1"})

	leaked := s.cachedHeaders()
	leaked["Authorization"] = "Bearer tampered"

	assert.Equal(t, "Bearer tok-1", s.cachedHeaders()["Authorization"])
}

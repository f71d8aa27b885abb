package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// authHarness wires an AuthManager against a fake backend. Gateway and
// manager share the KV store so stored tokens ride on outgoing requests.
type authHarness struct {
	auth *AuthManager
	kv   kvstore.Store
	bus  *bus.Bus
}

func newAuthHarness(t *testing.T, handler http.Handler) *authHarness {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := newTestKV()
	b := newTestBus()
	gateway := clients.NewGateway(config.APIConfig{
		BaseURL:       srv.URL,
		Timeout:       5 * time.Second,
		RetryAttempts: 1,
		RetryBase:     time.Millisecond,
	}, kv, logger.Discard())

	return &authHarness{
		auth: NewAuthManager(gateway, kv, b, logger.Discard()),
		kv:   kv,
		bus:  b,
	}
}

func authBackend(validStatus int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login", "/auth/register":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"token":   "tok-abc",
				"user":    map[string]any{"email": "dev@example.com", "tier": "pro"},
			})
		case "/auth/validate":
			if validStatus != http.StatusOK {
				http.Error(w, `{"message":"token expired"}`, validStatus)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/auth/logout":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
}

func TestLoginStoresSession(t *testing.T) {
	ctx := context.Background()
	h := newAuthHarness(t, authBackend(http.StatusOK))
	events := collectEvents(t, h.bus, models.TopicAuthStateChanged)

	user, err := h.auth.Login(ctx, "dev@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user["email"])

	assert.True(t, h.auth.IsAuthenticated(ctx))
	current := h.auth.CurrentUser(ctx)
	require.NotNil(t, current)
	assert.Equal(t, "pro", current["tier"])

	require.Eventually(t, func() bool {
		select {
		case payload := <-events:
			evt := payload.(models.AuthStateEvent)
			return evt.IsAuthenticated && evt.User["email"] == "dev@example.com"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLoginValidatesInput(t *testing.T) {
	ctx := context.Background()
	h := newAuthHarness(t, authBackend(http.StatusOK))

	_, err := h.auth.Login(ctx, "", "pw")
	assert.Equal(t, errdomain.KindValidation, errdomain.KindOf(err))

	_, err = h.auth.Register(ctx, "Dev", "dev@example.com", "")
	assert.Equal(t, errdomain.KindValidation, errdomain.KindOf(err))
}

func TestLoginFailureSurfacesAuthError(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
	})
	h := newAuthHarness(t, handler)

	_, err := h.auth.Login(ctx, "dev@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, errdomain.KindAuthentication, errdomain.KindOf(err))
	assert.False(t, h.auth.IsAuthenticated(ctx))
}

func TestLogoutAlwaysClearsLocalSession(t *testing.T) {
	ctx := context.Background()

	// Server-side logout fails; the local session still goes away.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok-abc", "user": map[string]any{}})
		default:
			http.Error(w, `{"message":"unavailable"}`, http.StatusInternalServerError)
		}
	})
	h := newAuthHarness(t, handler)

	_, err := h.auth.Login(ctx, "dev@example.com", "hunter2")
	require.NoError(t, err)

	require.NoError(t, h.auth.Logout(ctx))
	assert.False(t, h.auth.IsAuthenticated(ctx))
	assert.Nil(t, h.auth.CurrentUser(ctx))
}

func TestCheckSessionExpiresDeadToken(t *testing.T) {
	ctx := context.Background()
	h := newAuthHarness(t, authBackend(http.StatusUnauthorized))
	require.NoError(t, h.kv.Put(ctx, authTokenKey, "stale-token", nil))
	events := collectEvents(t, h.bus, models.TopicAuthStateChanged)

	valid, err := h.auth.CheckSession(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.False(t, h.auth.IsAuthenticated(ctx))

	require.Eventually(t, func() bool {
		select {
		case payload := <-events:
			evt := payload.(models.AuthStateEvent)
			return !evt.IsAuthenticated && evt.User == nil
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestCheckSessionValidToken(t *testing.T) {
	ctx := context.Background()
	h := newAuthHarness(t, authBackend(http.StatusOK))
	require.NoError(t, h.kv.Put(ctx, authTokenKey, "live-token", nil))

	valid, err := h.auth.CheckSession(ctx)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.True(t, h.auth.IsAuthenticated(ctx))
}

func TestCheckSessionWithoutToken(t *testing.T) {
	ctx := context.Background()
	h := newAuthHarness(t, authBackend(http.StatusOK))

	valid, err := h.auth.CheckSession(ctx)
	require.NoError(t, err)
	assert.False(t, valid)
}

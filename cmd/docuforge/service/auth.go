package service

import (
	"context"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

const (
	authTokenKey = "auth_token"
	userDataKey  = "user_data"
)

// AuthManager owns the session token and the cached user profile. The
// token lives in the key-value plane under authTokenKey, which is also
// where the API gateway reads it from when stamping requests.
type AuthManager struct {
	gateway *clients.Gateway
	kv      kvstore.Store
	bus     *bus.Bus
	log     *logger.Logger
}

// NewAuthManager creates the session manager.
func NewAuthManager(gateway *clients.Gateway, kv kvstore.Store, b *bus.Bus, log *logger.Logger) *AuthManager {
	return &AuthManager{
		gateway: gateway,
		kv:      kv,
		bus:     b,
		log:     log.WithService("AuthManager"),
	}
}

// Login authenticates and persists the session.
func (a *AuthManager) Login(ctx context.Context, email, password string) (map[string]any, error) {
	if email == "" || password == "" {
		return nil, errdomain.New(errdomain.KindValidation, "email and password are required")
	}

	resp, err := a.gateway.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errdomain.New(errdomain.KindAuthentication, "login response carried no token")
	}

	if err := a.storeSession(ctx, resp.Token, resp.User); err != nil {
		return nil, err
	}

	a.log.Info("user logged in", "email", email)
	a.emitAuthState(ctx, true, resp.User)
	return resp.User, nil
}

// Register creates an account and logs the user in.
func (a *AuthManager) Register(ctx context.Context, name, email, password string) (map[string]any, error) {
	if name == "" || email == "" || password == "" {
		return nil, errdomain.New(errdomain.KindValidation, "name, email and password are required")
	}

	resp, err := a.gateway.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errdomain.New(errdomain.KindAuthentication, "registration response carried no token")
	}

	if err := a.storeSession(ctx, resp.Token, resp.User); err != nil {
		return nil, err
	}

	a.log.Info("user registered", "email", email)
	a.emitAuthState(ctx, true, resp.User)
	return resp.User, nil
}

// Logout drops the session. Server-side invalidation is best-effort; the
// local session is always cleared.
func (a *AuthManager) Logout(ctx context.Context) error {
	if err := a.gateway.Logout(ctx); err != nil {
		a.log.Warn("server-side logout failed", "error", err)
	}
	if err := a.clearSession(ctx); err != nil {
		return err
	}
	a.log.Info("user logged out")
	a.emitAuthState(ctx, false, nil)
	return nil
}

// IsAuthenticated reports whether a token is stored. It does not contact
// the server; use CheckSession for a server-verified answer.
func (a *AuthManager) IsAuthenticated(ctx context.Context) bool {
	var token string
	found, err := a.kv.Get(ctx, authTokenKey, &token)
	return err == nil && found && token != ""
}

// CurrentUser returns the cached profile, or nil when logged out.
func (a *AuthManager) CurrentUser(ctx context.Context) map[string]any {
	var user map[string]any
	found, err := a.kv.Get(ctx, userDataKey, &user)
	if err != nil || !found {
		return nil
	}
	return user
}

// CheckSession validates the stored token with the server. An invalid or
// expired token clears the session and announces the signed-out state.
func (a *AuthManager) CheckSession(ctx context.Context) (bool, error) {
	if !a.IsAuthenticated(ctx) {
		return false, nil
	}

	valid, err := a.gateway.ValidateToken(ctx)
	if err != nil {
		if errdomain.KindOf(err) == errdomain.KindAuthentication {
			a.expireSession(ctx)
			return false, nil
		}
		return false, err
	}
	if !valid {
		a.expireSession(ctx)
		return false, nil
	}
	return true, nil
}

func (a *AuthManager) expireSession(ctx context.Context) {
	a.log.Info("session expired, clearing stored credentials")
	if err := a.clearSession(ctx); err != nil {
		a.log.Warn("clearing expired session failed", "error", err)
	}
	a.emitAuthState(ctx, false, nil)
}

func (a *AuthManager) storeSession(ctx context.Context, token string, user map[string]any) error {
	if err := a.kv.Put(ctx, authTokenKey, token, nil); err != nil {
		return errdomain.Wrap(errdomain.KindFile, "store auth token", err)
	}
	if user != nil {
		if err := a.kv.Put(ctx, userDataKey, user, nil); err != nil {
			return errdomain.Wrap(errdomain.KindFile, "store user profile", err)
		}
	}
	return nil
}

func (a *AuthManager) clearSession(ctx context.Context) error {
	if err := a.kv.Remove(ctx, authTokenKey); err != nil {
		return err
	}
	return a.kv.Remove(ctx, userDataKey)
}

func (a *AuthManager) emitAuthState(ctx context.Context, authenticated bool, user map[string]any) {
	_ = a.bus.Publish(ctx, models.TopicAuthStateChanged, models.AuthStateEvent{
		IsAuthenticated: authenticated,
		User:            user,
		Timestamp:       models.NowMillis(),
	})
}

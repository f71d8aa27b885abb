package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
)

// AuthHandler exposes session management over HTTP.
type AuthHandler struct {
	c *container.Container
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(c *container.Container) *AuthHandler {
	return &AuthHandler{c: c}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates against the backend.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	user, err := h.c.Auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"user": user})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account.
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	user, err := h.c.Auth.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"user": user})
}

// Logout drops the session.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.c.Auth.Logout(c.Request().Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"loggedOut": true})
}

// Session reports the current authentication state, validating the stored
// token against the backend.
// GET /api/v1/auth/session
func (h *AuthHandler) Session(c echo.Context) error {
	ctx := c.Request().Context()
	valid, err := h.c.Auth.CheckSession(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	resp := map[string]any{"isAuthenticated": valid}
	if valid {
		resp["user"] = h.c.Auth.CurrentUser(ctx)
	}
	return c.JSON(http.StatusOK, resp)
}

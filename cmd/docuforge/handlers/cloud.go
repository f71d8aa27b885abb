package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
)

// CloudHandler exposes cloud provider integration over HTTP.
type CloudHandler struct {
	c *container.Container
}

// NewCloudHandler creates a new cloud handler.
func NewCloudHandler(c *container.Container) *CloudHandler {
	return &CloudHandler{c: c}
}

// AuthURL returns the provider consent URL.
// GET /api/v1/cloud/:provider/auth-url
func (h *CloudHandler) AuthURL(c echo.Context) error {
	state := c.QueryParam("state")
	if state == "" {
		state = uuid.NewString()
	}
	url, err := h.c.Cloud.AuthURL(c.Param("provider"), state)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url, "state": state})
}

type callbackRequest struct {
	Code string `json:"code"`
}

// Callback completes the OAuth flow with the consent code.
// POST /api/v1/cloud/:provider/callback
func (h *CloudHandler) Callback(c echo.Context) error {
	var req callbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	if err := h.c.Cloud.CompleteAuth(c.Request().Context(), c.Param("provider"), req.Code); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"connected": true})
}

type cloudUploadRequest struct {
	FileID string `json:"fileId"`
	Folder string `json:"folder"`
}

// Upload pushes a stored file to the provider.
// POST /api/v1/cloud/:provider/upload
func (h *CloudHandler) Upload(c echo.Context) error {
	var req cloudUploadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	result, err := h.c.Cloud.Upload(c.Request().Context(), c.Param("provider"), req.FileID, req.Folder)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type cloudDownloadRequest struct {
	RemoteID string `json:"remoteId"`
	Name     string `json:"name"`
}

// Download pulls a remote file into the file plane.
// POST /api/v1/cloud/:provider/download
func (h *CloudHandler) Download(c echo.Context) error {
	var req cloudDownloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	result, err := h.c.Cloud.Download(c.Request().Context(), c.Param("provider"), req.RemoteID, req.Name)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// List enumerates remote files.
// GET /api/v1/cloud/:provider/list?folder=
func (h *CloudHandler) List(c echo.Context) error {
	entries, err := h.c.Cloud.List(c.Request().Context(), c.Param("provider"), c.QueryParam("folder"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

type folderRequest struct {
	FolderPath string `json:"folderPath"`
}

// CreateFolder creates a remote folder.
// POST /api/v1/cloud/:provider/folder
func (h *CloudHandler) CreateFolder(c echo.Context) error {
	var req folderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	result, err := h.c.Cloud.CreateFolder(c.Request().Context(), c.Param("provider"), req.FolderPath)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Revoke disconnects a provider.
// POST /api/v1/cloud/:provider/revoke
func (h *CloudHandler) Revoke(c echo.Context) error {
	if err := h.c.Cloud.Revoke(c.Request().Context(), c.Param("provider")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"revoked": true})
}

// Status reports whether a provider has a stored token.
// GET /api/v1/cloud/:provider/status
func (h *CloudHandler) Status(c echo.Context) error {
	connected := h.c.Cloud.IsConnected(c.Request().Context(), c.Param("provider"))
	return c.JSON(http.StatusOK, map[string]bool{"connected": connected})
}

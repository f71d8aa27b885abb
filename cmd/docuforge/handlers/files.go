package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/models"
	"github.com/docuforge/docuforge/common/validation"
)

// FileHandler exposes the file plane over HTTP.
type FileHandler struct {
	c *container.Container
}

// NewFileHandler creates a new file handler.
func NewFileHandler(c *container.Container) *FileHandler {
	return &FileHandler{c: c}
}

// uploadOptions bounds uploads by the configured file-size cap.
func uploadOptions(cfg config.StorageConfig) validation.Options {
	opts := validation.DefaultOptions()
	if cfg.MaxFileSize > 0 {
		opts.MaxSize = cfg.MaxFileSize
	}
	return opts
}

// Upload validates a multipart file and hands it to the file plane.
// POST /api/v1/files
func (h *FileHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "file field is required"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "unreadable upload"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "unreadable upload"})
	}

	mimeType := fh.Header.Get("Content-Type")
	result := h.c.Validator.Validate(fh.Filename, mimeType, data, uploadOptions(h.c.Components.Config.Storage))
	if !result.IsValid {
		_ = h.c.Components.Bus.Publish(c.Request().Context(), models.TopicFileValidationError, result)
		return c.JSON(http.StatusUnprocessableEntity, result)
	}

	ctx := c.Request().Context()
	if err := h.c.Components.Bus.Publish(ctx, models.TopicFileUploaded, models.FileUploadedEvent{
		Blob: models.Blob{Data: data, MimeType: mimeType},
		Metadata: models.FileMetadata{
			Name:     fh.Filename,
			MimeType: mimeType,
		},
	}); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"accepted":   true,
		"validation": result,
	})
}

// List returns every stored file, newest first.
// GET /api/v1/files
func (h *FileHandler) List(c echo.Context) error {
	listings, err := h.c.Storage.GetAllFiles(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"files": listings})
}

// Metadata returns only the metadata of one file.
// GET /api/v1/files/:id/metadata
func (h *FileHandler) Metadata(c echo.Context) error {
	meta, err := h.c.Storage.GetFileMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	if meta == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "File not found"})
	}
	return c.JSON(http.StatusOK, meta)
}

// Download streams the blob back.
// GET /api/v1/files/:id/download
func (h *FileHandler) Download(c echo.Context) error {
	file, err := h.c.Storage.GetFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	if file == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "File not found"})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+file.Metadata.Name+`"`)
	return c.Blob(http.StatusOK, file.Blob.MimeType, file.Blob.Data)
}

// UpdateMetadata applies a merge patch to one file's metadata.
// PATCH /api/v1/files/:id/metadata
func (h *FileHandler) UpdateMetadata(c echo.Context) error {
	var patch map[string]any
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid patch body"})
	}

	meta, err := h.c.Storage.UpdateMetadata(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, meta)
}

// Delete removes one file.
// DELETE /api/v1/files/:id
func (h *FileHandler) Delete(c echo.Context) error {
	if err := h.c.Storage.DeleteFile(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

// Clear removes every stored file via the orchestrator.
// POST /api/v1/files/clear
func (h *FileHandler) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	listings, err := h.c.Storage.GetAllFiles(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}

	if err := h.c.Components.Bus.Publish(ctx, models.TopicClearAllFilesRequested, models.ClearAllFilesEvent{
		FileCount: len(listings),
	}); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]any{"accepted": true, "fileCount": len(listings)})
}

// Analyze inspects a stored PDF without mutating it.
// GET /api/v1/files/:id/analysis
func (h *FileHandler) Analyze(c echo.Context) error {
	file, err := h.c.Storage.GetFile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": err.Error()})
	}
	if file == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "File not found"})
	}

	analysis := h.c.Analyzer.Analyze(file.Blob)
	return c.JSON(http.StatusOK, map[string]any{
		"analysis":    analysis,
		"recommended": h.c.Analyzer.RecommendedSettings(analysis),
	})
}

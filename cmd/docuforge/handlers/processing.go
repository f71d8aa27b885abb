package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuforge/docuforge/cmd/docuforge/container"
	"github.com/docuforge/docuforge/cmd/docuforge/service"
	"github.com/docuforge/docuforge/common/errdomain"
)

// ProcessingHandler exposes the processing services over HTTP. Requests
// run synchronously; progress streams out over the bus while the request
// is in flight.
type ProcessingHandler struct {
	c *container.Container
}

// NewProcessingHandler creates a new processing handler.
func NewProcessingHandler(c *container.Container) *ProcessingHandler {
	return &ProcessingHandler{c: c}
}

type compressRequest struct {
	FileID  string                     `json:"fileId"`
	FileIDs []string                   `json:"fileIds"`
	Options service.CompressionOptions `json:"options"`
}

// Compress runs single or batch compression.
// POST /api/v1/process/compress
func (h *ProcessingHandler) Compress(c echo.Context) error {
	var req compressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	ctx := c.Request().Context()
	if len(req.FileIDs) > 1 {
		result, err := h.c.Compression.CompressBatch(ctx, req.FileIDs, req.Options)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, result)
	}

	fileID := req.FileID
	if fileID == "" && len(req.FileIDs) == 1 {
		fileID = req.FileIDs[0]
	}
	result, err := h.c.Compression.Compress(ctx, fileID, req.Options)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type convertRequest struct {
	FileID  string                    `json:"fileId"`
	Options service.ConversionOptions `json:"options"`
}

// Convert runs a format conversion.
// POST /api/v1/process/convert
func (h *ProcessingHandler) Convert(c echo.Context) error {
	var req convertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	result, err := h.c.Conversion.Convert(c.Request().Context(), req.FileID, req.Options)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// ConvertPreview estimates conversion cost without converting.
// GET /api/v1/process/convert/:id/preview?format=docx
func (h *ProcessingHandler) ConvertPreview(c echo.Context) error {
	preview, err := h.c.Conversion.Preview(c.Request().Context(), c.Param("id"), c.QueryParam("format"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, preview)
}

type ocrRequest struct {
	FileID  string             `json:"fileId"`
	Options service.OCROptions `json:"options"`
}

// OCR extracts text from a stored PDF.
// POST /api/v1/process/ocr
func (h *ProcessingHandler) OCR(c echo.Context) error {
	var req ocrRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	result, err := h.c.OCR.Recognize(c.Request().Context(), req.FileID, req.Options)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type aiRequest struct {
	FileID  string            `json:"fileId"`
	Options service.AIOptions `json:"options"`
}

// AI summarizes or translates a stored PDF.
// POST /api/v1/process/ai
func (h *ProcessingHandler) AI(c echo.Context) error {
	var req aiRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	result, err := h.c.AI.Process(c.Request().Context(), req.FileID, req.Options)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type cancelRequest struct {
	Service     string `json:"service"`
	OperationID string `json:"operationId"`
}

// Cancel aborts an in-flight operation. Cancelling a finished operation
// reports cancelled=false.
// POST /api/v1/process/cancel
func (h *ProcessingHandler) Cancel(c echo.Context) error {
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}

	ctx := c.Request().Context()
	var cancelled bool
	switch req.Service {
	case h.c.Compression.Name():
		cancelled = h.c.Compression.Cancel(ctx, req.OperationID)
	case h.c.Conversion.Name():
		cancelled = h.c.Conversion.Cancel(ctx, req.OperationID)
	case h.c.OCR.Name():
		cancelled = h.c.OCR.Cancel(ctx, req.OperationID)
	case h.c.AI.Name():
		cancelled = h.c.AI.Cancel(ctx, req.OperationID)
	case h.c.Cloud.Name():
		cancelled = h.c.Cloud.Cancel(ctx, req.OperationID)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "unknown service"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// errorResponse maps the error taxonomy onto HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch errdomain.KindOf(err) {
	case errdomain.KindValidation:
		status = http.StatusBadRequest
	case errdomain.KindAuthentication:
		status = http.StatusUnauthorized
	case errdomain.KindAuthorization:
		status = http.StatusForbidden
	case errdomain.KindFile, errdomain.KindNotSupported:
		status = http.StatusUnprocessableEntity
	case errdomain.KindQuota:
		status = http.StatusTooManyRequests
	case errdomain.KindTimeout:
		status = http.StatusGatewayTimeout
	case errdomain.KindNetwork:
		status = http.StatusBadGateway
	case errdomain.KindCancelled:
		status = http.StatusConflict
	}
	if err == errdomain.ErrBusy {
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]string{"message": err.Error()})
}

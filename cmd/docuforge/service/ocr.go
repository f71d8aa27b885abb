package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// OCROptions select recognition language and output shape.
type OCROptions struct {
	Language      string `json:"language,omitempty"`
	Quality       string `json:"quality,omitempty"`
	SearchablePDF bool   `json:"searchablePdf,omitempty"`
}

// OCRResult carries the recognized text and, when requested, the id of the
// stored searchable-PDF derivative.
type OCRResult struct {
	OperationID     string `json:"operationId"`
	FileID          string `json:"fileId"`
	Text            string `json:"text"`
	Language        string `json:"language"`
	SearchablePDFID string `json:"searchablePdfId,omitempty"`
}

// OCR extracts text from scanned PDFs through the backend.
type OCR struct {
	*Base
	gateway *clients.Gateway
	storage *Storage
	crypto  *cryptox.Provider
	log     *logger.Logger
}

// NewOCR creates the OCR service.
func NewOCR(gateway *clients.Gateway, storage *Storage, crypto *cryptox.Provider, b *bus.Bus, log *logger.Logger) *OCR {
	return &OCR{
		Base:    NewBase("OCRService", 50, b, log),
		gateway: gateway,
		storage: storage,
		crypto:  crypto,
		log:     log.WithService("OCRService"),
	}
}

// Recognize runs the primary operation over one stored file.
func (o *OCR) Recognize(ctx context.Context, fileID string, opts OCROptions) (*OCRResult, error) {
	if err := o.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := o.operation(ctx, operationID)
	result, err := o.recognize(opCtx, operationID, fileID, opts)
	release()
	err = o.opError(err)
	o.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "recognize",
		FileIDs:   []string{fileID},
		Options:   map[string]any{"language": opts.Language, "quality": opts.Quality},
	}
	if err != nil {
		entry.Error = err.Error()
		o.RecordHistory(entry)
		o.EmitError(ctx, operationID, err, "recognize")
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	o.RecordHistory(entry)
	o.EmitComplete(ctx, operationID, result, "Text recognition complete")
	return result, nil
}

func (o *OCR) recognize(ctx context.Context, operationID, fileID string, opts OCROptions) (*OCRResult, error) {
	o.EmitProgress(ctx, operationID, 0, "Starting text recognition", nil)

	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.Quality == "" {
		opts.Quality = "standard"
	}

	file, err := o.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	o.EmitProgress(ctx, operationID, 20, "Uploading document", nil)

	text, err := o.gateway.ExtractText(ctx, file.Metadata.Name, file.Blob.Data, map[string]string{
		"language": opts.Language,
		"quality":  opts.Quality,
	})
	if err != nil {
		return nil, err
	}

	result := &OCRResult{
		OperationID: operationID,
		FileID:      fileID,
		Text:        text,
		Language:    opts.Language,
	}

	if opts.SearchablePDF {
		o.EmitProgress(ctx, operationID, 60, "Building searchable PDF", nil)
		searchableID, err := o.buildSearchablePDF(ctx, operationID, file, opts)
		if err != nil {
			return nil, err
		}
		result.SearchablePDFID = searchableID
	}

	o.EmitProgress(ctx, operationID, 100, "Text recognition complete", nil)
	return result, nil
}

// buildSearchablePDF runs the server-job pipeline to produce a PDF with an
// embedded text layer and stores it as a processed derivative.
func (o *OCR) buildSearchablePDF(ctx context.Context, operationID string, file *models.FileRecord, opts OCROptions) (string, error) {
	sealed, err := o.crypto.Encrypt(file.Blob.Data)
	if err != nil {
		return "", errdomain.Wrap(errdomain.KindSecurity, "encrypt upload", err)
	}

	jobID, err := o.gateway.UploadEncrypted(ctx, file.Metadata.Name, sealed.Ciphertext, sealed.Key, sealed.IV, map[string]any{
		"operation":  "ocr",
		"language":   opts.Language,
		"searchable": true,
	})
	if err != nil {
		return "", err
	}

	if _, err := o.gateway.WaitForJob(ctx, jobID, func(pct int) {
		o.EmitProgress(ctx, operationID, 60+pct*30/100, "Processing on server", nil)
	}); err != nil {
		return "", err
	}

	data, err := o.gateway.DownloadJob(ctx, jobID)
	if err != nil {
		return "", err
	}

	searchableID := uuid.NewString()
	if err := o.storage.SaveFile(ctx, searchableID, models.Blob{Data: data, MimeType: "application/pdf"}, models.FileMetadata{
		Name:           file.Metadata.Name,
		Type:           models.FileTypeProcessed,
		MimeType:       "application/pdf",
		OriginalFileID: file.ID,
		ProcessingType: models.ProcessingOCR,
	}); err != nil {
		return "", err
	}
	return searchableID, nil
}

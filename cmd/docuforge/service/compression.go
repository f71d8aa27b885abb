package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

var compressionLevels = map[string]bool{
	"low": true, "medium": true, "high": true, "maximum": true,
}

// CompressionOptions are user-chosen compression settings. Zero values are
// filled from the analyzer's recommendation.
type CompressionOptions struct {
	CompressionLevel string `json:"compressionLevel,omitempty"`
	ImageQuality     int    `json:"imageQuality,omitempty"`
	ServerProcessing bool   `json:"serverProcessing,omitempty"`
}

// CompressionResult is the outcome of one compression.
type CompressionResult struct {
	OperationID      string  `json:"operationId"`
	FileID           string  `json:"fileId"`
	ProcessedFileID  string  `json:"processedFileId"`
	OriginalSize     int64   `json:"originalSize"`
	CompressedSize   int64   `json:"compressedSize"`
	CompressionRatio float64 `json:"compressionRatio"`
	ReductionPercent float64 `json:"reductionPercent"`
	CompressionLevel string  `json:"compressionLevel"`
	ImageQuality     int     `json:"imageQuality"`
}

// BatchCompressionResult aggregates an ordered batch run.
type BatchCompressionResult struct {
	SuccessCount int                  `json:"successCount"`
	FailCount    int                  `json:"failCount"`
	Results      []*CompressionResult `json:"results"`
	Errors       []string             `json:"errors,omitempty"`
}

// Compression reduces PDF size through the backend, recording a processed
// derivative for every success.
type Compression struct {
	*Base
	gateway  *clients.Gateway
	analyzer *Analyzer
	storage  *Storage
	crypto   *cryptox.Provider
	log      *logger.Logger
}

// NewCompression creates the compression service.
func NewCompression(gateway *clients.Gateway, analyzer *Analyzer, storage *Storage, crypto *cryptox.Provider, b *bus.Bus, log *logger.Logger) *Compression {
	return &Compression{
		Base:     NewBase("CompressionService", 50, b, log),
		gateway:  gateway,
		analyzer: analyzer,
		storage:  storage,
		crypto:   crypto,
		log:      log.WithService("CompressionService"),
	}
}

// Compress runs the primary operation over one stored file.
func (c *Compression) Compress(ctx context.Context, fileID string, opts CompressionOptions) (*CompressionResult, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := c.operation(ctx, operationID)
	result, err := c.compress(opCtx, operationID, fileID, opts)
	release()
	err = c.opError(err)
	c.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "compress",
		FileIDs:   []string{fileID},
		Options:   map[string]any{"compressionLevel": opts.CompressionLevel, "imageQuality": opts.ImageQuality},
	}
	if err != nil {
		entry.Error = err.Error()
		c.RecordHistory(entry)
		c.EmitError(ctx, operationID, err, "compress")
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	c.RecordHistory(entry)
	c.EmitComplete(ctx, operationID, result, "Compression complete")
	return result, nil
}

func (c *Compression) compress(ctx context.Context, operationID, fileID string, opts CompressionOptions) (*CompressionResult, error) {
	c.EmitProgress(ctx, operationID, 0, "Starting compression", nil)

	if opts.CompressionLevel != "" && !compressionLevels[opts.CompressionLevel] {
		return nil, errdomain.Newf(errdomain.KindValidation, "unknown compression level %q", opts.CompressionLevel)
	}
	if opts.ImageQuality != 0 && (opts.ImageQuality < 10 || opts.ImageQuality > 100) {
		return nil, errdomain.New(errdomain.KindValidation, "image quality must be between 10 and 100")
	}

	file, err := c.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	analysis := c.analyzer.Analyze(file.Blob)
	recommended := c.analyzer.RecommendedSettings(analysis)
	if opts.CompressionLevel == "" {
		opts.CompressionLevel = recommended.CompressionLevel
	}
	if opts.ImageQuality == 0 {
		opts.ImageQuality = recommended.ImageQuality
	}

	c.EmitProgress(ctx, operationID, 10, "Analyzing document", map[string]any{
		"documentType": analysis.DocumentType,
		"pageCount":    analysis.PageCount,
	})

	c.EmitProgress(ctx, operationID, 30, "Compressing file", nil)

	var compressed []byte
	if opts.ServerProcessing {
		compressed, err = c.compressViaJob(ctx, operationID, file, opts)
	} else {
		compressed, err = c.gateway.CompressSingle(ctx, file.Metadata.Name, file.Blob.Data, opts.CompressionLevel, opts.ImageQuality)
	}
	if err != nil {
		return nil, err
	}

	processedID := uuid.NewString()
	processedMeta := models.FileMetadata{
		Name:           compressedName(file.Metadata.Name),
		Type:           models.FileTypeProcessed,
		MimeType:       "application/pdf",
		OriginalFileID: fileID,
		ProcessingType: models.ProcessingCompression,
	}
	if err := c.storage.SaveFile(ctx, processedID, models.Blob{Data: compressed, MimeType: "application/pdf"}, processedMeta); err != nil {
		return nil, err
	}

	originalSize := file.Blob.Size()
	compressedSize := int64(len(compressed))

	result := &CompressionResult{
		OperationID:      operationID,
		FileID:           fileID,
		ProcessedFileID:  processedID,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: float64(compressedSize) / float64(originalSize),
		ReductionPercent: float64(originalSize-compressedSize) / float64(originalSize) * 100,
		CompressionLevel: opts.CompressionLevel,
		ImageQuality:     opts.ImageQuality,
	}

	c.EmitProgress(ctx, operationID, 100, "Compression complete", nil)
	return result, nil
}

// compressViaJob runs the server-job pipeline: the blob is encrypted
// client-side, uploaded with its key, polled to completion and the result
// downloaded.
func (c *Compression) compressViaJob(ctx context.Context, operationID string, file *models.FileRecord, opts CompressionOptions) ([]byte, error) {
	sealed, err := c.crypto.Encrypt(file.Blob.Data)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindSecurity, "encrypt upload", err)
	}

	jobID, err := c.gateway.UploadEncrypted(ctx, file.Metadata.Name, sealed.Ciphertext, sealed.Key, sealed.IV, map[string]any{
		"operation":        "compress",
		"compressionLevel": opts.CompressionLevel,
		"imageQuality":     opts.ImageQuality,
	})
	if err != nil {
		return nil, err
	}

	// Server progress maps onto the 30..90 band of this operation.
	if _, err := c.gateway.WaitForJob(ctx, jobID, func(pct int) {
		c.EmitProgress(ctx, operationID, 30+pct*60/100, "Processing on server", nil)
	}); err != nil {
		return nil, err
	}

	return c.gateway.DownloadJob(ctx, jobID)
}

// CompressBatch runs an ordered pipeline over a set of files. Progress is
// emitted per file, not as an aggregate percentage.
func (c *Compression) CompressBatch(ctx context.Context, fileIDs []string, opts CompressionOptions) (*BatchCompressionResult, error) {
	if len(fileIDs) == 0 {
		return nil, errdomain.New(errdomain.KindValidation, "batch requires at least one file")
	}
	if err := c.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := c.operation(ctx, operationID)
	batch := &BatchCompressionResult{}

	for _, fileID := range fileIDs {
		if opCtx.Err() != nil {
			break
		}
		c.resetProgress()
		result, err := c.compress(opCtx, uuid.NewString(), fileID, opts)
		if err != nil {
			batch.FailCount++
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %v", fileID, err))
			continue
		}
		batch.SuccessCount++
		batch.Results = append(batch.Results, result)
	}

	err := c.opError(opCtx.Err())
	release()
	c.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "compressBatch",
		FileIDs:   fileIDs,
		Success:   err == nil && batch.FailCount == 0,
		Result:    map[string]any{"successCount": batch.SuccessCount, "failCount": batch.FailCount},
	}
	if err != nil {
		entry.Error = err.Error()
		c.RecordHistory(entry)
		c.EmitError(ctx, operationID, err, "compressBatch")
		return batch, err
	}

	c.RecordHistory(entry)
	c.EmitComplete(ctx, operationID, batch,
		fmt.Sprintf("Batch complete: %d succeeded, %d failed", batch.SuccessCount, batch.FailCount))
	return batch, nil
}

func compressedName(name string) string {
	const suffix = ".pdf"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)] + "_compressed.pdf"
	}
	return name + "_compressed.pdf"
}

package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Conversion size cap.
const maxConversionSize = 100 * 1024 * 1024

var conversionFormats = map[string]string{
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"txt":  "text/plain",
	"html": "text/html",
}

// Size ratios used by the preview estimator.
var conversionSizeRatios = map[string]float64{
	"docx": 0.8,
	"xlsx": 0.6,
	"txt":  0.1,
	"html": 0.9,
}

// ConversionOptions are user-chosen conversion settings.
type ConversionOptions struct {
	TargetFormat string         `json:"targetFormat"`
	Extra        map[string]any `json:"options,omitempty"`
}

// ConversionResult is the outcome of one conversion.
type ConversionResult struct {
	OperationID     string `json:"operationId"`
	FileID          string `json:"fileId"`
	ProcessedFileID string `json:"processedFileId"`
	TargetFormat    string `json:"targetFormat"`
	MimeType        string `json:"mimeType"`
	OriginalSize    int64  `json:"originalSize"`
	ConvertedSize   int64  `json:"convertedSize"`
}

// ConversionPreview estimates cost before converting.
type ConversionPreview struct {
	TargetFormat     string  `json:"targetFormat"`
	Complexity       int     `json:"complexity"`
	EstimatedSeconds float64 `json:"estimatedSeconds"`
	EstimatedSize    int64   `json:"estimatedSize"`
}

// Conversion converts PDFs to office and text formats through the backend.
type Conversion struct {
	*Base
	gateway  *clients.Gateway
	analyzer *Analyzer
	storage  *Storage
	log      *logger.Logger
}

// NewConversion creates the conversion service.
func NewConversion(gateway *clients.Gateway, analyzer *Analyzer, storage *Storage, b *bus.Bus, log *logger.Logger) *Conversion {
	return &Conversion{
		Base:     NewBase("ConversionService", 50, b, log),
		gateway:  gateway,
		analyzer: analyzer,
		storage:  storage,
		log:      log.WithService("ConversionService"),
	}
}

// Convert runs the primary operation over one stored file.
func (c *Conversion) Convert(ctx context.Context, fileID string, opts ConversionOptions) (*ConversionResult, error) {
	if err := c.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := c.operation(ctx, operationID)
	result, err := c.convert(opCtx, operationID, fileID, opts)
	release()
	err = c.opError(err)
	c.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: "convert",
		FileIDs:   []string{fileID},
		Options:   map[string]any{"targetFormat": opts.TargetFormat},
	}
	if err != nil {
		entry.Error = err.Error()
		c.RecordHistory(entry)
		c.EmitError(ctx, operationID, err, "convert")
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	c.RecordHistory(entry)
	c.EmitComplete(ctx, operationID, result, "Conversion complete")
	return result, nil
}

func (c *Conversion) convert(ctx context.Context, operationID, fileID string, opts ConversionOptions) (*ConversionResult, error) {
	c.EmitProgress(ctx, operationID, 0, "Starting conversion", nil)

	mimeType, ok := conversionFormats[opts.TargetFormat]
	if !ok {
		return nil, errdomain.Newf(errdomain.KindNotSupported, "unsupported target format %q", opts.TargetFormat)
	}

	file, err := c.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Blob.Size() > maxConversionSize {
		return nil, errdomain.New(errdomain.KindFile, "file too large for conversion (max 100MB)")
	}

	c.EmitProgress(ctx, operationID, 25, "Uploading document", nil)

	converted, err := c.gateway.Convert(ctx, file.Metadata.Name, file.Blob.Data, opts.TargetFormat, opts.Extra)
	if err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 75, "Saving converted file", nil)

	processedID := uuid.NewString()
	if err := c.storage.SaveFile(ctx, processedID, models.Blob{Data: converted, MimeType: mimeType}, models.FileMetadata{
		Name:           convertedName(file.Metadata.Name, opts.TargetFormat),
		Type:           models.FileTypeProcessed,
		MimeType:       mimeType,
		OriginalFileID: fileID,
		ProcessingType: "conversion:" + opts.TargetFormat,
	}); err != nil {
		return nil, err
	}

	c.EmitProgress(ctx, operationID, 100, "Conversion complete", nil)

	return &ConversionResult{
		OperationID:     operationID,
		FileID:          fileID,
		ProcessedFileID: processedID,
		TargetFormat:    opts.TargetFormat,
		MimeType:        mimeType,
		OriginalSize:    file.Blob.Size(),
		ConvertedSize:   int64(len(converted)),
	}, nil
}

// Preview estimates conversion complexity, duration and output size
// without calling the backend.
func (c *Conversion) Preview(ctx context.Context, fileID, targetFormat string) (*ConversionPreview, error) {
	ratio, ok := conversionSizeRatios[targetFormat]
	if !ok {
		return nil, errdomain.Newf(errdomain.KindNotSupported, "unsupported target format %q", targetFormat)
	}

	file, err := c.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	analysis := c.analyzer.Analyze(file.Blob)
	complexity := estimateComplexity(analysis)

	const baseSeconds = 2.0
	const perPageSeconds = 0.5
	estimated := baseSeconds + perPageSeconds*float64(analysis.PageCount)*float64(complexity)

	return &ConversionPreview{
		TargetFormat:     targetFormat,
		Complexity:       complexity,
		EstimatedSeconds: estimated,
		EstimatedSize:    int64(float64(file.Blob.Size()) * ratio),
	}, nil
}

// estimateComplexity grades a document 1..5 from its structure.
func estimateComplexity(analysis *models.Analysis) int {
	complexity := 1
	if analysis.PageCount > 10 {
		complexity++
	}
	if analysis.ImageCount > 5 {
		complexity++
	}
	if analysis.DocumentType == models.DocFormDocument {
		complexity++
	}
	if analysis.DocumentType == models.DocMixedContent || analysis.DocumentType == models.DocImageHeavy {
		complexity++
	}
	if complexity > 5 {
		complexity = 5
	}
	return complexity
}

func convertedName(name, format string) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name + "." + format
}

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

// Hard input cap for AI operations.
const maxAIInputSize = 25 * 1024 * 1024

// Languages the AI backend supports.
var aiLanguages = map[string]bool{
	"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
	"ru": true, "ja": true, "ko": true, "zh": true, "ar": true, "hi": true,
}

var summaryStyles = map[string]bool{
	"concise": true, "detailed": true, "academic": true, "casual": true, "professional": true,
}

// AIOptions select the AI operation and its tuning.
type AIOptions struct {
	Operation      string `json:"operation"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	SummaryLength  string `json:"summaryLength,omitempty"`
	SummaryStyle   string `json:"summaryStyle,omitempty"`
	Quality        string `json:"quality,omitempty"`
}

// AIResult carries the outcome of a summarize or translate run.
type AIResult struct {
	OperationID      string   `json:"operationId"`
	FileID           string   `json:"fileId"`
	Operation        string   `json:"operation"`
	Summary          string   `json:"summary,omitempty"`
	KeyPoints        []string `json:"keyPoints,omitempty"`
	TranslatedText   string   `json:"translatedText,omitempty"`
	OriginalLanguage string   `json:"originalLanguage,omitempty"`
	WordCount        int      `json:"wordCount"`
	ReadingTime      int      `json:"readingTime,omitempty"`
	Confidence       float64  `json:"confidence,omitempty"`
}

// AI summarizes and translates documents through the backend.
type AI struct {
	*Base
	gateway  *clients.Gateway
	analyzer *Analyzer
	log      *logger.Logger
}

// NewAI creates the AI service.
func NewAI(gateway *clients.Gateway, analyzer *Analyzer, b *bus.Bus, log *logger.Logger) *AI {
	return &AI{
		Base:     NewBase("AIService", 50, b, log),
		gateway:  gateway,
		analyzer: analyzer,
		log:      log.WithService("AIService"),
	}
}

// Process runs the primary operation over one stored file.
func (a *AI) Process(ctx context.Context, fileID string, opts AIOptions) (*AIResult, error) {
	if err := a.begin(ctx); err != nil {
		return nil, err
	}

	operationID := uuid.NewString()
	opCtx, release := a.operation(ctx, operationID)
	result, err := a.process(opCtx, operationID, fileID, opts)
	release()
	err = a.opError(err)
	a.end(ctx, err)

	entry := models.HistoryEntry{
		ID:        operationID,
		Operation: opts.Operation,
		FileIDs:   []string{fileID},
		Options:   map[string]any{"targetLanguage": opts.TargetLanguage, "summaryStyle": opts.SummaryStyle},
	}
	if err != nil {
		entry.Error = err.Error()
		a.RecordHistory(entry)
		a.EmitError(ctx, operationID, err, opts.Operation)
		return nil, err
	}

	entry.Success = true
	entry.Result = result
	a.RecordHistory(entry)
	a.EmitComplete(ctx, operationID, result, "AI processing complete")
	return result, nil
}

func (a *AI) process(ctx context.Context, operationID, fileID string, opts AIOptions) (*AIResult, error) {
	a.EmitProgress(ctx, operationID, 0, "Starting AI processing", nil)

	if opts.Operation != models.ProcessingSummarize && opts.Operation != models.ProcessingTranslate {
		return nil, errdomain.Newf(errdomain.KindNotSupported, "unsupported AI operation %q", opts.Operation)
	}
	if opts.Operation == models.ProcessingTranslate {
		if opts.TargetLanguage == "" {
			return nil, errdomain.New(errdomain.KindValidation, "target language is required for translation")
		}
		if !aiLanguages[opts.TargetLanguage] {
			return nil, errdomain.Newf(errdomain.KindNotSupported, "unsupported target language %q", opts.TargetLanguage)
		}
	}
	if opts.SummaryStyle != "" && !summaryStyles[opts.SummaryStyle] {
		return nil, errdomain.Newf(errdomain.KindNotSupported, "unsupported summary style %q", opts.SummaryStyle)
	}

	file, err := a.RequestFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Blob.Size() > maxAIInputSize {
		return nil, errdomain.New(errdomain.KindFile, "File too large for AI processing (max 25MB)")
	}

	analysis := a.analyzer.Analyze(file.Blob)
	opts = a.autoAdjust(opts, analysis)

	a.EmitProgress(ctx, operationID, 20, "Extracting text", nil)

	text, err := a.gateway.ExtractText(ctx, file.Metadata.Name, file.Blob.Data, nil)
	if err != nil {
		return nil, err
	}

	a.EmitProgress(ctx, operationID, 60, "Running AI model", nil)

	result := &AIResult{
		OperationID: operationID,
		FileID:      fileID,
		Operation:   opts.Operation,
	}

	switch opts.Operation {
	case models.ProcessingSummarize:
		out, err := a.gateway.Summarize(ctx, map[string]any{
			"text":   text,
			"length": opts.SummaryLength,
			"style":  opts.SummaryStyle,
		})
		if err != nil {
			return nil, err
		}
		result.Summary = out.Summary
		result.KeyPoints = out.KeyPoints
		result.WordCount = out.WordCount
		result.ReadingTime = out.ReadingTime

	case models.ProcessingTranslate:
		out, err := a.gateway.Translate(ctx, map[string]any{
			"text":            text,
			"target_language": opts.TargetLanguage,
			"quality":         opts.Quality,
		})
		if err != nil {
			return nil, err
		}
		result.TranslatedText = out.TranslatedText
		result.OriginalLanguage = out.OriginalLanguage
		result.WordCount = out.WordCount
		result.Confidence = out.Confidence
	}

	a.EmitProgress(ctx, operationID, 100, "AI processing complete", nil)
	return result, nil
}

// autoAdjust refines the user's options from the document analysis: long
// documents get longer summaries, academic documents override a casual
// style, and technical documents force high translation quality.
func (a *AI) autoAdjust(opts AIOptions, analysis *models.Analysis) AIOptions {
	if analysis.PageCount > 20 && opts.SummaryLength == "short" {
		opts.SummaryLength = "medium"
	}

	title := analysis.Metadata["Title"]
	subject := analysis.Metadata["Subject"]
	if isAcademic(title, subject, analysis) && opts.SummaryStyle == "casual" {
		opts.SummaryStyle = "academic"
	}
	if isTechnical(title, subject, analysis) && opts.Operation == models.ProcessingTranslate {
		opts.Quality = "high"
	}

	return opts
}

func isAcademic(title, subject string, analysis *models.Analysis) bool {
	return containsAny(title+" "+subject, "thesis", "journal", "study", "research") ||
		(analysis.DocumentType == models.DocTextHeavy && analysis.PageCount > 20)
}

func isTechnical(title, subject string, analysis *models.Analysis) bool {
	return containsAny(title+" "+subject, "manual", "specification", "technical", "reference") ||
		analysis.DocumentType == models.DocFormDocument
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

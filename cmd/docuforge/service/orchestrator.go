package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
	"github.com/docuforge/docuforge/common/validation"
)

// Archiver persists finished operations beyond the process lifetime. It
// is optional; the orchestrator runs fine without a database.
type Archiver interface {
	Record(ctx context.Context, entry models.HistoryEntry) error
}

// Orchestrator owns all cross-component choreography. It consumes intent
// events, resolves file ids against Storage, dispatches to the target
// processing service and fans lifecycle events out to the UI topics. It
// owns no files and holds no service state beyond its own history ring.
type Orchestrator struct {
	*Base
	storage     *Storage
	compression *Compression
	conversion  *Conversion
	ocr         *OCR
	ai          *AI
	cloud       *Cloud
	analytics   *Analytics
	router      *ErrorRouter
	archive     Archiver
	log         *logger.Logger

	unsubscribes []func()
}

// NewOrchestrator wires the composition root. archive may be nil.
func NewOrchestrator(
	storage *Storage,
	compression *Compression,
	conversion *Conversion,
	ocr *OCR,
	ai *AI,
	cloud *Cloud,
	analytics *Analytics,
	router *ErrorRouter,
	archive Archiver,
	b *bus.Bus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		Base:        NewBase("Orchestrator", 200, b, log),
		storage:     storage,
		compression: compression,
		conversion:  conversion,
		ocr:         ocr,
		ai:          ai,
		cloud:       cloud,
		analytics:   analytics,
		router:      router,
		archive:     archive,
		log:         log.WithService("Orchestrator"),
	}
}

// Init initializes every service and subscribes to the intent and
// lifecycle topics. Storage goes first so file resolution works before
// any intent can arrive.
func (o *Orchestrator) Init(ctx context.Context) error {
	for _, init := range []func(context.Context) error{
		o.storage.Init,
		o.compression.Init,
		o.conversion.Init,
		o.ocr.Init,
		o.ai.Init,
		o.cloud.Init,
	} {
		if err := init(ctx); err != nil {
			return err
		}
	}

	o.subscribe(models.TopicFileRequested, o.onFileRequested)
	o.subscribe(models.TopicFileUploaded, o.onFileUploaded)
	o.subscribe(models.TopicFileValidationError, o.onFileValidationError)
	o.subscribe(models.TopicCompressionRequested, o.onCompressionRequested)
	o.subscribe(models.TopicConversionRequested, o.onConversionRequested)
	o.subscribe(models.TopicOCRProcessingRequested, o.onOCRRequested)
	o.subscribe(models.TopicAIProcessingRequested, o.onAIRequested)
	o.subscribe(models.TopicCloudUploadRequested, o.onCloudUploadRequested)
	o.subscribe(models.TopicCloudDownloadRequested, o.onCloudDownloadRequested)
	o.subscribe(models.TopicFileDeleteRequested, o.onFileDeleteRequested)
	o.subscribe(models.TopicRequestFileList, o.onRequestFileList)
	o.subscribe(models.TopicFileDownloadRequested, o.onFileDownloadRequested)
	o.subscribe(models.TopicDownloadRequested, o.onFileDownloadRequested)
	o.subscribe(models.TopicClearAllFilesRequested, o.onClearAllFiles)
	o.subscribe(models.TopicCancelRequested, o.onCancelRequested)
	o.subscribe(models.TopicServiceComplete, o.onServiceComplete)
	o.subscribe(models.TopicServiceError, o.onServiceError)

	return o.Base.Init(ctx)
}

// Shutdown detaches every subscription and flushes analytics.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, unsub := range o.unsubscribes {
		unsub()
	}
	o.unsubscribes = nil
	o.analytics.Flush(ctx)
}

func (o *Orchestrator) subscribe(topic string, handler bus.Handler) {
	o.unsubscribes = append(o.unsubscribes, o.bus.Subscribe(topic, handler))
}

// onFileRequested answers the correlation pair. A missing file still gets
// a response so the requester fails fast instead of waiting out the
// timeout.
func (o *Orchestrator) onFileRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.FileRequestEvent)
	if !ok {
		return
	}

	resp := models.FileResponseEvent{FileID: req.FileID, RequestID: req.RequestID}
	file, err := o.storage.GetFile(ctx, req.FileID)
	switch {
	case err != nil:
		resp.Error = err.Error()
	case file == nil:
		resp.Error = "File not found"
	default:
		resp.File = file
	}

	_ = o.bus.Publish(ctx, models.TopicFileResponse, resp)
}

func (o *Orchestrator) onFileUploaded(ctx context.Context, evt bus.Event) {
	upload, ok := evt.Payload.(models.FileUploadedEvent)
	if !ok {
		return
	}

	id := upload.FileID
	if id == "" {
		id = uuid.NewString()
	}
	if err := o.storage.SaveFile(ctx, id, upload.Blob, upload.Metadata); err != nil {
		o.handleFailure(ctx, "StorageService", "saveFile", err)
		return
	}
	o.notify(ctx, "success", fmt.Sprintf("Uploaded %s", upload.Metadata.Name))
	o.publishFileList(ctx)
}

// onFileValidationError surfaces an upload rejection. The router's
// validation rule keeps the validator's first message inline.
func (o *Orchestrator) onFileValidationError(ctx context.Context, evt bus.Event) {
	result, ok := evt.Payload.(validation.Result)
	if !ok {
		return
	}

	message := "file failed validation"
	if len(result.Errors) > 0 {
		message = result.Errors[0]
	}
	o.analytics.RecordError(ctx, "FileValidator", message)
	o.handleFailure(ctx, "FileValidator", "validate", errdomain.New(errdomain.KindValidation, message))
}

func (o *Orchestrator) onCompressionRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}

	opts := compressionOptionsFrom(req.Options)
	if len(req.FileIDs) > 1 {
		result, err := o.compression.CompressBatch(ctx, req.FileIDs, opts)
		if err != nil {
			o.handleFailure(ctx, o.compression.Name(), "compressBatch", err)
			return
		}
		if result.FailCount > 0 {
			o.notifyBatchFailures(ctx, result.FailCount, result.Errors)
		}
		o.publishFileList(ctx)
		return
	}

	fileID := req.FileID
	if fileID == "" && len(req.FileIDs) == 1 {
		fileID = req.FileIDs[0]
	}
	if _, err := o.compression.Compress(ctx, fileID, opts); err != nil {
		o.handleFailure(ctx, o.compression.Name(), "compress", err)
		return
	}
	o.publishFileList(ctx)
}

func (o *Orchestrator) onConversionRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}

	opts := ConversionOptions{TargetFormat: stringOption(req.Options, "targetFormat")}
	if extra, ok := req.Options["options"].(map[string]any); ok {
		opts.Extra = extra
	}
	if _, err := o.conversion.Convert(ctx, req.FileID, opts); err != nil {
		o.handleFailure(ctx, o.conversion.Name(), "convert", err)
		return
	}
	o.publishFileList(ctx)
}

func (o *Orchestrator) onOCRRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}

	opts := OCROptions{
		Language: stringOption(req.Options, "language"),
		Quality:  stringOption(req.Options, "quality"),
	}
	if v, ok := req.Options["searchablePdf"].(bool); ok {
		opts.SearchablePDF = v
	}
	if _, err := o.ocr.Recognize(ctx, req.FileID, opts); err != nil {
		o.handleFailure(ctx, o.ocr.Name(), "recognize", err)
		return
	}
	o.publishFileList(ctx)
}

func (o *Orchestrator) onAIRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}

	opts := AIOptions{
		Operation:      stringOption(req.Options, "operation"),
		TargetLanguage: stringOption(req.Options, "targetLanguage"),
		SummaryLength:  stringOption(req.Options, "summaryLength"),
		SummaryStyle:   stringOption(req.Options, "summaryStyle"),
		Quality:        stringOption(req.Options, "quality"),
	}
	if _, err := o.ai.Process(ctx, req.FileID, opts); err != nil {
		o.handleFailure(ctx, o.ai.Name(), "process", err)
	}
}

func (o *Orchestrator) onCloudUploadRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}
	folder := stringOption(req.Options, "folder")
	if _, err := o.cloud.Upload(ctx, req.Provider, req.FileID, folder); err != nil {
		o.handleFailure(ctx, o.cloud.Name(), "upload", err)
	}
}

func (o *Orchestrator) onCloudDownloadRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}
	name := stringOption(req.Options, "name")
	if _, err := o.cloud.Download(ctx, req.Provider, req.RemoteID, name); err != nil {
		o.handleFailure(ctx, o.cloud.Name(), "download", err)
		return
	}
	o.publishFileList(ctx)
}

func (o *Orchestrator) onFileDeleteRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}
	if err := o.storage.DeleteFile(ctx, req.FileID); err != nil {
		o.handleFailure(ctx, o.storage.Name(), "deleteFile", err)
		return
	}
	o.publishFileList(ctx)
}

func (o *Orchestrator) onRequestFileList(ctx context.Context, evt bus.Event) {
	o.publishFileList(ctx)
}

func (o *Orchestrator) onFileDownloadRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.ProcessingRequest)
	if !ok {
		return
	}

	file, err := o.storage.GetFile(ctx, req.FileID)
	if err != nil {
		o.handleFailure(ctx, o.storage.Name(), "getFile", err)
		return
	}
	if file == nil {
		o.notify(ctx, "error", "File not found")
		return
	}
	_ = o.bus.Publish(ctx, models.TopicFileDownloadReady, file)
}

// onCancelRequested dispatches a cancel to the named service. Cancels for
// finished operations fall through silently.
func (o *Orchestrator) onCancelRequested(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(models.CancelEvent)
	if !ok {
		return
	}

	var target interface {
		Cancel(context.Context, string) bool
	}
	switch req.Service {
	case o.compression.Name():
		target = o.compression
	case o.conversion.Name():
		target = o.conversion
	case o.ocr.Name():
		target = o.ocr
	case o.ai.Name():
		target = o.ai
	case o.cloud.Name():
		target = o.cloud
	default:
		o.log.Warn("cancel for unknown service", "target_service", req.Service)
		return
	}

	if target.Cancel(ctx, req.OperationID) {
		o.notify(ctx, "info", "Operation cancelled")
	}
}

func (o *Orchestrator) onClearAllFiles(ctx context.Context, evt bus.Event) {
	listings, err := o.storage.GetAllFiles(ctx)
	if err != nil {
		o.handleFailure(ctx, o.storage.Name(), "clearAllFiles", err)
		return
	}

	cleared := 0
	for _, listing := range listings {
		if err := o.storage.DeleteFile(ctx, listing.ID); err != nil {
			o.log.Warn("delete during clear-all failed", "file_id", listing.ID, "error", err)
			continue
		}
		cleared++
	}

	o.notify(ctx, "success", fmt.Sprintf("Cleared %d files", cleared))
	o.publishFileList(ctx)
}

// onServiceComplete records history before fanning out, so a UI component
// receiving processingComplete can already query the entry.
func (o *Orchestrator) onServiceComplete(ctx context.Context, evt bus.Event) {
	complete, ok := evt.Payload.(models.CompleteEvent)
	if !ok || complete.Service == o.Name() {
		return
	}

	entry := models.HistoryEntry{
		ID:        complete.OperationID,
		Service:   complete.Service,
		Operation: "complete",
		Success:   true,
		Result:    complete.Result,
	}
	o.RecordHistory(entry)
	o.archiveEntry(ctx, entry)
	o.analytics.RecordCompletion(ctx, complete.Service, map[string]any{
		"operationId": complete.OperationID,
	})

	_ = o.bus.Publish(ctx, models.TopicProcessingComplete, complete)
}

func (o *Orchestrator) onServiceError(ctx context.Context, evt bus.Event) {
	errEvt, ok := evt.Payload.(models.ErrorEvent)
	if !ok || errEvt.Service == o.Name() {
		return
	}

	entry := models.HistoryEntry{
		ID:        errEvt.OperationID,
		Service:   errEvt.Service,
		Operation: "error",
		Error:     errEvt.Message,
	}
	o.RecordHistory(entry)
	o.archiveEntry(ctx, entry)
	o.analytics.RecordError(ctx, errEvt.Service, errEvt.Message)

	_ = o.bus.Publish(ctx, models.TopicProcessingError, errEvt)
}

// handleFailure routes a dispatch failure through the error router and
// surfaces the decision as a notification.
func (o *Orchestrator) handleFailure(ctx context.Context, service, operation string, err error) {
	if errdomain.KindOf(err) == errdomain.KindCancelled {
		// Cancel already notified the user.
		return
	}
	o.log.Error("operation failed", "target_service", service, "operation", operation, "error", err)

	decision := o.router.Route(service+":"+operation, err)
	_ = o.bus.Publish(ctx, models.TopicNotification, models.Notification{
		Level:     decision.Severity,
		Message:   decision.Message,
		Retriable: decision.Retry,
		Timestamp: models.NowMillis(),
	})
}

func (o *Orchestrator) notifyBatchFailures(ctx context.Context, failCount int, errors []string) {
	detail := ""
	if len(errors) > 0 {
		detail = errors[0]
	}
	_ = o.bus.Publish(ctx, models.TopicNotification, models.Notification{
		Level:     "error",
		Message:   fmt.Sprintf("%d files failed to process", failCount),
		Detail:    detail,
		Timestamp: models.NowMillis(),
	})
}

func (o *Orchestrator) notify(ctx context.Context, level, message string) {
	_ = o.bus.Publish(ctx, models.TopicNotification, models.Notification{
		Level:     level,
		Message:   message,
		Timestamp: models.NowMillis(),
	})
}

func (o *Orchestrator) publishFileList(ctx context.Context) {
	listings, err := o.storage.GetAllFiles(ctx)
	if err != nil {
		o.log.Warn("file list refresh failed", "error", err)
		return
	}
	_ = o.bus.Publish(ctx, models.TopicFileListUpdated, listings)
}

func (o *Orchestrator) archiveEntry(ctx context.Context, entry models.HistoryEntry) {
	if o.archive == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = models.NowMillis()
	}
	if err := o.archive.Record(ctx, entry); err != nil {
		o.log.Warn("history archive write failed", "error", err)
	}
}

func compressionOptionsFrom(options map[string]any) CompressionOptions {
	opts := CompressionOptions{
		CompressionLevel: stringOption(options, "compressionLevel"),
	}
	switch q := options["imageQuality"].(type) {
	case int:
		opts.ImageQuality = q
	case float64:
		opts.ImageQuality = int(q)
	}
	if v, ok := options["serverProcessing"].(bool); ok {
		opts.ServerProcessing = v
	}
	return opts
}

func stringOption(options map[string]any, key string) string {
	v, _ := options[key].(string)
	return v
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Base carries the uniform service lifecycle: initialization state, the
// processing mutex, lifecycle event emission and the bounded history ring.
// A second concurrent call to a service's primary operation is rejected
// with ErrBusy rather than queued.
type Base struct {
	name    string
	bus     *bus.Bus
	log     *logger.Logger
	history *HistoryRing

	mu           sync.Mutex
	initialized  bool
	processing   bool
	lastError    error
	lastProgress int
	currentOp    string
	cancelOp     context.CancelFunc
	cancelled    bool

	fileWaitTimeout time.Duration
}

// Correlation window for fileRequested/fileResponse pairs.
const defaultFileWaitTimeout = 10 * time.Second

// NewBase creates a service base with the given history capacity.
func NewBase(name string, historyCapacity int, b *bus.Bus, log *logger.Logger) *Base {
	return &Base{
		name:            name,
		bus:             b,
		log:             log.WithService(name),
		history:         NewHistoryRing(historyCapacity),
		fileWaitTimeout: defaultFileWaitTimeout,
	}
}

// Init marks the service ready and announces it on the bus.
func (b *Base) Init(ctx context.Context) error {
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return nil
	}
	b.initialized = true
	b.mu.Unlock()

	b.log.Info("service initialized")
	return b.bus.Publish(ctx, models.TopicServiceReady, models.StatusEvent{
		Service:   b.name,
		Status:    "ready",
		Timestamp: models.NowMillis(),
	})
}

// Name returns the service name stamped on every emitted event.
func (b *Base) Name() string { return b.name }

// SetFileWaitTimeout overrides the fileRequested correlation window.
// Non-positive values keep the default.
func (b *Base) SetFileWaitTimeout(d time.Duration) {
	if d > 0 {
		b.fileWaitTimeout = d
	}
}

// IsInitialized reports whether Init has run.
func (b *Base) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// IsProcessing reports whether the primary operation is in flight.
func (b *Base) IsProcessing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processing
}

// LastError returns the most recent terminal error.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// History returns the service's operation history ring.
func (b *Base) History() *HistoryRing { return b.history }

// begin acquires the processing flag or rejects with ErrBusy, then emits
// statusChanged("processing").
func (b *Base) begin(ctx context.Context) error {
	b.mu.Lock()
	if b.processing {
		b.mu.Unlock()
		return errdomain.ErrBusy
	}
	b.processing = true
	b.lastProgress = 0
	b.mu.Unlock()

	b.EmitStatus(ctx, "processing", nil)
	return nil
}

// end releases the processing flag. It must run on every exit path of a
// primary operation.
func (b *Base) end(ctx context.Context, err error) {
	b.mu.Lock()
	b.processing = false
	b.lastError = err
	b.mu.Unlock()

	switch {
	case errors.Is(err, errdomain.ErrCancelled):
		// Cancel already announced the transition.
	case err != nil:
		b.EmitStatus(ctx, "error", nil)
	default:
		b.EmitStatus(ctx, "idle", nil)
	}
}

// operation registers the running primary operation for cancellation and
// returns a context that Cancel aborts. The release func must run before
// end.
func (b *Base) operation(ctx context.Context, operationID string) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.currentOp = operationID
	b.cancelOp = cancel
	b.cancelled = false
	b.mu.Unlock()

	return opCtx, func() {
		b.mu.Lock()
		b.currentOp = ""
		b.cancelOp = nil
		b.mu.Unlock()
		cancel()
	}
}

// Cancel aborts the named operation if it is still in flight. In-flight
// gateway calls and poll loops exit through the operation context.
// Cancelling a finished or unknown operation is a no-op.
func (b *Base) Cancel(ctx context.Context, operationID string) bool {
	b.mu.Lock()
	if !b.processing || b.currentOp != operationID || b.cancelOp == nil {
		b.mu.Unlock()
		return false
	}
	b.cancelled = true
	cancel := b.cancelOp
	b.mu.Unlock()

	cancel()
	b.log.Info("operation cancelled", "operationId", operationID)
	b.EmitStatus(ctx, "cancelled", map[string]any{"operationId": operationID})
	return true
}

// opError maps an abort caused by Cancel onto ErrCancelled so history
// entries and terminal events read cancelled instead of a raw context
// error.
func (b *Base) opError(err error) error {
	if err == nil {
		return nil
	}
	b.mu.Lock()
	cancelled := b.cancelled
	b.mu.Unlock()
	if cancelled {
		return errdomain.ErrCancelled
	}
	return err
}

// resetProgress starts a new monotonic progress sequence, used between
// files of a batch run.
func (b *Base) resetProgress() {
	b.mu.Lock()
	b.lastProgress = 0
	b.mu.Unlock()
}

// EmitProgress publishes a progress event. Percentages are clamped to be
// non-decreasing within one operation.
func (b *Base) EmitProgress(ctx context.Context, operationID string, percentage int, message string, data map[string]any) {
	b.mu.Lock()
	if percentage < b.lastProgress {
		percentage = b.lastProgress
	}
	b.lastProgress = percentage
	b.mu.Unlock()

	_ = b.bus.Publish(ctx, models.TopicServiceProgress, models.ProgressEvent{
		Service:     b.name,
		OperationID: operationID,
		Percentage:  percentage,
		Message:     message,
		Data:        data,
		Timestamp:   models.NowMillis(),
	})
}

// EmitComplete publishes the terminal success event.
func (b *Base) EmitComplete(ctx context.Context, operationID string, result any, message string) {
	_ = b.bus.Publish(ctx, models.TopicServiceComplete, models.CompleteEvent{
		Service:     b.name,
		OperationID: operationID,
		Result:      result,
		Message:     message,
		Timestamp:   models.NowMillis(),
	})
}

// EmitError publishes the terminal failure event.
func (b *Base) EmitError(ctx context.Context, operationID string, err error, errContext string) {
	_ = b.bus.Publish(ctx, models.TopicServiceError, models.ErrorEvent{
		Service:     b.name,
		OperationID: operationID,
		Message:     err.Error(),
		Context:     errContext,
		Timestamp:   models.NowMillis(),
	})
}

// EmitStatus publishes a status transition.
func (b *Base) EmitStatus(ctx context.Context, status string, data map[string]any) {
	_ = b.bus.Publish(ctx, models.TopicServiceStatus, models.StatusEvent{
		Service:   b.name,
		Status:    status,
		Data:      data,
		Timestamp: models.NowMillis(),
	})
}

// RequestFile resolves a blob by id over the bus: it publishes
// fileRequested and waits for the fileResponse carrying the same
// (fileId, requestId) pair. The wait fails with ErrFileRequestTimeout
// after the correlation window elapses.
func (b *Base) RequestFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	requestID := uuid.NewString()
	result := make(chan models.FileResponseEvent, 1)

	unsubscribe := b.bus.Subscribe(models.TopicFileResponse, func(_ context.Context, evt bus.Event) {
		resp, ok := evt.Payload.(models.FileResponseEvent)
		if !ok || resp.FileID != fileID || resp.RequestID != requestID {
			return
		}
		select {
		case result <- resp:
		default:
		}
	})
	defer unsubscribe()

	if err := b.bus.Publish(ctx, models.TopicFileRequested, models.FileRequestEvent{
		FileID:    fileID,
		RequestID: requestID,
	}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(b.fileWaitTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, errdomain.Wrap(errdomain.KindTimeout, "file request cancelled", ctx.Err())
	case <-timer.C:
		return nil, errdomain.ErrFileRequestTimeout
	case resp := <-result:
		if resp.Error != "" {
			return nil, errdomain.New(errdomain.KindFile, resp.Error)
		}
		return resp.File, nil
	}
}

// RecordHistory appends a finished operation to the history ring.
func (b *Base) RecordHistory(entry models.HistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = models.NowMillis()
	}
	entry.Service = b.name
	b.history.Add(entry)
}

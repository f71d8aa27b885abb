package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

// Analytics batches usage events and flushes them to the backend. Events
// are fire-and-forget; a failed flush drops the batch rather than
// blocking processing work.
type Analytics struct {
	gateway   *clients.Gateway
	log       *logger.Logger
	sessionID string
	batchSize int

	mu      sync.Mutex
	pending []map[string]any
}

// NewAnalytics creates the batcher with a fresh session id.
func NewAnalytics(gateway *clients.Gateway, batchSize int, log *logger.Logger) *Analytics {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Analytics{
		gateway:   gateway,
		log:       log.WithService("Analytics"),
		sessionID: uuid.NewString(),
		batchSize: batchSize,
	}
}

// SessionID returns the id stamped on every flushed batch.
func (a *Analytics) SessionID() string { return a.sessionID }

// RecordCompletion records a finished service operation.
func (a *Analytics) RecordCompletion(ctx context.Context, service string, data map[string]any) {
	a.record(ctx, service+"_completed", data)
}

// RecordError records a failed service operation.
func (a *Analytics) RecordError(ctx context.Context, service string, message string) {
	a.record(ctx, service+"_error", map[string]any{"message": message})
}

func (a *Analytics) record(ctx context.Context, event string, data map[string]any) {
	entry := map[string]any{
		"event":     event,
		"timestamp": models.NowMillis(),
	}
	for k, v := range data {
		entry[k] = v
	}

	a.mu.Lock()
	a.pending = append(a.pending, entry)
	full := len(a.pending) >= a.batchSize
	a.mu.Unlock()

	if full {
		a.Flush(ctx)
	}
}

// Flush sends all pending events. Failures are logged and the batch
// dropped.
func (a *Analytics) Flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := a.gateway.SendAnalytics(ctx, batch, a.sessionID); err != nil {
		a.log.Warn("analytics flush failed, dropping batch", "events", len(batch), "error", err)
	}
}

// Pending reports the number of unflushed events.
func (a *Analytics) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

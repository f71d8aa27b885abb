package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/logger"
)

type analyticsCapture struct {
	mu      sync.Mutex
	batches []map[string]any
	status  int
}

func (c *analyticsCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	c.mu.Lock()
	c.batches = append(c.batches, payload)
	status := c.status
	c.mu.Unlock()

	if status != 0 {
		http.Error(w, `{"message":"nope"}`, status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *analyticsCapture) received() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.batches))
	copy(out, c.batches)
	return out
}

func TestAnalyticsFlushesWhenBatchFills(t *testing.T) {
	ctx := context.Background()
	capture := &analyticsCapture{}
	a := NewAnalytics(newBackend(t, capture), 3, logger.Discard())

	a.RecordCompletion(ctx, "CompressionService", map[string]any{"operationId": "op-1"})
	a.RecordCompletion(ctx, "ConversionService", nil)
	assert.Equal(t, 2, a.Pending())
	assert.Empty(t, capture.received())

	a.RecordError(ctx, "AIService", "model unavailable")
	assert.Equal(t, 0, a.Pending())

	batches := capture.received()
	require.Len(t, batches, 1)
	assert.Equal(t, a.SessionID(), batches[0]["sessionId"])

	events := batches[0]["events"].([]any)
	require.Len(t, events, 3)

	first := events[0].(map[string]any)
	assert.Equal(t, "CompressionService_completed", first["event"])
	assert.Equal(t, "op-1", first["operationId"])

	last := events[2].(map[string]any)
	assert.Equal(t, "AIService_error", last["event"])
	assert.Equal(t, "model unavailable", last["message"])
}

func TestAnalyticsManualFlush(t *testing.T) {
	ctx := context.Background()
	capture := &analyticsCapture{}
	a := NewAnalytics(newBackend(t, capture), 100, logger.Discard())

	a.RecordCompletion(ctx, "OCRService", nil)
	a.Flush(ctx)

	assert.Equal(t, 0, a.Pending())
	require.Len(t, capture.received(), 1)
}

func TestAnalyticsFlushWithNothingPendingIsQuiet(t *testing.T) {
	capture := &analyticsCapture{}
	a := NewAnalytics(newBackend(t, capture), 10, logger.Discard())

	a.Flush(context.Background())
	assert.Empty(t, capture.received())
}

func TestAnalyticsDropsBatchOnSendFailure(t *testing.T) {
	ctx := context.Background()
	capture := &analyticsCapture{status: http.StatusServiceUnavailable}
	a := NewAnalytics(newBackend(t, capture), 2, logger.Discard())

	a.RecordCompletion(ctx, "CompressionService", nil)
	a.RecordCompletion(ctx, "CompressionService", nil)

	// The failed batch is gone rather than retried.
	assert.Equal(t, 0, a.Pending())
	require.Len(t, capture.received(), 1)
}

func TestAnalyticsSessionIDIsStable(t *testing.T) {
	a := NewAnalytics(newBackend(t, &analyticsCapture{}), 10, logger.Discard())
	assert.NotEmpty(t, a.SessionID())
	assert.Equal(t, a.SessionID(), a.SessionID())
}

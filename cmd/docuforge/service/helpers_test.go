package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/clients"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

func newTestBus() *bus.Bus {
	return bus.New(logger.Discard())
}

func newTestKV() kvstore.Store {
	return kvstore.NewMemoryStore("docuforge_", nil, nil, logger.Discard())
}

func newTestStorage(t *testing.T, b *bus.Bus) *Storage {
	t.Helper()
	return NewStorage(newTestKV(), b, logger.Discard())
}

// newBackend starts a fake processing backend. Retries are disabled so a
// failing handler surfaces immediately.
func newBackend(t *testing.T, handler http.Handler) *clients.Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return clients.NewGateway(config.APIConfig{
		BaseURL:       srv.URL,
		Timeout:       5 * time.Second,
		UploadTimeout: 5 * time.Second,
		BulkTimeout:   5 * time.Second,
		RetryAttempts: 1,
		RetryBase:     time.Millisecond,
		PollInterval:  time.Millisecond,
		PollMaxTries:  5,
	}, newTestKV(), logger.Discard())
}

// answerFileRequests resolves fileRequested events from a fixture map, the
// same contract the orchestrator provides in production. Unknown ids get
// the not-found response.
func answerFileRequests(t *testing.T, b *bus.Bus, files map[string]*models.FileRecord) {
	t.Helper()
	unsubscribe := b.Subscribe(models.TopicFileRequested, func(ctx context.Context, evt bus.Event) {
		req, ok := evt.Payload.(models.FileRequestEvent)
		if !ok {
			return
		}
		resp := models.FileResponseEvent{FileID: req.FileID, RequestID: req.RequestID}
		if file, ok := files[req.FileID]; ok {
			resp.File = file
		} else {
			resp.Error = "File not found"
		}
		_ = b.Publish(ctx, models.TopicFileResponse, resp)
	})
	t.Cleanup(unsubscribe)
}

// collectEvents buffers every payload published on a topic.
func collectEvents(t *testing.T, b *bus.Bus, topic string) chan any {
	t.Helper()
	out := make(chan any, 64)
	unsubscribe := b.Subscribe(topic, func(_ context.Context, evt bus.Event) {
		select {
		case out <- evt.Payload:
		default:
		}
	})
	t.Cleanup(unsubscribe)
	return out
}

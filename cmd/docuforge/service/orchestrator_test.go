package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
	"github.com/docuforge/docuforge/common/validation"
)

// memoryArchive collects archived entries in place of the database.
type memoryArchive struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	err     error
}

func (m *memoryArchive) Record(ctx context.Context, entry models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryArchive) all() []models.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

type orchestratorHarness struct {
	bus          *bus.Bus
	storage      *Storage
	orchestrator *Orchestrator
	archive      *memoryArchive
	analytics    *Analytics
}

func newOrchestratorHarness(t *testing.T, handler http.Handler) *orchestratorHarness {
	t.Helper()
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	b := newTestBus()
	log := logger.Discard()
	gateway := newBackend(t, handler)
	storage := NewStorage(newTestKV(), b, log)
	analyzer := NewAnalyzer(log)
	crypto := cryptox.NewProvider()

	compression := NewCompression(gateway, analyzer, storage, crypto, b, log)
	conversion := NewConversion(gateway, analyzer, storage, b, log)
	ocr := NewOCR(gateway, storage, crypto, b, log)
	ai := NewAI(gateway, analyzer, b, log)
	cloud := NewCloud(gateway, storage, newTestKV(), config.CloudConfig{}, b, log)
	analytics := NewAnalytics(gateway, 100, log)
	router, err := NewErrorRouter(log)
	require.NoError(t, err)

	archive := &memoryArchive{}
	orchestrator := NewOrchestrator(storage, compression, conversion, ocr, ai, cloud, analytics, router, archive, b, log)
	require.NoError(t, orchestrator.Init(context.Background()))
	t.Cleanup(func() { orchestrator.Shutdown(context.Background()) })

	return &orchestratorHarness{
		bus:          b,
		storage:      storage,
		orchestrator: orchestrator,
		archive:      archive,
		analytics:    analytics,
	}
}

func (h *orchestratorHarness) saveFile(t *testing.T, id, name string, data []byte) {
	t.Helper()
	err := h.storage.SaveFile(context.Background(), id, models.Blob{Data: data, MimeType: "application/pdf"}, models.FileMetadata{Name: name})
	require.NoError(t, err)
}

func TestOrchestratorAnswersFileRequests(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)
	h.saveFile(t, "f1", "doc.pdf", []byte("%PDF-1.4 body"))

	responses := collectEvents(t, h.bus, models.TopicFileResponse)
	h.orchestrator.onFileRequested(ctx, bus.Event{Payload: models.FileRequestEvent{FileID: "f1", RequestID: "r1"}})

	var resp models.FileResponseEvent
	require.Eventually(t, func() bool {
		select {
		case payload := <-responses:
			resp = payload.(models.FileResponseEvent)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "f1", resp.FileID)
	assert.Equal(t, "r1", resp.RequestID)
	require.NotNil(t, resp.File)
	assert.Equal(t, []byte("%PDF-1.4 body"), resp.File.Blob.Data)
	assert.Empty(t, resp.Error)
}

func TestOrchestratorAnswersMissingFileRequests(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	responses := collectEvents(t, h.bus, models.TopicFileResponse)
	h.orchestrator.onFileRequested(ctx, bus.Event{Payload: models.FileRequestEvent{FileID: "ghost", RequestID: "r1"}})

	var resp models.FileResponseEvent
	require.Eventually(t, func() bool {
		select {
		case payload := <-responses:
			resp = payload.(models.FileResponseEvent)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "File not found", resp.Error)
	assert.Nil(t, resp.File)
}

func TestOrchestratorSavesUploads(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)
	notifications := collectEvents(t, h.bus, models.TopicNotification)

	h.orchestrator.onFileUploaded(ctx, bus.Event{Payload: models.FileUploadedEvent{
		FileID:   "f1",
		Blob:     models.Blob{Data: []byte("%PDF-1.4"), MimeType: "application/pdf"},
		Metadata: models.FileMetadata{Name: "upload.pdf"},
	}})

	saved, err := h.storage.GetFile(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, saved)

	require.Eventually(t, func() bool {
		select {
		case payload := <-notifications:
			n := payload.(models.Notification)
			return n.Level == "success" && n.Message == "Uploaded upload.pdf"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorUploadWithoutIDGetsOne(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	h.orchestrator.onFileUploaded(ctx, bus.Event{Payload: models.FileUploadedEvent{
		Blob:     models.Blob{Data: []byte("%PDF-1.4"), MimeType: "application/pdf"},
		Metadata: models.FileMetadata{Name: "anon.pdf"},
	}})

	listings, err := h.storage.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.NotEmpty(t, listings[0].ID)
}

func TestOrchestratorClearAllFiles(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)
	h.saveFile(t, "a", "a.pdf", []byte("1"))
	h.saveFile(t, "b", "b.pdf", []byte("2"))
	h.saveFile(t, "c", "c.pdf", []byte("3"))

	notifications := collectEvents(t, h.bus, models.TopicNotification)
	h.orchestrator.onClearAllFiles(ctx, bus.Event{Payload: models.ClearAllFilesEvent{FileCount: 3}})

	listings, err := h.storage.GetAllFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)

	require.Eventually(t, func() bool {
		select {
		case payload := <-notifications:
			return payload.(models.Notification).Message == "Cleared 3 files"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorDeleteRefreshesFileList(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)
	h.saveFile(t, "a", "a.pdf", []byte("1"))
	h.saveFile(t, "b", "b.pdf", []byte("2"))

	lists := collectEvents(t, h.bus, models.TopicFileListUpdated)
	h.orchestrator.onFileDeleteRequested(ctx, bus.Event{Payload: models.ProcessingRequest{FileID: "a"}})

	var listing []models.FileListing
	require.Eventually(t, func() bool {
		select {
		case payload := <-lists:
			listing = payload.([]models.FileListing)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.Len(t, listing, 1)
	assert.Equal(t, "b", listing[0].ID)
}

func TestOrchestratorDownloadReady(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)
	h.saveFile(t, "f1", "doc.pdf", []byte("%PDF-1.4 blob"))

	ready := collectEvents(t, h.bus, models.TopicFileDownloadReady)
	h.orchestrator.onFileDownloadRequested(ctx, bus.Event{Payload: models.ProcessingRequest{FileID: "f1"}})

	require.Eventually(t, func() bool {
		select {
		case payload := <-ready:
			file := payload.(*models.FileRecord)
			return file.ID == "f1" && string(file.Blob.Data) == "%PDF-1.4 blob"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorRecordsServiceCompletions(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	fanout := collectEvents(t, h.bus, models.TopicProcessingComplete)
	h.orchestrator.onServiceComplete(ctx, bus.Event{Payload: models.CompleteEvent{
		Service:     "CompressionService",
		OperationID: "op-1",
		Result:      map[string]any{"fileId": "f1"},
	}})

	entries := h.orchestrator.History().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "op-1", entries[0].ID)
	assert.True(t, entries[0].Success)

	archived := h.archive.all()
	require.Len(t, archived, 1)
	assert.Equal(t, "CompressionService", archived[0].Service)
	assert.Equal(t, "complete", archived[0].Operation)
	assert.NotZero(t, archived[0].Timestamp)

	assert.Equal(t, 1, h.analytics.Pending())

	require.Eventually(t, func() bool {
		select {
		case payload := <-fanout:
			return payload.(models.CompleteEvent).OperationID == "op-1"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorIgnoresOwnLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	h.orchestrator.onServiceComplete(ctx, bus.Event{Payload: models.CompleteEvent{
		Service:     h.orchestrator.Name(),
		OperationID: "op-1",
	}})

	assert.Empty(t, h.orchestrator.History().Entries())
	assert.Empty(t, h.archive.all())
}

func TestOrchestratorRecordsServiceErrors(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	fanout := collectEvents(t, h.bus, models.TopicProcessingError)
	h.orchestrator.onServiceError(ctx, bus.Event{Payload: models.ErrorEvent{
		Service:     "AIService",
		OperationID: "op-2",
		Message:     "model unavailable",
	}})

	entries := h.orchestrator.History().Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "model unavailable", entries[0].Error)

	archived := h.archive.all()
	require.Len(t, archived, 1)
	assert.Equal(t, "error", archived[0].Operation)

	require.Eventually(t, func() bool {
		select {
		case payload := <-fanout:
			return payload.(models.ErrorEvent).Message == "model unavailable"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorRoutesDispatchFailures(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, nil)

	notifications := collectEvents(t, h.bus, models.TopicNotification)
	h.orchestrator.handleFailure(ctx, "CompressionService", "compress", errdomain.New(errdomain.KindNetwork, "backend down"))

	var n models.Notification
	require.Eventually(t, func() bool {
		select {
		case payload := <-notifications:
			n = payload.(models.Notification)
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "warning", n.Level)
	assert.True(t, n.Retriable)
	assert.Equal(t, "backend down", n.Message)
}

func TestOrchestratorCompressionIntentEndToEnd(t *testing.T) {
	ctx := context.Background()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/compress/single" {
			_, _ = w.Write([]byte("compressed"))
			return
		}
		http.NotFound(w, r)
	})
	h := newOrchestratorHarness(t, handler)
	h.saveFile(t, "f1", "doc.pdf", []byte("%PDF-1.4 original content"))

	h.orchestrator.onCompressionRequested(ctx, bus.Event{Payload: models.ProcessingRequest{
		FileID:  "f1",
		Options: map[string]any{"compressionLevel": "low", "imageQuality": float64(90)},
	}})

	listings, err := h.storage.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)

	var derived *models.FileListing
	for i := range listings {
		if listings[i].ID != "f1" {
			derived = &listings[i]
		}
	}
	require.NotNil(t, derived)
	assert.Equal(t, "f1", derived.Metadata.OriginalFileID)
	assert.Equal(t, models.ProcessingCompression, derived.Metadata.ProcessingType)
}

func TestOrchestratorSurfacesValidationRejections(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, http.NotFoundHandler())
	notifications := collectEvents(t, h.bus, models.TopicNotification)

	require.NoError(t, h.bus.Publish(ctx, models.TopicFileValidationError, validation.Result{
		Errors: []string{"file does not start with a PDF signature"},
	}))

	var note models.Notification
	require.Eventually(t, func() bool {
		select {
		case payload := <-notifications:
			note = payload.(models.Notification)
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "warning", note.Level)
	assert.Equal(t, "file does not start with a PDF signature", note.Message)
	assert.False(t, note.Retriable)
	assert.Equal(t, 1, h.analytics.Pending())
}

func TestOrchestratorCancelRoutesToTargetService(t *testing.T) {
	ctx := context.Background()
	h := newOrchestratorHarness(t, http.NotFoundHandler())
	notifications := collectEvents(t, h.bus, models.TopicNotification)

	// Nothing is running, so the cancel falls through without a
	// notification. Unknown services are ignored outright.
	h.orchestrator.onCancelRequested(ctx, bus.Event{Payload: models.CancelEvent{
		Service:     "CompressionService",
		OperationID: "op-1",
	}})
	h.orchestrator.onCancelRequested(ctx, bus.Event{Payload: models.CancelEvent{
		Service:     "NoSuchService",
		OperationID: "op-1",
	}})

	select {
	case payload := <-notifications:
		t.Fatalf("unexpected notification: %+v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCompressionOptionsFromJSONNumbers(t *testing.T) {
	opts := compressionOptionsFrom(map[string]any{
		"compressionLevel": "high",
		"imageQuality":     float64(75),
		"serverProcessing": true,
	})
	assert.Equal(t, "high", opts.CompressionLevel)
	assert.Equal(t, 75, opts.ImageQuality)
	assert.True(t, opts.ServerProcessing)
}

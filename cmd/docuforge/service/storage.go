package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

const fileKeyPrefix = "file_"

// persistedFile is the KV record layout for one stored file. The blob is
// carried as a JSON []byte, which round-trips byte-faithfully via base64.
type persistedFile struct {
	ID       string              `json:"id"`
	Data     []byte              `json:"data"`
	MimeType string              `json:"mimeType"`
	Metadata models.FileMetadata `json:"metadata"`
}

// Storage is the file plane: the single owner of FileRecord blobs and
// metadata. Every other component reads and writes files through it.
type Storage struct {
	*Base
	kv  kvstore.Store
	log *logger.Logger

	cacheMu   sync.RWMutex
	blobCache map[string]models.Blob
	metaCache map[string]models.FileMetadata

	saveMu sync.Mutex
	saving map[string]bool
}

// NewStorage creates the storage service.
func NewStorage(kv kvstore.Store, b *bus.Bus, log *logger.Logger) *Storage {
	return &Storage{
		Base:      NewBase("StorageService", 100, b, log),
		kv:        kv,
		log:       log.WithService("StorageService"),
		blobCache: make(map[string]models.Blob),
		metaCache: make(map[string]models.FileMetadata),
		saving:    make(map[string]bool),
	}
}

// Init scans the persistent tier for file records and warms the metadata
// cache. Blobs stay lazy until first read.
func (s *Storage) Init(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return errdomain.Wrap(errdomain.KindFile, "scan persistent tier", err)
	}

	loaded := 0
	for _, key := range keys {
		if !strings.HasPrefix(key, fileKeyPrefix) {
			continue
		}
		var rec persistedFile
		found, err := s.kv.Get(ctx, key, &rec)
		if err != nil || !found {
			continue
		}
		s.cacheMu.Lock()
		s.metaCache[rec.ID] = rec.Metadata
		s.cacheMu.Unlock()
		loaded++
	}

	s.log.Info("storage initialized", "files", loaded)
	return s.Base.Init(ctx)
}

// SaveFile persists a blob and its metadata under id, replacing any prior
// record with the same id. Defaults are merged into the metadata; size is
// always the blob length at save time. A concurrent save for the same id
// is rejected with ErrBusy.
func (s *Storage) SaveFile(ctx context.Context, id string, blob models.Blob, meta models.FileMetadata) error {
	if id == "" || len(blob.Data) == 0 {
		return errdomain.New(errdomain.KindValidation, "file id and blob are required")
	}

	s.saveMu.Lock()
	if s.saving[id] {
		s.saveMu.Unlock()
		return errdomain.ErrBusy
	}
	s.saving[id] = true
	s.mu.Lock()
	s.processing = true
	s.mu.Unlock()
	s.saveMu.Unlock()

	defer func() {
		s.saveMu.Lock()
		delete(s.saving, id)
		busy := len(s.saving) > 0
		s.mu.Lock()
		s.processing = busy
		s.mu.Unlock()
		s.saveMu.Unlock()
	}()

	s.EmitProgress(ctx, id, 0, "Preparing file", nil)

	merged := mergeMetadataDefaults(id, blob, meta)
	s.EmitProgress(ctx, id, 25, "Encoding file", nil)

	rec := persistedFile{
		ID:       id,
		Data:     blob.Data,
		MimeType: blob.MimeType,
		Metadata: merged,
	}

	s.EmitProgress(ctx, id, 50, "Writing file", nil)
	if err := s.kv.Put(ctx, fileKeyPrefix+id, rec, nil); err != nil {
		wrapped := errdomain.Wrap(errdomain.KindFile, "persist file", err)
		s.EmitError(ctx, id, wrapped, "saveFile")
		return wrapped
	}

	s.cacheMu.Lock()
	s.blobCache[id] = blob
	s.metaCache[id] = merged
	s.cacheMu.Unlock()

	s.EmitProgress(ctx, id, 100, "File saved", nil)
	s.EmitComplete(ctx, id, map[string]any{"fileId": id, "metadata": merged}, "File saved")
	_ = s.bus.Publish(ctx, models.TopicFileSaved, models.FileSavedEvent{
		FileID:   id,
		Metadata: merged,
		Size:     merged.Size,
	})

	return nil
}

func mergeMetadataDefaults(id string, blob models.Blob, meta models.FileMetadata) models.FileMetadata {
	if meta.Name == "" {
		meta.Name = "file_" + id
	}
	if meta.Type == "" {
		meta.Type = models.FileTypeOriginal
	}
	if meta.MimeType == "" {
		if blob.MimeType != "" {
			meta.MimeType = blob.MimeType
		} else {
			meta.MimeType = "application/octet-stream"
		}
	}
	if meta.Timestamp == 0 {
		meta.Timestamp = models.NowMillis()
	}
	meta.Size = blob.Size()
	meta.Processed = meta.Type == models.FileTypeProcessed
	return meta
}

// GetFile returns the full record or nil when absent. Cached blob and
// metadata are served directly; otherwise the persisted record is read and
// the blob materialized.
func (s *Storage) GetFile(ctx context.Context, id string) (*models.FileRecord, error) {
	s.cacheMu.RLock()
	blob, haveBlob := s.blobCache[id]
	meta, haveMeta := s.metaCache[id]
	s.cacheMu.RUnlock()

	if haveBlob && haveMeta {
		return &models.FileRecord{ID: id, Blob: blob, Metadata: meta}, nil
	}

	var rec persistedFile
	found, err := s.kv.Get(ctx, fileKeyPrefix+id, &rec)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindFile, "read file", err)
	}
	if !found {
		return nil, nil
	}

	blob = models.Blob{Data: rec.Data, MimeType: rec.MimeType}
	s.cacheMu.Lock()
	s.blobCache[id] = blob
	s.metaCache[id] = rec.Metadata
	s.cacheMu.Unlock()

	return &models.FileRecord{ID: id, Blob: blob, Metadata: rec.Metadata}, nil
}

// GetFileMetadata is the metadata-only path; it never materializes a blob
// into the cache.
func (s *Storage) GetFileMetadata(ctx context.Context, id string) (*models.FileMetadata, error) {
	s.cacheMu.RLock()
	meta, ok := s.metaCache[id]
	s.cacheMu.RUnlock()
	if ok {
		out := meta
		return &out, nil
	}

	var rec persistedFile
	found, err := s.kv.Get(ctx, fileKeyPrefix+id, &rec)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindFile, "read file metadata", err)
	}
	if !found {
		return nil, nil
	}

	s.cacheMu.Lock()
	s.metaCache[id] = rec.Metadata
	s.cacheMu.Unlock()

	out := rec.Metadata
	return &out, nil
}

// GetAllFiles lists every stored file, newest first.
func (s *Storage) GetAllFiles(ctx context.Context) ([]models.FileListing, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindFile, "scan persistent tier", err)
	}

	listings := make([]models.FileListing, 0, len(keys))
	seen := make(map[string]bool)

	for _, key := range keys {
		if !strings.HasPrefix(key, fileKeyPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, fileKeyPrefix)
		meta, err := s.GetFileMetadata(ctx, id)
		if err != nil || meta == nil {
			continue
		}
		listings = append(listings, models.FileListing{ID: id, Metadata: *meta})
		seen[id] = true
	}

	// Records that never hit the durable tier (fallback mode) still live
	// in the metadata cache.
	s.cacheMu.RLock()
	for id, meta := range s.metaCache {
		if !seen[id] {
			listings = append(listings, models.FileListing{ID: id, Metadata: meta})
		}
	}
	s.cacheMu.RUnlock()

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Metadata.Timestamp > listings[j].Metadata.Timestamp
	})

	return listings, nil
}

// DeleteFile removes blob and metadata atomically from the persistent tier
// and emits fileDeleted. Deleting an original never cascades to its
// processed derivatives.
func (s *Storage) DeleteFile(ctx context.Context, id string) error {
	meta, err := s.GetFileMetadata(ctx, id)
	if err != nil {
		return err
	}
	if meta == nil {
		return errdomain.Newf(errdomain.KindFile, "file %s not found", id)
	}

	if err := s.kv.Remove(ctx, fileKeyPrefix+id); err != nil {
		return errdomain.Wrap(errdomain.KindFile, "delete file", err)
	}

	s.cacheMu.Lock()
	delete(s.blobCache, id)
	delete(s.metaCache, id)
	s.cacheMu.Unlock()

	_ = s.bus.Publish(ctx, models.TopicFileDeleted, models.FileDeletedEvent{
		FileID:       id,
		WasProcessed: meta.Processed,
	})

	s.log.Info("file deleted", "file_id", id, "was_processed", meta.Processed)
	return nil
}

// UpdateMetadata applies a JSON merge patch to the file's metadata. The id
// and size survive any patch; lastModified is rewritten.
func (s *Storage) UpdateMetadata(ctx context.Context, id string, patch map[string]any) (*models.FileMetadata, error) {
	var rec persistedFile
	found, err := s.kv.Get(ctx, fileKeyPrefix+id, &rec)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindFile, "read file", err)
	}
	if !found {
		return nil, errdomain.Newf(errdomain.KindFile, "file %s not found", id)
	}

	current, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindValidation, "encode metadata patch", err)
	}

	mergedJSON, err := jsonpatch.MergePatch(current, patchJSON)
	if err != nil {
		return nil, errdomain.Wrap(errdomain.KindValidation, "apply metadata patch", err)
	}

	var merged models.FileMetadata
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("unmarshal merged metadata: %w", err)
	}

	// Invariants the patch cannot break.
	merged.Size = rec.Metadata.Size
	merged.Processed = merged.Type == models.FileTypeProcessed
	merged.LastModified = models.NowMillis()

	rec.Metadata = merged
	if err := s.kv.Put(ctx, fileKeyPrefix+id, rec, nil); err != nil {
		return nil, errdomain.Wrap(errdomain.KindFile, "persist metadata", err)
	}

	s.cacheMu.Lock()
	s.metaCache[id] = merged
	s.cacheMu.Unlock()

	_ = s.bus.Publish(ctx, models.TopicMetadataUpdated, models.MetadataUpdatedEvent{
		FileID:   id,
		Metadata: merged,
	})

	out := merged
	return &out, nil
}

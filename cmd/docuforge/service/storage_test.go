package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/docuforge/common/errdomain"
	"github.com/docuforge/docuforge/common/logger"
	"github.com/docuforge/docuforge/common/models"
)

func TestStorageSaveAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	data := []byte("%PDF-1.4\nbinary\x00payload")
	err := s.SaveFile(ctx, "f1", models.Blob{Data: data, MimeType: "application/pdf"}, models.FileMetadata{Name: "doc.pdf"})
	require.NoError(t, err)

	got, err := s.GetFile(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, data, got.Blob.Data)
	assert.Equal(t, "application/pdf", got.Blob.MimeType)
	assert.Equal(t, "doc.pdf", got.Metadata.Name)
}

func TestStorageSaveMergesMetadataDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	blob := models.Blob{Data: []byte("content"), MimeType: "application/pdf"}
	require.NoError(t, s.SaveFile(ctx, "f1", blob, models.FileMetadata{}))

	meta, err := s.GetFileMetadata(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "file_f1", meta.Name)
	assert.Equal(t, models.FileTypeOriginal, meta.Type)
	assert.Equal(t, "application/pdf", meta.MimeType)
	assert.Equal(t, int64(len("content")), meta.Size)
	assert.False(t, meta.Processed)
	assert.NotZero(t, meta.Timestamp)
}

func TestStorageSizeAlwaysMatchesBlob(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	blob := models.Blob{Data: []byte("twelve bytes"), MimeType: "application/pdf"}
	require.NoError(t, s.SaveFile(ctx, "f1", blob, models.FileMetadata{Size: 9999}))

	meta, err := s.GetFileMetadata(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, blob.Size(), meta.Size)
}

func TestStorageRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	err := s.SaveFile(ctx, "", models.Blob{Data: []byte("x")}, models.FileMetadata{})
	assert.Equal(t, errdomain.KindValidation, errdomain.KindOf(err))

	err = s.SaveFile(ctx, "f1", models.Blob{}, models.FileMetadata{})
	assert.Equal(t, errdomain.KindValidation, errdomain.KindOf(err))
}

func TestStorageConcurrentSaveSameIDIsBusy(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	s.saveMu.Lock()
	s.saving["f1"] = true
	s.saveMu.Unlock()

	err := s.SaveFile(ctx, "f1", models.Blob{Data: []byte("x")}, models.FileMetadata{})
	assert.ErrorIs(t, err, errdomain.ErrBusy)

	// A different id is unaffected.
	err = s.SaveFile(ctx, "f2", models.Blob{Data: []byte("x")}, models.FileMetadata{})
	assert.NoError(t, err)
}

func TestStorageGetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	got, err := s.GetFile(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	meta, err := s.GetFileMetadata(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestStorageDeleteDoesNotCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	require.NoError(t, s.SaveFile(ctx, "orig", models.Blob{Data: []byte("original")}, models.FileMetadata{Name: "a.pdf"}))
	require.NoError(t, s.SaveFile(ctx, "derived", models.Blob{Data: []byte("smaller")}, models.FileMetadata{
		Name:           "a_compressed.pdf",
		Type:           models.FileTypeProcessed,
		OriginalFileID: "orig",
		ProcessingType: models.ProcessingCompression,
	}))

	require.NoError(t, s.DeleteFile(ctx, "orig"))

	gone, err := s.GetFile(ctx, "orig")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.GetFile(ctx, "derived")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "orig", kept.Metadata.OriginalFileID)
	assert.True(t, kept.Metadata.Processed)
}

func TestStorageDeleteMissingFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	err := s.DeleteFile(ctx, "nope")
	assert.Equal(t, errdomain.KindFile, errdomain.KindOf(err))
}

func TestStorageGetAllFilesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	require.NoError(t, s.SaveFile(ctx, "old", models.Blob{Data: []byte("a")}, models.FileMetadata{Timestamp: 1000}))
	require.NoError(t, s.SaveFile(ctx, "mid", models.Blob{Data: []byte("b")}, models.FileMetadata{Timestamp: 2000}))
	require.NoError(t, s.SaveFile(ctx, "new", models.Blob{Data: []byte("c")}, models.FileMetadata{Timestamp: 3000}))

	listings, err := s.GetAllFiles(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, "new", listings[0].ID)
	assert.Equal(t, "mid", listings[1].ID)
	assert.Equal(t, "old", listings[2].ID)
}

func TestStorageUpdateMetadataPreservesInvariants(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	require.NoError(t, s.SaveFile(ctx, "f1", models.Blob{Data: []byte("payload")}, models.FileMetadata{Name: "old.pdf"}))

	updated, err := s.UpdateMetadata(ctx, "f1", map[string]any{"name": "new.pdf", "size": 1})
	require.NoError(t, err)
	assert.Equal(t, "new.pdf", updated.Name)
	assert.Equal(t, int64(len("payload")), updated.Size)
	assert.NotZero(t, updated.LastModified)

	// The patched record is what subsequent reads return.
	meta, err := s.GetFileMetadata(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "new.pdf", meta.Name)
}

func TestStorageUpdateMetadataMissingFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestBus())

	_, err := s.UpdateMetadata(ctx, "nope", map[string]any{"name": "x"})
	assert.Equal(t, errdomain.KindFile, errdomain.KindOf(err))
}

func TestStorageInitWarmsMetadataCache(t *testing.T) {
	ctx := context.Background()
	b := newTestBus()
	kv := newTestKV()

	first := NewStorage(kv, b, logger.Discard())
	require.NoError(t, first.SaveFile(ctx, "f1", models.Blob{Data: []byte("x"), MimeType: "application/pdf"}, models.FileMetadata{Name: "doc.pdf"}))

	// A fresh instance over the same tier sees the record without a save.
	second := NewStorage(kv, b, logger.Discard())
	require.NoError(t, second.Init(ctx))

	meta, err := second.GetFileMetadata(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "doc.pdf", meta.Name)
}

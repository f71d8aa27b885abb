package models

import "time"

// File type tags.
const (
	FileTypeOriginal  = "original"
	FileTypeProcessed = "processed"
)

// Processing type tags recorded on derived files.
const (
	ProcessingCompression   = "compression"
	ProcessingOCR           = "ocr"
	ProcessingSummarize     = "summarize"
	ProcessingTranslate     = "translate"
	ProcessingCloudDownload = "cloud_download"
)

// Blob is an opaque byte payload with its declared content type.
type Blob struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
}

// Size returns the blob length in bytes.
func (b Blob) Size() int64 { return int64(len(b.Data)) }

// FileMetadata describes a stored file. Size always equals the blob length
// at save time; updates through the metadata path never touch it.
type FileMetadata struct {
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	Type           string `json:"type"`
	MimeType       string `json:"mimeType"`
	Timestamp      int64  `json:"timestamp"`
	Processed      bool   `json:"processed"`
	OriginalFileID string `json:"originalFileId,omitempty"`
	ProcessingType string `json:"processingType,omitempty"`
	LastModified   int64  `json:"lastModified,omitempty"`
}

// FileRecord is the unit of local storage: blob plus metadata under an
// opaque unique id.
type FileRecord struct {
	ID       string       `json:"id"`
	Blob     Blob         `json:"-"`
	Metadata FileMetadata `json:"metadata"`
}

// FileListing is the metadata-only view returned by list operations.
type FileListing struct {
	ID       string       `json:"id"`
	Metadata FileMetadata `json:"metadata"`
}

// NowMillis returns the current time as epoch milliseconds, the unit all
// file timestamps are recorded in.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

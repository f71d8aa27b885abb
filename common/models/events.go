package models

// Intent topics published by the UI facade and consumed by the orchestrator.
const (
	TopicFileUploaded           = "fileUploaded"
	TopicFileValidationError    = "fileValidationError"
	TopicCompressionRequested   = "compressionRequested"
	TopicConversionRequested    = "conversionRequested"
	TopicDownloadRequested      = "downloadRequested"
	TopicFileDeleteRequested    = "fileDeleteRequested"
	TopicRequestFileList        = "requestFileList"
	TopicFileDownloadRequested  = "fileDownloadRequested"
	TopicClearAllFilesRequested = "clearAllFilesRequested"
	TopicAIProcessingRequested  = "aiProcessingRequested"
	TopicOCRProcessingRequested = "ocrProcessingRequested"
	TopicCloudUploadRequested   = "cloudUploadRequested"
	TopicCloudDownloadRequested = "cloudDownloadRequested"
	TopicCancelRequested        = "operationCancelRequested"
)

// Correlation topics pairing a blob request with its response.
const (
	TopicFileRequested = "fileRequested"
	TopicFileResponse  = "fileResponse"
)

// Service lifecycle topics emitted by every processing service.
const (
	TopicServiceProgress = "service.progress"
	TopicServiceComplete = "service.complete"
	TopicServiceError    = "service.error"
	TopicServiceStatus   = "service.statusChanged"
	TopicServiceReady    = "service.ready"
)

// Outbound topics fanned to UI components.
const (
	TopicProcessingComplete = "processingComplete"
	TopicProcessingError    = "processingError"
	TopicNotification       = "notification"
	TopicFileSaved          = "fileSaved"
	TopicFileDeleted        = "fileDeleted"
	TopicMetadataUpdated    = "metadataUpdated"
	TopicFileListUpdated    = "fileListUpdated"
	TopicFileDownloadReady  = "fileDownloadReady"
	TopicStateChanged       = "appState:stateChanged"
	TopicAuthStateChanged   = "auth-state-changed"
)

// ProgressEvent reports interim progress of a service operation.
type ProgressEvent struct {
	Service     string         `json:"service"`
	OperationID string         `json:"operationId,omitempty"`
	Percentage  int            `json:"percentage"`
	Message     string         `json:"message,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   int64          `json:"timestamp"`
}

// CompleteEvent reports the terminal success of a service operation.
type CompleteEvent struct {
	Service     string `json:"service"`
	OperationID string `json:"operationId,omitempty"`
	Result      any    `json:"result"`
	Message     string `json:"message,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// ErrorEvent reports the terminal failure of a service operation.
type ErrorEvent struct {
	Service     string `json:"service"`
	OperationID string `json:"operationId,omitempty"`
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// StatusEvent reports a service status transition.
type StatusEvent struct {
	Service   string         `json:"service"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// FileRequestEvent asks the orchestrator to resolve a blob by id.
type FileRequestEvent struct {
	FileID    string `json:"fileId"`
	RequestID string `json:"requestId"`
}

// FileResponseEvent answers exactly one FileRequestEvent, matching on both
// FileID and RequestID.
type FileResponseEvent struct {
	FileID    string      `json:"fileId"`
	RequestID string      `json:"requestId"`
	File      *FileRecord `json:"-"`
	Error     string      `json:"error,omitempty"`
}

// FileUploadedEvent carries a validated file into the file plane.
type FileUploadedEvent struct {
	FileID   string       `json:"fileId"`
	Blob     Blob         `json:"-"`
	Metadata FileMetadata `json:"metadata"`
}

// FileSavedEvent is emitted after a successful save.
type FileSavedEvent struct {
	FileID   string       `json:"fileId"`
	Metadata FileMetadata `json:"metadata"`
	Size     int64        `json:"size"`
}

// FileDeletedEvent is emitted after a successful delete.
type FileDeletedEvent struct {
	FileID       string `json:"fileId"`
	WasProcessed bool   `json:"wasProcessed"`
}

// MetadataUpdatedEvent is emitted after a metadata patch.
type MetadataUpdatedEvent struct {
	FileID   string       `json:"fileId"`
	Metadata FileMetadata `json:"metadata"`
}

// ProcessingRequest is the shared shape of compression, conversion, OCR, AI
// and cloud intents.
type ProcessingRequest struct {
	FileID   string         `json:"fileId"`
	FileIDs  []string       `json:"fileIds,omitempty"`
	Service  string         `json:"service,omitempty"`
	Provider string         `json:"provider,omitempty"`
	RemoteID string         `json:"remoteId,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// CancelEvent asks a service to abort one of its in-flight operations.
type CancelEvent struct {
	Service     string `json:"service"`
	OperationID string `json:"operationId"`
}

// ClearAllFilesEvent requests removal of every stored file.
type ClearAllFilesEvent struct {
	FileCount int `json:"fileCount"`
}

// Notification is a user-visible message routed to the notification surface.
type Notification struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// StateChangedEvent mirrors an app-state mutation onto the bus.
type StateChangedEvent struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	OldValue  any    `json:"oldValue"`
	Timestamp int64  `json:"timestamp"`
}

// AuthStateEvent reports authentication transitions.
type AuthStateEvent struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	User            map[string]any `json:"user"`
	Timestamp       int64          `json:"timestamp"`
}

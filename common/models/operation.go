package models

import "time"

// OperationStatus is the lifecycle state of a service operation.
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusRunning   OperationStatus = "running"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
	StatusCancelled OperationStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ServiceOperation is one externally requested execution of a processing
// service's primary action.
type ServiceOperation struct {
	ID        string          `json:"id"`
	Service   string          `json:"service"`
	Operation string          `json:"operation"`
	FileIDs   []string        `json:"fileIds,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	Status    OperationStatus `json:"status"`
	Progress  int             `json:"progress"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime,omitempty"`
	Result    any             `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HistoryEntry is one element of a service's bounded history ring.
type HistoryEntry struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Service   string         `json:"service"`
	Operation string         `json:"operation"`
	FileIDs   []string       `json:"fileIds,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Success   bool           `json:"success"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

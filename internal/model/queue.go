package model

import "time"

// QueueStatus is the lifecycle state of a queued CSV.
type QueueStatus string

// Queue statuses. Transitions are queued -> processing -> completed|error.
const (
	StatusQueued     QueueStatus = "queued"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusError      QueueStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// QueueItem tracks an oversized CSV that is processed by the worker pool.
type QueueItem struct {
	ID               string      `json:"id"`
	Filename         string      `json:"filename"`
	CSVURL           string      `json:"csv_url"`
	Content          string      `json:"-"`
	FileSize         int         `json:"file_size"`
	TotalRecords     int         `json:"total_records"`
	IMO              string      `json:"imo"`
	SourceEmail      string      `json:"source_email,omitempty"`
	Status           QueueStatus `json:"processing_status"`
	Priority         int         `json:"queue_priority"`
	ProcessedRecords int         `json:"processed_records"`
	NewRecords       int         `json:"new_records"`
	UpdatedRecords   int         `json:"updated_records"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	ProcessedAt      *time.Time  `json:"processed_at,omitempty"`
}

// QueueStatusResult is the response of a queue status lookup.
type QueueStatusResult struct {
	Success    bool        `json:"success"`
	QueueItems []QueueItem `json:"queue_items"`
	Error      string      `json:"error,omitempty"`
}

// ProcessNextResult is the outcome of processing the next queued item.
// QueueItem is nil when the queue was empty.
type ProcessNextResult struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	QueueItem *QueueItem `json:"queue_item"`
	Error     string     `json:"error,omitempty"`
}

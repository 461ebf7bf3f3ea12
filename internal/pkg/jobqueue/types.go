package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReceiptArchive JobType = "receipt_archive"
	JobTypeReconcileSweep JobType = "reconcile_sweep"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ReceiptArchiveJobPayload identifies a committed receipt to copy to object storage
type ReceiptArchiveJobPayload struct {
	TransactionID uint   `json:"transaction_id"`
	ReceiptNumber string `json:"receipt_number"`
}

// ToMap converts the payload to a map for storage
func (p ReceiptArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": p.TransactionID,
		"receipt_number": p.ReceiptNumber,
	}
}

// ReceiptArchiveJobPayloadFromMap creates a payload from a map
func ReceiptArchiveJobPayloadFromMap(data map[string]interface{}) (*ReceiptArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ReceiptArchiveJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ReconcileSweepJobPayload is a manually requested sweep
type ReconcileSweepJobPayload struct {
	RequestedBy string `json:"requested_by"`
}

func (p ReconcileSweepJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"requested_by": p.RequestedBy,
	}
}

func ReconcileSweepJobPayloadFromMap(data map[string]interface{}) (*ReconcileSweepJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload ReconcileSweepJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

package jobqueue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{ID: "j1", Type: JobTypeReceiptArchive, Status: JobStatusPending, MaxRetries: 2}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.False(t, job.IsRetryable(), "only failed jobs are retryable")

	job.MarkAsFailed("boom again")
	assert.False(t, job.IsRetryable(), "retries exhausted")

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestReceiptArchivePayload_SurvivesJSON(t *testing.T) {
	in := ReceiptArchiveJobPayload{TransactionID: 12, ReceiptNumber: "RCP-00000012"}

	// Payloads go through Redis as JSON, so numbers come back as float64.
	raw, err := json.Marshal(in.ToMap())
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))

	out, err := ReceiptArchiveJobPayloadFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestReconcileSweepPayload_FromMap(t *testing.T) {
	out, err := ReconcileSweepJobPayloadFromMap(ReconcileSweepJobPayload{RequestedBy: "admin"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "admin", out.RequestedBy)

	_, err = ReceiptArchiveJobPayloadFromMap(map[string]interface{}{"transaction_id": "x"})
	assert.Error(t, err)
}

package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const isolatedJobQueueTestRedisDB = 14

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		maxRetries      int
		expectedWorkers int
		expectedRetries int
	}{
		{"Valid worker count", 5, 1, 5, 1},
		{"Zero workers", 0, 0, DefaultWorkers, 0},
		{"Negative values", -1, -1, DefaultWorkers, DefaultMaxRetries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers, tt.maxRetries)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedRetries, queue.maxRetries)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.processors)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "docpay:job:", JobKeyPrefix)
	assert.Equal(t, "docpay:job_queue", JobQueueKey)
	assert.Equal(t, "docpay:job_processing", JobProcessingKey)
	assert.Equal(t, "docpay:job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}

func newTestQueue(t *testing.T, maxRetries int) *Queue {
	t.Helper()
	client := cache.NewIsolatedTestClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1, maxRetries)
	q.retryBackoff = time.Hour
	return q
}

func TestQueue_EnqueueAndProcess(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	var got *ReceiptArchiveJobPayload
	q.Register(JobTypeReceiptArchive, func(ctx context.Context, job *Job) error {
		p, err := ReceiptArchiveJobPayloadFromMap(job.Payload)
		got = p
		return err
	})

	job, err := q.EnqueueJob(ctx, JobTypeReceiptArchive, ReceiptArchiveJobPayload{TransactionID: 7, ReceiptNumber: "RCP-00000007"}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxRetries)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, dequeued.ID)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, processing)

	q.processJob(ctx, dequeued)

	require.NotNil(t, got)
	assert.Equal(t, uint(7), got.TransactionID)
	assert.Equal(t, "RCP-00000007", got.ReceiptNumber)

	processing, err = q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)

	_, err = q.GetJob(ctx, job.ID)
	assert.Error(t, err, "completed jobs are removed")

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[JobStatusPending])
	assert.EqualValues(t, 1, stats[JobStatusCompleted])
}

func TestQueue_FailedJobIsRetried(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx := context.Background()
	q.Register(JobTypeReceiptArchive, func(context.Context, *Job) error {
		return errors.New("bucket unavailable")
	})

	job, err := q.EnqueueJob(ctx, JobTypeReceiptArchive, ReceiptArchiveJobPayload{TransactionID: 1}.ToMap())
	require.NoError(t, err)
	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)

	q.processJob(ctx, dequeued)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "bucket unavailable", stored.ErrorMsg)

	// Last attempt fails permanently.
	q.processJob(ctx, stored)
	stored, err = q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)

	stats, err := q.GetJobStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[JobStatusFailed])
}

func TestQueue_UnknownTypeFailsWithoutRetry(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobType("nope"), nil)
	require.NoError(t, err)
	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	q.processJob(ctx, dequeued)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMsg, "no processor registered")
}

func TestQueue_RecoverStuck(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeReceiptArchive, nil)
	require.NoError(t, err)
	dequeued, err := q.dequeueJob(ctx)
	require.NoError(t, err)

	dequeued.MarkAsProcessing()
	old := time.Now().Add(-time.Hour)
	dequeued.ProcessedAt = &old
	q.updateJob(ctx, dequeued)

	// A processing entry whose job data is gone is dropped.
	require.NoError(t, q.client.LPush(ctx, JobProcessingKey, "ghost").Err())

	n, err := q.RecoverStuck(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestQueue_WorkersProcessJobs(t *testing.T) {
	q := newTestQueue(t, 0)
	done := make(chan uint, 1)
	q.Register(JobTypeReceiptArchive, func(_ context.Context, job *Job) error {
		p, err := ReceiptArchiveJobPayloadFromMap(job.Payload)
		if err != nil {
			return err
		}
		done <- p.TransactionID
		return nil
	})

	q.Start()
	defer q.Stop()

	_, err := q.EnqueueJob(context.Background(), JobTypeReceiptArchive, ReceiptArchiveJobPayload{TransactionID: 42}.ToMap())
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.Equal(t, uint(42), id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
}

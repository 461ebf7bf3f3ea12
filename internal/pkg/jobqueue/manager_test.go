package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, sweep SweepFunc) *Manager {
	t.Helper()
	q := newTestQueue(t, 1)
	return NewManager(q.client, q, sweep, config.ReconcileConfig{LeaseTTL: time.Minute})
}

func TestNewManager_RegistersSweepProcessor(t *testing.T) {
	q := NewQueue(nil, 1, 0)
	m := NewManager(nil, q, nil, config.ReconcileConfig{})

	_, ok := q.processor(JobTypeReconcileSweep)
	assert.True(t, ok)
	assert.Same(t, q, m.GetQueue())
	assert.Equal(t, 5*time.Minute, m.leaseTTL)
	assert.False(t, m.IsRunning())
}

func TestManager_RunSweepOnce(t *testing.T) {
	calls := 0
	m := newTestManager(t, func(ctx context.Context) (*payment.SweepResult, error) {
		calls++
		return &payment.SweepResult{Scanned: 2, Created: 2}, nil
	})

	res, err := m.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, calls)

	// The lease is released afterwards.
	exists, err := m.client.Exists(context.Background(), SweepLeaseKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestManager_RunSweepOnce_SkipsWhenLeaseHeld(t *testing.T) {
	calls := 0
	m := newTestManager(t, func(ctx context.Context) (*payment.SweepResult, error) {
		calls++
		return &payment.SweepResult{}, nil
	})
	ctx := context.Background()

	other, err := cache.AcquireLease(ctx, m.client, SweepLeaseKey, time.Minute)
	require.NoError(t, err)
	defer other.Release(ctx)

	_, err = m.RunSweepOnce(ctx)
	assert.ErrorIs(t, err, cache.ErrLeaseHeld)
	assert.Zero(t, calls)
}

func TestManager_RunSweepOnce_ReleasesOnError(t *testing.T) {
	m := newTestManager(t, func(ctx context.Context) (*payment.SweepResult, error) {
		return nil, errors.New("db down")
	})
	ctx := context.Background()

	_, err := m.RunSweepOnce(ctx)
	assert.EqualError(t, err, "db down")

	lease, err := cache.AcquireLease(ctx, m.client, SweepLeaseKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestManager_RequestSweep(t *testing.T) {
	calls := 0
	m := newTestManager(t, func(ctx context.Context) (*payment.SweepResult, error) {
		calls++
		return &payment.SweepResult{}, nil
	})
	ctx := context.Background()

	job, err := m.RequestSweep(ctx, "ops@city.gov.ph")
	require.NoError(t, err)
	assert.Equal(t, JobTypeReconcileSweep, job.Type)

	dequeued, err := m.queue.dequeueJob(ctx)
	require.NoError(t, err)
	m.queue.processJob(ctx, dequeued)
	assert.Equal(t, 1, calls)

	// A held lease means a sweep is already running; the job still completes.
	other, err := cache.AcquireLease(ctx, m.client, SweepLeaseKey, time.Minute)
	require.NoError(t, err)
	defer other.Release(ctx)
	assert.NoError(t, m.processReconcileSweepJob(ctx, dequeued))
	assert.Equal(t, 1, calls)
}

func TestManager_StartStop(t *testing.T) {
	swept := make(chan struct{}, 1)
	q := newTestQueue(t, 1)
	m := NewManager(q.client, q, func(ctx context.Context) (*payment.SweepResult, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return &payment.SweepResult{}, nil
	}, config.ReconcileConfig{Interval: 50 * time.Millisecond, LeaseTTL: time.Minute})

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sweep did not run")
	}

	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManager_RunSweepOnce_RedisDownStillSweeps(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	q := NewQueue(client, 1, 0)
	m := NewManager(client, q, func(ctx context.Context) (*payment.SweepResult, error) {
		calls++
		return &payment.SweepResult{Created: 1}, nil
	}, config.ReconcileConfig{LeaseTTL: time.Minute})

	res, err := m.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, calls)
}

func TestManager_RunSweepOnce_ExtendsLeaseDuringLongSweep(t *testing.T) {
	q := newTestQueue(t, 1)
	ttl := 300 * time.Millisecond
	var remaining time.Duration
	m := NewManager(q.client, q, func(ctx context.Context) (*payment.SweepResult, error) {
		time.Sleep(2 * ttl)
		var err error
		remaining, err = q.client.PTTL(ctx, SweepLeaseKey).Result()
		return &payment.SweepResult{}, err
	}, config.ReconcileConfig{LeaseTTL: ttl})

	_, err := m.RunSweepOnce(context.Background())
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0), "lease still held after outliving its TTL")

	exists, err := q.client.Exists(context.Background(), SweepLeaseKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// SweepLeaseKey guards the reconciliation sweep across instances.
const SweepLeaseKey = "docpay:lease:reconcile_sweep"

// SweepFunc runs one reconciliation pass.
type SweepFunc func(ctx context.Context) (*payment.SweepResult, error)

// Manager owns the job queue and the periodic reconciliation sweep
type Manager struct {
	queue    *Queue
	client   *redis.Client
	sweep    SweepFunc
	interval time.Duration
	leaseTTL time.Duration

	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewManager wires the queue to the sweep and registers the
// reconcile_sweep processor. An interval of 0 disables the schedule; manual
// sweeps still run through the queue.
func NewManager(client *redis.Client, queue *Queue, sweep SweepFunc, cfg config.ReconcileConfig) *Manager {
	m := &Manager{
		queue:    queue,
		client:   client,
		sweep:    sweep,
		interval: cfg.Interval,
		leaseTTL: cfg.LeaseTTL,
		stopCh:   make(chan struct{}),
	}
	if m.leaseTTL <= 0 {
		m.leaseTTL = 5 * time.Minute
	}
	queue.Register(JobTypeReconcileSweep, m.processReconcileSweepJob)
	return m
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.interval > 0 {
		m.sweepTicker = time.NewTicker(m.interval)
		m.wg.Add(1)
		go m.sweepWorker()
		log.Infof("[JobQueue Manager] Reconciliation sweep every %s", m.interval)
	} else {
		log.Info("[JobQueue Manager] Scheduled reconciliation sweep disabled")
	}
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.leaseTTL)
			if _, err := m.RunSweepOnce(ctx); err != nil && !errors.Is(err, cache.ErrLeaseHeld) {
				log.Errorf("[Reconcile] Scheduled sweep error: %v", err)
			}
			cancel()
		}
	}
}

// RunSweepOnce runs one sweep while holding the Redis lease. It returns
// cache.ErrLeaseHeld when another instance is sweeping. When Redis cannot be
// reached the sweep runs without the lease; the database constraints keep a
// concurrent run harmless.
func (m *Manager) RunSweepOnce(ctx context.Context) (*payment.SweepResult, error) {
	lease, err := cache.AcquireLease(ctx, m.client, SweepLeaseKey, m.leaseTTL)
	switch {
	case errors.Is(err, cache.ErrLeaseHeld):
		log.Debug("[Reconcile] Sweep skipped, lease held elsewhere")
		return nil, err
	case err != nil:
		log.Warnf("[Reconcile] Sweep lease unavailable, sweeping without it: %v", err)
		return m.sweep(ctx)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			log.Warnf("[Reconcile] Could not release sweep lease: %v", err)
		}
	}()

	stop := m.keepLease(lease)
	defer stop()

	return m.sweep(ctx)
}

// keepLease extends lease every third of its TTL until stop is called, so a
// sweep that outlives the TTL keeps other instances out.
func (m *Manager) keepLease(lease *cache.Lease) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(m.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), m.leaseTTL/3)
				err := lease.Extend(ctx)
				cancel()
				if err != nil {
					log.Warnf("[Reconcile] Could not extend sweep lease: %v", err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// RequestSweep queues a manual sweep.
func (m *Manager) RequestSweep(ctx context.Context, requestedBy string) (*Job, error) {
	return m.queue.EnqueueJob(ctx, JobTypeReconcileSweep, ReconcileSweepJobPayload{RequestedBy: requestedBy}.ToMap())
}

func (m *Manager) processReconcileSweepJob(ctx context.Context, job *Job) error {
	p, err := ReconcileSweepJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	log.Infof("[Reconcile] Manual sweep requested by %q", p.RequestedBy)

	_, err = m.RunSweepOnce(ctx)
	if errors.Is(err, cache.ErrLeaseHeld) {
		// A sweep is already running; it covers this request.
		return nil
	}
	return err
}

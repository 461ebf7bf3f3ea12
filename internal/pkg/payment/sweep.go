package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// Sweeper repairs succeeded transactions that have no receipt and requests
// whose payment_status projection has drifted.
type Sweeper struct {
	repo      Repository
	batchSize int
	hooks     []ReceiptHook
	now       func() time.Time
}

// NewSweeper creates a sweeper. batchSize <= 0 processes every orphan.
func NewSweeper(repo Repository, batchSize int) *Sweeper {
	return &Sweeper{repo: repo, batchSize: batchSize, now: time.Now}
}

// OnReceiptIssued registers hooks called for every receipt the sweep creates.
func (s *Sweeper) OnReceiptIssued(hooks ...ReceiptHook) {
	s.hooks = append(s.hooks, hooks...)
}

// FindOrphans lists succeeded transactions without a receipt, oldest first.
func (s *Sweeper) FindOrphans(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	return s.repo.FindOrphanTransactions(ctx, limit)
}

// Repair issues a receipt for every orphan, each in its own DB transaction,
// then fixes drifted projections. Per-row failures are collected and never
// abort the run, so the sweep can be re-run at any time.
func (s *Sweeper) Repair(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{StartedAt: s.now()}

	orphans, err := s.FindOrphans(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("find orphan transactions: %w", err)
	}
	res.Scanned = len(orphans)

	for _, t := range orphans {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			receipt *models.Receipt
			created bool
		)
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			issuer := NewReceiptIssuer(tx)
			issuer.now = s.now
			var err error
			receipt, created, err = issuer.IssueForTransaction(ctx, t.ID)
			return err
		})
		if err != nil {
			log.Warnf("[Reconcile] Receipt for transaction %d failed: %v", t.ID, err)
			res.Failed++
			res.Failures = append(res.Failures, SweepFailure{TransactionID: t.ID, Error: err.Error()})
			continue
		}
		if !created {
			res.AlreadyIssued++
			continue
		}
		res.Created++
		res.Receipts = append(res.Receipts, receipt.TransactionID)
		for _, h := range s.hooks {
			h.ReceiptIssued(ctx, receipt)
		}
	}

	fixed, err := s.repairProjections(ctx)
	if err != nil {
		return res, err
	}
	res.ProjectionsFixed = fixed
	res.FinishedAt = s.now()

	log.Infof("[Reconcile] Sweep done: scanned=%d created=%d already_issued=%d failed=%d projections_fixed=%d",
		res.Scanned, res.Created, res.AlreadyIssued, res.Failed, res.ProjectionsFixed)
	return res, nil
}

// FindProjectionDrift lists requests whose payment_status disagrees with
// their transactions.
func (s *Sweeper) FindProjectionDrift(ctx context.Context, limit int) ([]ProjectionDrift, error) {
	return s.repo.FindProjectionDrift(ctx, limit)
}

func (s *Sweeper) repairProjections(ctx context.Context) (int, error) {
	drifts, err := s.repo.FindProjectionDrift(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("find projection drift: %w", err)
	}

	fixed := 0
	for _, d := range drifts {
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			return NewStateMachine(tx).syncRequestProjection(ctx, d.RequestID)
		})
		if err != nil {
			log.Warnf("[Reconcile] Projection repair for request %d failed: %v", d.RequestID, err)
			continue
		}
		log.Infof("[Reconcile] Request %s payment_status %s -> %s", d.RequestNumber, d.Stored, d.Derived)
		fixed++
	}
	return fixed, nil
}

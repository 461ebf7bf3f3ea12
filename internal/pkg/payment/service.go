package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Service runs the payment reconciliation pipeline: webhook intake, status
// transitions, receipt issuance and the reconciliation sweep.
type Service struct {
	repo     Repository
	verifier *paymongo.Verifier
	sweeper  *Sweeper
	hooks    []ReceiptHook
	now      func() time.Time
}

// NewService creates a payment service from an injected repository.
func NewService(repo Repository, verifier *paymongo.Verifier, batchSize int) *Service {
	s := &Service{
		repo:     repo,
		verifier: verifier,
		sweeper:  NewSweeper(repo, batchSize),
		now:      time.Now,
	}
	s.sweeper.OnReceiptIssued(ReceiptHookFunc(s.notifyReceipt))
	return s
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, verifier *paymongo.Verifier, batchSize int) *Service {
	return NewService(NewRepository(db), verifier, batchSize)
}

// OnReceiptIssued registers hooks called after a receipt was committed.
func (s *Service) OnReceiptIssued(hooks ...ReceiptHook) {
	s.hooks = append(s.hooks, hooks...)
}

// Sweeper exposes the reconciliation sweep.
func (s *Service) Sweeper() *Sweeper {
	return s.sweeper
}

// HandleWebhook verifies, deduplicates and applies one gateway delivery.
// ErrInvalidSignature and paymongo.ErrInvalidEnvelope are returned before
// anything is persisted. Any other error means the unit of work was rolled
// back and the gateway should retry.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	if s.verifier == nil || !s.verifier.Verify(payload, signatureHeader) {
		return nil, ErrInvalidSignature
	}

	ev, err := paymongo.ParseEvent(payload)
	if err != nil {
		return nil, err
	}
	return s.ProcessEvent(ctx, ev, payload)
}

// ProcessEvent applies an already verified event.
func (s *Service) ProcessEvent(ctx context.Context, ev *paymongo.Event, payload []byte) (*WebhookResult, error) {
	res := &WebhookResult{EventID: ev.ID, EventType: ev.Type}

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		dedup := NewDeduplicator(tx)
		fresh, err := dedup.ShouldProcess(ctx, ev.ID, ev.Type, payload)
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
		if !fresh {
			res.Duplicate = true
			res.Outcome = OutcomeDuplicate
			return nil
		}

		target, ok := TargetStatusForEvent(ev.Type)
		if !ok {
			log.Debugf("[Webhook] Ignoring event %s of type %s", ev.ID, ev.Type)
			res.Outcome = models.WebhookOutcomeIgnored
			return dedup.MarkProcessed(ctx, ev.ID, res.Outcome)
		}

		sm := NewStateMachine(tx)
		sm.now = s.now
		tr, err := sm.Apply(ctx, ev.Refs(), transitionFromEvent(ev, target))
		if err != nil {
			return err
		}
		res.Transition = tr
		res.Outcome = outcomeFor(tr)
		return dedup.MarkProcessed(ctx, ev.ID, res.Outcome)
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		log.Infof("[Webhook] Duplicate event %s (%s) acknowledged", ev.ID, ev.Type)
		return res, nil
	}
	if res.Transition != nil && res.Transition.ReceiptCreated {
		s.notifyReceipt(ctx, res.Transition.Receipt)
	}
	return res, nil
}

// ConfirmInPersonPayment marks a pending transaction as paid after an
// administrator verified a cash or over-the-counter payment.
func (s *Service) ConfirmInPersonPayment(ctx context.Context, transactionID uint, verifiedBy string) (*TransitionResult, error) {
	verifiedBy = strings.TrimSpace(verifiedBy)
	if verifiedBy == "" {
		return nil, ErrVerifierRequired
	}

	var res *TransitionResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		sm := NewStateMachine(tx)
		sm.now = s.now
		var err error
		res, err = sm.ApplyByID(ctx, transactionID, TransitionInput{
			Target: models.TransactionStatusSucceeded,
			Source: models.TransitionSourceAdmin,
			Note:   "verified by " + verifiedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Reason == ReasonTransactionNotFound {
		return res, ErrTransactionNotFound
	}
	if res.ReceiptCreated {
		s.notifyReceipt(ctx, res.Receipt)
	}
	return res, nil
}

// IssueReceipt issues (or returns) the receipt for a succeeded transaction.
func (s *Service) IssueReceipt(ctx context.Context, transactionID uint) (*models.Receipt, bool, error) {
	var (
		receipt *models.Receipt
		created bool
	)
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		issuer := NewReceiptIssuer(tx)
		issuer.now = s.now
		var err error
		receipt, created, err = issuer.IssueForTransaction(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.notifyReceipt(ctx, receipt)
	}
	return receipt, created, nil
}

// GetReceipt returns the stored receipt for a transaction.
func (s *Service) GetReceipt(ctx context.Context, transactionID uint) (*models.Receipt, error) {
	return s.repo.FindReceiptByTransactionID(ctx, transactionID)
}

// GetTransactionByGatewayRef resolves a local transaction for tooling.
func (s *Service) GetTransactionByGatewayRef(ctx context.Context, ref string) (*models.PaymentTransaction, error) {
	return s.repo.FindTransactionByGatewayRef(ctx, strings.TrimSpace(ref))
}

// ListWebhookEvents returns the most recent deliveries.
func (s *Service) ListWebhookEvents(ctx context.Context, limit int) ([]models.PaymentWebhookEvent, error) {
	return s.repo.ListWebhookEvents(ctx, limit)
}

// FindOrphans lists succeeded transactions without a receipt.
func (s *Service) FindOrphans(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	return s.sweeper.FindOrphans(ctx, limit)
}

// Repair runs the reconciliation sweep once.
func (s *Service) Repair(ctx context.Context) (*SweepResult, error) {
	return s.sweeper.Repair(ctx)
}

func (s *Service) notifyReceipt(ctx context.Context, receipt *models.Receipt) {
	if receipt == nil {
		return
	}
	for _, h := range s.hooks {
		h.ReceiptIssued(ctx, receipt)
	}
}

func transitionFromEvent(ev *paymongo.Event, target models.TransactionStatus) TransitionInput {
	p := ev.Payment()
	in := TransitionInput{
		Target:            target,
		Source:            models.TransitionSourceWebhook,
		EventID:           ev.ID,
		Note:              ev.Type,
		ProcessingFee:     paymongo.NullCentavos(p.Fee),
		NetAmount:         paymongo.NullCentavos(p.NetAmount),
		ReportedAmount:    paymongo.NullCentavos(p.Amount),
		PaymentMethodCode: p.SourceType,
	}
	if target != models.TransactionStatusSucceeded {
		in.ProcessingFee.Valid = false
		in.NetAmount.Valid = false
		in.ReportedAmount.Valid = false
	}
	switch {
	case p.PaidAt != nil:
		in.OccurredAt = *p.PaidAt
	case !ev.CreatedAt.IsZero():
		in.OccurredAt = ev.CreatedAt
	}
	return in
}

func outcomeFor(tr *TransitionResult) string {
	switch {
	case tr.Applied:
		return models.WebhookOutcomeApplied
	case tr.Reason == ReasonTransactionNotFound:
		return models.WebhookOutcomeNotFound
	case tr.Reason == ReasonConcurrentUpdate:
		return models.WebhookOutcomeConcurrentUpdate
	default:
		return models.WebhookOutcomeInvalidTransition
	}
}

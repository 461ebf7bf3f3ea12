package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/gofiber/fiber/v2/log"
)

var allowedTransitions = map[models.TransactionStatus][]models.TransactionStatus{
	models.TransactionStatusPending:   {models.TransactionStatusSucceeded, models.TransactionStatusFailed},
	models.TransactionStatusSucceeded: {models.TransactionStatusRefunded},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to models.TransactionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TargetStatusForEvent maps a gateway event type to the status it drives the
// transaction to. ok is false for event types the pipeline ignores.
func TargetStatusForEvent(eventType string) (models.TransactionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case paymongo.EventPaymentPaid, paymongo.EventLinkPaymentPaid:
		return models.TransactionStatusSucceeded, true
	case paymongo.EventPaymentFailed:
		return models.TransactionStatusFailed, true
	case paymongo.EventPaymentRefunded:
		return models.TransactionStatusRefunded, true
	default:
		return "", false
	}
}

// StateMachine applies transitions through a transaction-bound repository.
type StateMachine struct {
	repo Repository
	now  func() time.Time
}

// NewStateMachine creates a state machine over repo. repo should be bound to
// the caller's DB transaction.
func NewStateMachine(repo Repository) *StateMachine {
	return &StateMachine{repo: repo, now: time.Now}
}

// Apply resolves the transaction by gateway reference and applies in.
func (m *StateMachine) Apply(ctx context.Context, gatewayRefs []string, in TransitionInput) (*TransitionResult, error) {
	t, err := m.repo.FindTransactionByGatewayRef(ctx, gatewayRefs...)
	if err != nil {
		if isNotFound(err) {
			log.Warnf("[Payment] No transaction for gateway refs %v (event=%s)", gatewayRefs, in.EventID)
			return &TransitionResult{Reason: ReasonTransactionNotFound}, nil
		}
		return nil, fmt.Errorf("lookup transaction: %w", err)
	}
	return m.apply(ctx, t, in)
}

// ApplyByID applies in to the transaction with the given internal id. Only
// the admin path uses internal ids.
func (m *StateMachine) ApplyByID(ctx context.Context, transactionID uint, in TransitionInput) (*TransitionResult, error) {
	t, err := m.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		if isNotFound(err) {
			return &TransitionResult{Reason: ReasonTransactionNotFound, TransactionID: transactionID}, nil
		}
		return nil, fmt.Errorf("lookup transaction: %w", err)
	}
	return m.apply(ctx, t, in)
}

func (m *StateMachine) apply(ctx context.Context, t *models.PaymentTransaction, in TransitionInput) (*TransitionResult, error) {
	res := &TransitionResult{
		TransactionID: t.ID,
		RequestID:     t.RequestID,
		FromStatus:    t.Status,
		NewStatus:     t.Status,
	}

	if !CanTransition(t.Status, in.Target) {
		log.Warnf("[Payment] Rejected transition %s -> %s for transaction %d (event=%s)", t.Status, in.Target, t.ID, in.EventID)
		res.Reason = ReasonInvalidTransition
		return res, nil
	}

	if in.ReportedAmount.Valid && !in.ReportedAmount.Decimal.Equal(t.Amount) {
		log.Warnf("[Payment] Gateway amount %s differs from recorded amount %s for transaction %d",
			in.ReportedAmount.Decimal.StringFixed(2), t.Amount.StringFixed(2), t.ID)
	}

	occurred := in.OccurredAt
	if occurred.IsZero() {
		occurred = m.now()
	}

	updates := map[string]interface{}{}
	if in.Target == models.TransactionStatusSucceeded || in.Target == models.TransactionStatusFailed {
		updates["completed_at"] = &occurred
	}
	if in.ProcessingFee.Valid || in.NetAmount.Valid {
		fee := in.ProcessingFee
		if !fee.Valid {
			fee = t.ProcessingFee
		}
		net := models.ComputeNetAmount(t.Amount, fee, in.NetAmount)
		if fee.Valid {
			updates["processing_fee"] = fee
		}
		if net.Valid {
			updates["net_amount"] = net
		}
	}
	if in.PaymentMethodCode != "" && t.PaymentMethodID == nil {
		pm, err := m.repo.FindPaymentMethodByCode(ctx, in.PaymentMethodCode)
		switch {
		case err == nil:
			updates["payment_method_id"] = pm.ID
		case isNotFound(err):
			log.Debugf("[Payment] Unknown payment method code %q for transaction %d", in.PaymentMethodCode, t.ID)
		default:
			return nil, fmt.Errorf("lookup payment method: %w", err)
		}
	}

	ok, err := m.repo.CompareAndSetTransactionStatus(ctx, t.ID, t.Status, in.Target, updates)
	if err != nil {
		return nil, fmt.Errorf("update transaction status: %w", err)
	}
	if !ok {
		log.Warnf("[Payment] Transaction %d changed concurrently, %s -> %s not applied", t.ID, t.Status, in.Target)
		res.Reason = ReasonConcurrentUpdate
		return res, nil
	}

	if err := m.repo.AppendStatusHistory(ctx, &models.PaymentStatusHistory{
		TransactionID: t.ID,
		FromStatus:    t.Status,
		ToStatus:      in.Target,
		Source:        in.Source,
		EventID:       in.EventID,
		Note:          in.Note,
	}); err != nil {
		return nil, fmt.Errorf("append status history: %w", err)
	}

	if err := m.syncRequestProjection(ctx, t.RequestID); err != nil {
		return nil, err
	}

	res.Applied = true
	res.NewStatus = in.Target
	log.Infof("[Payment] Transaction %d %s -> %s (source=%s event=%s)", t.ID, t.Status, in.Target, in.Source, in.EventID)

	if in.Target == models.TransactionStatusSucceeded {
		m.issueReceipt(ctx, res)
	}
	return res, nil
}

// syncRequestProjection recomputes payment_status from the transaction table
// and, when the request becomes paid, advances it to the payment_confirmed
// stage.
func (m *StateMachine) syncRequestProjection(ctx context.Context, requestID uint) error {
	req, err := m.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load document request %d: %w", requestID, err)
	}
	derived, err := m.repo.DerivePaymentStatus(ctx, requestID)
	if err != nil {
		return fmt.Errorf("derive payment status: %w", err)
	}

	var stageID *uint
	if derived == models.RequestPaymentPaid && req.PaymentStatus != models.RequestPaymentPaid {
		stage, err := m.repo.FindRequestStatusByName(ctx, models.RequestStagePaymentConfirmed)
		switch {
		case err == nil:
			stageID = &stage.ID
		case isNotFound(err):
			log.Warnf("[Payment] Request stage %q missing, request %d keeps status_id %d", models.RequestStagePaymentConfirmed, requestID, req.StatusID)
		default:
			return fmt.Errorf("lookup request stage: %w", err)
		}
	}

	if derived == req.PaymentStatus && stageID == nil {
		return nil
	}
	if err := m.repo.UpdateRequestProjection(ctx, requestID, derived, stageID); err != nil {
		return fmt.Errorf("update request projection: %w", err)
	}
	return nil
}

// issueReceipt runs the issuer inside a savepoint so a failure leaves the
// status transition intact and the transaction becomes an orphan for the
// sweep.
func (m *StateMachine) issueReceipt(ctx context.Context, res *TransitionResult) {
	var (
		receipt *models.Receipt
		created bool
	)
	err := m.repo.Transaction(ctx, func(sp Repository) error {
		var err error
		issuer := NewReceiptIssuer(sp)
		issuer.now = m.now
		receipt, created, err = issuer.IssueForTransaction(ctx, res.TransactionID)
		return err
	})
	if err != nil {
		log.Errorf("[Payment] Receipt issuance failed for transaction %d, left for reconciliation: %v", res.TransactionID, err)
		res.ReceiptError = err.Error()
		return
	}
	res.Receipt = receipt
	res.ReceiptCreated = created
}

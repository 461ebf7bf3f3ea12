package payment

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/DocPay/app/models"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrTransactionNotFound     = errors.New("payment transaction not found")
	ErrTransactionNotSucceeded = errors.New("payment transaction has not succeeded")
	ErrReceiptSourceIncomplete = errors.New("receipt source data incomplete")
	ErrVerifierRequired        = errors.New("verifier name is required")
)

// Transition rejection reasons reported on TransitionResult.
const (
	ReasonTransactionNotFound = "transaction_not_found"
	ReasonInvalidTransition   = "invalid_transition"
	ReasonConcurrentUpdate    = "concurrent_update"
)

// OutcomeDuplicate is reported for deliveries that were already processed.
const OutcomeDuplicate = "duplicate"

// FallbackPaymentMethod is printed on receipts when neither the transaction
// nor the request names a payment method.
const FallbackPaymentMethod = "Unspecified"

// TransitionInput describes a requested status change.
type TransitionInput struct {
	Target     models.TransactionStatus
	Source     string
	EventID    string
	Note       string
	OccurredAt time.Time

	// Optional figures reported by the gateway.
	ProcessingFee     decimal.NullDecimal
	NetAmount         decimal.NullDecimal
	ReportedAmount    decimal.NullDecimal
	PaymentMethodCode string
}

// TransitionResult reports what Apply did. Applied=false is a normal outcome.
type TransitionResult struct {
	Applied       bool                     `json:"applied"`
	Reason        string                   `json:"reason,omitempty"`
	TransactionID uint                     `json:"transaction_id,omitempty"`
	RequestID     uint                     `json:"request_id,omitempty"`
	FromStatus    models.TransactionStatus `json:"from_status,omitempty"`
	NewStatus     models.TransactionStatus `json:"new_status,omitempty"`

	Receipt        *models.Receipt `json:"receipt,omitempty"`
	ReceiptCreated bool            `json:"receipt_created"`
	ReceiptError   string          `json:"receipt_error,omitempty"`
}

// WebhookResult is the outcome of one webhook delivery.
type WebhookResult struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Duplicate  bool              `json:"duplicate"`
	Outcome    string            `json:"outcome"`
	Transition *TransitionResult `json:"transition,omitempty"`
}

// SweepFailure records one orphan the sweep could not repair.
type SweepFailure struct {
	TransactionID uint   `json:"transaction_id"`
	Error         string `json:"error"`
}

// SweepResult summarizes one reconciliation run.
type SweepResult struct {
	Scanned          int            `json:"scanned"`
	Created          int            `json:"created"`
	AlreadyIssued    int            `json:"already_issued"`
	Failed           int            `json:"failed"`
	ProjectionsFixed int            `json:"projections_fixed"`
	Failures         []SweepFailure `json:"failures,omitempty"`
	Receipts         []uint         `json:"receipts,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

// ReceiptSource is the joined row a receipt is frozen from.
type ReceiptSource struct {
	TransactionID         uint
	Status                models.TransactionStatus
	Amount                decimal.Decimal
	ProcessingFee         decimal.NullDecimal
	NetAmount             decimal.NullDecimal
	Currency              string
	ExternalTransactionID string
	PaymentIntentID       *string
	Description           string
	CompletedAt           *time.Time

	RequestID     uint
	RequestNumber string

	ClientID    uint
	FirstName   string
	MiddleName  string
	LastName    string
	Suffix      string
	ClientEmail string
	ClientPhone string

	DocumentType  string
	PaymentMethod *string
}

// ProjectionDrift is a request whose cached payment_status disagrees with its
// transactions.
type ProjectionDrift struct {
	RequestID     uint   `json:"request_id"`
	RequestNumber string `json:"request_number"`
	Stored        string `json:"stored"`
	Derived       string `json:"derived"`
}

// ReceiptHook is notified after a receipt has been committed.
type ReceiptHook interface {
	ReceiptIssued(ctx context.Context, receipt *models.Receipt)
}

// ReceiptHookFunc adapts a function to ReceiptHook.
type ReceiptHookFunc func(ctx context.Context, receipt *models.Receipt)

func (f ReceiptHookFunc) ReceiptIssued(ctx context.Context, receipt *models.Receipt) {
	f(ctx, receipt)
}

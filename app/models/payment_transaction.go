package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionStatus is the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// DefaultCurrency is used when the gateway omits a currency.
const DefaultCurrency = "PHP"

// PaymentTransaction is a single payment attempt against a document request.
// Rows are never deleted; status changes are recorded in PaymentStatusHistory.
type PaymentTransaction struct {
	ID                    uint                `gorm:"primaryKey" json:"id"`
	RequestID             uint                `gorm:"not null;index" json:"request_id"`
	ExternalTransactionID string              `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_transactions_external_id" json:"external_transaction_id"`
	PaymentIntentID       *string             `gorm:"type:varchar(191);index" json:"payment_intent_id,omitempty"`
	Amount                decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"amount"`
	ProcessingFee         decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"processing_fee"`
	NetAmount             decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"net_amount"`
	Currency              string              `gorm:"type:varchar(3);not null;default:'PHP'" json:"currency"`
	Status                TransactionStatus   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethodID       *uint               `gorm:"index" json:"payment_method_id,omitempty"`
	Description           string              `gorm:"type:varchar(255)" json:"description"`
	CreatedAt             time.Time           `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt           *time.Time          `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	UpdatedAt             time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	Request       *DocumentRequest `gorm:"foreignKey:RequestID" json:"request,omitempty"`
	PaymentMethod *PaymentMethod   `gorm:"foreignKey:PaymentMethodID" json:"payment_method,omitempty"`
}

// ComputeNetAmount returns amount - fee when the fee is known, otherwise the
// provided net value unchanged.
func ComputeNetAmount(amount decimal.Decimal, fee, net decimal.NullDecimal) decimal.NullDecimal {
	if !fee.Valid {
		return net
	}
	return decimal.NewNullDecimal(amount.Sub(fee.Decimal))
}

// IsTerminal reports whether no further transition is possible from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusFailed || s == TransactionStatusRefunded
}

// FindTransactionByGatewayRef resolves a transaction by the identifiers the
// gateway knows about. Refs are tried in order against
// external_transaction_id first. Only when none matches does the payment
// intent decide, since one intent can carry several attempts; then a pending
// attempt wins over a live one, and a live one over a terminal one, newest
// first within each group.
func FindTransactionByGatewayRef(db *gorm.DB, refs ...string) (*PaymentTransaction, error) {
	clean := make([]string, 0, len(refs))
	for _, r := range refs {
		if r != "" {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	for _, ref := range clean {
		var t PaymentTransaction
		err := db.Where("external_transaction_id = ?", ref).First(&t).Error
		if err == nil {
			return &t, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var siblings []PaymentTransaction
	if err := db.Where("payment_intent_id IN ?", clean).Order("id DESC").Find(&siblings).Error; err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	best := 0
	for i := range siblings {
		if attemptRank(siblings[i].Status) < attemptRank(siblings[best].Status) {
			best = i
		}
	}
	return &siblings[best], nil
}

func attemptRank(s TransactionStatus) int {
	switch {
	case s == TransactionStatusPending:
		return 0
	case !s.IsTerminal():
		return 1
	default:
		return 2
	}
}

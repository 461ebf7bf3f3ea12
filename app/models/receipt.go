package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Receipt is the immutable proof of a succeeded payment. All display fields
// are frozen at issuance; reference table edits never change issued receipts.
type Receipt struct {
	ID                    uint                `gorm:"primaryKey" json:"id"`
	ReceiptNumber         string              `gorm:"type:varchar(32);not null;uniqueIndex" json:"receipt_number"`
	TransactionID         uint                `gorm:"not null;uniqueIndex:ux_receipts_transaction_id" json:"transaction_id"`
	RequestID             uint                `gorm:"not null;index" json:"request_id"`
	ClientID              uint                `gorm:"not null;index" json:"client_id"`
	ClientName            string              `gorm:"type:varchar(255);not null" json:"client_name"`
	ClientEmail           string              `gorm:"type:varchar(200)" json:"client_email"`
	ClientPhone           string              `gorm:"type:varchar(30)" json:"client_phone"`
	RequestNumber         string              `gorm:"type:varchar(50);not null" json:"request_number"`
	DocumentType          string              `gorm:"type:varchar(150);not null" json:"document_type"`
	PaymentMethod         string              `gorm:"type:varchar(100);not null" json:"payment_method"`
	Amount                decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"amount"`
	ProcessingFee         decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"processing_fee"`
	NetAmount             decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"net_amount"`
	Currency              string              `gorm:"type:varchar(3);not null" json:"currency"`
	ExternalTransactionID string              `gorm:"type:varchar(191);not null" json:"external_transaction_id"`
	PaymentIntentID       *string             `gorm:"type:varchar(191)" json:"payment_intent_id,omitempty"`
	PaymentStatus         string              `gorm:"type:varchar(20);not null" json:"payment_status"`
	ReceiptDate           time.Time           `gorm:"type:timestamp;not null" json:"receipt_date"`
	PaymentDate           *time.Time          `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	Description           string              `gorm:"type:varchar(255)" json:"description"`
	CreatedAt             time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// ReceiptNumberFor derives the receipt number from the transaction id.
func ReceiptNumberFor(transactionID uint) string {
	return fmt.Sprintf("RCP-%08d", transactionID)
}

// BeforeUpdate rejects edits; a correction needs a new transaction.
func (r *Receipt) BeforeUpdate(tx *gorm.DB) error {
	return ErrReceiptImmutable
}

// FindReceiptByTransactionID returns the receipt issued for a transaction.
func FindReceiptByTransactionID(db *gorm.DB, transactionID uint) (*Receipt, error) {
	var r Receipt
	if err := db.Where("transaction_id = ?", transactionID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

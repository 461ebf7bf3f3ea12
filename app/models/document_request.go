package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Request payment projection values.
const (
	RequestPaymentPending = "pending"
	RequestPaymentPaid    = "paid"
)

// DocumentRequest is a resident's request for a civil document.
// PaymentStatus is a cached projection of the owned transactions: it is "paid"
// exactly when at least one transaction has succeeded.
type DocumentRequest struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	RequestNumber   string          `gorm:"type:varchar(50);not null;uniqueIndex" json:"request_number"`
	ClientID        uint            `gorm:"not null;index" json:"client_id"`
	DocumentTypeID  uint            `gorm:"not null;index" json:"document_type_id"`
	StatusID        uint            `gorm:"not null;index" json:"status_id"`
	PaymentMethodID *uint           `gorm:"index" json:"payment_method_id,omitempty"`
	PaymentStatus   string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"`
	BaseFee         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"base_fee"`
	ProcessingFee   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"processing_fee"`
	TotalFee        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_fee"`
	Purpose         string          `gorm:"type:varchar(255)" json:"purpose"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Client       *Client       `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	DocumentType *DocumentType `gorm:"foreignKey:DocumentTypeID" json:"document_type,omitempty"`
	Status       *RequestStatus `gorm:"foreignKey:StatusID" json:"status,omitempty"`
}

// DerivePaymentStatus computes the projection from the transaction table.
func DerivePaymentStatus(db *gorm.DB, requestID uint) (string, error) {
	var n int64
	err := db.Model(&PaymentTransaction{}).
		Where("request_id = ? AND status = ?", requestID, string(TransactionStatusSucceeded)).
		Count(&n).Error
	if err != nil {
		return "", err
	}
	if n > 0 {
		return RequestPaymentPaid, nil
	}
	return RequestPaymentPending, nil
}

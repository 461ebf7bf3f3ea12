package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Workflow stage names used by the payment pipeline.
const (
	RequestStagePendingPayment   = "pending_payment"
	RequestStagePaymentConfirmed = "payment_confirmed"
)

// Client is a resident submitting document requests.
type Client struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FirstName  string    `gorm:"type:varchar(100);not null" json:"first_name"`
	MiddleName string    `gorm:"type:varchar(100)" json:"middle_name"`
	LastName   string    `gorm:"type:varchar(100);not null" json:"last_name"`
	Suffix     string    `gorm:"type:varchar(20)" json:"suffix"`
	Email      string    `gorm:"type:varchar(200);index" json:"email"`
	Phone      string    `gorm:"type:varchar(30)" json:"phone"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// JoinName joins non-empty name parts with single spaces.
func JoinName(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// DocumentType is a kind of civil document that can be requested.
type DocumentType struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"type:varchar(150);not null;uniqueIndex" json:"name"`
	BaseFee   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"base_fee"`
	IsActive  bool            `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentMethod is a payment channel (gcash, card, cash, ...).
type PaymentMethod struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	IsOnline  bool      `gorm:"default:true" json:"is_online"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RequestStatus is a workflow stage of a document request.
type RequestStatus struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:varchar(255)" json:"description"`
}

// FindRequestStatusByName returns the stage row with the given name.
func FindRequestStatusByName(db *gorm.DB, name string) (*RequestStatus, error) {
	var s RequestStatus
	if err := db.Where("name = ?", name).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindPaymentMethodByCode returns the payment method with the given code.
func FindPaymentMethodByCode(db *gorm.DB, code string) (*PaymentMethod, error) {
	var m PaymentMethod
	if err := db.Where("code = ?", strings.ToLower(strings.TrimSpace(code))).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

package models

import "time"

// Transition sources recorded in the status history.
const (
	TransitionSourceWebhook = "webhook"
	TransitionSourceAdmin   = "admin"
)

// PaymentStatusHistory is the append-only audit trail of transaction status changes.
type PaymentStatusHistory struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	TransactionID uint              `gorm:"not null;index" json:"transaction_id"`
	FromStatus    TransactionStatus `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus      TransactionStatus `gorm:"type:varchar(20);not null" json:"to_status"`
	Source        string            `gorm:"type:varchar(20);not null" json:"source"`
	EventID       string            `gorm:"type:varchar(191);default:''" json:"event_id"`
	Note          string            `gorm:"type:varchar(255);default:''" json:"note"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// AllModels lists every table owned by the payment pipeline, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Client{},
		&DocumentType{},
		&PaymentMethod{},
		&RequestStatus{},
		&DocumentRequest{},
		&PaymentTransaction{},
		&PaymentStatusHistory{},
		&Receipt{},
		&PaymentWebhookEvent{},
	}
}

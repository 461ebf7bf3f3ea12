package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook processing outcomes stored on PaymentWebhookEvent.
const (
	WebhookOutcomeApplied           = "applied"
	WebhookOutcomeIgnored           = "ignored"
	WebhookOutcomeNotFound          = "transaction_not_found"
	WebhookOutcomeInvalidTransition = "invalid_transition"
	WebhookOutcomeConcurrentUpdate  = "concurrent_update"
)

// PaymentWebhookEvent stores gateway webhook deliveries keyed by the gateway
// event id for idempotent processing.
type PaymentWebhookEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EventID     string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_webhook_events_event_id" json:"event_id"`
	EventType   string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Processed   bool           `gorm:"not null;default:false;index" json:"processed"`
	Outcome     string         `gorm:"type:varchar(50);default:''" json:"outcome"`
	Payload     datatypes.JSON `json:"payload"`
	ReceivedAt  time.Time      `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
}

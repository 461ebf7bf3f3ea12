package payment

import (
	"context"
	"strings"

	"github.com/ManuelReschke/DocPay/app/models"
	"gorm.io/datatypes"
)

// Deduplicator records webhook deliveries by gateway event id. It must use a
// repository bound to the same DB transaction as the processing it guards,
// so a rolled-back delivery leaves no trace and is retried.
type Deduplicator struct {
	repo Repository
}

// NewDeduplicator creates a deduplicator over repo.
func NewDeduplicator(repo Repository) *Deduplicator {
	return &Deduplicator{repo: repo}
}

// ShouldProcess records the event if unseen and reports whether it still
// needs processing. A stored but unprocessed row means an earlier attempt
// did not finish and is processed again.
func (d *Deduplicator) ShouldProcess(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	event := &models.PaymentWebhookEvent{
		EventID:   strings.TrimSpace(eventID),
		EventType: strings.TrimSpace(eventType),
		Payload:   datatypes.JSON(payload),
	}
	created, stored, err := d.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		return false, err
	}
	if created {
		return true, nil
	}
	return !stored.Processed, nil
}

// MarkProcessed flags the event as handled with the given outcome.
func (d *Deduplicator) MarkProcessed(ctx context.Context, eventID, outcome string) error {
	return d.repo.MarkWebhookEventProcessed(ctx, strings.TrimSpace(eventID), outcome)
}

package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/ManuelReschke/DocPay/internal/pkg/paymongo"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const webhookTimeout = 15 * time.Second

// WebhookController receives PayMongo deliveries.
type WebhookController struct {
	svc *payment.Service
}

func NewWebhookController(svc *payment.Service) *WebhookController {
	return &WebhookController{svc: svc}
}

// HandlePayMongoWebhook answers 200 for processed and already processed
// deliveries. Anything else makes the gateway retry.
func (wc *WebhookController) HandlePayMongoWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns.
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(paymongo.SignatureHeader)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := wc.svc.HandleWebhook(ctx, rawBody, signature)
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		log.Warnf("[Webhook] Rejected delivery from %s: invalid signature", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, paymongo.ErrInvalidEnvelope):
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	case err != nil:
		log.Errorf("[Webhook] Processing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	body := fiber.Map{
		"ok":         true,
		"event_id":   res.EventID,
		"event_type": res.EventType,
		"outcome":    res.Outcome,
		"duplicate":  res.Duplicate,
	}
	if tr := res.Transition; tr != nil {
		body["transaction_id"] = tr.TransactionID
		body["applied"] = tr.Applied
		if tr.Receipt != nil {
			body["receipt_number"] = tr.Receipt.ReceiptNumber
		}
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

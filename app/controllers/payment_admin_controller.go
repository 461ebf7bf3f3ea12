package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/DocPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocPay/internal/pkg/payment"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	adminTimeout     = 2 * time.Minute
)

// SweepScheduler runs the reconciliation sweep under the cluster lease.
type SweepScheduler interface {
	RunSweepOnce(ctx context.Context) (*payment.SweepResult, error)
	RequestSweep(ctx context.Context, requestedBy string) (*jobqueue.Job, error)
}

// PaymentAdminController serves the reconciliation and receipt admin API.
type PaymentAdminController struct {
	svc    *payment.Service
	sweeps SweepScheduler
}

// NewPaymentAdminController creates the controller. sweeps may be nil, in
// which case repairs run directly against the database.
func NewPaymentAdminController(svc *payment.Service, sweeps SweepScheduler) *PaymentAdminController {
	return &PaymentAdminController{svc: svc, sweeps: sweeps}
}

func listLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// adminName is the basic auth user set by the admin middleware.
func adminName(c *fiber.Ctx) string {
	if v, ok := c.Locals("username").(string); ok {
		return v
	}
	return ""
}

// HandleListOrphans lists succeeded transactions without a receipt.
func (pc *PaymentAdminController) HandleListOrphans(c *fiber.Ctx) error {
	orphans, err := pc.svc.FindOrphans(c.UserContext(), listLimit(c))
	if err != nil {
		log.Errorf("[Reconcile] Listing orphans failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "orphan_lookup_failed"})
	}
	return c.JSON(fiber.Map{"count": len(orphans), "transactions": orphans})
}

// HandleListProjectionDrift lists requests whose payment_status is stale.
func (pc *PaymentAdminController) HandleListProjectionDrift(c *fiber.Ctx) error {
	drift, err := pc.svc.Sweeper().FindProjectionDrift(c.UserContext(), listLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "drift_lookup_failed"})
	}
	return c.JSON(fiber.Map{"count": len(drift), "requests": drift})
}

// HandleRepair runs the sweep now, or queues it with ?async=true.
func (pc *PaymentAdminController) HandleRepair(c *fiber.Ctx) error {
	if c.QueryBool("async", false) {
		if pc.sweeps == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "job_queue_unavailable"})
		}
		job, err := pc.sweeps.RequestSweep(c.UserContext(), adminName(c))
		if err != nil {
			log.Errorf("[Reconcile] Could not queue sweep: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "job_queue_unavailable"})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ok": true, "job_id": job.ID})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), adminTimeout)
	defer cancel()

	var (
		res *payment.SweepResult
		err error
	)
	if pc.sweeps != nil {
		res, err = pc.sweeps.RunSweepOnce(ctx)
	} else {
		res, err = pc.svc.Repair(ctx)
	}
	if err != nil {
		if errors.Is(err, cache.ErrLeaseHeld) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sweep_in_progress"})
		}
		log.Errorf("[Reconcile] Manual sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed", "result": res})
	}
	return c.JSON(fiber.Map{"ok": true, "result": res})
}

// HandleGetReceipt returns the receipt issued for a transaction.
func (pc *PaymentAdminController) HandleGetReceipt(c *fiber.Ctx) error {
	id, ok := paramID(c, "transaction_id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_transaction_id"})
	}
	receipt, err := pc.svc.GetReceipt(c.UserContext(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "receipt_not_found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "receipt_lookup_failed"})
	}
	return c.JSON(receipt)
}

// HandleIssueReceipt issues the receipt of a succeeded transaction now.
func (pc *PaymentAdminController) HandleIssueReceipt(c *fiber.Ctx) error {
	id, ok := paramID(c, "transaction_id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_transaction_id"})
	}
	receipt, created, err := pc.svc.IssueReceipt(c.UserContext(), id)
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction_not_found"})
	case errors.Is(err, payment.ErrTransactionNotSucceeded):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "transaction_not_succeeded"})
	case err != nil:
		log.Errorf("[Payment] Issuing receipt for transaction %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "receipt_issue_failed"})
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"created": created, "receipt": receipt})
}

type confirmPaymentRequest struct {
	VerifiedBy string `json:"verified_by"`
}

// HandleConfirmPayment records a verified in-person payment.
func (pc *PaymentAdminController) HandleConfirmPayment(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_transaction_id"})
	}
	var req confirmPaymentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
	}
	verifiedBy := strings.TrimSpace(req.VerifiedBy)
	if verifiedBy == "" {
		verifiedBy = adminName(c)
	}

	res, err := pc.svc.ConfirmInPersonPayment(c.UserContext(), id, verifiedBy)
	switch {
	case errors.Is(err, payment.ErrTransactionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "transaction_not_found"})
	case errors.Is(err, payment.ErrVerifierRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "verified_by_required"})
	case err != nil:
		log.Errorf("[Payment] Confirming transaction %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "confirm_failed"})
	}
	if !res.Applied {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": res.Reason, "result": res})
	}
	return c.JSON(fiber.Map{"ok": true, "result": res})
}

// HandleListWebhookEvents lists the most recent gateway deliveries.
func (pc *PaymentAdminController) HandleListWebhookEvents(c *fiber.Ctx) error {
	events, err := pc.svc.ListWebhookEvents(c.UserContext(), listLimit(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_lookup_failed"})
	}
	return c.JSON(fiber.Map{"count": len(events), "events": events})
}

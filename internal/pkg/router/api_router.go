package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Signature-verified in the controller; not rate limited.
	api.Post("/webhooks/paymongo", h.deps.Webhook.HandlePayMongoWebhook)

	h.registerAdminRoutes(api)
}

func (h ApiRouter) registerAdminRoutes(api fiber.Router) {
	if !h.deps.Auth.Enabled() {
		log.Warn("[Router] ADMIN_USER/ADMIN_PASSWORD not set, admin API disabled")
		return
	}

	admin := api.Group("/admin",
		limiter.New(limiter.Config{
			Max:        60,
			Expiration: time.Minute,
			Storage:    h.deps.LimiterStorage,
		}),
		basicauth.New(basicauth.Config{
			Users: map[string]string{h.deps.Auth.User: h.deps.Auth.Password},
			Realm: "DocPay Admin",
			Unauthorized: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
			},
		}),
	)

	pc := h.deps.Admin
	admin.Get("/reconciliation/orphans", pc.HandleListOrphans)
	admin.Get("/reconciliation/drift", pc.HandleListProjectionDrift)
	admin.Post("/reconciliation/repair", pc.HandleRepair)
	admin.Get("/receipts/:transaction_id", pc.HandleGetReceipt)
	admin.Post("/receipts/:transaction_id", pc.HandleIssueReceipt)
	admin.Post("/transactions/:id/confirm", pc.HandleConfirmPayment)
	admin.Get("/webhook-events", pc.HandleListWebhookEvents)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

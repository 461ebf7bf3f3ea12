package router

import (
	"github.com/ManuelReschke/DocPay/app/controllers"
	"github.com/ManuelReschke/DocPay/internal/pkg/config"
	"github.com/gofiber/fiber/v2"
)

// Router registers a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routes are built from.
type Dependencies struct {
	Webhook *controllers.WebhookController
	Admin   *controllers.PaymentAdminController
	Auth    config.AdminConfig
	// LimiterStorage backs the admin rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

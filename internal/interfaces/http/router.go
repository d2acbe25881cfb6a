package http

import (
	"github.com/gofiber/fiber/v2"

	appbilling "github.com/witalo/inova/internal/application/billing"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Orchestrator *appbilling.Orchestrator
	Jobs         appbilling.JobRunner
}

// Router registra las rutas de la API de facturación.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/v1")

	operations := api.Group("/operations")
	billingHandler := NewBillingHandler(deps.Orchestrator, deps.Jobs)
	operations.Post("/:id/billing", billingHandler.Process)
	operations.Get("/:id/billing-status", billingHandler.Status)
	operations.Post("/:id/cancellation", billingHandler.Cancel)
	operations.Post("/:id/cancellation/poll", billingHandler.Poll)
}

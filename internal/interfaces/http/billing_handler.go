package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	appbilling "github.com/witalo/inova/internal/application/billing"
	"github.com/witalo/inova/internal/domain"
)

// errorResponse cuerpo JSON de los errores de la API.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BillingHandler expone el pipeline de facturación electrónica por HTTP.
// El procesamiento pesado va por la cola de trabajos: los endpoints solo
// encolan o disparan ejecuciones puntuales y reportan el estado.
type BillingHandler struct {
	orchestrator *appbilling.Orchestrator
	jobs         appbilling.JobRunner
}

// NewBillingHandler construye el handler.
func NewBillingHandler(orchestrator *appbilling.Orchestrator, jobs appbilling.JobRunner) *BillingHandler {
	return &BillingHandler{orchestrator: orchestrator, jobs: jobs}
}

func operationID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id inválido")
	}
	return id, nil
}

// Process encola el envío del comprobante a SUNAT.
// POST /api/v1/operations/:id/billing
func (h *BillingHandler) Process(c *fiber.Ctx) error {
	id, err := operationID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "VALIDATION", Message: "id de operación inválido"})
	}
	if err := h.jobs.EnqueueBilling(id); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Code: "QUEUE_FULL", Message: err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"operation_id": id,
		"queued":       true,
	})
}

type cancelRequest struct {
	ReasonCode  string `json:"reason_code"`
	Description string `json:"description"`
}

// Cancel inicia la anulación del comprobante. A diferencia del envío, corre
// en línea: el cliente necesita saber de inmediato si la baja partió y con
// qué ticket.
// POST /api/v1/operations/:id/cancellation
func (h *BillingHandler) Cancel(c *fiber.Ctx) error {
	id, err := operationID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "VALIDATION", Message: "id de operación inválido"})
	}
	var in cancelRequest
	if err := c.BodyParser(&in); err != nil && !errors.Is(err, fiber.ErrUnprocessableEntity) {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	result, err := h.orchestrator.CancelDocument(c.Context(), id, in.ReasonCode, in.Description)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(result)
}

// Poll re-consulta el ticket de una anulación pendiente o con error de consulta.
// POST /api/v1/operations/:id/cancellation/poll
func (h *BillingHandler) Poll(c *fiber.Ctx) error {
	id, err := operationID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "VALIDATION", Message: "id de operación inválido"})
	}
	outcome, err := h.orchestrator.PollCancellationTicket(c.Context(), id)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(outcome)
}

// Status devuelve el estado de facturación y los artefactos de la operación.
// GET /api/v1/operations/:id/billing-status
func (h *BillingHandler) Status(c *fiber.Ctx) error {
	id, err := operationID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "VALIDATION", Message: "id de operación inválido"})
	}
	op, err := h.orchestrator.GetOperation(c.Context(), id)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{
		"operation_id":               op.ID,
		"document":                   op.DocumentID(),
		"billing_status":             op.BillingStatus,
		"sunat_response_code":        op.SunatResponseCode,
		"sunat_response_description": op.SunatResponseDescription,
		"sunat_error_description":    op.SunatErrorDescription,
		"hash_code":                  op.HashCode,
		"retry_count":                op.RetryCount,
		"cancellation_ticket":        op.CancellationTicket,
		"xml_file_path":              op.XMLFilePath,
		"signed_xml_file_path":       op.SignedXMLFilePath,
		"cdr_file_path":              op.CDRFilePath,
	})
}

// billingError traduce errores de dominio a códigos HTTP.
func billingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Code: "NOT_FOUND", Message: "operación no encontrada"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotBillable):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Code: "NOT_BILLABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrNotCancellable):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Code: "NOT_CANCELLABLE", Message: err.Error()})
	case errors.Is(err, domain.ErrNoPendingTicket):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Code: "NO_PENDING_TICKET", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(errorResponse{Code: "CONFLICT", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/witalo/inova/internal/domain"
	domainbilling "github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/storage"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

// defaultVoidDescription es el motivo cuando el operador no escribe uno.
const defaultVoidDescription = "Anulación de la operación"

// CancelDocument inicia la anulación de un comprobante ante SUNAT. Facturas
// y notas van por Comunicación de Baja (RA); boletas por Resumen Diario con
// línea anulada (RC). Ambos caminos son asíncronos: SUNAT entrega un ticket
// que se consulta hasta resolverse. Un comprobante en REGISTER (nunca
// enviado) se anula de inmediato sin interacción con SUNAT.
func (o *Orchestrator) CancelDocument(ctx context.Context, operationID int64, reasonCode, description string) (*CancellationResult, error) {
	op, err := o.operations.GetByID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}
	if reasonCode == "" {
		reasonCode = sunatcat.VoidReasonOperacion
	}
	if !sunatcat.ValidVoidReasonCodes[reasonCode] {
		return nil, fmt.Errorf("%w: motivo de anulación %q no reconocido", domain.ErrInvalidInput, reasonCode)
	}
	if description == "" {
		description = defaultVoidDescription
	}

	// Nunca llegó a SUNAT: anulación administrativa inmediata.
	if op.BillingStatus == entity.BillingStatusRegister {
		now := o.now()
		locked, err := o.operations.UpdateBillingGuarded(ctx, op.ID, entity.BillingStatusRegister,
			repository.BillingUpdate{
				BillingStatus:           entity.BillingStatusCancelled,
				CancellationReason:      &reasonCode,
				CancellationDescription: &description,
				CancellationDate:        &now,
			})
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, domain.ErrConflict
		}
		o.log.Info().Int64("operation_id", op.ID).Msg("comprobante sin enviar anulado directamente")
		return &CancellationResult{Success: true, Status: entity.BillingStatusCancelled}, nil
	}

	if !op.IsCancellable() {
		return nil, fmt.Errorf("%w: estado %s", domain.ErrNotCancellable, op.BillingStatus)
	}

	company, err := o.companies.GetByID(ctx, op.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: empresa %d no encontrada", domain.ErrNotCancellable, op.CompanyID)
	}

	now := o.now()
	locked, err := o.operations.UpdateBillingGuarded(ctx, op.ID, op.BillingStatus,
		repository.BillingUpdate{
			BillingStatus:           entity.BillingStatusProcessingCancellation,
			CancellationReason:      &reasonCode,
			CancellationDescription: &description,
			CancellationDate:        &now,
		})
	if err != nil {
		return nil, err
	}
	if !locked {
		o.log.Warn().Int64("operation_id", op.ID).
			Msg("otro proceso tomó la anulación, se omite")
		return &CancellationResult{Success: false, Status: entity.BillingStatusProcessingCancellation}, nil
	}
	op.BillingStatus = entity.BillingStatusProcessingCancellation

	return o.runCancellation(ctx, op, company, description), nil
}

// runCancellation construye, firma y envía el documento de baja; persiste
// el ticket y lo consulta hasta resolverlo o agotar los intentos.
func (o *Orchestrator) runCancellation(ctx context.Context, op *entity.Operation, company *entity.Company, description string) *CancellationResult {
	log := o.log.With().Int64("operation_id", op.ID).Str("document", op.DocumentID()).Logger()

	markError := func(step string, cause error) *CancellationResult {
		msg := truncateError(cause.Error(), o.cfg.ErrorMaxLength)
		if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
			BillingStatus:         entity.BillingStatusCancellationError,
			SunatErrorDescription: &msg,
		}); err != nil {
			log.Error().Err(err).Msg("no se pudo persistir CANCELLATION_ERROR")
		}
		log.Error().Err(cause).Str("step", step).Msg("anulación fallida")
		return &CancellationResult{Success: false, Status: entity.BillingStatusCancellationError}
	}

	// Facturas y notas van por Comunicación de Baja; boletas por Resumen Diario.
	prefix := "RA"
	build := o.voidedBuilder.BuildVoided
	if !sunatcat.IsVoidedCommunicationType(op.DocumentCode) {
		prefix = "RC"
		build = o.voidedBuilder.BuildSummary
	}

	issueDate := o.now()
	correlative, err := o.operations.NextCancellationCorrelative(ctx, company.ID, prefix, issueDate)
	if err != nil {
		return markError("correlativo", err)
	}

	vctx := &infrasunat.VoidedBuildContext{
		Operation:     op,
		Company:       company,
		Correlative:   correlative,
		ReferenceDate: op.EmitDate,
		IssueDate:     issueDate,
		Reason:        description,
	}
	xmlBytes, err := build(vctx)
	if err != nil {
		return markError("generacion-xml", err)
	}

	if err := o.files.EnsureCompanyFolders(company.RUC); err != nil {
		return markError("carpetas", err)
	}
	baseName := company.RUC + "-" + vctx.VoidedID(prefix)
	xmlPath, err := o.files.Save(company.RUC, storage.CategoryVoidXML, baseName+".xml", xmlBytes)
	if err != nil {
		return markError("guardar-xml", err)
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
		BillingStatus:       entity.BillingStatusProcessingCancellation,
		CancellationXMLPath: &xmlPath,
	}); err != nil {
		return markError("persistir-xml", err)
	}

	cert, err := o.loadCert(company)
	if err != nil {
		return markError("certificado", err)
	}
	signedXML, err := o.signer.Sign(xmlBytes, cert)
	if err != nil {
		return markError("firma", err)
	}
	signedPath, err := o.files.Save(company.RUC, storage.CategoryVoidSigned, baseName+".xml", signedXML)
	if err != nil {
		return markError("guardar-firma", err)
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
		BillingStatus:          entity.BillingStatusProcessingCancellation,
		CancellationSignedPath: &signedPath,
	}); err != nil {
		return markError("persistir-firma", err)
	}

	zipBytes, err := infrasunat.BuildZip(baseName+".xml", signedXML)
	if err != nil {
		return markError("zip", err)
	}
	if ctx.Err() != nil {
		return markError("timeout", fmt.Errorf("timeout antes del envío: %w", ctx.Err()))
	}
	ticketRes, err := o.transport.SendSummary(ctx, company, baseName+".zip", zipBytes)
	if err != nil {
		return markError("envio", err)
	}
	log.Info().Str("ticket", ticketRes.Ticket).Msg("baja enviada, ticket recibido")

	if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
		BillingStatus:      entity.BillingStatusCancellationPending,
		CancellationTicket: &ticketRes.Ticket,
	}); err != nil {
		return markError("persistir-ticket", err)
	}
	op.CancellationTicket = ticketRes.Ticket
	op.BillingStatus = entity.BillingStatusCancellationPending

	outcome := o.pollTicket(ctx, op, company)
	return &CancellationResult{
		Success: outcome.Status == entity.BillingStatusCancelled ||
			outcome.Status == entity.BillingStatusCancellationPending,
		Ticket: ticketRes.Ticket,
		Status: outcome.Status,
	}
}

// PollCancellationTicket re-consulta el ticket de una anulación que quedó
// pendiente o con error de consulta. El ticket persiste, así que siempre se
// puede retomar.
func (o *Orchestrator) PollCancellationTicket(ctx context.Context, operationID int64) (*PollOutcome, error) {
	op, err := o.operations.GetByID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}
	if op.BillingStatus == entity.BillingStatusCancelled {
		return &PollOutcome{Resolved: true, Status: op.BillingStatus}, nil
	}
	if op.CancellationTicket == "" {
		return nil, domain.ErrNoPendingTicket
	}
	switch op.BillingStatus {
	case entity.BillingStatusCancellationPending, entity.BillingStatusCancellationError:
	default:
		return nil, fmt.Errorf("%w: estado %s", domain.ErrNoPendingTicket, op.BillingStatus)
	}

	company, err := o.companies.GetByID(ctx, op.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("empresa %d no encontrada", op.CompanyID)
	}
	outcome := o.pollTicket(ctx, op, company)
	return outcome, nil
}

// pollTicket consulta getStatus hasta una cantidad acotada de intentos con
// backoff por clase de fallo: autenticación espera más en cada intento,
// errores de servidor esperan el doble, el resto la espera base. Agotar el
// presupuesto deja CANCELLATION_ERROR pero conserva el ticket.
func (o *Orchestrator) pollTicket(ctx context.Context, op *entity.Operation, company *entity.Company) *PollOutcome {
	log := o.log.With().Int64("operation_id", op.ID).Str("ticket", op.CancellationTicket).Logger()

	maxAttempts := o.cfg.PollMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	baseDelay := o.cfg.PollBaseDelay
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		res, err := o.transport.GetStatus(ctx, company, op.CancellationTicket)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("consulta de ticket fallida")
			if attempt < maxAttempts {
				o.sleep(ctx, o.pollBackoff(err, attempt, baseDelay))
			}
			continue
		}

		if res.Pending() {
			log.Debug().Int("attempt", attempt).Msg("ticket aún en proceso")
			if attempt < maxAttempts {
				o.sleep(ctx, baseDelay)
			}
			continue
		}

		if res.StatusCode == "0" {
			upd := repository.BillingUpdate{BillingStatus: entity.BillingStatusCancelled}
			if len(res.CDRZip) > 0 {
				cdrPath, saveErr := o.files.Save(company.RUC, storage.CategoryVoidCDR,
					"R-"+op.CancellationTicket+".zip", res.CDRZip)
				if saveErr != nil {
					log.Error().Err(saveErr).Msg("no se pudo guardar el CDR de anulación")
				} else {
					upd.CancellationCDRPath = &cdrPath
				}
			}
			if err := o.operations.UpdateBilling(ctx, op.ID, upd); err != nil {
				log.Error().Err(err).Msg("no se pudo persistir CANCELLED")
			}
			log.Info().Msg("comprobante anulado en SUNAT")
			return &PollOutcome{Resolved: true, Status: entity.BillingStatusCancelled}
		}

		// Código terminal distinto de 0/98: SUNAT rechazó el resumen.
		msg := res.StatusMessage
		if msg == "" {
			msg = fmt.Sprintf("error código %s", res.StatusCode)
		}
		msg = truncateError(msg, o.cfg.ErrorMaxLength)
		if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
			BillingStatus:         entity.BillingStatusCancellationError,
			SunatErrorDescription: &msg,
		}); err != nil {
			log.Error().Err(err).Msg("no se pudo persistir CANCELLATION_ERROR")
		}
		log.Error().Str("status_code", res.StatusCode).Str("message", msg).
			Msg("anulación rechazada por SUNAT")
		return &PollOutcome{Resolved: true, Status: entity.BillingStatusCancellationError}
	}

	timeout := &domainbilling.TicketTimeout{Ticket: op.CancellationTicket, Attempts: maxAttempts}
	msg := truncateError(timeout.Error(), o.cfg.ErrorMaxLength)
	if lastErr != nil {
		msg = truncateError(fmt.Sprintf("%s: %v", timeout.Error(), lastErr), o.cfg.ErrorMaxLength)
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
		BillingStatus:         entity.BillingStatusCancellationError,
		SunatErrorDescription: &msg,
	}); err != nil {
		log.Error().Err(err).Msg("no se pudo persistir CANCELLATION_ERROR")
	}
	log.Warn().Int("attempts", maxAttempts).Msg("ticket sin resolver, se podrá re-consultar")
	return &PollOutcome{Resolved: false, Status: entity.BillingStatusCancellationError}
}

// pollBackoff calcula la espera según la clase del fallo de transporte.
func (o *Orchestrator) pollBackoff(err error, attempt int, base time.Duration) time.Duration {
	var te *domainbilling.TransportError
	if errors.As(err, &te) {
		switch te.HTTPStatus {
		case 401:
			// Autenticación: SUNAT a veces tarda en propagar credenciales.
			return base + time.Duration(attempt)*2*time.Second
		case 500:
			return 2 * base
		}
	}
	return base
}

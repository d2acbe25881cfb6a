package billing

import (
	"context"
	"fmt"

	"github.com/witalo/inova/internal/domain"
	domainbilling "github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/sunat/signer"
	"github.com/witalo/inova/internal/infrastructure/storage"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

// ProcessElectronicBilling ejecuta el pipeline completo de un comprobante:
// valida, toma el candado PROCESSING, construye, firma, envía y clasifica
// la respuesta. Ningún fallo del pipeline escapa como error: queda
// persistido en billing_status y reflejado en el resultado. Solo las
// precondiciones (operación inexistente, no facturable) retornan error.
func (o *Orchestrator) ProcessElectronicBilling(ctx context.Context, operationID int64) (*BillingResult, error) {
	op, err := o.operations.GetByID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}

	switch op.BillingStatus {
	case entity.BillingStatusAccepted, entity.BillingStatusAcceptedObs, entity.BillingStatusCancelled:
		// Ya procesada: reenviar sería un doble envío ante SUNAT.
		return &BillingResult{Success: true, Status: op.BillingStatus}, nil
	case entity.BillingStatusProcessing:
		return &BillingResult{Success: false, Status: op.BillingStatus,
			ErrorMessage: "la operación ya está en proceso"}, nil
	case entity.BillingStatusRegister, entity.BillingStatusPending, entity.BillingStatusError:
		// Facturable.
	default:
		return nil, fmt.Errorf("%w: estado %s", domain.ErrNotBillable, op.BillingStatus)
	}

	company, err := o.companies.GetByID(ctx, op.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: empresa %d no encontrada", domain.ErrNotBillable, op.CompanyID)
	}
	if err := validateBillable(op, company); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotBillable, err)
	}

	// Candado optimista: solo un proceso mueve la operación a PROCESSING.
	locked, err := o.operations.UpdateBillingGuarded(ctx, op.ID, op.BillingStatus,
		repository.BillingUpdate{BillingStatus: entity.BillingStatusProcessing})
	if err != nil {
		return nil, err
	}
	if !locked {
		o.log.Warn().Int64("operation_id", op.ID).
			Msg("otro proceso tomó la operación, se omite el envío")
		return &BillingResult{Success: false, Status: entity.BillingStatusProcessing,
			ErrorMessage: "otro proceso tomó la operación"}, nil
	}
	op.BillingStatus = entity.BillingStatusProcessing

	return o.runPipeline(ctx, op, company), nil
}

// validateBillable son las precondiciones que no consumen reintentos:
// datos del emisor y un total válido.
func validateBillable(op *entity.Operation, company *entity.Company) error {
	if !company.BillingEnabled {
		return fmt.Errorf("la empresa %s no tiene facturación electrónica habilitada", company.RUC)
	}
	if err := sunatcat.ValidateRUC(company.RUC); err != nil {
		return fmt.Errorf("RUC del emisor inválido: %w", err)
	}
	if company.Environment != sunatcat.EnvBeta && (company.SunatUsername == "" || company.SunatPassword == "") {
		return fmt.Errorf("credenciales SOL no configuradas para el ambiente %s", company.Environment)
	}
	if !op.TotalAmount.IsPositive() {
		return fmt.Errorf("el total del comprobante debe ser mayor a cero")
	}
	return nil
}

// runPipeline es el núcleo Build → Sign → Submit. Cualquier paso fallido
// marca ERROR con la descripción truncada, incrementa retry_count y
// registra last_retry_at; el barrido decide si se reintenta.
func (o *Orchestrator) runPipeline(ctx context.Context, op *entity.Operation, company *entity.Company) *BillingResult {
	log := o.log.With().Int64("operation_id", op.ID).Str("document", op.DocumentID()).Logger()

	markError := func(step string, cause error) *BillingResult {
		now := o.now()
		retries := op.RetryCount + 1
		msg := truncateError(cause.Error(), o.cfg.ErrorMaxLength)
		upd := repository.BillingUpdate{
			BillingStatus:         entity.BillingStatusError,
			SunatErrorDescription: &msg,
			RetryCount:            &retries,
			LastRetryAt:           &now,
		}
		if err := o.operations.UpdateBilling(ctx, op.ID, upd); err != nil {
			log.Error().Err(err).Msg("no se pudo persistir el estado ERROR")
		}
		log.Error().Err(cause).Str("step", step).Int("retry_count", retries).
			Msg("pipeline de facturación fallido")
		return &BillingResult{Success: false, Status: entity.BillingStatusError, ErrorMessage: msg}
	}

	details, err := o.operations.GetDetails(ctx, op.ID)
	if err != nil {
		return markError("detalles", err)
	}
	payments, err := o.payments.ListByOperation(ctx, op.ID)
	if err != nil {
		return markError("pagos", err)
	}
	if err := o.files.EnsureCompanyFolders(company.RUC); err != nil {
		return markError("carpetas", err)
	}

	// 1. Construir el XML UBL.
	xmlBytes, err := o.xmlBuilder.Build(&infrasunat.DocumentBuildContext{
		Operation: op,
		Company:   company,
		Details:   details,
		Payments:  payments,
	})
	if err != nil {
		return markError("generacion-xml", err)
	}
	baseName := infrasunat.DocumentFileName(company.RUC, op.DocumentCode, op.Serial, op.Number)
	xmlPath, err := o.files.Save(company.RUC, storage.CategoryXML, baseName+".xml", xmlBytes)
	if err != nil {
		return markError("guardar-xml", err)
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, repository.BillingUpdate{
		BillingStatus: entity.BillingStatusProcessing,
		XMLFilePath:   &xmlPath,
	}); err != nil {
		return markError("persistir-xml", err)
	}
	log.Debug().Str("path", xmlPath).Msg("XML generado")

	// 2. Firmar.
	cert, err := o.loadCert(company)
	if err != nil {
		return markError("certificado", err)
	}
	signedXML, err := o.signer.Sign(xmlBytes, cert)
	if err != nil {
		return markError("firma", err)
	}
	signedPath, err := o.files.Save(company.RUC, storage.CategorySigned, baseName+".xml", signedXML)
	if err != nil {
		return markError("guardar-firma", err)
	}
	upd := repository.BillingUpdate{
		BillingStatus:     entity.BillingStatusProcessing,
		SignedXMLFilePath: &signedPath,
	}
	if hash, hashErr := signer.ExtractDigestValue(signedXML); hashErr == nil {
		upd.HashCode = &hash
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, upd); err != nil {
		return markError("persistir-firma", err)
	}
	log.Debug().Str("path", signedPath).Msg("XML firmado")

	// 3. Empaquetar y enviar. El timeout del runner se revisa solo en
	// frontera de paso, nunca a mitad de la llamada SOAP.
	zipBytes, err := infrasunat.BuildZip(baseName+".xml", signedXML)
	if err != nil {
		return markError("zip", err)
	}
	if ctx.Err() != nil {
		return markError("timeout", fmt.Errorf("timeout antes del envío: %w", ctx.Err()))
	}
	submit, err := o.transport.SendBill(ctx, company, baseName+".zip", zipBytes)
	if err != nil {
		return markError("envio", err)
	}

	cdrPath, err := o.files.Save(company.RUC, storage.CategoryCDR, "R-"+baseName+".zip", submit.CDRZip)
	if err != nil {
		return markError("guardar-cdr", err)
	}

	// 4. Clasificar la respuesta y cerrar el ciclo.
	status := classifyResponseCode(submit.ResponseCode)
	final := repository.BillingUpdate{
		BillingStatus:            status,
		SunatResponseCode:        &submit.ResponseCode,
		SunatResponseDescription: &submit.Description,
		CDRFilePath:              &cdrPath,
	}
	var rejection *domainbilling.BusinessRejection
	if status == entity.BillingStatusRejected {
		rejection = &domainbilling.BusinessRejection{
			Code:        submit.ResponseCode,
			Description: submit.Description,
		}
		msg := truncateError(rejection.Error(), o.cfg.ErrorMaxLength)
		final.SunatErrorDescription = &msg
	}
	if err := o.operations.UpdateBilling(ctx, op.ID, final); err != nil {
		return markError("persistir-respuesta", err)
	}

	result := &BillingResult{Success: rejection == nil, Status: status}
	if rejection != nil {
		result.ErrorMessage = rejection.Error()
		log.Warn().Str("code", rejection.Code).Str("description", rejection.Description).
			Msg("comprobante rechazado por SUNAT")
	} else {
		log.Info().Str("code", submit.ResponseCode).Str("status", status).
			Msg("comprobante procesado por SUNAT")
	}
	return result
}

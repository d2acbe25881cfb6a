// Package billing orquesta el ciclo de vida del comprobante electrónico:
//
//	Operación → XML UBL 2.1 → Firma digital → ZIP → SOAP SUNAT → CDR → Estado
//
// y el flujo paralelo de anulación (Comunicación de Baja / Resumen Diario
// con consulta de ticket). Toda transición de billing_status pasa por aquí.
package billing

import (
	"context"
	"crypto/tls"
	"time"
	"unicode/utf8"

	"github.com/witalo/inova/internal/domain"
	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/sunat/signer"
	"github.com/witalo/inova/internal/infrastructure/storage"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
	sunatcat "github.com/witalo/inova/pkg/sunat"
)

// Orchestrator coordina facturación y anulación. Cada invocación corre
// completa en un worker; el estado PROCESSING / PROCESSING_CANCELLATION es
// el candado optimista contra ejecuciones concurrentes sobre la misma
// operación.
type Orchestrator struct {
	operations repository.OperationRepository
	companies  repository.CompanyRepository
	payments   repository.PaymentRepository

	xmlBuilder    *infrasunat.XMLBuilderService
	voidedBuilder *infrasunat.VoidedBuilderService
	signer        sunatcat.Signer
	transport     infrasunat.Transport
	files         *storage.FileStore

	cfg config.BillingConfig
	log *logger.Logger

	// Inyectables para tests: carga de certificado, reloj y espera.
	loadCert func(*entity.Company) (tls.Certificate, error)
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

// NewOrchestrator construye el orquestador con todas sus dependencias.
func NewOrchestrator(
	operations repository.OperationRepository,
	companies repository.CompanyRepository,
	payments repository.PaymentRepository,
	xmlBuilder *infrasunat.XMLBuilderService,
	voidedBuilder *infrasunat.VoidedBuilderService,
	docSigner sunatcat.Signer,
	transport infrasunat.Transport,
	files *storage.FileStore,
	cfg config.BillingConfig,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		operations:    operations,
		companies:     companies,
		payments:      payments,
		xmlBuilder:    xmlBuilder,
		voidedBuilder: voidedBuilder,
		signer:        docSigner,
		transport:     transport,
		files:         files,
		cfg:           cfg,
		log:           log.Component("billing"),
		loadCert:      signer.LoadCompanyCertificate,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// classifyResponseCode traduce el código del CDR al estado del comprobante:
// "0" aceptado, la familia "0xxx" aceptado con observaciones, el resto
// rechazado.
func classifyResponseCode(code string) string {
	switch {
	case code == "0":
		return entity.BillingStatusAccepted
	case len(code) > 0 && code[0] == '0':
		return entity.BillingStatusAcceptedObs
	default:
		return entity.BillingStatusRejected
	}
}

// truncateError acota la descripción persistida; los stack de SUNAT pueden
// venir de varios KB. El corte respeta los límites de runa para no dejar
// UTF-8 inválido en la base.
func truncateError(msg string, max int) string {
	if max <= 0 {
		max = 500
	}
	if len(msg) <= max {
		return msg
	}
	for max > 0 && !utf8.RuneStart(msg[max]) {
		max--
	}
	return msg[:max]
}

// GetOperation lectura directa del agregado para los endpoints de consulta.
func (o *Orchestrator) GetOperation(ctx context.Context, operationID int64) (*entity.Operation, error) {
	op, err := o.operations.GetByID(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}
	return op, nil
}

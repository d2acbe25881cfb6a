package repository

import (
	"context"
	"time"

	"github.com/witalo/inova/internal/domain/entity"
)

// BillingUpdate es el conjunto de campos que los orquestadores persisten de
// forma atómica: estado, respuesta SUNAT, artefactos y reintentos siempre
// viajan juntos para no dejar transiciones a medias.
type BillingUpdate struct {
	BillingStatus string

	SunatResponseCode        *string
	SunatResponseDescription *string
	SunatErrorDescription    *string
	HashCode                 *string

	XMLFilePath       *string
	SignedXMLFilePath *string
	CDRFilePath       *string

	RetryCount  *int
	LastRetryAt *time.Time

	CancellationReason      *string
	CancellationDescription *string
	CancellationDate        *time.Time
	CancellationTicket      *string
	CancellationXMLPath     *string
	CancellationSignedPath  *string
	CancellationCDRPath     *string
}

// OperationRepository acceso de lectura/escritura al agregado de facturación.
type OperationRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Operation, error)
	GetDetails(ctx context.Context, operationID int64) ([]entity.OperationDetail, error)

	// UpdateBilling aplica los campos no nulos de upd sobre la operación.
	UpdateBilling(ctx context.Context, id int64, upd BillingUpdate) error

	// UpdateBillingGuarded aplica upd solo si billing_status sigue siendo
	// expectedStatus (compare-and-set). Devuelve false si otro proceso ya
	// movió el estado; es el candado optimista contra doble envío.
	UpdateBillingGuarded(ctx context.Context, id int64, expectedStatus string, upd BillingUpdate) (bool, error)

	// ListRetryable operaciones en ERROR o PENDING con reintentos disponibles
	// y cuyo último intento es anterior a `before`.
	ListRetryable(ctx context.Context, before time.Time, limit int) ([]entity.Operation, error)

	// ListPendingCancellations operaciones en CANCELLATION_PENDING con ticket.
	ListPendingCancellations(ctx context.Context, limit int) ([]entity.Operation, error)

	// NextCancellationCorrelative siguiente correlativo diario de bajas o
	// resúmenes (prefijo RA o RC) para una empresa.
	NextCancellationCorrelative(ctx context.Context, companyID int64, prefix string, day time.Time) (int, error)
}

package entity

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Estados de facturación electrónica de una operación. Una vez que el
// pipeline toma la operación (PROCESSING en adelante), billing_status es
// propiedad exclusiva de los orquestadores de facturación y anulación.
const (
	BillingStatusRegister     = "REGISTER"   // Registrada, aún no enviada
	BillingStatusPending      = "PENDING"    // En cola para envío
	BillingStatusProcessing   = "PROCESSING" // Envío en curso (actúa de candado)
	BillingStatusSent         = "SENT"       // Enviada, respuesta pendiente
	BillingStatusAccepted     = "ACCEPTED"
	BillingStatusAcceptedObs  = "ACCEPTED_WITH_OBSERVATIONS"
	BillingStatusRejected     = "REJECTED"
	BillingStatusError        = "ERROR"       // Falla recuperable, reintentable
	BillingStatusErrorFinal   = "ERROR_FINAL" // Agotó reintentos, solo reenvío manual
	BillingStatusProcessingCancellation = "PROCESSING_CANCELLATION"
	BillingStatusCancellationPending    = "CANCELLATION_PENDING" // Ticket emitido, esperando resolución
	BillingStatusCancelled              = "CANCELLED"
	BillingStatusCancellationError      = "CANCELLATION_ERROR"
)

// ValidBillingStatuses conjunto cerrado de estados admitidos.
var ValidBillingStatuses = map[string]bool{
	BillingStatusRegister: true, BillingStatusPending: true,
	BillingStatusProcessing: true, BillingStatusSent: true,
	BillingStatusAccepted: true, BillingStatusAcceptedObs: true,
	BillingStatusRejected: true, BillingStatusError: true,
	BillingStatusErrorFinal: true, BillingStatusProcessingCancellation: true,
	BillingStatusCancellationPending: true, BillingStatusCancelled: true,
	BillingStatusCancellationError: true,
}

// Operation es la raíz del agregado de facturación: una venta con serie y
// número que se convierte en comprobante electrónico.
type Operation struct {
	ID           int64
	CompanyID    int64
	DocumentCode string // Catálogo 01: 01 factura, 03 boleta, 07/08 notas
	Serial       string // Serie (F001, B001, ...)
	Number       int64  // Correlativo
	Currency     string // PEN, USD
	EmitDate     time.Time
	EmitTime     string // HH:MM:SS, hora local de emisión

	// Cliente. Nil en ventas anónimas (clientes varios).
	Customer *Person

	// Referencia al comprobante afectado (notas de crédito/débito).
	ParentOperationID *int64
	ParentSerial      string
	ParentNumber      int64
	ParentDocumentCode string

	// Totales en decimal fijo (NUMERIC(15,6) en la base).
	GlobalDiscount  decimal.Decimal
	IGVPercent      decimal.Decimal
	IGVAmount       decimal.Decimal
	TotalTaxable    decimal.Decimal
	TotalUnaffected decimal.Decimal
	TotalExempt     decimal.Decimal
	TotalFree       decimal.Decimal
	TotalAmount     decimal.Decimal

	// Ciclo de vida de facturación.
	BillingStatus string

	// Respuesta SUNAT del envío.
	SunatResponseCode        string
	SunatResponseDescription string
	SunatErrorDescription    string
	HashCode                 string // DigestValue del XML firmado

	// Artefactos generados. Deben mutarse junto con BillingStatus.
	XMLFilePath       string
	SignedXMLFilePath string
	CDRFilePath       string

	// Control de reintentos.
	RetryCount  int
	MaxRetries  int
	LastRetryAt *time.Time

	// Datos de anulación.
	CancellationReason      string // Catálogo 09
	CancellationDescription string
	CancellationDate        *time.Time
	CancellationTicket      string
	CancellationXMLPath     string
	CancellationSignedPath  string
	CancellationCDRPath     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentID devuelve el identificador serie-número del comprobante (F001-123).
func (o *Operation) DocumentID() string {
	return o.Serial + "-" + formatNumber(o.Number)
}

// ParentDocumentID devuelve el serie-número del comprobante afectado por
// una nota de crédito o débito.
func (o *Operation) ParentDocumentID() string {
	if o.ParentSerial == "" {
		return ""
	}
	return o.ParentSerial + "-" + formatNumber(o.ParentNumber)
}

// IsCancellable indica si el documento está en un estado desde el que se
// puede iniciar (o reintentar) una anulación ante SUNAT.
func (o *Operation) IsCancellable() bool {
	switch o.BillingStatus {
	case BillingStatusAccepted, BillingStatusAcceptedObs, BillingStatusProcessingCancellation:
		return true
	}
	return false
}

func formatNumber(n int64) string {
	// Los correlativos van sin relleno: SUNAT acepta F001-1 y F001-000001.
	if n < 0 {
		n = 0
	}
	return strconv.FormatInt(n, 10)
}

// OperationDetail es una línea inmutable de la operación. El pipeline de
// facturación solo la lee para re-derivar totales de forma determinista.
type OperationDetail struct {
	ID                 int64
	OperationID        int64
	ProductCode        string
	Description        string
	TypeAffectation    string // Catálogo 07: 10 gravado, 20 exonerado, ...
	Quantity           decimal.Decimal
	UnitValue          decimal.Decimal // Valor unitario sin IGV
	UnitPrice          decimal.Decimal // Precio unitario con IGV
	DiscountPercentage decimal.Decimal
	TotalDiscount      decimal.Decimal
	TotalValue         decimal.Decimal
	TotalIGV           decimal.Decimal
	TotalAmount        decimal.Decimal
}

// Person es el adquirente del comprobante.
type Person struct {
	ID         int64
	PersonType string // Catálogo 06: 1 DNI, 6 RUC
	Document   string
	FullName   string
	Address    string
}

package sunat

import (
	"fmt"
	"time"

	"github.com/witalo/inova/internal/domain/entity"
)

// DocumentBuildContext agrupa todo lo necesario para construir el XML UBL
// de un comprobante: la operación, la empresa emisora, sus líneas de
// detalle y las cuotas de pago asociadas.
type DocumentBuildContext struct {
	Operation *entity.Operation
	Company   *entity.Company
	Details   []entity.OperationDetail
	Payments  []entity.Payment
}

// VoidedBuildContext agrupa los datos para una Comunicación de Baja (RA)
// o un Resumen Diario de anulación (RC) sobre un comprobante ya aceptado.
type VoidedBuildContext struct {
	Operation *entity.Operation
	Company   *entity.Company
	// Correlative es el número diario asignado al documento de baja
	// (el NNNNN de RA-yyyymmdd-NNNNN).
	Correlative int
	// ReferenceDate es la fecha de emisión del comprobante anulado.
	ReferenceDate time.Time
	// IssueDate es la fecha de generación de la comunicación.
	IssueDate time.Time
	Reason    string
}

// VoidedID retorna el identificador del documento de baja, por ejemplo
// RA-20260831-00001 para facturas o RC-20260831-00001 para boletas.
func (c *VoidedBuildContext) VoidedID(prefix string) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, c.IssueDate.Format("20060102"), c.Correlative)
}

// SubmitResult es el resultado de un envío síncrono (sendBill): el CDR
// ya decodificado junto con el código y descripción de respuesta.
type SubmitResult struct {
	ResponseCode string
	Description  string
	CDRZip       []byte
}

// TicketResult es el resultado de un envío asíncrono (sendSummary).
type TicketResult struct {
	Ticket string
}

// PollResult es el resultado de consultar un ticket (getStatus).
// StatusCode "0" indica proceso terminado con éxito, "98" en proceso,
// cualquier otro valor un error en el procesamiento del resumen.
type PollResult struct {
	StatusCode    string
	StatusMessage string
	CDRZip        []byte
}

// Pending indica si el ticket sigue en proceso en SUNAT.
func (r *PollResult) Pending() bool { return r.StatusCode == "98" }

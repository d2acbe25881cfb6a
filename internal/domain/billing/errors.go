// Package billing define la taxonomía de errores del pipeline de facturación
// electrónica. Cada clase determina si el fallo amerita reintento automático
// o intervención manual, y los orquestadores la usan para decidir el estado
// final de la operación.
package billing

import (
	"errors"
	"fmt"
)

// BuildError: datos de origen incompletos o inconsistentes al generar el XML.
// No reintentable: requiere corregir la operación.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string {
	return "generación XML: " + e.Reason
}

// SigningError: fallo al firmar el documento. Un certificado ausente o
// ilegible no es reintentable (configuración del emisor); una falla
// transitoria de la librería criptográfica sí.
type SigningError struct {
	Reason    string
	Retryable bool
}

func (e *SigningError) Error() string {
	return "firma XML: " + e.Reason
}

// TransportError: fallo de red, HTTP o SOAP Fault contra el servicio SUNAT.
// Siempre reintentable con backoff. HTTPStatus va en cero cuando el fallo
// no llegó a tener respuesta HTTP (timeout, conexión rechazada).
type TransportError struct {
	Op         string // sendBill, sendSummary, getStatus
	HTTPStatus int
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transporte SUNAT (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BusinessRejection: respuesta SOAP válida con código de error de negocio.
// Terminal para este intento; un operador puede reenviar la operación luego.
type BusinessRejection struct {
	Code        string
	Description string
}

func (e *BusinessRejection) Error() string {
	return fmt.Sprintf("rechazo SUNAT [%s]: %s", e.Code, e.Description)
}

// TicketTimeout: el ticket de anulación no se resolvió dentro del número
// acotado de consultas. El ticket queda persistido y se puede re-consultar.
type TicketTimeout struct {
	Ticket   string
	Attempts int
}

func (e *TicketTimeout) Error() string {
	return fmt.Sprintf("ticket %s sin resolver tras %d consultas", e.Ticket, e.Attempts)
}

// IsRetryable clasifica un error del pipeline: true solo para fallas de
// transporte y firmas con falla transitoria. Rechazos de negocio, datos
// malformados y tickets vencidos requieren decisión externa.
func IsRetryable(err error) bool {
	var sign *SigningError
	if errors.As(err, &sign) {
		return sign.Retryable
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	return false
}

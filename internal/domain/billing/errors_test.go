package billing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/witalo/inova/internal/domain/billing"
)

// TestIsRetryable_Taxonomia cada clase de error decide por sí misma si el
// fallo amerita reintento automático; los rechazos de negocio nunca.
func TestIsRetryable_Taxonomia(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "transporte siempre reintenta",
			err:       &billing.TransportError{Op: "sendBill", HTTPStatus: 500, Err: context.DeadlineExceeded},
			retryable: true,
		},
		{
			name:      "transporte envuelto se sigue reconociendo",
			err:       fmt.Errorf("procesando operación 10: %w", &billing.TransportError{Op: "getStatus", Err: errors.New("conexión rechazada")}),
			retryable: true,
		},
		{
			name:      "firma transitoria reintenta",
			err:       &billing.SigningError{Reason: "falla criptográfica", Retryable: true},
			retryable: true,
		},
		{
			name:      "certificado ilegible no reintenta",
			err:       &billing.SigningError{Reason: "certificado corrupto"},
			retryable: false,
		},
		{
			name:      "rechazo de negocio es terminal",
			err:       &billing.BusinessRejection{Code: "2324", Description: "registrado previamente"},
			retryable: false,
		},
		{
			name:      "datos malformados requieren corrección",
			err:       &billing.BuildError{Reason: "sin líneas de detalle"},
			retryable: false,
		},
		{
			name:      "ticket vencido espera decisión externa",
			err:       &billing.TicketTimeout{Ticket: "20260317-1", Attempts: 5},
			retryable: false,
		},
		{
			name:      "error ajeno a la taxonomía",
			err:       errors.New("algo inesperado"),
			retryable: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, billing.IsRetryable(tc.err))
		})
	}
}

// TestBusinessRejection_Mensaje el mensaje lleva el código SUNAT entre
// corchetes para que los operadores lo ubiquen en los catálogos.
func TestBusinessRejection_Mensaje(t *testing.T) {
	err := &billing.BusinessRejection{
		Code:        "2324",
		Description: "El comprobante fue registrado previamente",
	}
	assert.Equal(t, "rechazo SUNAT [2324]: El comprobante fue registrado previamente", err.Error())
}

// TestTransportError_Unwrap conserva la causa para errors.Is aguas arriba.
func TestTransportError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &billing.TransportError{Op: "sendSummary", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "sendSummary")
}

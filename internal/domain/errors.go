package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound         = errors.New("recurso no encontrado")
	ErrInvalidInput     = errors.New("entrada inválida")
	ErrConflict         = errors.New("conflicto con el estado actual")
	ErrNotBillable      = errors.New("operación no facturable")
	ErrNotCancellable   = errors.New("operación no anulable en su estado actual")
	ErrNoPendingTicket  = errors.New("la operación no tiene ticket de anulación pendiente")
)

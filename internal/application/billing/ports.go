package billing

// JobRunner es el puerto hacia el ejecutor de tareas en segundo plano. El
// orquestador solo encola; la política de reintentos del runner (intentos,
// backoff exponencial) vive en su configuración, no aquí.
type JobRunner interface {
	// EnqueueBilling agenda el procesamiento electrónico de una operación.
	EnqueueBilling(operationID int64) error
	// EnqueueCancellationPoll agenda la re-consulta del ticket de anulación.
	EnqueueCancellationPoll(operationID int64) error
}

// BillingResult es el resultado estructurado de ProcessElectronicBilling.
// El pipeline nunca deja escapar errores del núcleo: todo fallo queda
// clasificado, persistido y reflejado aquí.
type BillingResult struct {
	Success      bool
	Status       string
	ErrorMessage string
}

// CancellationResult es el resultado de CancelDocument.
type CancellationResult struct {
	Success bool
	Ticket  string
	Status  string
}

// PollOutcome es el resultado de PollCancellationTicket. Resolved indica
// que el ticket llegó a un estado final (CANCELLED o CANCELLATION_ERROR).
type PollOutcome struct {
	Resolved bool
	Status   string
}

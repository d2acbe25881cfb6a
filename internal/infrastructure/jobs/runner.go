// Package jobs implementa la cola de trabajos en memoria que desacopla los
// endpoints HTTP del pipeline de facturación. Cada trabajo se identifica con
// un UUID para seguirlo en los logs y reintenta con backoff exponencial
// antes de devolver la operación al barredor.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appbilling "github.com/witalo/inova/internal/application/billing"
	domainbilling "github.com/witalo/inova/internal/domain/billing"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

// ErrQueueFull la cola alcanzó su capacidad; el barredor volverá a encolar.
var ErrQueueFull = errors.New("cola de trabajos llena")

type jobKind string

const (
	kindBilling jobKind = "billing"
	kindPoll    jobKind = "cancellation_poll"
)

type job struct {
	id          string
	kind        jobKind
	operationID int64
	attempt     int
}

// Runner ejecuta trabajos de facturación con un pool acotado de workers.
// Implementa billing.JobRunner.
type Runner struct {
	orchestrator *appbilling.Orchestrator
	cfg          config.BillingConfig
	log          *logger.Logger

	queue chan job
	wg    sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	inQueue map[int64]jobKind // evita encolar dos veces la misma operación
}

func NewRunner(orchestrator *appbilling.Orchestrator, cfg config.BillingConfig, log *logger.Logger) *Runner {
	size := cfg.JobQueueSize
	if size <= 0 {
		size = 256
	}
	return &Runner{
		orchestrator: orchestrator,
		cfg:          cfg,
		log:          log.Component("jobs"),
		queue:        make(chan job, size),
		inQueue:      make(map[int64]jobKind),
	}
}

// Start levanta los workers. El contexto gobierna la vida de todos; al
// cancelarse dejan de tomar trabajos nuevos.
func (r *Runner) Start(ctx context.Context) {
	workers := r.cfg.JobWorkers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.log.Info().Int("workers", workers).Int("queue_size", cap(r.queue)).
		Msg("pool de trabajos iniciado")
}

// Stop cierra la cola y espera a que los workers drenen lo pendiente.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
	r.log.Info().Msg("pool de trabajos detenido")
}

// EnqueueBilling encola el procesamiento de facturación de una operación.
func (r *Runner) EnqueueBilling(operationID int64) error {
	return r.enqueue(kindBilling, operationID)
}

// EnqueueCancellationPoll encola la re-consulta del ticket de anulación.
func (r *Runner) EnqueueCancellationPoll(operationID int64) error {
	return r.enqueue(kindPoll, operationID)
}

func (r *Runner) enqueue(kind jobKind, operationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("cola de trabajos cerrada")
	}
	if existing, ok := r.inQueue[operationID]; ok && existing == kind {
		return nil // ya hay un trabajo idéntico esperando
	}
	j := job{id: uuid.NewString(), kind: kind, operationID: operationID, attempt: 1}
	select {
	case r.queue <- j:
		r.inQueue[operationID] = kind
		r.log.Debug().Str("job_id", j.id).Str("kind", string(kind)).
			Int64("operation_id", operationID).Msg("trabajo encolado")
		return nil
	default:
		return fmt.Errorf("%w: operación %d", ErrQueueFull, operationID)
	}
}

func (r *Runner) worker(ctx context.Context, n int) {
	defer r.wg.Done()
	log := r.log.With().Int("worker", n).Logger()
	for j := range r.queue {
		if ctx.Err() != nil {
			// Se drena la cola sin ejecutar; el barredor reencolará.
			r.dequeued(j.operationID)
			continue
		}
		r.run(ctx, j, &log)
	}
}

func (r *Runner) dequeued(operationID int64) {
	r.mu.Lock()
	delete(r.inQueue, operationID)
	r.mu.Unlock()
}

func (r *Runner) run(ctx context.Context, j job, log *zerolog.Logger) {
	r.dequeued(j.operationID)

	maxAttempts := r.cfg.JobMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := r.cfg.JobBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var err error
	switch j.kind {
	case kindBilling:
		_, err = r.orchestrator.ProcessElectronicBilling(ctx, j.operationID)
	case kindPoll:
		_, err = r.orchestrator.PollCancellationTicket(ctx, j.operationID)
	}
	if err == nil {
		log.Debug().Str("job_id", j.id).Str("kind", string(j.kind)).
			Int64("operation_id", j.operationID).Msg("trabajo completado")
		return
	}

	// Solo reintenta dentro del pool cuando la falla es transitoria; el
	// resto queda registrado en la operación y lo decide el barredor.
	if domainbilling.IsRetryable(err) && j.attempt < maxAttempts {
		delay := baseDelay << (j.attempt - 1)
		log.Warn().Err(err).Str("job_id", j.id).Int("attempt", j.attempt).
			Dur("delay", delay).Msg("trabajo fallido, se reintenta")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		j.attempt++
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if !closed {
			select {
			case r.queue <- j:
				r.mu.Lock()
				r.inQueue[j.operationID] = j.kind
				r.mu.Unlock()
				return
			default:
			}
		}
		log.Error().Str("job_id", j.id).Int64("operation_id", j.operationID).
			Msg("no se pudo reencolar el reintento")
		return
	}

	log.Error().Err(err).Str("job_id", j.id).Str("kind", string(j.kind)).
		Int64("operation_id", j.operationID).Int("attempt", j.attempt).
		Msg("trabajo fallido")
}

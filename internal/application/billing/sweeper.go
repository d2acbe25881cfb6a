package billing

import (
	"context"
	"time"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

// Sweeper recorre periódicamente las operaciones con facturación pendiente o
// fallida y las encola para reintento. También re-encola la consulta de
// tickets de anulación que quedaron sin resolver. Es la única pieza que
// promueve ERROR → PENDING o ERROR → ERROR_FINAL.
type Sweeper struct {
	operations repository.OperationRepository
	jobs       JobRunner
	cfg        config.BillingConfig
	log        *logger.Logger
	now        func() time.Time
}

func NewSweeper(operations repository.OperationRepository, jobs JobRunner, cfg config.BillingConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{
		operations: operations,
		jobs:       jobs,
		cfg:        cfg,
		log:        log.Component("sweeper"),
		now:        time.Now,
	}
}

// Run ejecuta una pasada completa: reintentos de facturación primero, luego
// tickets de anulación pendientes. Los errores por operación se registran y
// no detienen la pasada.
func (s *Sweeper) Run(ctx context.Context) error {
	if err := s.sweepBilling(ctx); err != nil {
		return err
	}
	return s.sweepCancellations(ctx)
}

func (s *Sweeper) sweepBilling(ctx context.Context) error {
	// Solo operaciones cuyo último intento ya cumplió el espaciado mínimo.
	before := s.now().Add(-s.cfg.RetrySpacing)
	ops, err := s.operations.ListRetryable(ctx, before, s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	for i := range ops {
		op := &ops[i]
		log := s.log.With().Int64("operation_id", op.ID).Str("status", op.BillingStatus).Logger()

		maxRetries := op.MaxRetries
		if maxRetries <= 0 {
			maxRetries = s.cfg.MaxRetries
		}
		if op.BillingStatus == entity.BillingStatusError && op.RetryCount >= maxRetries {
			locked, err := s.operations.UpdateBillingGuarded(ctx, op.ID, entity.BillingStatusError,
				repository.BillingUpdate{BillingStatus: entity.BillingStatusErrorFinal})
			if err != nil {
				log.Error().Err(err).Msg("no se pudo marcar ERROR_FINAL")
				continue
			}
			if locked {
				log.Warn().Int("retries", op.RetryCount).
					Msg("reintentos agotados, requiere intervención manual")
			}
			continue
		}

		if op.BillingStatus == entity.BillingStatusError {
			locked, err := s.operations.UpdateBillingGuarded(ctx, op.ID, entity.BillingStatusError,
				repository.BillingUpdate{BillingStatus: entity.BillingStatusPending})
			if err != nil {
				log.Error().Err(err).Msg("no se pudo promover a PENDING")
				continue
			}
			if !locked {
				continue
			}
		}

		if err := s.jobs.EnqueueBilling(op.ID); err != nil {
			log.Error().Err(err).Msg("no se pudo encolar el reintento")
			continue
		}
		log.Info().Int("retry_count", op.RetryCount).Msg("reintento de facturación encolado")
	}
	return nil
}

func (s *Sweeper) sweepCancellations(ctx context.Context) error {
	ops, err := s.operations.ListPendingCancellations(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return err
	}
	for i := range ops {
		op := &ops[i]
		if err := s.jobs.EnqueueCancellationPoll(op.ID); err != nil {
			s.log.Error().Err(err).Int64("operation_id", op.ID).
				Msg("no se pudo encolar la consulta de ticket")
			continue
		}
		s.log.Debug().Int64("operation_id", op.ID).Str("ticket", op.CancellationTicket).
			Msg("consulta de ticket encolada")
	}
	return nil
}

// Loop corre pasadas cada intervalo hasta que el contexto se cancele.
// Pensado para el demonio de facturación.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cfg.SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := s.Run(ctx); err != nil {
			s.log.Error().Err(err).Msg("pasada del barredor fallida")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

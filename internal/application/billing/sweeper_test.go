package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

// fakeJobRunner registra los encolados del barredor.
type fakeJobRunner struct {
	billing    []int64
	polls      []int64
	billingErr error
}

func (r *fakeJobRunner) EnqueueBilling(operationID int64) error {
	if r.billingErr != nil {
		return r.billingErr
	}
	r.billing = append(r.billing, operationID)
	return nil
}

func (r *fakeJobRunner) EnqueueCancellationPoll(operationID int64) error {
	r.polls = append(r.polls, operationID)
	return nil
}

func newTestSweeper(ops *fakeOperationRepo, jobs *fakeJobRunner) *Sweeper {
	cfg := config.BillingConfig{
		MaxRetries:     3,
		RetrySpacing:   5 * time.Minute,
		SweepBatchSize: 50,
	}
	log := logger.New(logger.Config{Env: "production", Level: "error"})
	s := NewSweeper(ops, jobs, cfg, log)
	s.now = func() time.Time {
		return time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	}
	return s
}

// TestSweeper_PromueveErrorAPendiente una operación en ERROR con reintentos
// disponibles vuelve a PENDING y se encola.
func TestSweeper_PromueveErrorAPendiente(t *testing.T) {
	op := billableOperation(entity.BillingStatusError)
	op.RetryCount = 1
	ops := newFakeOperationRepo(op)
	ops.retryable = []entity.Operation{*op}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.BillingStatusPending, ops.status(op.ID))
	assert.Equal(t, []int64{op.ID}, jobs.billing)
}

// TestSweeper_AgotaReintentos al alcanzar el máximo la operación pasa a
// ERROR_FINAL y no se vuelve a encolar.
func TestSweeper_AgotaReintentos(t *testing.T) {
	op := billableOperation(entity.BillingStatusError)
	op.RetryCount = 3
	ops := newFakeOperationRepo(op)
	ops.retryable = []entity.Operation{*op}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.BillingStatusErrorFinal, ops.status(op.ID))
	assert.Empty(t, jobs.billing)
}

// TestSweeper_RespetaMaximoPropio el presupuesto de la operación manda
// sobre el configurado.
func TestSweeper_RespetaMaximoPropio(t *testing.T) {
	op := billableOperation(entity.BillingStatusError)
	op.RetryCount = 1
	op.MaxRetries = 1
	ops := newFakeOperationRepo(op)
	ops.retryable = []entity.Operation{*op}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.BillingStatusErrorFinal, ops.status(op.ID))
	assert.Empty(t, jobs.billing)
}

// TestSweeper_EncolaPendientes una operación en PENDING va directo a la
// cola sin transición de estado.
func TestSweeper_EncolaPendientes(t *testing.T) {
	op := billableOperation(entity.BillingStatusPending)
	ops := newFakeOperationRepo(op)
	ops.retryable = []entity.Operation{*op}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.BillingStatusPending, ops.status(op.ID))
	assert.Equal(t, []int64{op.ID}, jobs.billing)
	assert.Empty(t, ops.updates, "PENDING no requiere transición previa")
}

// TestSweeper_OperacionTomadaPorOtro si otro proceso ya movió el estado,
// el compare-and-set falla y no se encola.
func TestSweeper_OperacionTomadaPorOtro(t *testing.T) {
	op := billableOperation(entity.BillingStatusProcessing)
	ops := newFakeOperationRepo(op)
	// El listado la vio en ERROR, pero para cuando el barredor la procesa
	// ya está en PROCESSING.
	listed := *op
	listed.BillingStatus = entity.BillingStatusError
	ops.retryable = []entity.Operation{listed}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entity.BillingStatusProcessing, ops.status(op.ID))
	assert.Empty(t, jobs.billing)
}

// TestSweeper_ReencolaTicketsPendientes las anulaciones con ticket sin
// resolver se encolan para re-consulta.
func TestSweeper_ReencolaTicketsPendientes(t *testing.T) {
	op := billableOperation(entity.BillingStatusCancellationPending)
	op.CancellationTicket = "1617171819"
	ops := newFakeOperationRepo(op)
	ops.pendingCancels = []entity.Operation{*op}
	jobs := &fakeJobRunner{}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{op.ID}, jobs.polls)
}

// TestSweeper_ColaLlenaNoDetieneLaPasada un fallo al encolar una operación
// registra el error y continúa con el resto.
func TestSweeper_ColaLlenaNoDetieneLaPasada(t *testing.T) {
	op := billableOperation(entity.BillingStatusPending)
	cancelOp := billableOperation(entity.BillingStatusCancellationPending)
	cancelOp.ID = 20
	cancelOp.CancellationTicket = "2021222324"

	ops := newFakeOperationRepo(op, cancelOp)
	ops.retryable = []entity.Operation{*op}
	ops.pendingCancels = []entity.Operation{*cancelOp}
	jobs := &fakeJobRunner{billingErr: errors.New("cola llena")}

	err := newTestSweeper(ops, jobs).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, jobs.billing)
	assert.Equal(t, []int64{cancelOp.ID}, jobs.polls, "la fase de anulaciones debe correr igual")
}

package billing

// Dobles en memoria para probar los orquestadores sin base de datos ni red.
// Los repositorios aplican los BillingUpdate sobre la entidad, igual que lo
// haría la capa de PostgreSQL, para poder verificar el estado final.

import (
	"context"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
	infrasunat "github.com/witalo/inova/internal/infrastructure/sunat"
	"github.com/witalo/inova/internal/infrastructure/storage"
	"github.com/witalo/inova/pkg/config"
	"github.com/witalo/inova/pkg/logger"
)

// fakeOperationRepo mantiene las operaciones en un mapa y registra cada
// actualización en orden, aplicándola sobre la entidad.
type fakeOperationRepo struct {
	mu      sync.Mutex
	ops     map[int64]*entity.Operation
	details map[int64][]entity.OperationDetail

	updates     []repository.BillingUpdate
	correlative int

	retryable      []entity.Operation
	pendingCancels []entity.Operation
}

func newFakeOperationRepo(ops ...*entity.Operation) *fakeOperationRepo {
	r := &fakeOperationRepo{
		ops:     make(map[int64]*entity.Operation),
		details: make(map[int64][]entity.OperationDetail),
	}
	for _, op := range ops {
		r.ops[op.ID] = op
	}
	return r
}

func (r *fakeOperationRepo) GetByID(_ context.Context, id int64) (*entity.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return nil, nil
	}
	cp := *op
	return &cp, nil
}

func (r *fakeOperationRepo) GetDetails(_ context.Context, operationID int64) ([]entity.OperationDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.details[operationID], nil
}

func (r *fakeOperationRepo) UpdateBilling(_ context.Context, id int64, upd repository.BillingUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
	if op, ok := r.ops[id]; ok {
		applyBillingUpdate(op, upd)
	}
	return nil
}

func (r *fakeOperationRepo) UpdateBillingGuarded(_ context.Context, id int64, expectedStatus string, upd repository.BillingUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || op.BillingStatus != expectedStatus {
		return false, nil
	}
	r.updates = append(r.updates, upd)
	applyBillingUpdate(op, upd)
	return true, nil
}

func (r *fakeOperationRepo) ListRetryable(_ context.Context, _ time.Time, _ int) ([]entity.Operation, error) {
	return r.retryable, nil
}

func (r *fakeOperationRepo) ListPendingCancellations(_ context.Context, _ int) ([]entity.Operation, error) {
	return r.pendingCancels, nil
}

func (r *fakeOperationRepo) NextCancellationCorrelative(_ context.Context, _ int64, _ string, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correlative++
	return r.correlative, nil
}

// status devuelve el billing_status actual de la operación almacenada.
func (r *fakeOperationRepo) status(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[id].BillingStatus
}

func (r *fakeOperationRepo) stored(id int64) entity.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.ops[id]
}

func applyBillingUpdate(op *entity.Operation, upd repository.BillingUpdate) {
	op.BillingStatus = upd.BillingStatus
	if upd.SunatResponseCode != nil {
		op.SunatResponseCode = *upd.SunatResponseCode
	}
	if upd.SunatResponseDescription != nil {
		op.SunatResponseDescription = *upd.SunatResponseDescription
	}
	if upd.SunatErrorDescription != nil {
		op.SunatErrorDescription = *upd.SunatErrorDescription
	}
	if upd.HashCode != nil {
		op.HashCode = *upd.HashCode
	}
	if upd.XMLFilePath != nil {
		op.XMLFilePath = *upd.XMLFilePath
	}
	if upd.SignedXMLFilePath != nil {
		op.SignedXMLFilePath = *upd.SignedXMLFilePath
	}
	if upd.CDRFilePath != nil {
		op.CDRFilePath = *upd.CDRFilePath
	}
	if upd.RetryCount != nil {
		op.RetryCount = *upd.RetryCount
	}
	if upd.LastRetryAt != nil {
		op.LastRetryAt = upd.LastRetryAt
	}
	if upd.CancellationReason != nil {
		op.CancellationReason = *upd.CancellationReason
	}
	if upd.CancellationDescription != nil {
		op.CancellationDescription = *upd.CancellationDescription
	}
	if upd.CancellationDate != nil {
		op.CancellationDate = upd.CancellationDate
	}
	if upd.CancellationTicket != nil {
		op.CancellationTicket = *upd.CancellationTicket
	}
	if upd.CancellationXMLPath != nil {
		op.CancellationXMLPath = *upd.CancellationXMLPath
	}
	if upd.CancellationSignedPath != nil {
		op.CancellationSignedPath = *upd.CancellationSignedPath
	}
	if upd.CancellationCDRPath != nil {
		op.CancellationCDRPath = *upd.CancellationCDRPath
	}
}

type fakeCompanyRepo struct {
	company *entity.Company
}

func (r *fakeCompanyRepo) GetByID(_ context.Context, _ int64) (*entity.Company, error) {
	if r.company == nil {
		return nil, nil
	}
	cp := *r.company
	return &cp, nil
}

type fakePaymentRepo struct {
	payments []entity.Payment
}

func (r *fakePaymentRepo) ListByOperation(_ context.Context, _ int64) ([]entity.Payment, error) {
	return r.payments, nil
}

// pollStep es una respuesta pregrabada de getStatus.
type pollStep struct {
	res *infrasunat.PollResult
	err error
}

// fakeTransport responde con resultados pregrabados y registra los envíos.
type fakeTransport struct {
	mu sync.Mutex

	submit    *infrasunat.SubmitResult
	submitErr error

	ticket     *infrasunat.TicketResult
	summaryErr error

	polls     []pollStep
	pollCalls int

	sentFiles []string
}

func (t *fakeTransport) SendBill(_ context.Context, _ *entity.Company, filename string, _ []byte) (*infrasunat.SubmitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentFiles = append(t.sentFiles, filename)
	if t.submitErr != nil {
		return nil, t.submitErr
	}
	return t.submit, nil
}

func (t *fakeTransport) SendSummary(_ context.Context, _ *entity.Company, filename string, _ []byte) (*infrasunat.TicketResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentFiles = append(t.sentFiles, filename)
	if t.summaryErr != nil {
		return nil, t.summaryErr
	}
	return t.ticket, nil
}

func (t *fakeTransport) GetStatus(_ context.Context, _ *entity.Company, _ string) (*infrasunat.PollResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pollCalls >= len(t.polls) {
		// Sin más respuestas pregrabadas: el ticket sigue en proceso.
		t.pollCalls++
		return &infrasunat.PollResult{StatusCode: "98"}, nil
	}
	step := t.polls[t.pollCalls]
	t.pollCalls++
	return step.res, step.err
}

// fakeSigner devuelve un documento firmado sintético con un DigestValue
// reconocible, suficiente para que el pipeline extraiga el hash.
type fakeSigner struct {
	err error
}

func (s *fakeSigner) Sign(_ []byte, _ tls.Certificate) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(`<Invoice><Signature><SignedInfo><Reference>` +
		`<DigestValue>c2VsbG9kZXBydWViYQ==</DigestValue>` +
		`</Reference></SignedInfo></Signature></Invoice>`), nil
}

// billableCompany emisor válido en BETA con RUC cuyo dígito verificador
// pasa la validación módulo 11.
func billableCompany() *entity.Company {
	return &entity.Company{
		ID:             1,
		RUC:            "20601234565",
		Denomination:   "COMERCIAL ANDINA S.A.C.",
		Address:        "AV. LOS PINOS 123, LIMA",
		Environment:    "BETA",
		BillingEnabled: true,
		IsActive:       true,
	}
}

// billableOperation factura F001-123 lista para procesar.
func billableOperation(status string) *entity.Operation {
	return &entity.Operation{
		ID:            10,
		CompanyID:     1,
		DocumentCode:  "01",
		Serial:        "F001",
		Number:        123,
		Currency:      "PEN",
		EmitDate:      time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		EmitTime:      "10:30:00",
		BillingStatus: status,
		Customer: &entity.Person{
			ID:         7,
			PersonType: "6",
			Document:   "20508912342",
			FullName:   "DISTRIBUIDORA DEL SUR S.A.",
		},
		IGVPercent:   decimal.NewFromInt(18),
		IGVAmount:    decimal.NewFromInt(18),
		TotalTaxable: decimal.NewFromInt(100),
		TotalAmount:  decimal.NewFromInt(118),
	}
}

func billableDetails() []entity.OperationDetail {
	return []entity.OperationDetail{
		{
			ID:              1,
			OperationID:     10,
			ProductCode:     "P0001",
			Description:     "CEMENTO PORTLAND TIPO I",
			TypeAffectation: "10",
			Quantity:        decimal.NewFromInt(4),
			UnitValue:       decimal.NewFromInt(25),
			UnitPrice:       decimal.RequireFromString("29.50"),
			TotalValue:      decimal.NewFromInt(100),
			TotalIGV:        decimal.NewFromInt(18),
			TotalAmount:     decimal.NewFromInt(118),
		},
	}
}

// testEnv agrupa el orquestador con todos sus dobles para inspección.
type testEnv struct {
	orch      *Orchestrator
	operation *fakeOperationRepo
	companies *fakeCompanyRepo
	transport *fakeTransport
	signer    *fakeSigner
	fs        afero.Fs
	sleeps    []time.Duration
}

// newTestEnv arma un orquestador con generadores reales de XML, almacén en
// memoria y dobles para repositorios, firma y transporte. El reloj queda
// fijo y las esperas se registran sin dormir.
func newTestEnv(t *testing.T, ops *fakeOperationRepo, company *entity.Company) *testEnv {
	t.Helper()

	env := &testEnv{
		operation: ops,
		companies: &fakeCompanyRepo{company: company},
		transport: &fakeTransport{},
		signer:    &fakeSigner{},
		fs:        afero.NewMemMapFs(),
	}

	cfg := config.BillingConfig{
		MaxRetries:      3,
		PollMaxAttempts: 3,
		PollBaseDelay:   5 * time.Second,
		ErrorMaxLength:  500,
	}
	log := logger.New(logger.Config{Env: "production", Level: "error"})

	env.orch = NewOrchestrator(
		ops,
		env.companies,
		&fakePaymentRepo{},
		infrasunat.NewXMLBuilderService(),
		infrasunat.NewVoidedBuilderService(),
		env.signer,
		env.transport,
		storage.NewFileStore(env.fs, "media"),
		cfg,
		log,
	)
	env.orch.loadCert = func(*entity.Company) (tls.Certificate, error) {
		return tls.Certificate{}, nil
	}
	env.orch.now = func() time.Time {
		return time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)
	}
	env.orch.sleep = func(_ context.Context, d time.Duration) {
		env.sleeps = append(env.sleeps, d)
	}
	return env
}

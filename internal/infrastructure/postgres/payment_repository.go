package postgres

import (
	"context"
	"fmt"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
)

var _ repository.PaymentRepository = (*PaymentRepo)(nil)

// PaymentRepo implementación de PaymentRepository sobre PostgreSQL.
type PaymentRepo struct {
	q Querier
}

// NewPaymentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewPaymentRepository(q Querier) *PaymentRepo {
	return &PaymentRepo{q: q}
}

// ListByOperation pagos habilitados de la operación, ordenados por fecha de
// vencimiento. El constructor XML deriva de aquí las cuotas del crédito.
func (r *PaymentRepo) ListByOperation(ctx context.Context, operationID int64) ([]entity.Payment, error) {
	query := `
		SELECT id, operation_id, payment_type, payment_date, paid_amount, is_enabled
		FROM payments
		WHERE operation_id = $1 AND is_enabled
		ORDER BY payment_date, id`
	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("consultar pagos de operación %d: %w", operationID, err)
	}
	defer rows.Close()
	var payments []entity.Payment
	for rows.Next() {
		var p entity.Payment
		if err := rows.Scan(&p.ID, &p.OperationID, &p.PaymentType, &p.PaymentDate, &p.PaidAmount, &p.IsEnabled); err != nil {
			return nil, fmt.Errorf("leer pago: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

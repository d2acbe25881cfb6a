package repository

import (
	"context"

	"github.com/witalo/inova/internal/domain/entity"
)

// CompanyRepository acceso de solo lectura al emisor.
type CompanyRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// PaymentRepository acceso de solo lectura a los pagos de una operación.
type PaymentRepository interface {
	// ListByOperation pagos habilitados ordenados por fecha de vencimiento.
	ListByOperation(ctx context.Context, operationID int64) ([]entity.Payment, error)
}

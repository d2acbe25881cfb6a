package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment es un pago (o cuota pactada) asociado a una operación. El núcleo de
// facturación lo lee únicamente para clasificar la forma de pago del XML:
// contado vs. crédito y, en crédito, el cronograma de cuotas.
type Payment struct {
	ID          int64
	OperationID int64
	PaymentType string // CN contado, CR crédito
	PaymentDate time.Time
	PaidAmount  decimal.Decimal // 0 en cuotas aún no pagadas
	IsEnabled   bool
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
)

var _ repository.OperationRepository = (*OperationRepo)(nil)

// OperationRepo implementación de OperationRepository sobre PostgreSQL
// (usable con pool o tx).
type OperationRepo struct {
	q Querier
}

// NewOperationRepository construye el adaptador. Pasar pool o tx (Querier).
func NewOperationRepository(q Querier) *OperationRepo {
	return &OperationRepo{q: q}
}

// operationColumns columnas del agregado, en el orden que espera scanOperation.
// p.* son los campos del adquirente (LEFT JOIN, pueden venir nulos).
const operationColumns = `
	o.id, o.company_id, o.document_code, o.serial, o.number, o.currency,
	o.emit_date, o.emit_time,
	o.parent_operation_id, COALESCE(o.parent_serial, ''), COALESCE(o.parent_number, 0),
	COALESCE(o.parent_document_code, ''),
	o.global_discount, o.igv_percent, o.igv_amount,
	o.total_taxable, o.total_unaffected, o.total_exempt, o.total_free, o.total_amount,
	o.billing_status,
	COALESCE(o.sunat_response_code, ''), COALESCE(o.sunat_response_description, ''),
	COALESCE(o.sunat_error_description, ''), COALESCE(o.hash_code, ''),
	COALESCE(o.xml_file_path, ''), COALESCE(o.signed_xml_file_path, ''), COALESCE(o.cdr_file_path, ''),
	o.retry_count, o.max_retries, o.last_retry_at,
	COALESCE(o.cancellation_reason, ''), COALESCE(o.cancellation_description, ''),
	o.cancellation_date, COALESCE(o.cancellation_ticket, ''),
	COALESCE(o.cancellation_xml_path, ''), COALESCE(o.cancellation_signed_path, ''),
	COALESCE(o.cancellation_cdr_path, ''),
	o.created_at, o.updated_at,
	p.id, p.person_type, p.document, p.full_name, p.address`

const operationFrom = `
	FROM operations o
	LEFT JOIN persons p ON p.id = o.person_id`

// GetByID obtiene la operación con su adquirente. Devuelve nil sin error si no existe.
func (r *OperationRepo) GetByID(ctx context.Context, id int64) (*entity.Operation, error) {
	query := `SELECT ` + operationColumns + operationFrom + ` WHERE o.id = $1`
	op, err := scanOperation(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consultar operación %d: %w", id, err)
	}
	return op, nil
}

// GetDetails obtiene las líneas de una operación en su orden de registro.
func (r *OperationRepo) GetDetails(ctx context.Context, operationID int64) ([]entity.OperationDetail, error) {
	query := `
		SELECT id, operation_id, COALESCE(product_code, ''), description,
		       type_affectation, quantity, unit_value, unit_price,
		       discount_percentage, total_discount, total_value, total_igv, total_amount
		FROM operation_details
		WHERE operation_id = $1
		ORDER BY id`
	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("consultar detalles de operación %d: %w", operationID, err)
	}
	defer rows.Close()
	var details []entity.OperationDetail
	for rows.Next() {
		var d entity.OperationDetail
		if err := rows.Scan(
			&d.ID, &d.OperationID, &d.ProductCode, &d.Description,
			&d.TypeAffectation, &d.Quantity, &d.UnitValue, &d.UnitPrice,
			&d.DiscountPercentage, &d.TotalDiscount, &d.TotalValue, &d.TotalIGV, &d.TotalAmount,
		); err != nil {
			return nil, fmt.Errorf("leer detalle: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// UpdateBilling aplica los campos de facturación de upd sobre la operación.
func (r *OperationRepo) UpdateBilling(ctx context.Context, id int64, upd repository.BillingUpdate) error {
	set, args := billingSetClause(upd)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE operations SET %s WHERE id = $%d`, set, len(args))
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("actualizar facturación de operación %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operación %d no existe", id)
	}
	return nil
}

// UpdateBillingGuarded aplica upd solo si billing_status sigue siendo
// expectedStatus. El WHERE sobre el estado es el candado optimista contra
// doble envío: devuelve false cuando otro proceso ya movió la operación.
func (r *OperationRepo) UpdateBillingGuarded(ctx context.Context, id int64, expectedStatus string, upd repository.BillingUpdate) (bool, error) {
	set, args := billingSetClause(upd)
	args = append(args, id, expectedStatus)
	query := fmt.Sprintf(`UPDATE operations SET %s WHERE id = $%d AND billing_status = $%d`,
		set, len(args)-1, len(args))
	tag, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("actualizar facturación de operación %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// billingSetClause arma el SET parcial: billing_status siempre viaja, el
// resto solo cuando el puntero no es nulo.
func billingSetClause(upd repository.BillingUpdate) (string, []any) {
	sets := []string{"billing_status = $1", "updated_at = NOW()"}
	args := []any{upd.BillingStatus}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.SunatResponseCode != nil {
		add("sunat_response_code", *upd.SunatResponseCode)
	}
	if upd.SunatResponseDescription != nil {
		add("sunat_response_description", *upd.SunatResponseDescription)
	}
	if upd.SunatErrorDescription != nil {
		add("sunat_error_description", *upd.SunatErrorDescription)
	}
	if upd.HashCode != nil {
		add("hash_code", *upd.HashCode)
	}
	if upd.XMLFilePath != nil {
		add("xml_file_path", *upd.XMLFilePath)
	}
	if upd.SignedXMLFilePath != nil {
		add("signed_xml_file_path", *upd.SignedXMLFilePath)
	}
	if upd.CDRFilePath != nil {
		add("cdr_file_path", *upd.CDRFilePath)
	}
	if upd.RetryCount != nil {
		add("retry_count", *upd.RetryCount)
	}
	if upd.LastRetryAt != nil {
		add("last_retry_at", *upd.LastRetryAt)
	}
	if upd.CancellationReason != nil {
		add("cancellation_reason", *upd.CancellationReason)
	}
	if upd.CancellationDescription != nil {
		add("cancellation_description", *upd.CancellationDescription)
	}
	if upd.CancellationDate != nil {
		add("cancellation_date", *upd.CancellationDate)
	}
	if upd.CancellationTicket != nil {
		add("cancellation_ticket", *upd.CancellationTicket)
	}
	if upd.CancellationXMLPath != nil {
		add("cancellation_xml_path", *upd.CancellationXMLPath)
	}
	if upd.CancellationSignedPath != nil {
		add("cancellation_signed_path", *upd.CancellationSignedPath)
	}
	if upd.CancellationCDRPath != nil {
		add("cancellation_cdr_path", *upd.CancellationCDRPath)
	}
	return strings.Join(sets, ", "), args
}

// ListRetryable operaciones en ERROR o PENDING listas para reintentar: sin
// intento previo, o con el último intento anterior a `before`.
func (r *OperationRepo) ListRetryable(ctx context.Context, before time.Time, limit int) ([]entity.Operation, error) {
	query := `SELECT ` + operationColumns + operationFrom + `
		WHERE o.billing_status IN ($1, $2)
		  AND (o.last_retry_at IS NULL OR o.last_retry_at < $3)
		ORDER BY o.last_retry_at NULLS FIRST, o.id
		LIMIT $4`
	return r.listOperations(ctx, query,
		entity.BillingStatusError, entity.BillingStatusPending, before, limit)
}

// ListPendingCancellations operaciones con ticket de anulación sin resolver.
func (r *OperationRepo) ListPendingCancellations(ctx context.Context, limit int) ([]entity.Operation, error) {
	query := `SELECT ` + operationColumns + operationFrom + `
		WHERE o.billing_status = $1
		  AND COALESCE(o.cancellation_ticket, '') <> ''
		ORDER BY o.cancellation_date, o.id
		LIMIT $2`
	return r.listOperations(ctx, query, entity.BillingStatusCancellationPending, limit)
}

func (r *OperationRepo) listOperations(ctx context.Context, query string, args ...any) ([]entity.Operation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listar operaciones: %w", err)
	}
	defer rows.Close()
	var ops []entity.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("leer operación: %w", err)
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// NextCancellationCorrelative incrementa y devuelve el correlativo diario de
// bajas (RA) o resúmenes (RC) de la empresa. El upsert sobre la clave
// (empresa, prefijo, día) lo hace seguro bajo concurrencia.
func (r *OperationRepo) NextCancellationCorrelative(ctx context.Context, companyID int64, prefix string, day time.Time) (int, error) {
	query := `
		INSERT INTO cancellation_correlatives (company_id, prefix, day, correlative)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, prefix, day)
		DO UPDATE SET correlative = cancellation_correlatives.correlative + 1
		RETURNING correlative`
	var correlative int
	err := r.q.QueryRow(ctx, query, companyID, prefix, day.Format("2006-01-02")).Scan(&correlative)
	if err != nil {
		return 0, fmt.Errorf("correlativo de anulación %s: %w", prefix, err)
	}
	return correlative, nil
}

// scanOperation lee una fila con las columnas de operationColumns. El
// adquirente viene de un LEFT JOIN: si p.id es nulo no hay cliente asociado.
func scanOperation(row pgx.Row) (*entity.Operation, error) {
	var op entity.Operation
	var personID *int64
	var personType, personDocument, personName, personAddress *string
	err := row.Scan(
		&op.ID, &op.CompanyID, &op.DocumentCode, &op.Serial, &op.Number, &op.Currency,
		&op.EmitDate, &op.EmitTime,
		&op.ParentOperationID, &op.ParentSerial, &op.ParentNumber, &op.ParentDocumentCode,
		&op.GlobalDiscount, &op.IGVPercent, &op.IGVAmount,
		&op.TotalTaxable, &op.TotalUnaffected, &op.TotalExempt, &op.TotalFree, &op.TotalAmount,
		&op.BillingStatus,
		&op.SunatResponseCode, &op.SunatResponseDescription,
		&op.SunatErrorDescription, &op.HashCode,
		&op.XMLFilePath, &op.SignedXMLFilePath, &op.CDRFilePath,
		&op.RetryCount, &op.MaxRetries, &op.LastRetryAt,
		&op.CancellationReason, &op.CancellationDescription,
		&op.CancellationDate, &op.CancellationTicket,
		&op.CancellationXMLPath, &op.CancellationSignedPath, &op.CancellationCDRPath,
		&op.CreatedAt, &op.UpdatedAt,
		&personID, &personType, &personDocument, &personName, &personAddress,
	)
	if err != nil {
		return nil, err
	}
	if personID != nil {
		deref := func(p *string) string {
			if p != nil {
				return *p
			}
			return ""
		}
		op.Customer = &entity.Person{
			ID:         *personID,
			PersonType: deref(personType),
			Document:   deref(personDocument),
			FullName:   deref(personName),
			Address:    deref(personAddress),
		}
	}
	return &op, nil
}

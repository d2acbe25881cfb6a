package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/domain/repository"
)

var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación de CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// GetByID obtiene el emisor con sus credenciales SUNAT. Devuelve nil sin
// error si no existe.
func (r *CompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	query := `
		SELECT id, ruc, denomination, COALESCE(address, ''), COALESCE(email, ''),
		       environment,
		       COALESCE(sunat_username, ''), COALESCE(sunat_password, ''),
		       COALESCE(cert_path, ''), COALESCE(cert_key_path, ''), COALESCE(cert_password, ''),
		       billing_enabled, is_active, created_at, updated_at
		FROM companies WHERE id = $1`
	var c entity.Company
	err := r.q.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.RUC, &c.Denomination, &c.Address, &c.Email,
		&c.Environment,
		&c.SunatUsername, &c.SunatPassword,
		&c.CertPath, &c.CertKeyPath, &c.CertPassword,
		&c.BillingEnabled, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("consultar empresa %d: %w", id, err)
	}
	return &c, nil
}

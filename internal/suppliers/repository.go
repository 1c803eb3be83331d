package suppliers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/invio-erp/invio/internal/platform/db"
)

// ErrNotFound indicates the provider does not exist.
var ErrNotFound = errors.New("provider not found")

// UniqueTaxIDConstraint is the unique index backing (tenant_id, tax_id).
const UniqueTaxIDConstraint = "providers_tenant_tax_id_key"

// Repository defines provider data access. It is constructed over a
// db.Querier so the same queries run standalone or inside an ingestion
// transaction.
type Repository interface {
	Get(ctx context.Context, id int64) (Provider, error)
	GetByTaxID(ctx context.Context, tenantID int64, taxID string) (Provider, error)
	Create(ctx context.Context, tenantID int64, input CreateProviderInput) (Provider, error)
	List(ctx context.Context, tenantID int64, req ListProvidersRequest) ([]Provider, int, error)

	ReassignInvoices(ctx context.Context, tenantID, fromID, toID int64) error
	MergeMaterialLinks(ctx context.Context, tenantID, fromID, toID int64) error
	ReassignAlerts(ctx context.Context, tenantID, fromID, toID int64) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	q db.Querier
}

// NewRepository constructs a provider repository.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

const providerColumns = `id, tenant_id, name, tax_id, type, COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), created_at, updated_at`

func scanProvider(row pgx.Row) (Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.TaxID, &p.Type, &p.Email, &p.Phone, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Provider{}, ErrNotFound
		}
		return Provider{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Provider, error) {
	return scanProvider(r.q.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
}

func (r *repository) GetByTaxID(ctx context.Context, tenantID int64, taxID string) (Provider, error) {
	return scanProvider(r.q.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE tenant_id = $1 AND tax_id = $2`,
		tenantID, NormalizeTaxID(taxID)))
}

func (r *repository) Create(ctx context.Context, tenantID int64, input CreateProviderInput) (Provider, error) {
	return scanProvider(r.q.QueryRow(ctx, `
		INSERT INTO providers (tenant_id, name, tax_id, type, email, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+providerColumns,
		tenantID, input.Name, NormalizeTaxID(input.TaxID), string(input.Type),
		input.Email, input.Phone, input.Address))
}

func (r *repository) List(ctx context.Context, tenantID int64, req ListProvidersRequest) ([]Provider, int, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE tenant_id = $1`
	countQuery := `SELECT COUNT(*) FROM providers WHERE tenant_id = $1`
	args := []any{tenantID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		cond := ` AND (name ILIKE $2 OR tax_id ILIKE $2)`
		query += cond
		countQuery += cond
	}

	var total int
	if err := r.q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC, id ASC`
	if req.PerPage > 0 {
		offset := (req.Page - 1) * req.PerPage
		if offset < 0 {
			offset = 0
		}
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, req.PerPage, offset)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return providers, total, nil
}

func (r *repository) ReassignInvoices(ctx context.Context, tenantID, fromID, toID int64) error {
	_, err := r.q.Exec(ctx,
		`UPDATE invoices SET provider_id = $1 WHERE tenant_id = $2 AND provider_id = $3`,
		toID, tenantID, fromID)
	return err
}

// MergeMaterialLinks moves price history rows to the target provider. When
// both providers observed the same material, the more recent observation
// wins.
func (r *repository) MergeMaterialLinks(ctx context.Context, tenantID, fromID, toID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO material_providers (tenant_id, material_id, provider_id, last_price, last_price_at)
		SELECT tenant_id, material_id, $1, last_price, last_price_at
		FROM material_providers
		WHERE tenant_id = $2 AND provider_id = $3
		ON CONFLICT (tenant_id, material_id, provider_id)
		DO UPDATE SET last_price = EXCLUDED.last_price, last_price_at = EXCLUDED.last_price_at
		WHERE material_providers.last_price_at <= EXCLUDED.last_price_at`,
		toID, tenantID, fromID)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx,
		`DELETE FROM material_providers WHERE tenant_id = $1 AND provider_id = $2`,
		tenantID, fromID)
	return err
}

func (r *repository) ReassignAlerts(ctx context.Context, tenantID, fromID, toID int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO price_alerts (tenant_id, material_id, provider_id, effective_date, old_price, new_price, change_pct, severity, status, created_at)
		SELECT tenant_id, material_id, $1, effective_date, old_price, new_price, change_pct, severity, status, created_at
		FROM price_alerts
		WHERE tenant_id = $2 AND provider_id = $3
		ON CONFLICT (tenant_id, material_id, provider_id, effective_date) DO NOTHING`,
		toID, tenantID, fromID)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx,
		`DELETE FROM price_alerts WHERE tenant_id = $1 AND provider_id = $2`,
		tenantID, fromID)
	return err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	return err
}

package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/invio-erp/invio/internal/platform/db"
)

// ErrNotFound indicates the material does not exist.
var ErrNotFound = errors.New("material not found")

// UniqueCodeConstraint is the unique index backing (tenant_id, code). It is
// the integrity backstop for the documented resolution race between
// concurrent batch jobs.
const UniqueCodeConstraint = "materials_tenant_code_key"

// Repository defines material data access. Constructed over a db.Querier so
// resolution runs inside the same transaction as the invoice that triggered
// it.
type Repository interface {
	Get(ctx context.Context, id int64) (Material, error)
	GetByCode(ctx context.Context, tenantID int64, code string) (Material, error)
	FindSimilarCode(ctx context.Context, tenantID int64, code string) (Material, error)
	ListNames(ctx context.Context, tenantID int64) ([]MaterialName, error)
	Create(ctx context.Context, tenantID int64, input CreateMaterialInput) (Material, error)
	AddAltCode(ctx context.Context, id int64, code string) error
}

type repository struct {
	q db.Querier
}

// NewRepository constructs a material repository.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

const materialColumns = `id, tenant_id, code, name, COALESCE(category,''), COALESCE(unit,''), COALESCE(ref_code,''), COALESCE(alt_codes,'{}'), product_group_id, active, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.TenantID, &m.Code, &m.Name, &m.Category, &m.Unit,
		&m.RefCode, &m.AltCodes, &m.ProductGroupID, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, err
	}
	return m, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Material, error) {
	return scanMaterial(r.q.QueryRow(ctx,
		`SELECT `+materialColumns+` FROM materials WHERE id = $1`, id))
}

// GetByCode matches the normalized code against the primary code, the
// extracted reference code and any recorded alternative codes.
func (r *repository) GetByCode(ctx context.Context, tenantID int64, code string) (Material, error) {
	return scanMaterial(r.q.QueryRow(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE tenant_id = $1 AND active
		  AND (code = $2 OR ref_code = $2 OR $2 = ANY(COALESCE(alt_codes,'{}')))
		ORDER BY id
		LIMIT 1`,
		tenantID, code))
}

// FindSimilarCode applies the containment heuristic in SQL: codes of at
// least six characters where either contains the other. Ties resolve to the
// oldest row so repeated ingests stay deterministic.
func (r *repository) FindSimilarCode(ctx context.Context, tenantID int64, code string) (Material, error) {
	return scanMaterial(r.q.QueryRow(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE tenant_id = $1 AND active
		  AND (
		    (length(code) >= 6 AND (position(code IN $2) > 0 OR position($2 IN code) > 0))
		    OR (length(ref_code) >= 6 AND (position(ref_code IN $2) > 0 OR position($2 IN ref_code) > 0))
		  )
		ORDER BY id
		LIMIT 1`,
		tenantID, code))
}

func (r *repository) ListNames(ctx context.Context, tenantID int64) ([]MaterialName, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id, name FROM materials WHERE tenant_id = $1 AND active ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []MaterialName
	for rows.Next() {
		var n MaterialName
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *repository) Create(ctx context.Context, tenantID int64, input CreateMaterialInput) (Material, error) {
	return scanMaterial(r.q.QueryRow(ctx, `
		INSERT INTO materials (tenant_id, code, name, category, unit, ref_code, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		RETURNING `+materialColumns,
		tenantID, input.Code, input.Name, input.Category, input.Unit, input.RefCode))
}

// AddAltCode records a newly observed code variant, ignoring duplicates.
func (r *repository) AddAltCode(ctx context.Context, id int64, code string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE materials
		SET alt_codes = array_append(COALESCE(alt_codes,'{}'), $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(COALESCE(alt_codes,'{}'))) AND code <> $2 AND ref_code <> $2`,
		id, code)
	return err
}

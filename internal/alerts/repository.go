package alerts

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/invio-erp/invio/internal/platform/db"
)

// ErrNotFound indicates the alert does not exist.
var ErrNotFound = errors.New("alert not found")

// Repository defines price alert data access. Constructed over a db.Querier
// so inserts can run inside the ingestion transaction.
type Repository interface {
	// Insert creates the alert unless one already exists for the same
	// (tenant, material, provider, effective date) key. The duplicate case
	// is expected during ingestion and reports created=false, not an error.
	Insert(ctx context.Context, alert PriceAlert) (created bool, err error)
	Get(ctx context.Context, id int64) (PriceAlert, error)
	List(ctx context.Context, tenantID int64, req ListAlertsRequest) ([]PriceAlert, int, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

type repository struct {
	q db.Querier
}

// NewRepository constructs an alert repository.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

const alertColumns = `id, tenant_id, material_id, provider_id, effective_date, old_price, new_price, change_pct, severity, status, created_at`

func scanAlert(row pgx.Row) (PriceAlert, error) {
	var a PriceAlert
	err := row.Scan(&a.ID, &a.TenantID, &a.MaterialID, &a.ProviderID, &a.EffectiveDate,
		&a.OldPrice, &a.NewPrice, &a.ChangePct, &a.Severity, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PriceAlert{}, ErrNotFound
		}
		return PriceAlert{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, alert PriceAlert) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO price_alerts (tenant_id, material_id, provider_id, effective_date, old_price, new_price, change_pct, severity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, material_id, provider_id, effective_date) DO NOTHING`,
		alert.TenantID, alert.MaterialID, alert.ProviderID, alert.EffectiveDate,
		alert.OldPrice, alert.NewPrice, alert.ChangePct, string(alert.Severity), string(StatusOpen))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repository) Get(ctx context.Context, id int64) (PriceAlert, error) {
	return scanAlert(r.q.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM price_alerts WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, tenantID int64, req ListAlertsRequest) ([]PriceAlert, int, error) {
	where := ` FROM price_alerts WHERE tenant_id = $1`
	args := []any{tenantID}

	if req.Status != "" {
		args = append(args, string(req.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if req.MaterialID != 0 {
		args = append(args, req.MaterialID)
		where += ` AND material_id = $` + strconv.Itoa(len(args))
	}
	if req.ProviderID != 0 {
		args = append(args, req.ProviderID)
		where += ` AND provider_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + alertColumns + where + ` ORDER BY effective_date DESC, id DESC`
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

	var alerts []PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE price_alerts SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

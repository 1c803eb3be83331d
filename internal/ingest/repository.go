package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/invio-erp/invio/internal/alerts"
	"github.com/invio-erp/invio/internal/catalog"
	"github.com/invio-erp/invio/internal/platform/db"
	"github.com/invio-erp/invio/internal/suppliers"
)

var (
	// ErrJobNotFound indicates the batch job does not exist.
	ErrJobNotFound = errors.New("batch job not found")
	// ErrJobFinished indicates a cancel request against a finished job.
	ErrJobFinished = errors.New("batch job already finished")
)

// Store opens per-invoice transactions. Everything one invoice needs
// (provider and material resolution, item writes, price history, alerts)
// happens on the same TxStore so a failure rolls the whole invoice back.
type Store interface {
	WithinTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the operations available inside one invoice transaction.
type TxStore interface {
	Catalog() catalog.Repository
	Providers() suppliers.Repository
	Alerts() alerts.Repository

	CreateInvoice(ctx context.Context, tenantID, providerID int64, code string, issueDate time.Time) (int64, error)
	CreateItem(ctx context.Context, item InvoiceItem) error
	SetInvoiceTotal(ctx context.Context, invoiceID int64, total decimal.Decimal) error

	LastPrice(ctx context.Context, tenantID, materialID, providerID int64) (PricePoint, bool, error)
	UpsertLastPrice(ctx context.Context, tenantID, materialID, providerID int64, price decimal.Decimal, at time.Time) error
}

// JobStore persists batch job state and counters.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id uuid.UUID) (Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	Status(ctx context.Context, id uuid.UUID) (JobStatus, error)
	Finish(ctx context.Context, id uuid.UUID, status JobStatus, summary Summary) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

type pgStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs the PostgreSQL-backed ingestion store.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) WithinTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxStore{q: tx})
	})
}

type pgTxStore struct {
	q db.Querier
}

func (t *pgTxStore) Catalog() catalog.Repository {
	return catalog.NewRepository(t.q)
}

func (t *pgTxStore) Providers() suppliers.Repository {
	return suppliers.NewRepository(t.q)
}

func (t *pgTxStore) Alerts() alerts.Repository {
	return alerts.NewRepository(t.q)
}

func (t *pgTxStore) CreateInvoice(ctx context.Context, tenantID, providerID int64, code string, issueDate time.Time) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO invoices (tenant_id, provider_id, code, issue_date, total)
		VALUES ($1, $2, $3, $4, 0)
		RETURNING id`,
		tenantID, providerID, code, issueDate).Scan(&id)
	return id, err
}

func (t *pgTxStore) CreateItem(ctx context.Context, item InvoiceItem) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoice_items (tenant_id, invoice_id, material_id, quantity, unit_price, total_price, work_order, item_date, line_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.TenantID, item.InvoiceID, item.MaterialID, item.Quantity, item.UnitPrice,
		item.TotalPrice, item.WorkOrder, item.ItemDate, item.LineNumber)
	return err
}

func (t *pgTxStore) SetInvoiceTotal(ctx context.Context, invoiceID int64, total decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `UPDATE invoices SET total = $2 WHERE id = $1`, invoiceID, total)
	return err
}

func (t *pgTxStore) LastPrice(ctx context.Context, tenantID, materialID, providerID int64) (PricePoint, bool, error) {
	var point PricePoint
	err := t.q.QueryRow(ctx, `
		SELECT last_price, last_price_at
		FROM material_providers
		WHERE tenant_id = $1 AND material_id = $2 AND provider_id = $3`,
		tenantID, materialID, providerID).Scan(&point.Price, &point.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return PricePoint{}, false, nil
	}
	if err != nil {
		return PricePoint{}, false, err
	}
	return point, true, nil
}

// UpsertLastPrice applies the monotonic-by-date update policy: a late
// out-of-order observation never overwrites a more recent one.
func (t *pgTxStore) UpsertLastPrice(ctx context.Context, tenantID, materialID, providerID int64, price decimal.Decimal, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO material_providers (tenant_id, material_id, provider_id, last_price, last_price_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, material_id, provider_id)
		DO UPDATE SET last_price = EXCLUDED.last_price, last_price_at = EXCLUDED.last_price_at
		WHERE material_providers.last_price_at <= EXCLUDED.last_price_at`,
		tenantID, materialID, providerID, price, at)
	return err
}

type pgJobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore constructs the PostgreSQL-backed job store.
func NewJobStore(pool *pgxpool.Pool) JobStore {
	return &pgJobStore{pool: pool}
}

func (s *pgJobStore) Create(ctx context.Context, job Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_jobs (id, tenant_id, status, source_path, summary)
		VALUES ($1, $2, $3, $4, '{}')`,
		job.ID, job.TenantID, string(JobQueued), job.SourcePath)
	return err
}

func (s *pgJobStore) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	var (
		job     Job
		status  string
		summary []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, status, source_path, summary, created_at, started_at, finished_at
		FROM ingest_jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.TenantID, &status, &job.SourcePath, &summary,
			&job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	job.Status = JobStatus(status)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &job.Summary); err != nil {
			return Job{}, err
		}
	}
	return job, nil
}

func (s *pgJobStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3`,
		id, string(JobRunning), string(JobQueued))
	return err
}

func (s *pgJobStore) Status(ctx context.Context, id uuid.UUID) (JobStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM ingest_jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrJobNotFound
	}
	return JobStatus(status), err
}

// Finish records the summary and final status. A cancellation that landed
// while the driver was finishing keeps the cancelled status.
func (s *pgJobStore) Finish(ctx context.Context, id uuid.UUID, status JobStatus, summary Summary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = CASE WHEN status = $3 THEN status ELSE $2 END,
		    summary = $4,
		    finished_at = now()
		WHERE id = $1`,
		id, string(status), string(JobCancelled), raw)
	return err
}

func (s *pgJobStore) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs SET status = $2
		WHERE id = $1 AND status IN ($3, $4)`,
		id, string(JobCancelled), string(JobQueued), string(JobRunning))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Status(ctx, id); err != nil {
			return err
		}
		return ErrJobFinished
	}
	return nil
}

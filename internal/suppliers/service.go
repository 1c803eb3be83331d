package suppliers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invio-erp/invio/internal/platform/db"
	"github.com/invio-erp/invio/internal/shared"
)

// ErrMergeSelf indicates an attempt to merge a provider into itself.
var ErrMergeSelf = errors.New("cannot merge a provider into itself")

// Service coordinates provider operations.
type Service struct {
	pool   *pgxpool.Pool
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a provider service.
func NewService(pool *pgxpool.Pool, repo Repository, logger *slog.Logger) *Service {
	return &Service{pool: pool, repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context, id int64) (Provider, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, tenantID int64, req ListProvidersRequest) ([]Provider, shared.Pagination, error) {
	providers, total, err := s.repo.List(ctx, tenantID, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return providers, shared.NewPagination(req.Page, req.PerPage, total), nil
}

// Merge transfers everything owned by the source provider (invoices, price
// history, alerts) to the target, then deletes the source. One transaction;
// either the whole merge lands or none of it does.
func (s *Service) Merge(ctx context.Context, tenantID, targetID, sourceID int64) error {
	if targetID == sourceID {
		return ErrMergeSelf
	}
	target, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return fmt.Errorf("suppliers: load merge target: %w", err)
	}
	source, err := s.repo.Get(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("suppliers: load merge source: %w", err)
	}
	if target.TenantID != tenantID || source.TenantID != tenantID {
		return ErrNotFound
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := NewRepository(tx)
		if err := repo.ReassignInvoices(ctx, tenantID, sourceID, targetID); err != nil {
			return err
		}
		if err := repo.MergeMaterialLinks(ctx, tenantID, sourceID, targetID); err != nil {
			return err
		}
		if err := repo.ReassignAlerts(ctx, tenantID, sourceID, targetID); err != nil {
			return err
		}
		return repo.Delete(ctx, sourceID)
	})
	if err != nil {
		return fmt.Errorf("suppliers: merge %d into %d: %w", sourceID, targetID, err)
	}

	s.logger.Info("providers merged",
		slog.Int64("tenant", tenantID),
		slog.Int64("source", sourceID),
		slog.Int64("target", targetID))
	return nil
}

// ResolveOrCreate finds the provider by normalized tax identifier, creating
// it when missing. Safe to call inside an ingestion transaction by passing a
// tx-bound repository; a concurrent create from another transaction is
// resolved by re-querying once after the unique violation.
func ResolveOrCreate(ctx context.Context, repo Repository, tenantID int64, input CreateProviderInput) (Provider, error) {
	provider, err := repo.GetByTaxID(ctx, tenantID, input.TaxID)
	if err == nil {
		return provider, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Provider{}, err
	}

	if input.Type == "" {
		input.Type = TypeMaterialSupplier
	}
	provider, err = repo.Create(ctx, tenantID, input)
	if err == nil {
		return provider, nil
	}
	if db.IsUniqueViolation(err, UniqueTaxIDConstraint) {
		return repo.GetByTaxID(ctx, tenantID, input.TaxID)
	}
	return Provider{}, err
}

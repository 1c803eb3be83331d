package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invio-erp/invio/internal/alerts"
	"github.com/invio-erp/invio/internal/catalog"
	"github.com/invio-erp/invio/internal/platform/db"
	"github.com/invio-erp/invio/internal/shared"
	"github.com/invio-erp/invio/internal/suppliers"
)

// Invalidator drops cached analytics after a batch lands new data.
type Invalidator interface {
	Bump(ctx context.Context, tenantID int64) error
}

// Service drives batch ingestion: it streams records out of a batch result
// source and commits each invoice in its own transaction, so one bad invoice
// never takes down its neighbours.
type Service struct {
	store     Store
	jobs      JobStore
	logger    *slog.Logger
	threshold decimal.Decimal
	cache     Invalidator
}

// NewService constructs the ingestion service. thresholdPct is the minimum
// price increase, in percent, that raises an alert.
func NewService(store Store, jobs JobStore, logger *slog.Logger, thresholdPct float64, cache Invalidator) *Service {
	return &Service{
		store:     store,
		jobs:      jobs,
		logger:    logger,
		threshold: decimal.NewFromFloat(thresholdPct),
		cache:     cache,
	}
}

// Run executes one batch job over the given source. It returns the summary
// that was persisted on the job row. Cancellation is cooperative: the job
// status is re-checked between invoices, and records committed before the
// cancel landed stay committed.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, tenantID int64, src io.Reader) (Summary, error) {
	if err := s.jobs.MarkRunning(ctx, jobID); err != nil {
		return Summary{}, fmt.Errorf("ingest: mark job running: %w", err)
	}

	var summary Summary
	final := JobCompleted

	parser := NewParser(src)
	for {
		status, err := s.jobs.Status(ctx, jobID)
		if err != nil {
			return Summary{}, fmt.Errorf("ingest: check job status: %w", err)
		}
		if status == JobCancelled {
			final = JobCancelled
			break
		}

		record, ok := parser.Next()
		if !ok {
			break
		}

		summary.Attempted++
		raised, err := s.ingestInvoice(ctx, tenantID, record)
		summary.AlertsRaised += raised
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, FailureReason{
				InvoiceCode: record.InvoiceCode,
				Reason:      err.Error(),
			})
			s.logger.Warn("invoice rejected",
				slog.String("job", jobID.String()),
				slog.String("invoice", record.InvoiceCode),
				slog.Any("error", err))
			continue
		}
		summary.Succeeded++
	}

	summary.ParseFailures = parser.Failures()

	if err := parser.Err(); err != nil {
		s.logger.Error("batch source failed",
			slog.String("job", jobID.String()),
			slog.Any("error", err))
		final = JobFailed
	}

	if err := s.jobs.Finish(ctx, jobID, final, summary); err != nil {
		return summary, fmt.Errorf("ingest: finish job: %w", err)
	}

	if summary.Succeeded > 0 && s.cache != nil {
		if err := s.cache.Bump(ctx, tenantID); err != nil {
			s.logger.Warn("analytics cache bump failed", slog.Any("error", err))
		}
	}

	s.logger.Info("batch job finished",
		slog.String("job", jobID.String()),
		slog.String("status", string(final)),
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("parse_failures", len(summary.ParseFailures)))

	if final == JobFailed {
		return summary, parser.Err()
	}
	return summary, nil
}

// FailJob marks a job failed before any record was processed, for driver
// failures like an unreadable spool file. The reason is persisted on the job
// row so polling clients see why nothing ran.
func (s *Service) FailJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	summary := Summary{Failures: []FailureReason{{Reason: reason}}}
	if err := s.jobs.Finish(ctx, jobID, JobFailed, summary); err != nil {
		return fmt.Errorf("ingest: fail job: %w", err)
	}
	return nil
}

// ingestInvoice commits one invoice, reporting how many price alerts it
// raised. A unique violation on the material code means another transaction
// created the same material concurrently; the whole invoice is retried once
// so the resolver finds the winner's row.
func (s *Service) ingestInvoice(ctx context.Context, tenantID int64, record InvoiceRecord) (int, error) {
	raised, err := s.tryIngest(ctx, tenantID, record)
	if err != nil && db.IsUniqueViolation(err, catalog.UniqueCodeConstraint) {
		raised, err = s.tryIngest(ctx, tenantID, record)
	}
	if err != nil {
		return 0, err
	}
	return raised, nil
}

func (s *Service) tryIngest(ctx context.Context, tenantID int64, record InvoiceRecord) (int, error) {
	raised := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx TxStore) error {
		provider, err := suppliers.ResolveOrCreate(ctx, tx.Providers(), tenantID, suppliers.CreateProviderInput{
			Name:  record.ProviderName,
			TaxID: record.ProviderTaxID,
			Type:  suppliers.ProviderType(record.ProviderType),
			Email: record.ProviderEmail,
			Phone: record.ProviderPhone,
		})
		if err != nil {
			return fmt.Errorf("resolve provider: %w", err)
		}

		invoiceID, err := tx.CreateInvoice(ctx, tenantID, provider.ID, record.InvoiceCode, record.IssueDate.Time)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		resolver := catalog.NewResolver(tx.Catalog())
		total := decimal.Zero

		for i, item := range record.Items {
			resolution, err := resolver.Resolve(ctx, tenantID, catalog.ResolveInput{
				Name:        item.Name,
				Description: item.Description,
				Code:        item.Code,
			})
			if err != nil {
				return fmt.Errorf("item %d: resolve material: %w", i+1, err)
			}

			itemDate := item.ItemDate.Time
			if itemDate.IsZero() {
				itemDate = record.IssueDate.Time
			}
			lineNumber := item.LineNumber
			if lineNumber == 0 {
				lineNumber = i + 1
			}
			lineTotal := item.Quantity.Mul(item.UnitPrice)

			if err := tx.CreateItem(ctx, InvoiceItem{
				TenantID:   tenantID,
				InvoiceID:  invoiceID,
				MaterialID: resolution.Material.ID,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				TotalPrice: lineTotal,
				WorkOrder:  shared.NormalizeWorkOrder(item.WorkOrder),
				ItemDate:   itemDate,
				LineNumber: lineNumber,
			}); err != nil {
				return fmt.Errorf("item %d: create: %w", i+1, err)
			}

			created, err := s.checkPrice(ctx, tx, tenantID, resolution.Material.ID, provider.ID, item.UnitPrice, itemDate)
			if err != nil {
				return fmt.Errorf("item %d: price check: %w", i+1, err)
			}
			if created {
				raised++
			}

			total = total.Add(lineTotal)
		}

		if err := tx.SetInvoiceTotal(ctx, invoiceID, total); err != nil {
			return fmt.Errorf("set invoice total: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return raised, nil
}

// checkPrice compares the observed unit price against the last one recorded
// for the (material, provider) pair, raising an alert when the increase
// crosses the threshold. The comparison reads the previous price before the
// upsert advances it. created reports whether a new alert row landed; a
// duplicate key is not an error and reports false.
func (s *Service) checkPrice(ctx context.Context, tx TxStore, tenantID, materialID, providerID int64, price decimal.Decimal, at time.Time) (bool, error) {
	previous, found, err := tx.LastPrice(ctx, tenantID, materialID, providerID)
	if err != nil {
		return false, err
	}

	created := false
	if found && !previous.Price.IsZero() {
		pct := alerts.ChangePct(previous.Price, price)
		if pct.GreaterThan(s.threshold) {
			created, err = tx.Alerts().Insert(ctx, alerts.PriceAlert{
				TenantID:      tenantID,
				MaterialID:    materialID,
				ProviderID:    providerID,
				EffectiveDate: at,
				OldPrice:      previous.Price,
				NewPrice:      price,
				ChangePct:     pct,
				Severity:      alerts.SeverityFor(pct),
			})
			if err != nil {
				return false, err
			}
			if created {
				s.logger.Info("price alert raised",
					slog.Int64("tenant", tenantID),
					slog.Int64("material", materialID),
					slog.Int64("provider", providerID),
					slog.String("change_pct", pct.String()))
			}
		}
	}

	if err := tx.UpsertLastPrice(ctx, tenantID, materialID, providerID, price, at); err != nil {
		return false, err
	}
	return created, nil
}

// Submit registers a new batch job in the queued state.
func (s *Service) Submit(ctx context.Context, tenantID int64, sourcePath string) (Job, error) {
	job := Job{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Status:     JobQueued,
		SourcePath: sourcePath,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return Job{}, fmt.Errorf("ingest: create job: %w", err)
	}
	return job, nil
}

// Job returns the job row, scoped to the tenant.
func (s *Service) Job(ctx context.Context, tenantID int64, id uuid.UUID) (Job, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.TenantID != tenantID {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// Cancel requests cooperative cancellation of a queued or running job.
func (s *Service) Cancel(ctx context.Context, tenantID int64, id uuid.UUID) error {
	if _, err := s.Job(ctx, tenantID, id); err != nil {
		return err
	}
	return s.jobs.Cancel(ctx, id)
}

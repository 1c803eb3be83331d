package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/invio-erp/invio/internal/ingest"
	jobmetrics "github.com/invio-erp/invio/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeIngestBatch is the task type for batch invoice ingestion.
	TaskTypeIngestBatch = "ingest:batch"
)

// IngestBatchPayload points the worker at a spooled batch source.
type IngestBatchPayload struct {
	JobID      uuid.UUID `json:"job_id"`
	TenantID   int64     `json:"tenant_id"`
	SourcePath string    `json:"source_path"`
}

// NewIngestBatchTask constructs an Asynq task.
func NewIngestBatchTask(payload IngestBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIngestBatch, data), nil
}

// IngestProcessor runs queued batch jobs against the ingestion service.
type IngestProcessor struct {
	service *ingest.Service
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIngestProcessor constructs the batch task processor.
func NewIngestProcessor(service *ingest.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IngestProcessor {
	return &IngestProcessor{service: service, logger: logger, metrics: metrics}
}

// Handle processes TaskTypeIngestBatch tasks: it streams the spooled source
// through the ingestion service and removes the spool file afterwards. A
// malformed payload or a missing source never retries; a missing source also
// marks the job failed so it does not linger queued forever.
func (p *IngestProcessor) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IngestBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("bad batch payload", slog.Any("error", err))
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	src, err := os.Open(payload.SourcePath)
	if err != nil {
		p.logger.Error("open batch source",
			slog.String("job", payload.JobID.String()),
			slog.Any("error", err))
		if failErr := p.service.FailJob(ctx, payload.JobID, "batch source unavailable: "+err.Error()); failErr != nil {
			p.logger.Error("mark job failed",
				slog.String("job", payload.JobID.String()),
				slog.Any("error", failErr))
		}
		return fmt.Errorf("open source %s: %w", payload.SourcePath, asynq.SkipRetry)
	}
	defer func() {
		_ = src.Close()
		_ = os.Remove(payload.SourcePath)
	}()

	tracker := p.metrics.Track(TaskTypeIngestBatch)
	summary, err := p.service.Run(ctx, payload.JobID, payload.TenantID, src)
	p.metrics.AddInvoices("succeeded", summary.Succeeded)
	p.metrics.AddInvoices("failed", summary.Failed)
	p.metrics.AddInvoices("parse_failed", len(summary.ParseFailures))
	p.metrics.AddAlerts(summary.AlertsRaised)
	return tracker.End(err)
}

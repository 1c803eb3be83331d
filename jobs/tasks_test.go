package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invio-erp/invio/internal/ingest"
	jobmetrics "github.com/invio-erp/invio/internal/jobs"
)

type fakeJobStore struct {
	finishedID      uuid.UUID
	finishedStatus  ingest.JobStatus
	finishedSummary ingest.Summary
}

func (f *fakeJobStore) Create(context.Context, ingest.Job) error { return nil }

func (f *fakeJobStore) Get(context.Context, uuid.UUID) (ingest.Job, error) {
	return ingest.Job{}, ingest.ErrJobNotFound
}

func (f *fakeJobStore) MarkRunning(context.Context, uuid.UUID) error { return nil }

func (f *fakeJobStore) Status(context.Context, uuid.UUID) (ingest.JobStatus, error) {
	return ingest.JobQueued, nil
}

func (f *fakeJobStore) Finish(_ context.Context, id uuid.UUID, status ingest.JobStatus, summary ingest.Summary) error {
	f.finishedID = id
	f.finishedStatus = status
	f.finishedSummary = summary
	return nil
}

func (f *fakeJobStore) Cancel(context.Context, uuid.UUID) error { return nil }

func newTestProcessor(jobs *fakeJobStore) *IngestProcessor {
	svc := ingest.NewService(nil, jobs, slog.Default(), 5, nil)
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	return NewIngestProcessor(svc, slog.Default(), metrics)
}

func TestHandleMissingSourceFailsJob(t *testing.T) {
	jobs := &fakeJobStore{}
	proc := newTestProcessor(jobs)

	jobID := uuid.New()
	task, err := NewIngestBatchTask(IngestBatchPayload{
		JobID:      jobID,
		TenantID:   1,
		SourcePath: "/nonexistent/spool/batch.jsonl",
	})
	require.NoError(t, err)

	err = proc.Handle(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "missing source never retries")

	assert.Equal(t, jobID, jobs.finishedID)
	assert.Equal(t, ingest.JobFailed, jobs.finishedStatus)
	require.NotEmpty(t, jobs.finishedSummary.Failures)
	assert.Contains(t, jobs.finishedSummary.Failures[0].Reason, "source unavailable")
}

func TestHandleBadPayloadSkipsRetry(t *testing.T) {
	jobs := &fakeJobStore{}
	proc := newTestProcessor(jobs)

	err := proc.Handle(context.Background(), asynq.NewTask(TaskTypeIngestBatch, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, uuid.Nil, jobs.finishedID, "no job row to fail without a decodable id")
}

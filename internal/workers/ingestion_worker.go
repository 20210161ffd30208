package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

// DocumentIngester runs the ingestion pipeline for one document
type DocumentIngester interface {
	Ingest(ctx context.Context, documentID string) services.IngestResult
}

// IngestionWorker processes document ingestion jobs from the Redis queue
type IngestionWorker struct {
	*BaseWorker
	jobRepo  repositories.JobRepository
	ingester DocumentIngester
	process  JobProcessor
	logger   logger.Logger
}

// IngestionWorkerConfig holds configuration for the ingestion worker
type IngestionWorkerConfig struct {
	WorkerConfig WorkerConfig
	JobRepo      repositories.JobRepository
	Ingester     DocumentIngester
	Logger       logger.Logger
}

// NewIngestionWorker creates a new ingestion worker
func NewIngestionWorker(config IngestionWorkerConfig) *IngestionWorker {
	w := &IngestionWorker{
		BaseWorker: NewBaseWorker(config.WorkerConfig),
		jobRepo:    config.JobRepo,
		ingester:   config.Ingester,
		logger:     config.Logger,
	}
	w.process = w.processJobInternal
	if w.config.EnableRecovery {
		w.process = RecoverableJobProcessor(w.processJobInternal)
	}
	return w
}

// Start begins polling for ingestion jobs
func (w *IngestionWorker) Start(ctx context.Context) error {
	if err := w.launch(ctx, w.processJobs); err != nil {
		return err
	}
	w.logger.Info("Started ingestion worker %s with %d goroutines", w.Name(), w.config.Concurrency)
	return nil
}

// Stop waits for in-flight jobs to finish
func (w *IngestionWorker) Stop(ctx context.Context) error {
	w.logger.Info("Stopping ingestion worker: %s", w.Name())
	if err := w.shutdown(ctx); err != nil {
		w.logger.Error("Ingestion worker %s did not stop cleanly: %v", w.Name(), err)
		return err
	}
	w.logger.Info("Ingestion worker stopped: %s", w.Name())
	return nil
}

// processJobs continuously processes jobs from the queue
func (w *IngestionWorker) processJobs(ctx context.Context, id int, stop <-chan struct{}) {
	workerName := fmt.Sprintf("%s-goroutine-%d", w.Name(), id)
	w.logger.Debug("Worker goroutine started: %s", workerName)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		// drain the queue before waiting for the next tick
		for {
			job, err := w.jobRepo.DequeueJob(ctx, repositories.JobTypeDocumentIngest, workerName)
			if err != nil {
				w.logger.Error("Failed to dequeue job: %v", err)
				break
			}
			if job == nil {
				break
			}
			w.processJob(ctx, job)

			select {
			case <-stop:
				return
			default:
			}
		}
	}
}

// processJob runs one job and records its outcome on the job
func (w *IngestionWorker) processJob(ctx context.Context, job *repositories.Job) {
	w.logger.Info("Processing job %s for document %s", job.ID, job.DocumentID)

	status, message := repositories.JobStatusCompleted, "Ingestion finished"
	if err := w.track(func() error { return w.process(ctx, job) }); err != nil {
		w.logger.Error("Job %s failed: %v", job.ID, err)
		status, message = repositories.JobStatusFailed, err.Error()
	}

	if err := w.jobRepo.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, status, message); err != nil {
		w.logger.Error("Failed to record %s for job %s: %v", status, job.ID, err)
	}
}

// processJobInternal turns an ingestion outcome into a job outcome
func (w *IngestionWorker) processJobInternal(ctx context.Context, job *repositories.Job) error {
	if job.DocumentID == "" {
		return fmt.Errorf("job %s has no document", job.ID)
	}

	result := w.ingester.Ingest(ctx, job.DocumentID)
	switch {
	case result.Status == repositories.DocumentStatusFailed:
		return fmt.Errorf("ingestion failed: %s", result.Error)
	case result.Status == "":
		return fmt.Errorf("ingestion did not start: %s", result.Error)
	case result.Skipped:
		w.logger.Info("Document %s already %s", result.DocumentID, result.Status)
	default:
		w.logger.Info("Document %s %s with %d chunks", result.DocumentID, result.Status, result.ChunkCount)
	}
	return nil
}

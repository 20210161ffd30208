package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

const (
	DefaultIngestionTimeout = 5 * time.Minute
	upsertBatchSize         = 256
	cleanupTimeout          = 30 * time.Second
	maxDiagnosticLength     = 1000
)

// IngestionStateMachine holds the document status transition table.
// uploaded -> processing -> completed | failed, and failed -> uploaded when
// a failed document is ingested again.
type IngestionStateMachine struct{}

var ingestionTransitions = map[repositories.DocumentStatus][]repositories.DocumentStatus{
	repositories.DocumentStatusUploaded:   {repositories.DocumentStatusProcessing},
	repositories.DocumentStatusProcessing: {repositories.DocumentStatusCompleted, repositories.DocumentStatusFailed},
	repositories.DocumentStatusFailed:     {repositories.DocumentStatusUploaded},
	repositories.DocumentStatusCompleted:  {},
}

// CanTransition reports whether a document may move from one status to another
func (IngestionStateMachine) CanTransition(from, to repositories.DocumentStatus) bool {
	for _, next := range ingestionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns the statuses that may move to to
func (m IngestionStateMachine) Sources(to repositories.DocumentStatus) []repositories.DocumentStatus {
	var from []repositories.DocumentStatus
	for _, s := range []repositories.DocumentStatus{
		repositories.DocumentStatusUploaded,
		repositories.DocumentStatusProcessing,
		repositories.DocumentStatusCompleted,
		repositories.DocumentStatusFailed,
	} {
		if m.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// IngestResult is the outcome of one ingestion trigger. Failures are
// reported here, never as an error.
type IngestResult struct {
	DocumentID string                      `json:"document_id"`
	Status     repositories.DocumentStatus `json:"status"`
	ChunkCount int                         `json:"chunk_count"`
	Error      string                      `json:"error,omitempty"`
	// Skipped is set when another run owns the document or it was already done
	Skipped bool `json:"skipped"`
}

// Ingester is the ingestion entry point used by triggers
type Ingester interface {
	Ingest(ctx context.Context, documentID string) IngestResult
	Enqueue(ctx context.Context, documentID string) (*repositories.Job, error)
}

// IngestionService runs extract -> chunk -> embed -> index for a document
type IngestionService struct {
	docRepo   repositories.DocumentRepository
	jobRepo   repositories.JobRepository
	vectors   repositories.VectorIndex
	blobs     BlobStore
	extractor DocumentExtractor
	chunker   *Chunker
	embedder  EmbeddingClient
	timeout   time.Duration
	states    IngestionStateMachine
	flight    singleflight.Group
	mu        sync.Mutex
	runs      map[string]*sharedRun
	logger    logger.Logger
	now       func() time.Time
}

var _ Ingester = (*IngestionService)(nil)

// IngestionDeps groups the collaborators of the ingestion pipeline
type IngestionDeps struct {
	Documents repositories.DocumentRepository
	Jobs      repositories.JobRepository
	Vectors   repositories.VectorIndex
	Blobs     BlobStore
	Extractor DocumentExtractor
	Chunker   *Chunker
	Embedder  EmbeddingClient
}

// NewIngestionService creates an ingestion pipeline. timeout bounds one run.
func NewIngestionService(deps IngestionDeps, timeout time.Duration, log logger.Logger) *IngestionService {
	if timeout <= 0 {
		timeout = DefaultIngestionTimeout
	}
	return &IngestionService{
		docRepo:   deps.Documents,
		jobRepo:   deps.Jobs,
		vectors:   deps.Vectors,
		blobs:     deps.Blobs,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		timeout:   timeout,
		runs:      make(map[string]*sharedRun),
		logger:    log,
		now:       time.Now,
	}
}

// sharedRun is an in-flight ingestion and the callers waiting on it
type sharedRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Ingest runs the pipeline for a document synchronously. Concurrent calls
// for the same document in this process share one run; across processes
// the status compare-and-set lets exactly one caller proceed.
//
// The shared run is detached from any single caller. A caller whose ctx
// ends stops waiting; the run is cancelled only once every caller has
// left, and the last one waits for the failure to be recorded.
func (s *IngestionService) Ingest(ctx context.Context, documentID string) IngestResult {
	run := s.join(ctx, documentID)
	ch := s.flight.DoChan(documentID, func() (interface{}, error) {
		return s.run(run.ctx, documentID), nil
	})

	select {
	case res := <-ch:
		s.leave(documentID, run)
		return res.Val.(IngestResult)
	case <-ctx.Done():
		if s.leave(documentID, run) {
			res := <-ch
			return res.Val.(IngestResult)
		}
		s.logger.Info("Caller stopped waiting for ingestion of %s: %v", documentID, ctx.Err())
		return IngestResult{
			DocumentID: documentID,
			Status:     repositories.DocumentStatusProcessing,
			Error:      ctx.Err().Error(),
			Skipped:    true,
		}
	}
}

func (s *IngestionService) join(ctx context.Context, documentID string) *sharedRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[documentID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		run = &sharedRun{ctx: runCtx, cancel: cancel}
		s.runs[documentID] = run
	}
	run.waiters++
	return run
}

// leave reports whether the caller was the last one waiting on run
func (s *IngestionService) leave(documentID string, run *sharedRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.waiters--
	if run.waiters > 0 {
		return false
	}
	run.cancel()
	if s.runs[documentID] == run {
		delete(s.runs, documentID)
	}
	return true
}

// Enqueue schedules ingestion on the job queue. Documents already
// processing or completed are not queued again; the returned job is nil.
func (s *IngestionService) Enqueue(ctx context.Context, documentID string) (*repositories.Job, error) {
	doc, err := s.docRepo.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case repositories.DocumentStatusProcessing, repositories.DocumentStatusCompleted:
		s.logger.Info("Document %s is %s, not enqueueing", doc.ID, doc.Status)
		return nil, nil
	}

	job := &repositories.Job{
		ID:         uuid.NewString(),
		Type:       repositories.JobTypeDocumentIngest,
		DocumentID: doc.ID,
		Message:    "Ingestion requested",
	}
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if err := s.jobRepo.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Enqueued ingestion job %s for document %s", job.ID, doc.ID)
	return job, nil
}

// RecoverInterrupted marks failed the documents left processing for longer
// than one run may take, e.g. after a crash.
func (s *IngestionService) RecoverInterrupted(ctx context.Context) (int, error) {
	docs, err := s.docRepo.ListByStatus(ctx, repositories.DocumentStatusProcessing)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.timeout - cleanupTimeout)
	recovered := 0
	for _, doc := range docs {
		if doc.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.vectors.DeleteDocument(ctx, doc.ID); err != nil {
			s.logger.Warn("Failed to delete chunks of interrupted document %s: %v", doc.ID, err)
		}
		_, err := s.docRepo.TransitionStatus(ctx, doc.ID,
			[]repositories.DocumentStatus{repositories.DocumentStatusProcessing},
			repositories.DocumentStatusFailed,
			func(d *repositories.Document) { d.ErrorMessage = "ingestion interrupted" })
		if err != nil {
			s.logger.Warn("Failed to recover document %s: %v", doc.ID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("Marked %d interrupted documents failed", recovered)
	}
	return recovered, nil
}

func (s *IngestionService) run(ctx context.Context, documentID string) IngestResult {
	result := IngestResult{DocumentID: documentID}

	doc, err := s.docRepo.Get(ctx, documentID)
	if err != nil {
		s.logger.Error("Failed to load document %s: %v", documentID, err)
		result.Error = err.Error()
		return result
	}

	switch doc.Status {
	case repositories.DocumentStatusCompleted, repositories.DocumentStatusProcessing:
		s.logger.Info("Document %s is already %s, skipping", doc.ID, doc.Status)
		return skipped(doc)
	case repositories.DocumentStatusFailed:
		doc, err = s.transition(ctx, doc.ID, repositories.DocumentStatusUploaded, func(d *repositories.Document) {
			d.ErrorMessage = ""
			d.ChunkCount = 0
		})
		if err != nil {
			return s.lostRace(ctx, documentID, err)
		}
	}

	doc, err = s.transition(ctx, doc.ID, repositories.DocumentStatusProcessing, nil)
	if err != nil {
		return s.lostRace(ctx, documentID, err)
	}
	s.logger.Info("Ingesting document %s (%s)", doc.ID, doc.Filename)
	start := s.now()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.process(runCtx, doc)
	if err != nil {
		return s.fail(ctx, doc, err)
	}
	if err := runCtx.Err(); err != nil {
		return s.fail(ctx, doc, err)
	}

	// the chunks are written; record completion even if the run deadline
	// expires meanwhile
	fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer fcancel()
	completed, err := s.transition(fctx, doc.ID, repositories.DocumentStatusCompleted, func(d *repositories.Document) {
		d.ChunkCount = count
		d.ErrorMessage = ""
	})
	if err != nil {
		return s.fail(ctx, doc, fmt.Errorf("record completion: %w", err))
	}

	s.logger.Info("Document %s completed: %d chunks in %s", doc.ID, count, s.now().Sub(start).Round(time.Millisecond))
	result.Status = completed.Status
	result.ChunkCount = completed.ChunkCount
	return result
}

// process produces and indexes every chunk of doc, returning the count.
// Chunks are only written once all embeddings are available.
func (s *IngestionService) process(ctx context.Context, doc *repositories.Document) (int, error) {
	data, err := s.blobs.Fetch(ctx, doc.StorageKey)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	text, err := s.extractor.ExtractText(ctx, data, doc.Filename)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	seq, err := s.chunker.Split(text)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	pieces := seq.Collect()
	if len(pieces) == 0 {
		return 0, apperrors.New(apperrors.ErrEmptyContent, "chunk_text", "no chunks produced", nil)
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}

	chunks := make([]*repositories.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &repositories.Chunk{
			ID:         repositories.ChunkID(doc.ID, p.Index),
			DocumentID: doc.ID,
			ChunkIndex: p.Index,
			Text:       p.Text,
			TokenCount: p.TokenCount,
			Embedding:  embeddings[i],
		}
	}

	// chunks of an earlier failed run
	if err := s.vectors.DeleteDocument(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("clear stale chunks: %w", err)
	}
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		if err := s.vectors.Upsert(ctx, chunks[start:end]); err != nil {
			return 0, fmt.Errorf("upsert: %w", err)
		}
	}

	s.logger.Debug("Indexed %d chunks (%d tokens) for %s", len(chunks), seq.TokenCount(), doc.ID)
	return len(chunks), nil
}

// fail removes any partial chunk set and records the failure. It runs on a
// context detached from cancellation so the document never stays processing.
func (s *IngestionService) fail(ctx context.Context, doc *repositories.Document, cause error) IngestResult {
	s.logger.Error("Ingestion of document %s failed: %v", doc.ID, cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.vectors.DeleteDocument(cctx, doc.ID); err != nil {
		s.logger.Warn("Failed to delete partial chunks of %s: %v", doc.ID, err)
	}

	diagnostic := truncate(cause.Error(), maxDiagnosticLength)
	updated, err := s.transition(cctx, doc.ID, repositories.DocumentStatusFailed, func(d *repositories.Document) {
		d.ErrorMessage = diagnostic
		d.ChunkCount = 0
	})
	if err != nil {
		s.logger.Error("Failed to mark document %s failed: %v", doc.ID, err)
		return IngestResult{DocumentID: doc.ID, Status: doc.Status, Error: diagnostic}
	}
	return IngestResult{DocumentID: doc.ID, Status: updated.Status, Error: diagnostic}
}

func (s *IngestionService) transition(ctx context.Context, id string, to repositories.DocumentStatus, mutate func(*repositories.Document)) (*repositories.Document, error) {
	return s.docRepo.TransitionStatus(ctx, id, s.states.Sources(to), to, mutate)
}

// lostRace reports the state another caller left the document in
func (s *IngestionService) lostRace(ctx context.Context, documentID string, err error) IngestResult {
	var conflict *repositories.StatusConflictError
	if !errors.As(err, &conflict) {
		s.logger.Error("Failed to start ingestion of %s: %v", documentID, err)
		return IngestResult{DocumentID: documentID, Error: err.Error()}
	}
	s.logger.Info("Document %s is owned by another run (%s)", documentID, conflict.Current)
	doc, getErr := s.docRepo.Get(ctx, documentID)
	if getErr != nil {
		return IngestResult{DocumentID: documentID, Status: conflict.Current, Skipped: true}
	}
	return skipped(doc)
}

func skipped(doc *repositories.Document) IngestResult {
	return IngestResult{
		DocumentID: doc.ID,
		Status:     doc.Status,
		ChunkCount: doc.ChunkCount,
		Error:      doc.ErrorMessage,
		Skipped:    true,
	}
}

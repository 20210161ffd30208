package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

type fakeIngester struct {
	mu      sync.Mutex
	calls   []string
	results map[string]services.IngestResult
	panicOn string
}

func (f *fakeIngester) Ingest(ctx context.Context, documentID string) services.IngestResult {
	f.mu.Lock()
	f.calls = append(f.calls, documentID)
	f.mu.Unlock()
	if documentID == f.panicOn {
		panic("ingest exploded")
	}
	if r, ok := f.results[documentID]; ok {
		return r
	}
	return services.IngestResult{DocumentID: documentID, Status: repositories.DocumentStatusCompleted, ChunkCount: 1}
}

func (f *fakeIngester) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func setupJobRepo(t *testing.T) *repositories.RedisJobRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return repositories.NewRedisJobRepository(client)
}

func enqueue(t *testing.T, repo repositories.JobRepository, id, documentID string) {
	t.Helper()
	job := &repositories.Job{ID: id, Type: repositories.JobTypeDocumentIngest, DocumentID: documentID}
	require.NoError(t, repo.CreateJob(context.Background(), job))
	require.NoError(t, repo.EnqueueJob(context.Background(), job))
}

func newTestWorker(repo repositories.JobRepository, ing DocumentIngester) *IngestionWorker {
	return NewIngestionWorker(IngestionWorkerConfig{
		WorkerConfig: WorkerConfig{
			WorkerName:      "ingest-test",
			Concurrency:     1,
			PollInterval:    5 * time.Millisecond,
			ShutdownTimeout: time.Second,
			EnableRecovery:  true,
		},
		JobRepo:  repo,
		Ingester: ing,
		Logger:   logger.Nop(),
	})
}

func TestIngestionWorker_ProcessesQueueInOrder(t *testing.T) {
	repo := setupJobRepo(t)
	ing := &fakeIngester{results: map[string]services.IngestResult{
		"doc-bad": {DocumentID: "doc-bad", Status: repositories.DocumentStatusFailed, Error: "empty content"},
	}}

	enqueue(t, repo, "job-1", "doc-1")
	enqueue(t, repo, "job-2", "doc-bad")
	enqueue(t, repo, "job-3", "doc-3")

	worker := newTestWorker(repo, ing)
	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))

	require.Eventually(t, func() bool { return len(ing.Calls()) == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, worker.Stop(ctx))

	assert.Equal(t, []string{"doc-1", "doc-bad", "doc-3"}, ing.Calls())

	job, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, repositories.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Contains(t, job.WorkerID, "ingest-test")

	job, err = repo.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, repositories.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "empty content")

	stats := worker.Stats()
	assert.Equal(t, int64(3), stats.JobsProcessed)
	assert.Equal(t, int64(1), stats.JobsFailed)
}

func TestIngestionWorker_RecoversFromPanic(t *testing.T) {
	repo := setupJobRepo(t)
	ing := &fakeIngester{panicOn: "doc-panic"}

	enqueue(t, repo, "job-p", "doc-panic")
	enqueue(t, repo, "job-ok", "doc-ok")

	worker := newTestWorker(repo, ing)
	require.NoError(t, worker.Start(context.Background()))
	require.Eventually(t, func() bool { return len(ing.Calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, worker.Stop(context.Background()))

	job, err := repo.GetJob(context.Background(), "job-p")
	require.NoError(t, err)
	assert.Equal(t, repositories.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "ingest exploded")

	job, err = repo.GetJob(context.Background(), "job-ok")
	require.NoError(t, err)
	assert.Equal(t, repositories.JobStatusCompleted, job.Status)
}

func TestIngestionWorker_SkippedDocumentCompletesJob(t *testing.T) {
	repo := setupJobRepo(t)
	ing := &fakeIngester{results: map[string]services.IngestResult{
		"doc-1": {DocumentID: "doc-1", Status: repositories.DocumentStatusCompleted, Skipped: true},
	}}
	worker := newTestWorker(repo, ing)

	err := worker.processJobInternal(context.Background(), &repositories.Job{ID: "j", DocumentID: "doc-1"})
	assert.NoError(t, err)

	err = worker.processJobInternal(context.Background(), &repositories.Job{ID: "j"})
	assert.Error(t, err)
}

func TestIngestionWorker_StartTwice(t *testing.T) {
	worker := newTestWorker(setupJobRepo(t), &fakeIngester{})
	require.NoError(t, worker.Start(context.Background()))
	defer worker.Stop(context.Background())

	assert.Error(t, worker.Start(context.Background()))
}

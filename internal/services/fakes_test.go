package services

import (
	"bytes"
	"context"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// registerDoc stores a document directly in the registry with the given
// status, walking the legal transitions to get there
func registerDoc(t *testing.T, repo repositories.DocumentRepository, id string, status repositories.DocumentStatus, size int64) *repositories.Document {
	t.Helper()
	ctx := context.Background()
	doc := &repositories.Document{
		ID:         id,
		Filename:   id + ".pdf",
		StorageKey: StorageKeyFor(id),
		FileSize:   size,
	}
	require.NoError(t, repo.Register(ctx, doc))

	path := map[repositories.DocumentStatus][]repositories.DocumentStatus{
		repositories.DocumentStatusUploaded:   nil,
		repositories.DocumentStatusProcessing: {repositories.DocumentStatusProcessing},
		repositories.DocumentStatusCompleted:  {repositories.DocumentStatusProcessing, repositories.DocumentStatusCompleted},
		repositories.DocumentStatusFailed:     {repositories.DocumentStatusProcessing, repositories.DocumentStatusFailed},
	}
	var machine IngestionStateMachine
	for _, next := range path[status] {
		var err error
		doc, err = repo.TransitionStatus(ctx, id, machine.Sources(next), next, nil)
		require.NoError(t, err)
	}
	return doc
}

// memBlobStore keeps blobs in memory
type memBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	fetched []string
	fetchFn func(key string)
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	return int64(len(data)), nil
}

func (s *memBlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	if s.fetchFn != nil {
		s.fetchFn(key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, key)
	data, ok := s.blobs[key]
	if !ok {
		return nil, apperrors.NotFound("fetch_blob", "blob not found: "+key)
	}
	return bytes.Clone(data), nil
}

func (s *memBlobStore) Size(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return 0, apperrors.NotFound("blob_size", "blob not found: "+key)
	}
	return int64(len(data)), nil
}

func (s *memBlobStore) set(documentID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[StorageKeyFor(documentID)] = data
}

// memVectorIndex is a brute-force cosine index
type memVectorIndex struct {
	mu      sync.Mutex
	chunks  map[string]*repositories.Chunk
	queries []*repositories.Filter
	upserts int
}

var _ repositories.VectorIndex = (*memVectorIndex)(nil)

func newMemVectorIndex() *memVectorIndex {
	return &memVectorIndex{chunks: make(map[string]*repositories.Chunk)}
}

func (m *memVectorIndex) EnsureCollection(ctx context.Context) error { return nil }

func (m *memVectorIndex) Upsert(ctx context.Context, chunks []*repositories.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *memVectorIndex) Query(ctx context.Context, embedding []float32, topK int, filter *repositories.Filter) ([]*repositories.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, filter)

	allowed := make(map[string]bool)
	for _, id := range filter.DocumentIDs() {
		allowed[id] = true
	}
	var results []*repositories.SearchResult
	for _, c := range m.chunks {
		if !allowed[c.DocumentID] {
			continue
		}
		score := cosine(embedding, c.Embedding)
		results = append(results, &repositories.SearchResult{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      score,
			Distance:   1 - score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *memVectorIndex) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memVectorIndex) Ping(ctx context.Context) error { return nil }

func (m *memVectorIndex) count(documentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// hashEmbedder maps a text to a small bag-of-letters vector
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) Dimension() int { return 26 }

// stubExtractor returns a fixed text per filename
type stubExtractor struct {
	texts map[string]string
	err   error
	// block, when set, waits on it or on ctx before returning
	block chan struct{}
	calls int
	mu    sync.Mutex
}

func (e *stubExtractor) ExtractText(ctx context.Context, data []byte, filename string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.err != nil {
		return "", e.err
	}
	return e.texts[filename], nil
}

func (e *stubExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// scriptedLLM replays completions in order and records every call
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*Completion
	errs      []error
	calls     [][]models.LLMMessage
	tools     [][]models.LLMTool
}

func (l *scriptedLLM) Complete(ctx context.Context, messages []models.LLMMessage, tools []models.LLMTool) (*Completion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.calls)
	l.calls = append(l.calls, messages)
	l.tools = append(l.tools, tools)
	if i < len(l.errs) && l.errs[i] != nil {
		return nil, l.errs[i]
	}
	if i >= len(l.responses) {
		return &Completion{Content: "default answer"}, nil
	}
	return l.responses[i], nil
}

func (l *scriptedLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

func answer(text string) *Completion {
	return &Completion{Content: text, FinishReason: "stop"}
}

func searchCall(args string) *Completion {
	return &Completion{
		FinishReason: "tool_calls",
		ToolCalls:    []ToolCall{{ID: "call_1", Capability: SearchCapability, Arguments: []byte(args)}},
	}
}

// recordingSearcher returns canned results and records requests
type recordingSearcher struct {
	results  []*repositories.SearchResult
	err      error
	requests []SearchRequest
}

func (s *recordingSearcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &SearchResponse{Results: s.results, Query: req.Query, FileIDs: req.FileIDs, TopK: req.TopK}, nil
}

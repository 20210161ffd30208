package repositories

import (
	"context"
	"fmt"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// VectorIndex defines the operations the ingestion pipeline and the search
// tool need from the vector database. Implementations must return query
// results ordered by descending score.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunks []*Chunk) error
	Query(ctx context.Context, embedding []float32, topK int, filter *Filter) ([]*SearchResult, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Ping(ctx context.Context) error
}

// Chunk is an embedded slice of a document's text
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"embedding"`
}

// ChunkID returns the deterministic id of a document's chunk. Re-ingesting
// the same text overwrites rather than duplicates.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s:%d", documentID, index)
}

// SearchResult represents a single search result from vector similarity search
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"` // 1 - cosine distance, higher is better
	Distance   float32 `json:"distance"`
}

// VectorRepositoryError represents errors from the vector repository
type VectorRepositoryError struct {
	Kind      error
	Operation string
	Err       error
	Message   string
}

func (e *VectorRepositoryError) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorRepositoryError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewVectorRepositoryError creates a vector store failure. Failures talking
// to the store are external service errors.
func NewVectorRepositoryError(operation string, err error, message string) *VectorRepositoryError {
	return &VectorRepositoryError{
		Kind:      apperrors.ErrExternalService,
		Operation: operation,
		Err:       err,
		Message:   message,
	}
}

func invalidFilterError(operation, reason string) error {
	return &VectorRepositoryError{
		Kind:      apperrors.ErrInvalidFilter,
		Operation: operation,
		Message:   "invalid filter: " + reason,
	}
}

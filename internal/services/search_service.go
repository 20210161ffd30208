package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

// Searcher runs a semantic search over specific documents
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchService handles document search using vector similarity. Only
// documents whose ingestion completed are ever searched.
type SearchService struct {
	docRepo     repositories.DocumentRepository
	vectorRepo  repositories.VectorIndex
	embedder    EmbeddingClient
	defaultTopK int
	maxTopK     int
	logger      logger.Logger
}

var _ Searcher = (*SearchService)(nil)

// NewSearchService creates a new search service
func NewSearchService(
	docRepo repositories.DocumentRepository,
	vectorRepo repositories.VectorIndex,
	embedder EmbeddingClient,
	defaultTopK, maxTopK int,
	log logger.Logger,
) *SearchService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	return &SearchService{
		docRepo:     docRepo,
		vectorRepo:  vectorRepo,
		embedder:    embedder,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      log,
	}
}

// SearchRequest represents a search query request
type SearchRequest struct {
	FileIDs []string `json:"file_ids"`
	Query   string   `json:"query"`
	TopK    int      `json:"top_k"`
}

// SearchResponse represents the response from a search operation
type SearchResponse struct {
	Results      []*repositories.SearchResult `json:"results"`
	Query        string                       `json:"query"`
	FileIDs      []string                     `json:"file_ids"`
	TopK         int                          `json:"top_k"`
	SearchTimeMs float64                      `json:"search_time_ms"`
}

// MaxTopK is the largest top_k a request may ask for
func (s *SearchService) MaxTopK() int { return s.maxTopK }

// DefaultTopK is used when a request leaves top_k unset
func (s *SearchService) DefaultTopK() int { return s.defaultTopK }

// Search embeds the query and returns the nearest chunks of the completed
// documents among req.FileIDs. Unknown or unfinished documents contribute
// nothing; if none qualify the result is empty, not an error.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validate(&req); err != nil {
		s.logger.Warn("Invalid search request: %v", err)
		return nil, err
	}

	resp := &SearchResponse{
		Results: []*repositories.SearchResult{},
		Query:   req.Query,
		FileIDs: req.FileIDs,
		TopK:    req.TopK,
	}

	docs, err := s.docRepo.GetBatch(ctx, req.FileIDs)
	if err != nil {
		s.logger.Error("Failed to load documents for search: %v", err)
		return nil, err
	}
	searchable := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Status == repositories.DocumentStatusCompleted {
			searchable = append(searchable, doc.ID)
		}
	}
	if len(searchable) == 0 {
		s.logger.Info("No completed documents among %d requested, returning no results", len(req.FileIDs))
		return resp, nil
	}

	embedStart := time.Now()
	embedding, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		s.logger.Error("Failed to embed query: %v", err)
		return nil, err
	}
	s.logger.Debug("Query embedded in %.2fms", time.Since(embedStart).Seconds()*1000)

	results, err := s.vectorRepo.Query(ctx, embedding, req.TopK, repositories.FilterIn(searchable...))
	if err != nil {
		s.logger.Error("Vector search failed: %v", err)
		return nil, err
	}

	resp.Results = results
	resp.SearchTimeMs = time.Since(startTime).Seconds() * 1000
	s.logger.Info("Search completed: %d results over %d documents in %.2fms",
		len(results), len(searchable), resp.SearchTimeMs)
	return resp, nil
}

func (s *SearchService) validate(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return apperrors.Validation("search", "query is required")
	}
	req.FileIDs = dedupe(req.FileIDs)
	if len(req.FileIDs) == 0 {
		return apperrors.Validation("search", "at least one file id is required")
	}

	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}
	if req.TopK < 1 || req.TopK > s.maxTopK {
		return apperrors.Validation("search", "top_k must be between 1 and "+strconv.Itoa(s.maxTopK))
	}
	return nil
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

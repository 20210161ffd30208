package handlers

import (
	"context"
	"net/http"

	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

// Searcher runs semantic search over specific documents
type Searcher interface {
	Search(ctx context.Context, req services.SearchRequest) (*services.SearchResponse, error)
}

// SearchHandler handles direct retrieval requests
type SearchHandler struct {
	searcher Searcher
	logger   logger.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searcher Searcher, log logger.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   log,
	}
}

// Retrieve handles semantic search requests
// @Summary Retrieve chunks
// @Description Return the chunks of the given files most similar to the query. Files that are not ingested contribute nothing.
// @Tags retrieval
// @Accept json
// @Produce json
// @Param request body models.RetrieveRequest true "Retrieval request"
// @Success 200 {object} models.RetrieveResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/retrieve [post]
func (h *SearchHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, h.logger, err)
		return
	}

	resp, err := h.searcher.Search(r.Context(), services.SearchRequest{
		FileIDs: req.FileIDs,
		Query:   req.Query,
		TopK:    req.TopK,
	})
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	results := make([]models.RetrievedChunk, 0, len(resp.Results))
	for _, res := range resp.Results {
		results = append(results, models.RetrievedChunk{
			FileID:          res.DocumentID,
			ChunkID:         res.ChunkID,
			ChunkText:       res.Text,
			SimilarityScore: res.Score,
		})
	}

	h.logger.Debug("Retrieved %d chunks in %.1fms", len(results), resp.SearchTimeMs)
	sendJSON(w, h.logger, http.StatusOK, models.RetrieveResponse{
		Query:        resp.Query,
		FileIDs:      resp.FileIDs,
		TopK:         resp.TopK,
		Results:      results,
		ResultsCount: len(results),
	})
}

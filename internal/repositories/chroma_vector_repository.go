package repositories

import (
	"context"
	"fmt"
	"sort"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/db"
)

// ChromaVectorRepository implements VectorIndex using a single ChromaDB collection
type ChromaVectorRepository struct {
	client     *db.ChromaDBClient
	collection string
}

var _ VectorIndex = (*ChromaVectorRepository)(nil)

// NewChromaVectorRepository creates a new ChromaDB-backed vector index
func NewChromaVectorRepository(client *db.ChromaDBClient, collection string) *ChromaVectorRepository {
	return &ChromaVectorRepository{
		client:     client,
		collection: collection,
	}
}

// EnsureCollection creates the chunk collection with cosine distance if it is missing
func (r *ChromaVectorRepository) EnsureCollection(ctx context.Context) error {
	_, err := r.client.GetOrCreateCollection(ctx, r.collection, map[string]interface{}{
		"hnsw:space": "cosine",
	})
	if err != nil {
		return NewVectorRepositoryError("ensure_collection", err, "failed to create collection: "+r.collection)
	}
	return nil
}

// Upsert stores chunks, replacing any with the same id
func (r *ChromaVectorRepository) Upsert(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))

	for i, chunk := range chunks {
		if chunk.DocumentID == "" {
			return apperrors.Validation("upsert_chunks", fmt.Sprintf("chunk %d has no document id", i))
		}
		if len(chunk.Embedding) == 0 {
			return apperrors.Validation("upsert_chunks", fmt.Sprintf("chunk %s has no embedding", chunk.ID))
		}

		id := chunk.ID
		if id == "" {
			id = ChunkID(chunk.DocumentID, chunk.ChunkIndex)
		}
		ids[i] = id
		documents[i] = chunk.Text
		embeddings[i] = chunk.Embedding
		metadatas[i] = map[string]interface{}{
			DocumentIDField: chunk.DocumentID,
			"chunk_index":   chunk.ChunkIndex,
			"token_count":   chunk.TokenCount,
		}
	}

	if err := r.client.Upsert(ctx, r.collection, ids, documents, embeddings, metadatas); err != nil {
		return NewVectorRepositoryError("upsert_chunks", err, fmt.Sprintf("failed to upsert %d chunks", len(chunks)))
	}
	return nil
}

// Query returns the topK chunks nearest to embedding that satisfy filter,
// ordered by descending score. The serialized filter is validated before the
// store is called.
func (r *ChromaVectorRepository) Query(ctx context.Context, embedding []float32, topK int, filter *Filter) ([]*SearchResult, error) {
	if topK <= 0 {
		return nil, apperrors.Validation("query_chunks", fmt.Sprintf("top_k must be positive, got %d", topK))
	}
	if len(embedding) == 0 {
		return nil, apperrors.Validation("query_chunks", "query embedding is empty")
	}

	var where map[string]interface{}
	if filter != nil {
		where = filter.Where()
		if err := ValidateWhere(where); err != nil {
			return nil, err
		}
	}

	results, err := r.client.Query(ctx, r.collection, [][]float32{embedding}, topK, where)
	if err != nil {
		return nil, NewVectorRepositoryError("query_chunks", err, "query failed")
	}

	searchResults := make([]*SearchResult, 0)
	if len(results.IDs) > 0 {
		for i := 0; i < len(results.IDs[0]); i++ {
			var metadata map[string]interface{}
			if len(results.Metadatas) > 0 && len(results.Metadatas[0]) > i {
				metadata = results.Metadatas[0][i]
			}

			var text string
			if len(results.Documents) > 0 && len(results.Documents[0]) > i {
				text = results.Documents[0][i]
			}

			var distance float32
			if len(results.Distances) > 0 && len(results.Distances[0]) > i {
				distance = results.Distances[0][i]
			}

			documentID, _ := metadata[DocumentIDField].(string)

			searchResults = append(searchResults, &SearchResult{
				ChunkID:    results.IDs[0][i],
				DocumentID: documentID,
				ChunkIndex: metadataInt(metadata, "chunk_index"),
				Text:       text,
				Score:      1 - distance,
				Distance:   distance,
			})
		}
	}

	sort.SliceStable(searchResults, func(i, j int) bool {
		return searchResults[i].Score > searchResults[j].Score
	})
	return searchResults, nil
}

// DeleteDocument removes every chunk belonging to documentID
func (r *ChromaVectorRepository) DeleteDocument(ctx context.Context, documentID string) error {
	where := FilterEq(documentID).Where()
	if err := ValidateWhere(where); err != nil {
		return err
	}
	if err := r.client.Delete(ctx, r.collection, nil, where); err != nil {
		return NewVectorRepositoryError("delete_document", err, "failed to delete chunks of "+documentID)
	}
	return nil
}

// Ping checks the vector store is reachable
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	if err := r.client.Heartbeat(ctx); err != nil {
		return NewVectorRepositoryError("ping", err, "")
	}
	return nil
}

func metadataInt(metadata map[string]interface{}, key string) int {
	switch v := metadata[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	documentKeyPrefix = "document:"
	documentIndexKey  = "documents:index"
	statusIndexKey    = "status:"
)

// RedisDocumentRepository implements DocumentRepository using Redis
type RedisDocumentRepository struct {
	client *redis.Client
	now    func() time.Time
}

var _ DocumentRepository = (*RedisDocumentRepository)(nil)

// NewRedisDocumentRepository creates a new Redis-based document repository
func NewRedisDocumentRepository(client *redis.Client) *RedisDocumentRepository {
	return &RedisDocumentRepository{
		client: client,
		now:    time.Now,
	}
}

// Register stores a new document in the registry. New documents start as uploaded.
func (r *RedisDocumentRepository) Register(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.Status == "" {
		doc.Status = DocumentStatusUploaded
	}

	now := r.now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return NewDocumentRepositoryError("register", doc.ID, err, "failed to marshal document")
	}

	docKey := documentKeyPrefix + doc.ID
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, docKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return DocumentAlreadyExistsError(doc.ID)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, docJSON, 0)
			pipe.ZAdd(ctx, documentIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: doc.ID})
			pipe.SAdd(ctx, statusIndexKey+string(doc.Status), doc.ID)
			return nil
		})
		return err
	}, docKey)

	var repoErr *DocumentRepositoryError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &repoErr):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return DocumentAlreadyExistsError(doc.ID)
	default:
		return NewDocumentRepositoryError("register", doc.ID, err, "")
	}
}

// Get retrieves a document by ID
func (r *RedisDocumentRepository) Get(ctx context.Context, documentID string) (*Document, error) {
	docJSON, err := r.client.Get(ctx, documentKeyPrefix+documentID).Result()
	if err == redis.Nil {
		return nil, DocumentNotFoundError(documentID)
	}
	if err != nil {
		return nil, NewDocumentRepositoryError("get", documentID, err, "")
	}

	var doc Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, NewDocumentRepositoryError("get", documentID, err, "failed to unmarshal document")
	}
	return &doc, nil
}

// GetBatch retrieves multiple documents by IDs
func (r *RedisDocumentRepository) GetBatch(ctx context.Context, documentIDs []string) ([]*Document, error) {
	if len(documentIDs) == 0 {
		return []*Document{}, nil
	}

	// Use pipeline for batch get
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(documentIDs))
	for i, id := range documentIDs {
		cmds[i] = pipe.Get(ctx, documentKeyPrefix+id)
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, NewDocumentRepositoryError("get_batch", "", err, "failed to execute batch get")
	}

	docs := make([]*Document, 0, len(documentIDs))
	for i, cmd := range cmds {
		docJSON, err := cmd.Result()
		if err == redis.Nil {
			// Skip missing documents
			continue
		}
		if err != nil {
			return nil, NewDocumentRepositoryError("get_batch", documentIDs[i], err, "")
		}

		var doc Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return nil, NewDocumentRepositoryError("get_batch", documentIDs[i], err, "failed to unmarshal document")
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// List returns a page of documents, newest first, and the total count
func (r *RedisDocumentRepository) List(ctx context.Context, offset, limit int) ([]*Document, int, error) {
	total, err := r.client.ZCard(ctx, documentIndexKey).Result()
	if err != nil {
		return nil, 0, NewDocumentRepositoryError("list", "", err, "")
	}
	if limit <= 0 || int64(offset) >= total {
		return []*Document{}, int(total), nil
	}

	ids, err := r.client.ZRevRange(ctx, documentIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, NewDocumentRepositoryError("list", "", err, "")
	}

	docs, err := r.GetBatch(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	return docs, int(total), nil
}

// ListByStatus lists documents with a specific status
func (r *RedisDocumentRepository) ListByStatus(ctx context.Context, status DocumentStatus) ([]*Document, error) {
	ids, err := r.client.SMembers(ctx, statusIndexKey+string(status)).Result()
	if err != nil {
		return nil, NewDocumentRepositoryError("list_by_status", "", err, "")
	}
	slices.Sort(ids)
	return r.GetBatch(ctx, ids)
}

// TransitionStatus performs a compare-and-set on the document status using
// WATCH/MULTI. Losing a race to a concurrent writer is reported as a conflict.
func (r *RedisDocumentRepository) TransitionStatus(ctx context.Context, documentID string, from []DocumentStatus, to DocumentStatus, mutate func(*Document)) (*Document, error) {
	if !to.IsValid() {
		return nil, InvalidDocumentError(documentID, "unknown status "+string(to))
	}

	docKey := documentKeyPrefix + documentID
	var updated Document

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		docJSON, err := tx.Get(ctx, docKey).Result()
		if err == redis.Nil {
			return DocumentNotFoundError(documentID)
		}
		if err != nil {
			return err
		}

		var doc Document
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return NewDocumentRepositoryError("transition_status", documentID, err, "failed to unmarshal document")
		}

		if !slices.Contains(from, doc.Status) {
			return &StatusConflictError{DocumentID: documentID, Current: doc.Status, Target: to}
		}

		oldStatus := doc.Status
		doc.Status = to
		if mutate != nil {
			mutate(&doc)
		}
		doc.UpdatedAt = r.now().UTC()

		newJSON, err := json.Marshal(&doc)
		if err != nil {
			return NewDocumentRepositoryError("transition_status", documentID, err, "failed to marshal document")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, newJSON, 0)
			if oldStatus != to {
				pipe.SRem(ctx, statusIndexKey+string(oldStatus), documentID)
				pipe.SAdd(ctx, statusIndexKey+string(to), documentID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated = doc
		return nil
	}, docKey)

	if err == nil {
		return &updated, nil
	}

	var conflict *StatusConflictError
	var repoErr *DocumentRepositoryError
	switch {
	case errors.As(err, &conflict), errors.As(err, &repoErr):
		return nil, err
	case errors.Is(err, redis.TxFailedErr):
		current, getErr := r.Get(ctx, documentID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &StatusConflictError{DocumentID: documentID, Current: current.Status, Target: to}
	default:
		return nil, NewDocumentRepositoryError("transition_status", documentID, err, "")
	}
}

// Ping checks Redis connectivity
func (r *RedisDocumentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	conversationKeyPrefix  = "conversation:"
	conversationIndexKey   = "conversations:index"
	messageKeyPrefix       = "message:"
	conversationSeqSuffix  = ":seq"
	conversationMsgsSuffix = ":messages"
	filesFirstSuffix       = ":files:first"
	filesLastSuffix        = ":files:last"

	// file reference scores are sequence*fileSlots + position within the
	// message, so references made by one message keep their attachment order
	fileSlots = MaxFilesPerMessage
)

// RedisConversationRepository implements ConversationRepository using Redis.
//
// Layout per conversation:
//
//	conversation:{id}              hash (id, created_at, updated_at, message_count)
//	conversation:{id}:seq          sequence counter
//	conversation:{id}:messages     zset of message ids scored by sequence
//	conversation:{id}:files:first  zset of document ids scored by first referencing sequence
//	conversation:{id}:files:last   zset of document ids scored by last referencing sequence
//	message:{id}                   message JSON
type RedisConversationRepository struct {
	client *redis.Client
	now    func() time.Time
}

var _ ConversationRepository = (*RedisConversationRepository)(nil)

// NewRedisConversationRepository creates a new Redis-based conversation repository
func NewRedisConversationRepository(client *redis.Client) *RedisConversationRepository {
	return &RedisConversationRepository{
		client: client,
		now:    time.Now,
	}
}

// Create stores a new, empty conversation. An empty ID is generated.
func (r *RedisConversationRepository) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := r.now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	conv.MessageCount = 0

	key := conversationKeyPrefix + conv.ID
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ConversationAlreadyExistsError(conv.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"id", conv.ID,
				"created_at", now.Format(time.RFC3339Nano),
				"updated_at", now.Format(time.RFC3339Nano),
				"message_count", 0,
			)
			pipe.ZAdd(ctx, conversationIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: conv.ID})
			return nil
		})
		return err
	}, key)

	var repoErr *ConversationRepositoryError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &repoErr):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ConversationAlreadyExistsError(conv.ID)
	default:
		return NewConversationRepositoryError("create", conv.ID, err, "")
	}
}

// Get retrieves a conversation by ID
func (r *RedisConversationRepository) Get(ctx context.Context, conversationID string) (*Conversation, error) {
	fields, err := r.client.HGetAll(ctx, conversationKeyPrefix+conversationID).Result()
	if err != nil {
		return nil, NewConversationRepositoryError("get", conversationID, err, "")
	}
	if len(fields) == 0 {
		return nil, ConversationNotFoundError(conversationID)
	}
	return parseConversation(fields), nil
}

// List returns a page of conversations, most recently active first
func (r *RedisConversationRepository) List(ctx context.Context, offset, limit int) ([]*Conversation, int, error) {
	total, err := r.client.ZCard(ctx, conversationIndexKey).Result()
	if err != nil {
		return nil, 0, NewConversationRepositoryError("list", "", err, "")
	}
	if limit <= 0 || int64(offset) >= total {
		return []*Conversation{}, int(total), nil
	}

	ids, err := r.client.ZRevRange(ctx, conversationIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, NewConversationRepositoryError("list", "", err, "")
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, conversationKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, 0, NewConversationRepositoryError("list", "", err, "failed to execute batch get")
	}

	convs := make([]*Conversation, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		convs = append(convs, parseConversation(fields))
	}
	return convs, int(total), nil
}

// AppendMessages stores messages at the next sequence numbers
func (r *RedisConversationRepository) AppendMessages(ctx context.Context, conversationID string, msgs ...*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	convKey := conversationKeyPrefix + conversationID
	exists, err := r.client.Exists(ctx, convKey).Result()
	if err != nil {
		return NewConversationRepositoryError("append_messages", conversationID, err, "")
	}
	if exists == 0 {
		return ConversationNotFoundError(conversationID)
	}

	last, err := r.client.IncrBy(ctx, convKey+conversationSeqSuffix, int64(len(msgs))).Result()
	if err != nil {
		return NewConversationRepositoryError("append_messages", conversationID, err, "failed to allocate sequence")
	}
	first := last - int64(len(msgs)) + 1
	now := r.now().UTC()

	pipe := r.client.TxPipeline()
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.ConversationID = conversationID
		m.Sequence = first + int64(i)
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}

		msgJSON, err := json.Marshal(m)
		if err != nil {
			return NewConversationRepositoryError("append_messages", conversationID, err, "failed to marshal message")
		}
		pipe.Set(ctx, messageKeyPrefix+m.ID, msgJSON, 0)
		pipe.ZAdd(ctx, convKey+conversationMsgsSuffix, redis.Z{Score: float64(m.Sequence), Member: m.ID})

		for pos, fileID := range m.FileIDs {
			score := float64(m.Sequence*fileSlots + int64(pos))
			pipe.ZAddNX(ctx, convKey+filesFirstSuffix, redis.Z{Score: score, Member: fileID})
			pipe.ZAdd(ctx, convKey+filesLastSuffix, redis.Z{Score: score, Member: fileID})
		}
	}
	pipe.HIncrBy(ctx, convKey, "message_count", int64(len(msgs)))
	pipe.HSet(ctx, convKey, "updated_at", now.Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, conversationIndexKey, redis.Z{Score: float64(now.UnixNano()), Member: conversationID})

	if _, err := pipe.Exec(ctx); err != nil {
		return NewConversationRepositoryError("append_messages", conversationID, err, "failed to execute transaction")
	}
	return nil
}

// ListMessages returns every message of a conversation in sequence order
func (r *RedisConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return r.rangeMessages(ctx, conversationID, 0, -1)
}

// ListRecent returns the last n messages in sequence order
func (r *RedisConversationRepository) ListRecent(ctx context.Context, conversationID string, n int) ([]*Message, error) {
	if n <= 0 {
		return []*Message{}, nil
	}
	return r.rangeMessages(ctx, conversationID, int64(-n), -1)
}

func (r *RedisConversationRepository) rangeMessages(ctx context.Context, conversationID string, start, stop int64) ([]*Message, error) {
	ids, err := r.client.ZRange(ctx, conversationKeyPrefix+conversationID+conversationMsgsSuffix, start, stop).Result()
	if err != nil {
		return nil, NewConversationRepositoryError("list_messages", conversationID, err, "")
	}
	if len(ids) == 0 {
		return []*Message{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, messageKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewConversationRepositoryError("list_messages", conversationID, err, "failed to execute batch get")
	}

	msgs := make([]*Message, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, NewConversationRepositoryError("list_messages", conversationID, err, "message "+ids[i])
		}
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, NewConversationRepositoryError("list_messages", conversationID, err, "failed to unmarshal message "+ids[i])
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// ReferencedFiles returns the conversation's attached documents by first reference
func (r *RedisConversationRepository) ReferencedFiles(ctx context.Context, conversationID string) ([]FileReference, error) {
	convKey := conversationKeyPrefix + conversationID
	firsts, err := r.client.ZRangeWithScores(ctx, convKey+filesFirstSuffix, 0, -1).Result()
	if err != nil {
		return nil, NewConversationRepositoryError("referenced_files", conversationID, err, "")
	}
	if len(firsts) == 0 {
		return []FileReference{}, nil
	}

	pipe := r.client.Pipeline()
	lasts := make([]*redis.FloatCmd, len(firsts))
	for i, z := range firsts {
		lasts[i] = pipe.ZScore(ctx, convKey+filesLastSuffix, z.Member.(string))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewConversationRepositoryError("referenced_files", conversationID, err, "")
	}

	refs := make([]FileReference, len(firsts))
	for i, z := range firsts {
		ref := FileReference{
			DocumentID:    z.Member.(string),
			FirstSequence: int64(z.Score) / fileSlots,
			LastSequence:  int64(z.Score) / fileSlots,
		}
		if last, err := lasts[i].Result(); err == nil {
			ref.LastSequence = int64(last) / fileSlots
		}
		refs[i] = ref
	}
	return refs, nil
}

func parseConversation(fields map[string]string) *Conversation {
	conv := &Conversation{ID: fields["id"]}
	conv.MessageCount, _ = strconv.Atoi(fields["message_count"])
	conv.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	conv.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return conv
}

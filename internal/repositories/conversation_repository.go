package repositories

import (
	"context"
	"time"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// ConversationRepository persists conversations and their ordered messages
type ConversationRepository interface {
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, conversationID string) (*Conversation, error)
	List(ctx context.Context, offset, limit int) ([]*Conversation, int, error)

	// AppendMessages assigns each message the next sequence numbers of the
	// conversation, in argument order, and stores them.
	AppendMessages(ctx context.Context, conversationID string, msgs ...*Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	// ListRecent returns the last n messages in ascending sequence order.
	ListRecent(ctx context.Context, conversationID string, n int) ([]*Message, error)

	// ReferencedFiles returns every document the conversation's messages
	// attached, ordered by first reference.
	ReferencedFiles(ctx context.Context, conversationID string) ([]FileReference, error)
}

// Conversation is an ordered sequence of messages
type Conversation struct {
	ID           string    `json:"conversation_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MessageRole is the author of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message belongs to a conversation and is ordered by Sequence
type Message struct {
	ID             string           `json:"message_id"`
	ConversationID string           `json:"conversation_id"`
	Sequence       int64            `json:"sequence"`
	Role           MessageRole      `json:"role"`
	Content        string           `json:"content"`
	FileIDs        []string         `json:"file_ids,omitempty"`
	RetrievalMode  string           `json:"retrieval_mode,omitempty"`
	Retrieval      *RetrievalRecord `json:"retrieval,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// RetrievalRecord is what a search tool call selected during a turn. It is
// stored with the assistant message it supported so later turns can replay it.
type RetrievalRecord struct {
	Query   string           `json:"query"`
	FileIDs []string         `json:"file_ids"`
	TopK    int              `json:"top_k"`
	Chunks  []RetrievedChunk `json:"chunks"`
}

// RetrievedChunk is one ranked search hit
type RetrievedChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// FileReference records where in a conversation a document was attached
type FileReference struct {
	DocumentID    string `json:"document_id"`
	FirstSequence int64  `json:"first_sequence"`
	LastSequence  int64  `json:"last_sequence"`
}

// ConversationRepositoryError represents errors from the conversation repository
type ConversationRepositoryError struct {
	Kind           error
	Operation      string
	ConversationID string
	Err            error
	Message        string
}

func (e *ConversationRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.Operation
	if e.ConversationID != "" {
		prefix += " (conversation: " + e.ConversationID + ")"
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *ConversationRepositoryError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewConversationRepositoryError creates an error for a failed store call
func NewConversationRepositoryError(operation, conversationID string, err error, message string) *ConversationRepositoryError {
	return &ConversationRepositoryError{
		Kind:           apperrors.ErrExternalService,
		Operation:      operation,
		ConversationID: conversationID,
		Err:            err,
		Message:        message,
	}
}

func ConversationNotFoundError(conversationID string) error {
	return &ConversationRepositoryError{
		Kind:           apperrors.ErrNotFound,
		Operation:      "get_conversation",
		ConversationID: conversationID,
		Message:        "conversation not found: " + conversationID,
	}
}

func ConversationAlreadyExistsError(conversationID string) error {
	return &ConversationRepositoryError{
		Kind:           apperrors.ErrConflict,
		Operation:      "create_conversation",
		ConversationID: conversationID,
		Message:        "conversation already exists: " + conversationID,
	}
}

// MaxFilesPerMessage bounds the attachments a single message may reference.
const MaxFilesPerMessage = 100

// Validate checks a message before it is appended
func (m *Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return apperrors.Validation("validate_message", "unknown role "+string(m.Role))
	}
	if len(m.FileIDs) > MaxFilesPerMessage {
		return apperrors.Validation("validate_message", "too many attached files")
	}
	return nil
}

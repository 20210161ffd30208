package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

const (
	DefaultTurnTimeout = 120 * time.Second
	MaxMessageLength   = 32000
	persistTimeout     = 10 * time.Second
)

// ChatRequest is one user turn
type ChatRequest struct {
	ConversationID string
	Message        string
	FileIDs        []string
}

// ChatResult is the answer of a turn
type ChatResult struct {
	ConversationID  string
	Answer          string
	RetrievalMode   string
	RetrievedChunks []repositories.RetrievedChunk
}

// ChatService composes classification, assembly and tool mediation into a
// single response per turn
type ChatService struct {
	convRepo    repositories.ConversationRepository
	docRepo     repositories.DocumentRepository
	classifier  *ModeClassifier
	assembler   *ContextAssembler
	mediator    *ToolMediator
	turnTimeout time.Duration
	logger      logger.Logger
}

// NewChatService creates the chat orchestrator
func NewChatService(
	convRepo repositories.ConversationRepository,
	docRepo repositories.DocumentRepository,
	classifier *ModeClassifier,
	assembler *ContextAssembler,
	mediator *ToolMediator,
	turnTimeout time.Duration,
	log logger.Logger,
) *ChatService {
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}
	return &ChatService{
		convRepo:    convRepo,
		docRepo:     docRepo,
		classifier:  classifier,
		assembler:   assembler,
		mediator:    mediator,
		turnTimeout: turnTimeout,
		logger:      log,
	}
}

// Respond answers a user message. A conversation is created when
// req.ConversationID is empty. Messages are stored only once the model
// answered.
func (s *ChatService) Respond(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	text, fileIDs, err := validateChatRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.turnTimeout)
	defer cancel()

	convID := req.ConversationID
	isNew := convID == ""
	var (
		history []*repositories.Message
		refs    []repositories.FileReference
	)
	if isNew {
		convID = uuid.NewString()
		s.logger.Info("Starting new conversation %s", convID)
	} else {
		if _, err := s.convRepo.Get(ctx, convID); err != nil {
			return nil, err
		}
		if history, err = s.convRepo.ListRecent(ctx, convID, s.assembler.MaxMessages()-1); err != nil {
			return nil, err
		}
		if refs, err = s.convRepo.ReferencedFiles(ctx, convID); err != nil {
			return nil, err
		}
	}

	if err := s.checkFilesExist(ctx, fileIDs); err != nil {
		return nil, err
	}

	sequence := int64(1)
	if n := len(history); n > 0 {
		sequence = history[n-1].Sequence + 1
	}
	refs = MergeReferences(refs, fileIDs, sequence)

	partition, err := s.classifier.Classify(ctx, ReferencedIDs(refs))
	if err != nil {
		return nil, err
	}
	if len(partition.Unavailable) > 0 {
		s.logger.Info("Conversation %s: %d documents unavailable this turn", convID, len(partition.Unavailable))
	}
	s.logger.Debug("Conversation %s: inline=%v rag=%v", convID, partition.Inline, partition.RAG)

	userMsg := &repositories.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Sequence:       sequence,
		Role:           repositories.RoleUser,
		Content:        text,
		FileIDs:        fileIDs,
	}

	assembled, err := s.assembler.Assemble(ctx, AssembleInput{
		History:    history,
		NewMessage: userMsg,
		References: refs,
		Partition:  partition,
	})
	if err != nil {
		return nil, err
	}

	outcome, err := s.mediator.Run(ctx, assembled)
	if err != nil {
		s.logger.Error("Chat turn failed for conversation %s: %v", convID, err)
		return nil, err
	}

	mode := RetrievalModeInline
	chunks := []repositories.RetrievedChunk{}
	if outcome.ToolUsed {
		mode = RetrievalModeRAG
		chunks = outcome.Retrieval.Chunks
	}

	assistantMsg := &repositories.Message{
		ID:             uuid.NewString(),
		ConversationID: convID,
		Role:           repositories.RoleAssistant,
		Content:        outcome.Answer,
		RetrievalMode:  mode,
		Retrieval:      outcome.Retrieval,
	}
	if err := s.persist(ctx, convID, isNew, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	s.logger.Info("Conversation %s answered (%s, %d chunks)", convID, mode, len(chunks))
	return &ChatResult{
		ConversationID:  convID,
		Answer:          outcome.Answer,
		RetrievalMode:   mode,
		RetrievedChunks: chunks,
	}, nil
}

// persist stores the turn even if the caller went away after the model
// answered
func (s *ChatService) persist(ctx context.Context, convID string, isNew bool, msgs ...*repositories.Message) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if isNew {
		if err := s.convRepo.Create(pctx, &repositories.Conversation{ID: convID}); err != nil {
			s.logger.Error("Failed to create conversation %s: %v", convID, err)
			return err
		}
	}
	if err := s.convRepo.AppendMessages(pctx, convID, msgs...); err != nil {
		s.logger.Error("Failed to store messages for conversation %s: %v", convID, err)
		return err
	}
	return nil
}

func (s *ChatService) checkFilesExist(ctx context.Context, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	docs, err := s.docRepo.GetBatch(ctx, fileIDs)
	if err != nil {
		return err
	}
	if len(docs) == len(fileIDs) {
		return nil
	}
	found := make(map[string]bool, len(docs))
	for _, d := range docs {
		found[d.ID] = true
	}
	for _, id := range fileIDs {
		if !found[id] {
			return apperrors.NotFound("chat", "file not found: "+id)
		}
	}
	return nil
}

func validateChatRequest(req ChatRequest) (string, []string, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return "", nil, apperrors.Validation("chat", "message is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", nil, apperrors.Validation("chat", fmt.Sprintf("message exceeds %d characters", MaxMessageLength))
	}
	fileIDs := dedupe(req.FileIDs)
	if len(fileIDs) > repositories.MaxFilesPerMessage {
		return "", nil, apperrors.Validation("chat", "too many attached files")
	}
	return text, fileIDs, nil
}

// ListConversations returns a page of conversations, newest first
func (s *ChatService) ListConversations(ctx context.Context, offset, limit int) ([]*repositories.Conversation, int, error) {
	return s.convRepo.List(ctx, offset, limit)
}

// GetConversation returns a conversation with its whole history
func (s *ChatService) GetConversation(ctx context.Context, conversationID string) (*repositories.Conversation, []*repositories.Message, error) {
	conv, err := s.convRepo.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.convRepo.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
	"github.com/tejasgodse24/chat-with-pdf/internal/services"
)

// ChatService answers turns and serves conversation history
type ChatService interface {
	Respond(ctx context.Context, req services.ChatRequest) (*services.ChatResult, error)
	ListConversations(ctx context.Context, offset, limit int) ([]*repositories.Conversation, int, error)
	GetConversation(ctx context.Context, conversationID string) (*repositories.Conversation, []*repositories.Message, error)
}

// ChatHandler handles chat and conversation history requests
type ChatHandler struct {
	chatService ChatService
	logger      logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService ChatService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      log,
	}
}

// Chat handles one user turn
// @Summary Send a message
// @Description Answer a message, optionally attaching PDFs. Small documents are sent inline; large ones are searched when the model asks for it.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body models.ChatRequest true "Chat message"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 413 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, h.logger, err)
		return
	}

	result, err := h.chatService.Respond(r.Context(), services.ChatRequest{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		FileIDs:        req.AttachedFiles(),
	})
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, models.ChatResponse{
		ConversationID:  result.ConversationID,
		Response:        result.Answer,
		RetrievalMode:   result.RetrievalMode,
		RetrievedChunks: toChunkResponses(result.RetrievedChunks),
	})
}

// ListConversations returns a page of conversations
// @Summary List conversations
// @Description Page through conversations, newest first
// @Tags chat
// @Produce json
// @Param limit query int false "Page size (1-100)" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} models.ConversationListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/chats [get]
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pagination(r)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	convs, total, err := h.chatService.ListConversations(r.Context(), offset, limit)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	chats := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		chats = append(chats, models.ConversationSummary{
			ConversationID: c.ID,
			CreatedAt:      c.CreatedAt,
			MessageCount:   c.MessageCount,
		})
	}

	sendJSON(w, h.logger, http.StatusOK, models.ConversationListResponse{
		Chats:  chats,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetConversation returns a conversation's full history
// @Summary Get conversation
// @Description Get every message of a conversation, with the chunks each RAG answer used
// @Tags chat
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} models.ConversationDetailResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/chats/{id} [get]
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	conv, msgs, err := h.chatService.GetConversation(r.Context(), conversationID)
	if err != nil {
		sendError(w, h.logger, err)
		return
	}

	messages := make([]models.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		mr := models.MessageResponse{
			Role:          string(m.Role),
			Content:       m.Content,
			FileIDs:       m.FileIDs,
			RetrievalMode: m.RetrievalMode,
			CreatedAt:     m.CreatedAt,
		}
		if m.Retrieval != nil {
			mr.RetrievedChunks = toChunkResponses(m.Retrieval.Chunks)
		}
		messages = append(messages, mr)
	}

	sendJSON(w, h.logger, http.StatusOK, models.ConversationDetailResponse{
		ConversationID: conv.ID,
		CreatedAt:      conv.CreatedAt,
		Messages:       messages,
	})
}

func toChunkResponses(chunks []repositories.RetrievedChunk) []models.RetrievedChunk {
	out := make([]models.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, models.RetrievedChunk{
			FileID:          c.DocumentID,
			ChunkID:         c.ChunkID,
			ChunkText:       c.Text,
			SimilarityScore: c.Score,
		})
	}
	return out
}

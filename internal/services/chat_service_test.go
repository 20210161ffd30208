package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

type chatFixture struct {
	convs   *repositories.RedisConversationRepository
	docs    *repositories.RedisDocumentRepository
	blobs   *memBlobStore
	index   *memVectorIndex
	llm     *scriptedLLM
	service *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	client := newTestRedis(t)
	f := &chatFixture{
		convs: repositories.NewRedisConversationRepository(client),
		docs:  repositories.NewRedisDocumentRepository(client),
		blobs: newMemBlobStore(),
		index: newMemVectorIndex(),
		llm:   &scriptedLLM{},
	}
	embedder := &hashEmbedder{}
	search := NewSearchService(f.docs, f.index, embedder, 5, 20, logger.Nop())
	f.service = NewChatService(
		f.convs,
		f.docs,
		NewModeClassifier(f.docs),
		NewContextAssembler(f.blobs, AssemblerConfig{}, logger.Nop()),
		NewToolMediator(f.llm, search, 5, 20, logger.Nop()),
		0,
		logger.Nop(),
	)
	return f
}

func (f *chatFixture) uploaded(t *testing.T, id string) {
	t.Helper()
	f.blobs.set(id, samplePDF)
	registerDoc(t, f.docs, id, repositories.DocumentStatusUploaded, int64(len(samplePDF)))
}

func (f *chatFixture) indexed(t *testing.T, id string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	var machine IngestionStateMachine
	for _, next := range []repositories.DocumentStatus{repositories.DocumentStatusProcessing, repositories.DocumentStatusCompleted} {
		_, err := f.docs.TransitionStatus(ctx, id, machine.Sources(next), next, nil)
		require.NoError(t, err)
	}
	embedder := &hashEmbedder{}
	chunks := make([]*repositories.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &repositories.Chunk{
			ID:         repositories.ChunkID(id, i),
			DocumentID: id,
			ChunkIndex: i,
			Text:       text,
			Embedding:  embedder.vector(text),
		}
	}
	require.NoError(t, f.index.Upsert(ctx, chunks))
}

func (f *chatFixture) lastCall() []string {
	f.llm.mu.Lock()
	defer f.llm.mu.Unlock()
	msgs := f.llm.calls[len(f.llm.calls)-1]
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	return roles
}

func TestChatService_InlineTurn(t *testing.T) {
	f := newChatFixture(t)
	f.uploaded(t, "report")
	f.llm.responses = []*Completion{answer("It is a quarterly report.")}

	res, err := f.service.Respond(context.Background(), ChatRequest{Message: " What is this? ", FileIDs: []string{"report", "report"}})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ConversationID)
	assert.Equal(t, "It is a quarterly report.", res.Answer)
	assert.Equal(t, RetrievalModeInline, res.RetrievalMode)
	assert.Empty(t, res.RetrievedChunks)

	require.Equal(t, 1, f.llm.callCount())
	assert.Nil(t, f.llm.tools[0])
	call := f.llm.calls[0]
	require.Len(t, call, 2)
	assert.Equal(t, "system", call[0].Role)
	assert.Equal(t, "What is this?", call[1].Content)
	require.Len(t, call[1].Files, 1)
	assert.Equal(t, "report.pdf", call[1].Files[0].Filename)

	conv, msgs, err := f.service.GetConversation(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
	require.Len(t, msgs, 2)
	assert.Equal(t, repositories.RoleUser, msgs[0].Role)
	assert.Equal(t, []string{"report"}, msgs[0].FileIDs)
	assert.Equal(t, repositories.RoleAssistant, msgs[1].Role)
	assert.Equal(t, RetrievalModeInline, msgs[1].RetrievalMode)
	assert.Nil(t, msgs[1].Retrieval)
}

func TestChatService_RAGTurnAndReplay(t *testing.T) {
	f := newChatFixture(t)
	f.uploaded(t, "report")
	f.indexed(t, "report", "revenue was five million", "the office moved to Berlin")
	f.llm.responses = []*Completion{
		searchCall(`{"query":"revenue"}`),
		answer("Revenue was 5M."),
		answer("Summary based on earlier passages."),
	}

	ctx := context.Background()
	res, err := f.service.Respond(ctx, ChatRequest{Message: "What was revenue?", FileIDs: []string{"report"}})
	require.NoError(t, err)

	assert.Equal(t, RetrievalModeRAG, res.RetrievalMode)
	assert.Equal(t, "Revenue was 5M.", res.Answer)
	require.NotEmpty(t, res.RetrievedChunks)
	assert.Equal(t, "report:0", res.RetrievedChunks[0].ChunkID)
	require.Len(t, f.llm.tools[0], 1)
	for _, m := range f.llm.calls[0] {
		assert.Empty(t, m.Files, "indexed documents are never inlined")
	}

	_, msgs, err := f.service.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Retrieval)
	assert.Equal(t, "revenue", msgs[1].Retrieval.Query)

	// the next turn replays the retrieval right after the answer it supported
	_, err = f.service.Respond(ctx, ChatRequest{ConversationID: res.ConversationID, Message: "Summarize"})
	require.NoError(t, err)
	assert.Equal(t, []string{"system", "user", "assistant", "system", "user"}, f.lastCall())
	last := f.llm.calls[len(f.llm.calls)-1]
	assert.Contains(t, last[3].Content, "revenue was five million")
}

func TestChatService_SearchBecomesAvailableOnLaterTurn(t *testing.T) {
	f := newChatFixture(t)
	f.uploaded(t, "report")
	ctx := context.Background()

	res, err := f.service.Respond(ctx, ChatRequest{Message: "turn 1", FileIDs: []string{"report"}})
	require.NoError(t, err)
	assert.Nil(t, f.llm.tools[0])
	assert.Len(t, f.llm.calls[0][1].Files, 1)

	for turn := 2; turn <= 9; turn++ {
		_, err := f.service.Respond(ctx, ChatRequest{ConversationID: res.ConversationID, Message: fmt.Sprintf("turn %d", turn)})
		require.NoError(t, err)
	}

	// ingestion finished in the background
	f.indexed(t, "report", "revenue was five million")

	calls := f.llm.callCount()
	res10, err := f.service.Respond(ctx, ChatRequest{ConversationID: res.ConversationID, Message: "turn 10"})
	require.NoError(t, err)
	require.Equal(t, calls+1, f.llm.callCount())

	tools := f.llm.tools[calls]
	require.Len(t, tools, 1)
	assert.Equal(t, SearchCapability, tools[0].Function.Name)
	for _, m := range f.llm.calls[calls] {
		assert.Empty(t, m.Files)
	}
	assert.Equal(t, RetrievalModeInline, res10.RetrievalMode)

	conv, _, err := f.service.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 20, conv.MessageCount)
}

func TestChatService_WindowKeepsRecentMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	res, err := f.service.Respond(ctx, ChatRequest{Message: "turn 1"})
	require.NoError(t, err)
	for turn := 2; turn <= 12; turn++ {
		_, err := f.service.Respond(ctx, ChatRequest{ConversationID: res.ConversationID, Message: fmt.Sprintf("turn %d", turn)})
		require.NoError(t, err)
	}

	last := f.llm.calls[len(f.llm.calls)-1]
	// system prompt plus 19 stored messages plus the new one
	require.Len(t, last, 21)
	assert.Equal(t, "assistant", last[1].Role)
	assert.Equal(t, "turn 12", last[20].Content)
}

func TestChatService_NothingStoredWhenModelFails(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.llm.errs = []error{apperrors.ExternalService("llm_complete", assert.AnError)}

	_, err := f.service.Respond(ctx, ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, apperrors.ErrExternalService)

	_, total, err := f.service.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	// an existing conversation keeps its history untouched
	f.llm.errs = nil
	res, err := f.service.Respond(ctx, ChatRequest{Message: "hello"})
	require.NoError(t, err)
	f.llm.errs = make([]error, f.llm.callCount()+1)
	f.llm.errs[f.llm.callCount()] = apperrors.ExternalService("llm_complete", assert.AnError)

	_, err = f.service.Respond(ctx, ChatRequest{ConversationID: res.ConversationID, Message: "again"})
	require.Error(t, err)
	conv, _, err := f.service.GetConversation(ctx, res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestChatService_Validation(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.service.Respond(ctx, ChatRequest{Message: "   "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.service.Respond(ctx, ChatRequest{Message: strings.Repeat("a", MaxMessageLength+1)})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.service.Respond(ctx, ChatRequest{ConversationID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.Respond(ctx, ChatRequest{Message: "hi", FileIDs: []string{"ghost"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")

	assert.Zero(t, f.llm.callCount())
}

func TestChatService_UnavailableDocumentsAreSkipped(t *testing.T) {
	f := newChatFixture(t)
	registerDoc(t, f.docs, "busy", repositories.DocumentStatusProcessing, 10)

	res, err := f.service.Respond(context.Background(), ChatRequest{Message: "hi", FileIDs: []string{"busy"}})
	require.NoError(t, err)
	assert.Equal(t, RetrievalModeInline, res.RetrievalMode)
	assert.Nil(t, f.llm.tools[0])
	assert.Empty(t, f.llm.calls[0][1].Files)
}

func TestChatService_ModelSearchOutsideConversationIsUpstreamError(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	f.uploaded(t, "doc-a")
	f.indexed(t, "doc-a", "revenue was 5M")
	f.llm.responses = []*Completion{searchCall(`{"query":"revenue","file_ids":["doc-ghost"]}`)}

	_, err := f.service.Respond(ctx, ChatRequest{Message: "what was revenue?", FileIDs: []string{"doc-a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.NotErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
	assert.NotContains(t, apperrors.PublicMessage(err), "doc-ghost")

	_, total, err := f.service.ListConversations(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

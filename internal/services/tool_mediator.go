package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
	"github.com/tejasgodse24/chat-with-pdf/internal/repositories"
)

// SearchCapability is the only tool the model may call
const SearchCapability = "search_documents"

// ToolCall is a model-issued tool invocation: a capability name plus its
// raw JSON arguments, validated before anything runs
type ToolCall struct {
	ID         string
	Capability string
	Arguments  json.RawMessage
}

// SearchArguments are the validated arguments of a search_documents call
type SearchArguments struct {
	Query   string   `json:"query"`
	FileIDs []string `json:"file_ids,omitempty"`
	TopK    int      `json:"top_k,omitempty"`
}

// ParseSearchArguments decodes and validates call against the search schema.
// Unknown fields are rejected. Empty file_ids means the whole RAG set;
// otherwise every id must belong to it.
func ParseSearchArguments(call ToolCall, ragFileIDs []string, defaultTopK, maxTopK int) (*SearchArguments, error) {
	const op = "parse_tool_call"

	if call.Capability != SearchCapability {
		return nil, apperrors.Validation(op, "unknown capability "+call.Capability)
	}

	var args SearchArguments
	dec := json.NewDecoder(bytes.NewReader(call.Arguments))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return nil, apperrors.New(apperrors.ErrValidation, op, "malformed arguments", err)
	}

	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return nil, apperrors.Validation(op, "query is required")
	}

	if args.TopK == 0 {
		args.TopK = defaultTopK
	}
	if args.TopK < 1 || args.TopK > maxTopK {
		return nil, apperrors.Validation(op, fmt.Sprintf("top_k must be between 1 and %d", maxTopK))
	}

	allowed := make(map[string]bool, len(ragFileIDs))
	for _, id := range ragFileIDs {
		allowed[id] = true
	}
	if len(args.FileIDs) == 0 {
		args.FileIDs = append([]string{}, ragFileIDs...)
	} else {
		args.FileIDs = dedupe(args.FileIDs)
		for _, id := range args.FileIDs {
			if !allowed[id] {
				return nil, apperrors.Validation(op, "file "+id+" is not searchable in this conversation")
			}
		}
	}
	if len(args.FileIDs) == 0 {
		return nil, apperrors.Validation(op, "no searchable files")
	}
	return &args, nil
}

// SearchTool describes search_documents to the model
func SearchTool(maxTopK int) models.LLMTool {
	params := fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "What to look for in the documents"},
    "file_ids": {"type": "array", "items": {"type": "string"}, "description": "Documents to search; omit to search all indexed documents of the conversation"},
    "top_k": {"type": "integer", "minimum": 1, "maximum": %d, "description": "Number of passages to return"}
  },
  "required": ["query"],
  "additionalProperties": false
}`, maxTopK)
	return models.LLMTool{
		Type: "function",
		Function: models.LLMFunctionDef{
			Name:        SearchCapability,
			Description: "Semantic search over the conversation's indexed PDF documents. Returns the most relevant passages.",
			Parameters:  json.RawMessage(params),
		},
	}
}

// MediationResult is the final answer of a turn and the retrieval behind it
type MediationResult struct {
	Answer    string
	ToolUsed  bool
	Retrieval *repositories.RetrievalRecord
}

// ToolMediator runs the one-round tool protocol: offer search when the
// conversation has indexed documents, run at most one search, then call the
// model exactly once more without tools.
type ToolMediator struct {
	llm         LLMClient
	searcher    Searcher
	defaultTopK int
	maxTopK     int
	logger      logger.Logger
}

// NewToolMediator creates a mediator
func NewToolMediator(llm LLMClient, searcher Searcher, defaultTopK, maxTopK int, log logger.Logger) *ToolMediator {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if maxTopK < defaultTopK {
		maxTopK = defaultTopK
	}
	return &ToolMediator{
		llm:         llm,
		searcher:    searcher,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      log,
	}
}

// Run drives the model over assembled. When a search runs, assembled is
// extended with the tool exchange.
func (m *ToolMediator) Run(ctx context.Context, assembled *AssembledContext) (*MediationResult, error) {
	var tools []models.LLMTool
	if len(assembled.RAGFileIDs) > 0 {
		tools = []models.LLMTool{SearchTool(m.maxTopK)}
	}

	first, err := m.llm.Complete(ctx, assembled.LLMMessages(), tools)
	if err != nil {
		return nil, err
	}
	if !first.HasToolCall() || tools == nil {
		if first.Content != "" {
			return &MediationResult{Answer: first.Content}, nil
		}
		if first.HasToolCall() {
			return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("model returned a tool call without tools offered"))
		}
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("model returned an empty answer"))
	}

	if len(first.ToolCalls) > 1 {
		m.logger.Warn("Model issued %d tool calls, running only the first", len(first.ToolCalls))
	}
	call := first.ToolCalls[0]
	if call.ID == "" {
		call.ID = "call_0"
	}

	args, err := ParseSearchArguments(call, assembled.RAGFileIDs, m.defaultTopK, m.maxTopK)
	if err != nil {
		// a malformed call is the model's failure, reported as upstream
		m.logger.Warn("Rejected tool call %s: %v", call.Capability, err)
		return nil, apperrors.New(apperrors.ErrExternalService, llmOperation, "rejected tool call: "+err.Error(), nil)
	}
	m.logger.Info("Running %s: query=%q files=%d top_k=%d", call.Capability, args.Query, len(args.FileIDs), args.TopK)

	resp, err := m.searcher.Search(ctx, SearchRequest{FileIDs: args.FileIDs, Query: args.Query, TopK: args.TopK})
	if err != nil {
		return nil, err
	}
	record := retrievalRecord(args, resp.Results)
	assembled.AppendToolExchange(call, record)

	second, err := m.llm.Complete(ctx, assembled.LLMMessages(), nil)
	if err != nil {
		return nil, err
	}
	if second.Content == "" {
		return nil, apperrors.ExternalService(llmOperation, fmt.Errorf("model returned no answer after search"))
	}
	if second.HasToolCall() {
		m.logger.Warn("Ignoring %d tool calls in the final response", len(second.ToolCalls))
	}

	return &MediationResult{Answer: second.Content, ToolUsed: true, Retrieval: record}, nil
}

func retrievalRecord(args *SearchArguments, results []*repositories.SearchResult) *repositories.RetrievalRecord {
	record := &repositories.RetrievalRecord{
		Query:   args.Query,
		FileIDs: args.FileIDs,
		TopK:    args.TopK,
		Chunks:  make([]repositories.RetrievedChunk, 0, len(results)),
	}
	for _, r := range results {
		record.Chunks = append(record.Chunks, repositories.RetrievedChunk{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      r.Score,
		})
	}
	return record
}

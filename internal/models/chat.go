package models

import (
	"encoding/json"
	"time"
)

// ChatRequest represents the incoming chat request from the frontend
type ChatRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"` // Existing conversation; a new one is created when empty
	Message        string   `json:"message"`                   // The current user message
	FileID         string   `json:"file_id,omitempty"`         // Single attachment shorthand
	FileIDs        []string `json:"file_ids,omitempty"`        // Documents attached to this message
}

// AttachedFiles merges FileID and FileIDs, keeping order and dropping duplicates
func (r ChatRequest) AttachedFiles() []string {
	ids := make([]string, 0, len(r.FileIDs)+1)
	seen := make(map[string]bool, len(r.FileIDs)+1)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	add(r.FileID)
	for _, id := range r.FileIDs {
		add(id)
	}
	return ids
}

// ChatResponse represents the response sent back to the frontend
type ChatResponse struct {
	ConversationID  string           `json:"conversation_id"`
	Response        string           `json:"response"`       // The assistant's answer
	RetrievalMode   string           `json:"retrieval_mode"` // "inline" or "rag"
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks"`
}

// RetrievedChunk is a document chunk used as context for an answer
type RetrievedChunk struct {
	FileID          string  `json:"file_id,omitempty"`
	ChunkID         string  `json:"chunk_id,omitempty"`
	ChunkText       string  `json:"chunk_text"`
	SimilarityScore float32 `json:"similarity_score"`
}

// RetrieveRequest asks for a semantic search over specific files
type RetrieveRequest struct {
	FileIDs []string `json:"file_ids"`
	Query   string   `json:"query"`
	TopK    int      `json:"top_k,omitempty"`
}

// RetrieveResponse carries ranked chunks for a RetrieveRequest
type RetrieveResponse struct {
	Query        string           `json:"query"`
	FileIDs      []string         `json:"file_ids"`
	TopK         int              `json:"top_k"`
	Results      []RetrievedChunk `json:"results"`
	ResultsCount int              `json:"results_count"`
}

// ConversationSummary is one row of the conversation list
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
	MessageCount   int       `json:"message_count"`
}

// ConversationListResponse is a page of conversations, newest first
type ConversationListResponse struct {
	Chats  []ConversationSummary `json:"chats"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// MessageResponse is a stored message as returned by the API
type MessageResponse struct {
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	FileIDs         []string         `json:"file_ids,omitempty"`
	RetrievalMode   string           `json:"retrieval_mode,omitempty"`
	RetrievedChunks []RetrievedChunk `json:"retrieved_chunks,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ConversationDetailResponse is a conversation with its full history
type ConversationDetailResponse struct {
	ConversationID string            `json:"conversation_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Messages       []MessageResponse `json:"messages"`
}

// LLM wire types for OpenAI-compatible /chat/completions.

// LLMMessage is one entry of the messages array sent to the model. Files are
// rendered as file content parts after the text.
type LLMMessage struct {
	Role       string
	Content    string
	Files      []FileAttachment
	ToolCalls  []LLMToolCall
	ToolCallID string
}

// FileAttachment is a base64-encoded document sent inline
type FileAttachment struct {
	Filename string
	Data     string // base64, without data URL prefix
}

type contentPart struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *filePart `json:"file,omitempty"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type llmMessageJSON struct {
	Role       string        `json:"role"`
	Content    interface{}   `json:"content"`
	ToolCalls  []LLMToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

func (m LLMMessage) MarshalJSON() ([]byte, error) {
	out := llmMessageJSON{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
	if len(m.Files) > 0 {
		parts := make([]contentPart, 0, len(m.Files)+1)
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
		for _, f := range m.Files {
			parts = append(parts, contentPart{
				Type: "file",
				File: &filePart{
					Filename: f.Filename,
					FileData: "data:application/pdf;base64," + f.Data,
				},
			})
		}
		out.Content = parts
	}
	return json.Marshal(out)
}

// LLMToolCall is a function call emitted by the model
type LLMToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function LLMFunctionCall `json:"function"`
}

// LLMFunctionCall carries the raw JSON-encoded arguments string
type LLMFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// LLMTool advertises a callable function to the model
type LLMTool struct {
	Type     string         `json:"type"`
	Function LLMFunctionDef `json:"function"`
}

// LLMFunctionDef describes a function with a JSON-schema parameter object
type LLMFunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest is the body of POST /chat/completions
type CompletionRequest struct {
	Model       string       `json:"model"`
	Messages    []LLMMessage `json:"messages"`
	Tools       []LLMTool    `json:"tools,omitempty"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream"`
}

// CompletionResponse is the subset of the completion response we read
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string        `json:"role"`
			Content   *string       `json:"content"`
			ToolCalls []LLMToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

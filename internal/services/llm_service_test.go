package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/models"
)

func newLLMServer(t *testing.T, handler http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLLMService(LLMConfig{BaseURL: srv.URL, APIKey: "key"})
}

func TestLLMService_CompleteText(t *testing.T) {
	llm := newLLMServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultChatModel, body["model"])
		_, hasTools := body["tools"]
		assert.False(t, hasTools)

		msgs := body["messages"].([]interface{})
		require.Len(t, msgs, 2)
		user := msgs[1].(map[string]interface{})
		parts := user["content"].([]interface{})
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].(map[string]interface{})["type"])
		file := parts[1].(map[string]interface{})
		assert.Equal(t, "file", file["type"])
		assert.Equal(t, "a.pdf", file["file"].(map[string]interface{})["filename"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	})

	out, err := llm.Complete(context.Background(), []models.LLMMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "summarize", Files: []models.FileAttachment{{Filename: "a.pdf", Data: "JVBERi0="}}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.False(t, out.HasToolCall())
	assert.Equal(t, "stop", out.FinishReason)
}

func TestLLMService_CompleteToolCall(t *testing.T) {
	llm := newLLMServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body models.CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Tools, 1)
		assert.Equal(t, SearchCapability, body.Tools[0].Function.Name)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_9","type":"function","function":{"name":"search_documents","arguments":"{\"query\":\"revenue\"}"}}
		]},"finish_reason":"tool_calls"}]}`))
	})

	out, err := llm.Complete(context.Background(), []models.LLMMessage{{Role: "user", Content: "q"}}, []models.LLMTool{SearchTool(10)})
	require.NoError(t, err)
	require.True(t, out.HasToolCall())
	assert.Equal(t, "call_9", out.ToolCalls[0].ID)
	assert.Equal(t, SearchCapability, out.ToolCalls[0].Capability)
	assert.JSONEq(t, `{"query":"revenue"}`, string(out.ToolCalls[0].Arguments))
	assert.Empty(t, out.Content)
}

func TestLLMService_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"non-200", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`},
		{"malformed", http.StatusOK, `not json`},
		{"error field", http.StatusOK, `{"error":{"message":"bad model"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty answer", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := newLLMServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := llm.Complete(context.Background(), []models.LLMMessage{{Role: "user", Content: "q"}}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrExternalService)
		})
	}
}

func TestLLMService_HealthCheck(t *testing.T) {
	llm := newLLMServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, llm.HealthCheck(context.Background()))
}

package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"neon-assistant-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := NewOpenAIProvider(srv.URL, "test-key", "default-model")
	return p, srv
}

func TestChatWithToolsRequestShape(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"choices": [{"message": {"content": "hello"}}]}`))
	})
	defer srv.Close()

	tools := []llm.Tool{{
		Name:        "list_projects",
		Description: "Lists projects",
		Parameters:  map[string]any{"type": "object"},
	}}
	history := []llm.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "model", Content: "earlier reply"},
		{Role: "user", Content: "hi"},
	}

	completion, err := p.ChatWithTools(context.Background(), history, tools, llm.WithModel("gpt-4o"))
	require.NoError(t, err)
	assert.Equal(t, "hello", completion.Content)
	assert.Empty(t, completion.ToolCalls)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody["model"])

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 3)
	// Gemini-style "model" role is normalized before it reaches the API
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])

	wireTools := gotBody["tools"].([]any)
	require.Len(t, wireTools, 1)
	tool := wireTools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "list_projects", tool["function"].(map[string]any)["name"])
}

func TestChatWithToolsParsesToolCalls(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices": [{"message": {
				"content": "",
				"tool_calls": [{
					"id": "call_1",
					"type": "function",
					"function": {"name": "get_project", "arguments": "{\"project_id\": \"proj-1\"}"}
				}]
			}}]
		}`))
	})
	defer srv.Close()

	completion, err := p.ChatWithTools(context.Background(), []llm.Message{{Role: "user", Content: "show proj-1"}}, nil)
	require.NoError(t, err)

	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "call_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "get_project", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"project_id": "proj-1"}`, completion.ToolCalls[0].Arguments)
}

func TestChatWithToolsUpstreamError(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	})
	defer srv.Close()

	_, err := p.ChatWithTools(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestChatReturnsContentOnly(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "summary text"}}]}`))
	})
	defer srv.Close()

	content, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "summarize"}})
	require.NoError(t, err)
	assert.Equal(t, "summary text", content)
}

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_ForcedToolCall(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"content": null, "tool_calls": [
				{"id": "call_1", "type": "function", "function": {"name": "emit", "arguments": "{\"x\":1}"}}
			]}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", "", WithBaseURL(srv.URL+"/"))
	require.NoError(t, err)
	resp, err := c.Generate(context.Background(), Request{
		Messages:    []Message{System("sys"), User("hi")},
		MaxTokens:   4096,
		Temperature: 0.1,
		Tools:       []ToolDefinition{{Name: "emit", Description: "d", Parameters: map[string]any{"type": "object"}}},
		ToolChoice:  "emit",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", got["model"])
	assert.EqualValues(t, 4096, got["max_tokens"])
	assert.InDelta(t, 0.1, got["temperature"], 1e-9)
	assert.Equal(t, map[string]any{"type": "function", "function": map[string]any{"name": "emit"}}, got["tool_choice"])
	tools := got["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "function", tools[0].(map[string]any)["type"])

	assert.Equal(t, "gpt-4o-2024-08-06", resp.Model)
	assert.Empty(t, resp.Content)
	tc, ok := resp.ToolCall("emit")
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, tc.Arguments)
	assert.Equal(t, &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, resp.Usage)
}

func TestOpenAIClient_StatusClassification(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, status)
	}))
	defer srv.Close()

	c, err := NewGroqClient("k", "m", WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "groq:m", c.Name())

	_, err = c.Generate(context.Background(), Request{Messages: []Message{User("x")}})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	status = http.StatusTooManyRequests
	_, err = c.Generate(context.Background(), Request{Messages: []Message{User("x")}})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	status = http.StatusBadGateway
	_, err = c.Generate(context.Background(), Request{Messages: []Message{User("x")}})
	assert.False(t, IsPermanent(err))
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	c, _ := NewOpenAIClient("k", "m", WithBaseURL(srv.URL))
	_, err := c.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "m")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

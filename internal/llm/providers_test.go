package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	genai "google.golang.org/genai"
)

func TestNewClient_ProviderMapping(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Provider: "watsonx"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewClient(context.Background(), Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := NewClient(context.Background(), Config{Provider: " Fake "})
	require.NoError(t, err)
	assert.Equal(t, "fake", c.Name())
	require.NoError(t, c.Close())

	assert.Equal(t, []string{"anthropic", "fake", "gemini", "groq", "openai"}, Providers())
}

func TestFakeClient_OfflineToolCall(t *testing.T) {
	f := NewFakeClient()
	resp, err := f.Generate(context.Background(), Request{
		Messages: []Message{
			System("sys"),
			User("## Installer Information\nApplication Name: 7-Zip\nVersion: 21.07\nInstaller Type: MSI\n"),
		},
		ToolChoice: "generate_psadt_script",
	})
	require.NoError(t, err)
	tc, ok := resp.ToolCall("generate_psadt_script")
	require.True(t, ok)

	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Arguments), &args))
	inst := args["installation"].(map[string]any)
	cmd := inst["commands"].([]any)[0].(map[string]any)
	assert.Equal(t, "Execute-MSI", cmd["name"])
	assert.Equal(t, "7-Zip.msi", cmd["parameters"].(map[string]any)["Path"])

	plain, err := f.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, plain.ToolCalls)
	assert.Len(t, f.Calls(), 2)
}

func TestAnthropicTool_SplitsSchema(t *testing.T) {
	tool := anthropicTool(ToolDefinition{
		Name:        "emit",
		Description: "d",
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"a": map[string]any{"type": "string"}},
			"required":             []string{"a"},
			"additionalProperties": false,
		},
	})
	assert.Equal(t, "emit", tool.Name)
	assert.Equal(t, []string{"a"}, tool.InputSchema.Required)
	assert.Equal(t, map[string]any{"additionalProperties": false}, tool.InputSchema.ExtraFields)
	assert.NotNil(t, tool.InputSchema.Properties)
}

func TestGeminiRequest_ForcesFunction(t *testing.T) {
	contents, cfg := geminiRequest(Request{
		Messages:    []Message{System("a"), System("b"), User("u"), Assistant("x"), User("fix it")},
		MaxTokens:   4096,
		Temperature: 0.1,
		Tools:       []ToolDefinition{{Name: "emit", Parameters: map[string]any{"type": "object"}}},
		ToolChoice:  "emit",
	})
	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "a\n\nb", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(4096), cfg.MaxOutputTokens)
	require.Len(t, cfg.Tools, 1)
	assert.Equal(t, "emit", cfg.Tools[0].FunctionDeclarations[0].Name)
	assert.Equal(t, genai.FunctionCallingConfigModeAny, cfg.ToolConfig.FunctionCallingConfig.Mode)
	assert.Equal(t, []string{"emit"}, cfg.ToolConfig.FunctionCallingConfig.AllowedFunctionNames)
}

func TestGeminiResponse_ReadsFunctionCall(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash-001",
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "note "},
			{FunctionCall: &genai.FunctionCall{Name: "emit", Args: map[string]any{"x": 1.0}}},
		}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 4, TotalTokenCount: 7},
	}
	r, err := geminiResponse(resp, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash-001", r.Model)
	assert.Equal(t, "note ", r.Content)
	tc, ok := r.ToolCall("emit")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, tc.Arguments)
	assert.Equal(t, 7, r.Usage.TotalTokens)

	_, err = geminiResponse(&genai.GenerateContentResponse{}, "m")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

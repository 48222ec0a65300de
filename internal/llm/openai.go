package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"

	DefaultOpenAIModel = "gpt-4o"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions API. Groq and
// any other compatible endpoint only differ in base URL and key.
type OpenAIClient struct {
	http    *http.Client
	name    string
	apiKey  string
	model   string
	baseURL string
}

type OpenAIOption func(*OpenAIClient)

func WithBaseURL(u string) OpenAIOption {
	return func(c *OpenAIClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if h != nil {
			c.http = h
		}
	}
}

// WithProviderName changes the prefix reported by Name.
func WithProviderName(n string) OpenAIOption {
	return func(c *OpenAIClient) { c.name = n }
}

func NewOpenAIClient(apiKey, model string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrNoAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	c := &OpenAIClient{
		http:    &http.Client{Timeout: 120 * time.Second},
		name:    "openai",
		apiKey:  apiKey,
		model:   model,
		baseURL: OpenAIBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewGroqClient is an OpenAIClient pointed at Groq.
func NewGroqClient(apiKey, model string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if model == "" {
		model = DefaultGroqModel
	}
	opts = append([]OpenAIOption{WithBaseURL(GroqBaseURL), WithProviderName("groq")}, opts...)
	return NewOpenAIClient(apiKey, model, opts...)
}

func (c *OpenAIClient) Name() string { return c.name + ":" + c.model }
func (c *OpenAIClient) Close() error { return nil }

type oaChatReq struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Tools       []oaTool    `json:"tools,omitempty"`
	ToolChoice  any         `json:"tool_choice,omitempty"`
}

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaTool struct {
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type oaChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	body := oaChatReq{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: &req.Temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, oaMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, oaTool{
			Type:     "function",
			Function: oaFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if req.ToolChoice != "" {
		body.ToolChoice = map[string]any{
			"type":     "function",
			"function": map[string]string{"name": req.ToolChoice},
		}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("%s: encode request: %w", c.name, err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("%s: unexpected status %s: %s", c.name, resp.Status, strings.TrimSpace(string(raw)))
		if permanentStatus(resp.StatusCode) {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}

	var out oaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", c.name, ErrEmptyResponse)
	}
	msg := out.Choices[0].Message
	r := &Response{Model: out.Model}
	if r.Model == "" {
		r.Model = c.model
	}
	if msg.Content != nil {
		r.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		r.ToolCalls = append(r.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	if out.Usage != nil {
		r.Usage = &Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return r, nil
}

// permanentStatus reports client errors that a retry cannot fix. 408 and 429
// are transient.
func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
